package anthropic

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/adkservice/core"
	"github.com/hupe1980/adkservice/model"
)

func TestRegister_ResolvesClaudeNames(t *testing.T) {
	reg := model.NewRegistry()
	Register(reg, func(o *Options) { o.APIKey = "test-key" })

	m, err := reg.Resolve("claude-3-5-haiku-latest")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", m.Info().Provider)
	assert.Equal(t, "claude-3-5-haiku-latest", m.Info().Name)
}

func TestBuildMessages_SkipsSystemAndEmbedsToolResults(t *testing.T) {
	contents := []core.Content{
		core.NewTextContent("system", "be brief"),
		core.NewTextContent("user", "hi"),
		{Role: "assistant", Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID: "t1", Name: "read_config_file", Arguments: `{"path":"a.yaml"}`,
		}}}},
		{Role: "tool", Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
			ID: "t1", Name: "read_config_file", Response: "name: a",
		}}}},
	}

	msgs := buildMessages(contents)
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Equal(t, "user", string(msgs[2].Role))
	require.Len(t, msgs[2].Content, 1)
	assert.NotNil(t, msgs[2].Content[0].OfToolResult)

	system := systemBlocks(model.Request{Instructions: "you build configs", Contents: contents})
	require.Len(t, system, 2)
	assert.Equal(t, "you build configs", system[0].Text)
	assert.Equal(t, "be brief", system[1].Text)
}

func TestBuildTools_RequiredConversion(t *testing.T) {
	tools := buildTools([]model.ToolDefinition{{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        "write_config_file",
			Description: "writes a config",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"path": map[string]any{"type": "string"}},
				"required":   []any{"path"},
			},
		},
	}})
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, []string{"path"}, tools[0].OfTool.InputSchema.Required)
	assert.Equal(t, "writes a config", tools[0].OfTool.Description.Value)
}

func newTestModel(t *testing.T, handler http.HandlerFunc) *Model {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewModel(func(o *Options) {
		o.Model = "claude-3-5-haiku-latest"
		o.APIKey = "test-key"
		o.BaseURL = srv.URL + "/"
		o.RequestOptions = []option.RequestOption{option.WithMaxRetries(0)}
	})
}

func collect(t *testing.T, out <-chan model.Response, errCh <-chan error) []model.Response {
	t.Helper()

	var responses []model.Response
	for r := range out {
		responses = append(responses, r)
	}
	require.NoError(t, <-errCh)

	return responses
}

func TestGenerate_ToolUse(t *testing.T) {
	var body map[string]any

	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-latest",
			"content": [
				{"type": "text", "text": "Validating."},
				{"type": "tool_use", "id": "tu_1", "name": "validate_config", "input": {"path": "root_agent.yaml"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 12, "output_tokens": 8}
		}`))
	})

	out, errCh := m.Generate(t.Context(), model.Request{
		Instructions: "you build configs",
		Contents:     []core.Content{core.NewTextContent("user", "check it")},
	})
	responses := collect(t, out, errCh)

	require.Len(t, responses, 1)
	resp := responses[0]
	assert.Equal(t, "tool_use", resp.FinishReason)
	assert.Equal(t, "Validating.", resp.Content.Text())

	calls := resp.Content.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "tu_1", calls[0].ID)
	assert.JSONEq(t, `{"path":"root_agent.yaml"}`, calls[0].Arguments)

	require.NotNil(t, resp.Usage)
	assert.Equal(t, 20, resp.Usage.TotalTokens)

	assert.Equal(t, "claude-3-5-haiku-latest", body["model"])
	assert.NotEmpty(t, body["system"])
}

func TestGenerate_Streaming(t *testing.T) {
	events := []string{
		`{"type":"message_start","message":{"id":"msg_2","type":"message","role":"assistant","model":"claude-3-5-haiku-latest","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":5,"output_tokens":0}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":2}}`,
		`{"type":"message_stop"}`,
	}

	m := newTestModel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, data := range events {
			var head struct{ Type string }
			_ = json.Unmarshal([]byte(data), &head)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", head.Type, data)
		}
	})

	out, errCh := m.Generate(t.Context(), model.Request{
		Contents: []core.Content{core.NewTextContent("user", "hi")},
		Stream:   true,
	})
	responses := collect(t, out, errCh)

	require.Len(t, responses, 3)
	assert.True(t, responses[0].Partial)
	assert.Equal(t, "Hel", responses[0].Content.Text())
	assert.Equal(t, "lo", responses[1].Content.Text())

	final := responses[2]
	assert.False(t, final.Partial)
	assert.Equal(t, "Hello", final.Content.Text())
	assert.Equal(t, "end_turn", final.FinishReason)
	assert.Equal(t, "msg_2", final.ID)
}
