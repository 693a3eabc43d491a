package flow

import (
	"context"
	"testing"

	"github.com/hupe1980/adkservice/core"
	"github.com/hupe1980/adkservice/logging"
	"github.com/hupe1980/adkservice/model"
	"github.com/hupe1980/adkservice/tool"
)

// stubAgent is a minimal FlowAgent.
type stubAgent struct {
	name        string
	llm         model.Model
	tools       []tool.Tool
	targets     []core.Agent
	noHistory   bool
	stream      bool
	outputKey   string
	instruction string
	maxHistory  int
	transferred []string
}

func (a *stubAgent) Name() string       { return a.name }
func (a *stubAgent) Model() model.Model { return a.llm }
func (a *stubAgent) ResolveInstructions(*core.RunContext) (string, error) {
	return a.instruction, nil
}
func (a *stubAgent) Tools() []tool.Tool                   { return a.tools }
func (a *stubAgent) TransferTargets() []core.Agent        { return a.targets }
func (a *stubAgent) IncludesHistory() bool                { return !a.noHistory }
func (a *stubAgent) IsStreamingEnabled() bool             { return a.stream }
func (a *stubAgent) OutputKey() string                    { return a.outputKey }
func (a *stubAgent) MaxHistoryMessages() int              { return a.maxHistory }
func (a *stubAgent) GenerateConfig() model.GenerateConfig { return model.GenerateConfig{} }
func (a *stubAgent) TransferToAgent(_ *core.RunContext, name string) error {
	a.transferred = append(a.transferred, name)
	return nil
}

// namedAgent is a core.Agent that only carries identity.
type namedAgent struct{ name, description string }

func (n *namedAgent) Name() string                       { return n.name }
func (n *namedAgent) Description() string                { return n.description }
func (n *namedAgent) Start(*core.RunContext) error       { return nil }
func (n *namedAgent) Stop(*core.RunContext) error        { return nil }
func (n *namedAgent) Run(*core.RunContext) error         { return nil }
func (n *namedAgent) SetSubAgents(...core.Agent) error   { return nil }
func (n *namedAgent) SubAgents() []core.Agent            { return nil }
func (n *namedAgent) Parent() core.Agent                 { return nil }
func (n *namedAgent) FindAgent(name string) core.Agent {
	if name == n.name {
		return n
	}
	return nil
}

// newTestRunContext builds a run context whose session already holds the user message.
func newTestRunContext(t *testing.T, userText string, maxModelCalls int) (*core.RunContext, chan core.Event) {
	t.Helper()

	events := make(chan core.Event, 256)
	sess := core.NewSession("sess")
	content := core.NewTextContent("user", userText)
	sess.AddEvent(core.NewUserContentEvent("run", &content))

	rc := core.NewRunContext(context.Background(), "sess", "run",
		core.AgentInfo{Name: "assistant", Type: "llm"}, content, maxModelCalls, events, sess, nil, logging.NoOpLogger{})

	return rc, events
}

func drain(ch chan core.Event) []core.Event {
	var out []core.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func functionCallResponse(id, name, args string) model.Response {
	return model.Response{
		Content: core.Content{Role: "assistant", Parts: []core.Part{
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: id, Name: name, Arguments: args}},
		}},
		FinishReason: "tool_calls",
	}
}

func echoTool() tool.Tool {
	return tool.NewFunctionTool("echo", "Echo text",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
			"required":   []string{"text"},
		},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			return map[string]any{"echo": args["text"]}, nil
		},
	)
}
