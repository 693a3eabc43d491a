package openai

import (
	"github.com/openai/openai-go"

	"github.com/hupe1980/adkservice/core"
	"github.com/hupe1980/adkservice/model"
)

// messageBuilder turns normalized contents into chat messages. Tool results
// are placed right after the assistant turn that requested them; results
// without a matching call are appended at the end.
type messageBuilder struct {
	req     model.Request
	results map[string]string
	order   []string
}

func newMessageBuilder(req model.Request) *messageBuilder {
	b := &messageBuilder{req: req, results: map[string]string{}}

	for _, c := range req.Contents {
		if c.Role != "tool" {
			continue
		}
		for _, p := range c.Parts {
			fr, ok := p.(core.FunctionResponsePart)
			if !ok || fr.FunctionResponse.ID == "" {
				continue
			}
			if _, seen := b.results[fr.FunctionResponse.ID]; seen {
				continue
			}
			b.results[fr.FunctionResponse.ID] = model.FunctionResponseText(fr.FunctionResponse)
			b.order = append(b.order, fr.FunctionResponse.ID)
		}
	}

	return b
}

func (b *messageBuilder) build() []openai.ChatCompletionMessageParamUnion {
	var msgs []openai.ChatCompletionMessageParamUnion

	if b.req.Instructions != "" {
		msgs = append(msgs, openai.SystemMessage(b.req.Instructions))
	}

	for _, c := range b.req.Contents {
		text := c.Text()

		switch c.Role {
		case "tool":
			continue
		case "system":
			msgs = append(msgs, openai.SystemMessage(text))
		case "assistant":
			msgs = append(msgs, b.assistant(c, text)...)
		default:
			if text != "" {
				msgs = append(msgs, openai.UserMessage(text))
			}
		}
	}

	for _, id := range b.order {
		if res, ok := b.results[id]; ok {
			msgs = append(msgs, openai.ToolMessage(res, id))
		}
	}

	return msgs
}

func (b *messageBuilder) assistant(c core.Content, text string) []openai.ChatCompletionMessageParamUnion {
	calls := c.FunctionCalls()
	if len(calls) == 0 {
		return []openai.ChatCompletionMessageParamUnion{openai.AssistantMessage(text)}
	}

	param := openai.ChatCompletionAssistantMessageParam{
		ToolCalls: make([]openai.ChatCompletionMessageToolCallParam, 0, len(calls)),
	}
	if text != "" {
		param.Content.OfString = openai.String(text)
	}

	for _, fc := range calls {
		param.ToolCalls = append(param.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID:   fc.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      fc.Name,
				Arguments: fc.Arguments,
			},
		})
	}

	msgs := []openai.ChatCompletionMessageParamUnion{{OfAssistant: &param}}

	for _, fc := range calls {
		if res, ok := b.results[fc.ID]; ok && fc.ID != "" {
			msgs = append(msgs, openai.ToolMessage(res, fc.ID))
			delete(b.results, fc.ID)
		}
	}

	return msgs
}

func toolParams(defs []model.ToolDefinition) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, len(defs))
	for i, def := range defs {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        def.Function.Name,
				Description: openai.String(def.Function.Description),
				Parameters:  def.Function.Parameters,
			},
		}
	}
	return tools
}
