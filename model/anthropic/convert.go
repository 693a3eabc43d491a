package anthropic

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/adkservice/core"
	"github.com/hupe1980/adkservice/model"
)

// buildMessages converts contents into alternating user/assistant turns.
// System contents go to the system prompt; tool results are sent in the
// user turn that follows the assistant's tool_use blocks.
func buildMessages(contents []core.Content) []anthropic.MessageParam {
	results := map[string]string{}
	for _, c := range contents {
		if c.Role != "tool" {
			continue
		}
		for _, p := range c.Parts {
			if fr, ok := p.(core.FunctionResponsePart); ok && fr.FunctionResponse.ID != "" {
				results[fr.FunctionResponse.ID] = model.FunctionResponseText(fr.FunctionResponse)
			}
		}
	}

	var msgs []anthropic.MessageParam

	for _, c := range contents {
		switch c.Role {
		case "system", "tool":
			continue
		case "assistant":
			blocks, answers := assistantBlocks(c, results)
			if len(blocks) > 0 {
				msgs = append(msgs, anthropic.NewAssistantMessage(blocks...))
			}
			if len(answers) > 0 {
				msgs = append(msgs, anthropic.NewUserMessage(answers...))
			}
		default:
			if text := c.Text(); text != "" {
				msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
			}
		}
	}

	return msgs
}

func assistantBlocks(c core.Content, results map[string]string) ([]anthropic.ContentBlockParamUnion, []anthropic.ContentBlockParamUnion) {
	var blocks, answers []anthropic.ContentBlockParamUnion

	if text := c.Text(); text != "" {
		blocks = append(blocks, anthropic.NewTextBlock(text))
	}

	for _, fc := range c.FunctionCalls() {
		var input any = map[string]any{}
		if fc.Arguments != "" {
			if err := json.Unmarshal([]byte(fc.Arguments), &input); err != nil {
				input = fc.Arguments
			}
		}

		blocks = append(blocks, anthropic.NewToolUseBlock(fc.ID, input, fc.Name))

		if res, ok := results[fc.ID]; ok {
			answers = append(answers, anthropic.NewToolResultBlock(fc.ID, res, false))
			delete(results, fc.ID)
		}
	}

	return blocks, answers
}

func systemBlocks(req model.Request) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam

	if req.Instructions != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: req.Instructions})
	}

	for _, c := range req.Contents {
		if c.Role != "system" {
			continue
		}
		if text := c.Text(); text != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: text})
		}
	}

	return blocks
}

// buildTools maps JSON schema parameters onto tool input schemas.
func buildTools(defs []model.ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(defs))

	for i, def := range defs {
		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}

		params := def.Function.Parameters
		if props, ok := params["properties"]; ok {
			schema.Properties = props
		}

		switch req := params["required"].(type) {
		case []string:
			schema.Required = req
		case []any:
			for _, r := range req {
				if s, ok := r.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}

		tool := anthropic.ToolUnionParamOfTool(schema, def.Function.Name)
		if def.Function.Description != "" {
			tool.OfTool.Description = anthropic.String(def.Function.Description)
		}
		tools[i] = tool
	}

	return tools
}
