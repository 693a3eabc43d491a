package tool

import (
	"github.com/hupe1980/adkservice/core"
)

// TransferToAgentName is the registered name of the transfer tool.
const TransferToAgentName = "transfer_to_agent"

// transferToAgentTool requests orchestration transfer to another agent.
type transferToAgentTool struct{}

// NewTransferToAgentTool constructs the transfer tool instance.
func NewTransferToAgentTool() Tool { return &transferToAgentTool{} }

func (t *transferToAgentTool) Name() string { return TransferToAgentName }

func (t *transferToAgentTool) Description() string {
	return "Transfer the conversation to another agent by name. Use when another agent is better suited to answer."
}

func (t *transferToAgentTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent_name": map[string]any{"type": "string", "description": "Name of the target agent"},
		},
		"required": []string{"agent_name"},
	}
}

func (t *transferToAgentTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	raw, ok := args["agent_name"]
	if !ok {
		// older prompts used "agent"
		raw, ok = args["agent"]
	}
	if !ok {
		return nil, NewToolError(TransferToAgentName, "missing required field 'agent_name'", CodeValidation)
	}
	name, ok := raw.(string)
	if !ok || name == "" {
		return nil, NewToolError(TransferToAgentName, "field 'agent_name' must be a non-empty string", CodeValidation)
	}
	tc.TransferToAgent(name)
	return map[string]any{"transferred": true, "agent_name": name}, nil
}
