package tool

import (
	"github.com/hupe1980/adkservice/core"
)

// Names of the session state tools.
const (
	GetStateName = "get_state"
	SetStateName = "set_state"
)

type stateArgs struct {
	Key   string `json:"key" description:"State key, optionally prefixed with app:, user: or temp:"`
	Value any    `json:"value,omitempty" description:"Value to store"`
}

// NewGetStateTool returns a tool that reads a single session state key.
func NewGetStateTool() Tool {
	return NewFunctionTool(GetStateName, "Read a value from the session state.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"key": map[string]any{"type": "string", "description": "State key"},
			},
			"required": []string{"key"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			key, _ := args["key"].(string)
			v, ok := tc.GetState(key)
			return map[string]any{"key": key, "found": ok, "value": v}, nil
		},
	)
}

// NewSetStateTool returns a tool that records a state delta. The change is
// applied when the function response event is persisted.
func NewSetStateTool() Tool {
	return NewFunctionToolFromStruct(SetStateName, "Write a value to the session state.", stateArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			key, _ := args["key"].(string)
			if key == "" {
				return nil, NewToolError(SetStateName, "key must not be empty", CodeValidation)
			}
			tc.SetState(key, args["value"])
			return map[string]any{"key": key, "stored": true}, nil
		},
	)
}
