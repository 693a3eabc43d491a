package tool

import "github.com/hupe1980/adkservice/core"

// ExitLoopName is the registered name of the loop exit tool.
const ExitLoopName = "exit_loop"

// exitLoopTool escalates so that the enclosing LoopAgent stops iterating.
type exitLoopTool struct{}

// NewExitLoopTool constructs the exit_loop tool.
func NewExitLoopTool() Tool { return &exitLoopTool{} }

func (t *exitLoopTool) Name() string { return ExitLoopName }

func (t *exitLoopTool) Description() string {
	return "Exit the current loop. Call this only when instructed to, or when the task of the loop is complete."
}

func (t *exitLoopTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *exitLoopTool) Call(tc *core.ToolContext, _ map[string]any) (any, error) {
	tc.Escalate()
	tc.SkipSummarization()
	return map[string]any{}, nil
}
