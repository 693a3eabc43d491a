package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/adkservice/core"
	"github.com/hupe1980/adkservice/logging"
)

func newToolContext(t *testing.T) *core.ToolContext {
	t.Helper()

	sess := core.NewSession("s1")
	sess.SetState("user:name", "ada")

	rc := core.NewRunContext(context.Background(), "s1", "r1",
		core.AgentInfo{Name: "assistant", Type: "model"}, core.Content{}, 0, nil, sess, nil, logging.NoOpLogger{})

	return core.NewToolContext(rc, "fc-1")
}

func TestFunctionTool_Success(t *testing.T) {
	sum := NewFunctionTool("sum", "Add two numbers",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"a", "b"},
		},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	)

	assert.Equal(t, "sum", sum.Name())
	assert.Equal(t, "Add two numbers", sum.Description())

	out, err := sum.Call(newToolContext(t), map[string]any{"a": 1.5, "b": 2.0})
	require.NoError(t, err)
	assert.Equal(t, 3.5, out)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	type args struct {
		Text string `json:"text"`
	}

	called := false
	echo := NewFunctionToolFromStruct("echo", "Echo", args{}, func(_ *core.ToolContext, a map[string]any) (any, error) {
		called = true
		return a["text"], nil
	})

	_, err := echo.Call(newToolContext(t), map[string]any{})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
	assert.Equal(t, "echo", toolErr.Tool)
	assert.False(t, called)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	boom := NewFunctionTool("boom", "Fails", map[string]any{"type": "object"}, func(*core.ToolContext, map[string]any) (any, error) {
		return nil, errors.New("kaboom")
	})

	_, err := boom.Call(newToolContext(t), nil)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
	assert.Equal(t, "kaboom", toolErr.Message)
}

func TestFunctionTool_ForwardsToolError(t *testing.T) {
	custom := NewToolError("custom", "not allowed", "FORBIDDEN")
	tl := NewFunctionTool("custom", "", map[string]any{"type": "object"}, func(*core.ToolContext, map[string]any) (any, error) {
		return nil, custom
	})

	_, err := tl.Call(newToolContext(t), nil)
	assert.Same(t, custom, err)
}

type repeatArgs struct {
	Text  string `json:"text"`
	Times int    `json:"times"`
	Sep   string `json:"sep,omitempty" enum:" ,-"`
}

func TestTypedTool(t *testing.T) {
	repeat := NewTypedTool("repeat", "Repeat text", func(_ *core.ToolContext, args repeatArgs) (any, error) {
		out := args.Text
		for i := 1; i < args.Times; i++ {
			out += args.Sep + args.Text
		}
		return out, nil
	})

	assert.ElementsMatch(t, []string{"text", "times"}, repeat.Parameters()["required"])

	out, err := repeat.Call(newToolContext(t), map[string]any{"text": "ab", "times": 3.0, "sep": "-"})
	require.NoError(t, err)
	assert.Equal(t, "ab-ab-ab", out)

	_, err = repeat.Call(newToolContext(t), map[string]any{"text": "ab", "times": 2.5})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)

	_, err = repeat.Call(newToolContext(t), map[string]any{"text": "ab", "times": 2.0, "sep": "+"})
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
	assert.Contains(t, toolErr.Message, "must be one of")
}

func TestToolError_Error(t *testing.T) {
	assert.Equal(t, "tool error [X] in t: m", NewToolError("t", "m", "X").Error())
	assert.Equal(t, "tool error in t: m", NewToolError("t", "m", "").Error())
}

func TestTransferToAgentTool(t *testing.T) {
	tc := newToolContext(t)

	out, err := NewTransferToAgentTool().Call(tc, map[string]any{"agent_name": "billing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"transferred": true, "agent_name": "billing"}, out)

	target := tc.Actions().TransferToAgent
	require.NotNil(t, target)
	assert.Equal(t, "billing", *target)

	_, err = NewTransferToAgentTool().Call(newToolContext(t), map[string]any{"agent_name": ""})
	assert.Error(t, err)
}

func TestExitLoopTool(t *testing.T) {
	tc := newToolContext(t)

	_, err := NewExitLoopTool().Call(tc, nil)
	require.NoError(t, err)

	actions := tc.Actions()
	require.NotNil(t, actions.Escalate)
	assert.True(t, *actions.Escalate)
	require.NotNil(t, actions.SkipSummarization)
	assert.True(t, *actions.SkipSummarization)
}

func TestStateTools(t *testing.T) {
	tc := newToolContext(t)

	out, err := NewGetStateTool().Call(tc, map[string]any{"key": "user:name"})
	require.NoError(t, err)
	assert.Equal(t, "ada", out.(map[string]any)["value"])
	assert.Equal(t, true, out.(map[string]any)["found"])

	_, err = NewSetStateTool().Call(tc, map[string]any{"key": "topic", "value": 42.0})
	require.NoError(t, err)
	assert.Equal(t, 42.0, tc.Actions().StateDelta["topic"])

	_, err = NewSetStateTool().Call(tc, map[string]any{"key": ""})
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistryWithBuiltins()
	assert.Equal(t, []string{"exit_loop", "get_state", "set_state", "transfer_to_agent"}, r.Names())

	got, err := r.Lookup(ExitLoopName)
	require.NoError(t, err)
	assert.Equal(t, ExitLoopName, got.Name())

	_, err = r.Lookup("missing")
	assert.ErrorIs(t, err, ErrToolNotFound)

	err = r.Register(NewExitLoopTool())
	assert.ErrorIs(t, err, ErrDuplicateTool)

	assert.Panics(t, func() { r.MustRegister(NewExitLoopTool()) })
	assert.Error(t, r.Register(nil))
}
