package flow

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/adkservice/core"
	"github.com/hupe1980/adkservice/tool"
)

func sleepyTool(name string, delay time.Duration, stateKey string) tool.Tool {
	return tool.NewFunctionTool(name, name, map[string]any{"type": "object"},
		func(tc *core.ToolContext, _ map[string]any) (any, error) {
			time.Sleep(delay)
			if stateKey != "" {
				tc.SetState(stateKey, name)
			}
			return name + "-done", nil
		},
	)
}

func TestParallelFunctionExecutor_PreservesOrder(t *testing.T) {
	rc, _ := newTestRunContext(t, "q", 0)
	tools := map[string]tool.Tool{
		"slow": sleepyTool("slow", 30*time.Millisecond, "a"),
		"fast": sleepyTool("fast", time.Millisecond, "b"),
	}
	calls := []core.FunctionCall{{ID: "1", Name: "slow"}, {ID: "2", Name: "fast"}}

	exec := NewParallelFunctionExecutor(FunctionExecutorConfig{PreserveOrder: true})
	events := exec.Execute(rc, &stubAgent{name: "assistant"}, tools, calls)

	require.Len(t, events, 2)
	assert.Equal(t, "1", events[0].GetFunctionResponses()[0].ID)
	assert.Equal(t, "2", events[1].GetFunctionResponses()[0].ID)
	assert.Equal(t, "slow", events[0].Actions.StateDelta["a"])
	assert.Equal(t, "fast", events[1].Actions.StateDelta["b"])
}

func TestParallelFunctionExecutor_ErrorsBecomeResponses(t *testing.T) {
	rc, _ := newTestRunContext(t, "q", 0)
	panicky := tool.NewFunctionTool("panicky", "", map[string]any{"type": "object"},
		func(*core.ToolContext, map[string]any) (any, error) { panic("boom") })

	tools := map[string]tool.Tool{"panicky": panicky}
	calls := []core.FunctionCall{{ID: "1", Name: "panicky"}, {ID: "2", Name: "missing"}, {ID: "3", Name: "panicky", Arguments: "{not json"}}

	events := NewParallelFunctionExecutor(FunctionExecutorConfig{PreserveOrder: true}).
		Execute(rc, &stubAgent{name: "assistant"}, tools, calls)

	require.Len(t, events, 3)
	assert.Contains(t, events[0].GetFunctionResponses()[0].Error, "panic recovered: boom")
	assert.Equal(t, "tool missing not found", events[1].GetFunctionResponses()[0].Error)
	assert.Contains(t, events[2].GetFunctionResponses()[0].Error, "failed to unmarshal args")
}

func TestMergeFunctionResponseEvents(t *testing.T) {
	yes := true
	target := "next"

	a := core.NewFunctionResponseEvent("agent", "1", "t1", "r1", nil)
	a.Actions.StateDelta = map[string]any{"x": 1}
	b := core.NewFunctionResponseEvent("agent", "2", "t2", "r2", nil)
	b.Actions.TransferToAgent = &target
	b.Actions.Escalate = &yes

	merged := mergeFunctionResponseEvents("run", "agent", []core.Event{a, b})

	assert.Equal(t, "run", merged.RunID)
	assert.Len(t, merged.GetFunctionResponses(), 2)
	assert.Equal(t, map[string]any{"x": 1}, merged.Actions.StateDelta)
	got, ok := merged.TransferTarget()
	require.True(t, ok)
	assert.Equal(t, "next", got)
	assert.True(t, merged.IsEscalation())

	single := mergeFunctionResponseEvents("run", "agent", []core.Event{a})
	assert.Equal(t, a.ID, single.ID)
}

func TestParallelFunctionExecutor_TracesToolCalls(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	rc, _ := newTestRunContext(t, "q", 0)
	ctx, parent := tp.Tracer("test").Start(rc.Context, "parent")
	rc.Context = ctx

	var seen trace.SpanContext
	traced := tool.NewFunctionTool("traced", "", map[string]any{"type": "object"},
		func(tc *core.ToolContext, _ map[string]any) (any, error) {
			seen = trace.SpanContextFromContext(tc.Context())
			return nil, errors.New("nope")
		})

	NewParallelFunctionExecutor(FunctionExecutorConfig{}).
		Execute(rc, &stubAgent{name: "assistant"}, map[string]tool.Tool{"traced": traced}, []core.FunctionCall{{ID: "1", Name: "traced"}})
	parent.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	call := spans[0]
	assert.Equal(t, "tool.call", call.Name())
	assert.Equal(t, parent.SpanContext().SpanID(), call.Parent().SpanID())
	assert.Equal(t, call.SpanContext().SpanID(), seen.SpanID())
	assert.Equal(t, codes.Error, call.Status().Code)
}
