package flow

import (
	"encoding/json"
	"fmt"
	"maps"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/adkservice/core"
	"github.com/hupe1980/adkservice/logging"
	"github.com/hupe1980/adkservice/tool"
)

var tracer = otel.Tracer("github.com/hupe1980/adkservice/flow")

// FunctionExecutor executes a batch of function calls and returns one
// function response event per call. Implementations must:
//   - Respect runCtx.Context cancellation
//   - Never panic (recover internally and report the panic as a tool error)
//   - Attach the ToolContext actions to each returned event
type FunctionExecutor interface {
	Execute(runCtx *core.RunContext, agent FlowAgent, tools map[string]tool.Tool, fnCalls []core.FunctionCall) []core.Event
}

// FunctionExecutorConfig configures the default parallel executor.
type FunctionExecutorConfig struct {
	MaxParallel    int  // <= 0 means one goroutine per call
	PreserveOrder  bool // return events in call order instead of completion order
	LogStartEvents bool // log a start line per function
}

type parallelFunctionExecutor struct {
	cfg FunctionExecutorConfig
}

// NewParallelFunctionExecutor constructs a new executor with the given config.
func NewParallelFunctionExecutor(cfg FunctionExecutorConfig) FunctionExecutor {
	return &parallelFunctionExecutor{cfg: cfg}
}

func (e *parallelFunctionExecutor) Execute(
	runCtx *core.RunContext,
	agent FlowAgent,
	tools map[string]tool.Tool,
	fnCalls []core.FunctionCall,
) []core.Event {
	n := len(fnCalls)
	if n == 0 {
		return nil
	}

	if n == 1 {
		return []core.Event{e.executeOne(runCtx, agent, tools, fnCalls[0])}
	}

	maxPar := e.cfg.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		ordered   = make([]*core.Event, n)
		completed = make([]core.Event, 0, n)
		sem       = make(chan struct{}, maxPar)
	)

	batchStart := time.Now()

	for i := range fnCalls {
		if runCtx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(idx int, fc core.FunctionCall) {
			defer wg.Done()
			defer func() { <-sem }()

			if runCtx.Err() != nil {
				return
			}

			ev := e.executeOne(runCtx, agent, tools, fc)

			mu.Lock()
			ordered[idx] = &ev
			completed = append(completed, ev)
			mu.Unlock()
		}(i, fnCalls[i])
	}

	wg.Wait()

	runCtx.LogDebug(
		"agent.functions.batch.complete",
		"agent", agent.Name(),
		"count", n,
		"parallelism", maxPar,
		"preserve_order", e.cfg.PreserveOrder,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	if !e.cfg.PreserveOrder {
		return completed
	}

	out := make([]core.Event, 0, n)
	for _, ev := range ordered {
		if ev != nil {
			out = append(out, *ev)
		}
	}

	return out
}

func (e *parallelFunctionExecutor) executeOne(
	runCtx *core.RunContext,
	agent FlowAgent,
	tools map[string]tool.Tool,
	fc core.FunctionCall,
) core.Event {
	ctx, span := tracer.Start(runCtx.Context, "tool.call", trace.WithAttributes(
		attribute.String("tool.name", fc.Name),
		attribute.String("tool.call_id", fc.ID),
		attribute.String("agent.name", agent.Name()),
	))
	defer span.End()

	// the tool sees the span through its context
	toolRunCtx := runCtx.Clone()
	toolRunCtx.Context = ctx
	toolCtx := core.NewToolContext(toolRunCtx, fc.ID)

	if e.cfg.LogStartEvents {
		runCtx.LogInfo("agent.function.start", "agent", agent.Name(), "function", fc.Name, "function_call_id", fc.ID)
	}

	start := time.Now()

	var (
		result any
		err    error
	)

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
				runCtx.LogError("agent.function.panic", "agent", agent.Name(), "function", fc.Name, "recover", r)
			}
		}()
		result, err = executeTool(tools, toolCtx, fc.Name, fc.Arguments)
	}()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	runCtx.LogInfo(
		"agent.function.executed",
		"agent", agent.Name(),
		"function", fc.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	if cl, ok := runCtx.Logger().(*logging.ContextLogger); ok {
		cl.LogToolCall(fc.Name, time.Since(start), err)
	}

	respEv := core.NewFunctionResponseEvent(agent.Name(), fc.ID, fc.Name, result, err)
	respEv.RunID = runCtx.RunID
	respEv.Actions = *toolCtx.Actions()

	return respEv
}

// panicError converts a recovered panic value to an error.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }

// executeTool looks up and invokes a tool with JSON encoded arguments.
func executeTool(tools map[string]tool.Tool, toolCtx *core.ToolContext, toolName, args string) (any, error) {
	impl, ok := tools[toolName]
	if !ok {
		return nil, fmt.Errorf("tool %s not found", toolName)
	}

	argMap := map[string]any{}
	if args != "" {
		if err := json.Unmarshal([]byte(args), &argMap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", err)
		}
	}

	return impl.Call(toolCtx, argMap)
}

// mergeFunctionResponseEvents folds the per-call response events into a
// single tool event. State deltas are merged in order, the last transfer
// request wins and escalation or skip-summarization from any call applies.
func mergeFunctionResponseEvents(runID, author string, events []core.Event) core.Event {
	if len(events) == 1 {
		return events[0]
	}

	merged := core.NewEvent(runID, author)
	merged.Content = &core.Content{Role: "tool"}

	for _, ev := range events {
		if ev.Content != nil {
			merged.Content.Parts = append(merged.Content.Parts, ev.Content.Parts...)
		}

		a := ev.Actions
		if len(a.StateDelta) > 0 {
			if merged.Actions.StateDelta == nil {
				merged.Actions.StateDelta = map[string]any{}
			}
			maps.Copy(merged.Actions.StateDelta, a.StateDelta)
		}
		if a.TransferToAgent != nil {
			merged.Actions.TransferToAgent = a.TransferToAgent
		}
		if a.Escalate != nil && *a.Escalate {
			merged.Actions.Escalate = a.Escalate
		}
		if a.SkipSummarization != nil && *a.SkipSummarization {
			merged.Actions.SkipSummarization = a.SkipSummarization
		}
	}

	return merged
}
