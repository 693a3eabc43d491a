package flow

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/adkservice/core"
	"github.com/hupe1980/adkservice/logging"
	"github.com/hupe1980/adkservice/model"
	"github.com/hupe1980/adkservice/tool"
)

// BaseFlow implements the request -> model -> (optional tool loop) cycle
// with pluggable pre/post processors.
type BaseFlow struct {
	agent              FlowAgent
	requestProcessors  []RequestProcessor
	responseProcessors []ResponseProcessor
	executor           FunctionExecutor
	enableTransfer     bool
}

// NewBaseFlow creates a new flow without processors.
func NewBaseFlow(agent FlowAgent) *BaseFlow {
	return &BaseFlow{
		agent:    agent,
		executor: NewParallelFunctionExecutor(FunctionExecutorConfig{PreserveOrder: true}),
	}
}

// AddRequestProcessor appends a request processor; registration order is execution order.
func (f *BaseFlow) AddRequestProcessor(processor RequestProcessor) {
	f.requestProcessors = append(f.requestProcessors, processor)
}

// AddResponseProcessor appends a response processor executed for every model chunk.
func (f *BaseFlow) AddResponseProcessor(processor ResponseProcessor) {
	f.responseProcessors = append(f.responseProcessors, processor)
}

// SetFunctionExecutor replaces the tool executor.
func (f *BaseFlow) SetFunctionExecutor(e FunctionExecutor) { f.executor = e }

// Execute runs model turns until a final response, a transfer or an error.
// A tool response triggers another model turn unless the tool asked to skip
// summarization.
func (f *BaseFlow) Execute(runCtx *core.RunContext) error {
	for {
		last, err := f.runOnce(runCtx)
		if err != nil {
			return err
		}

		if last == nil {
			return nil
		}

		if target, ok := last.TransferTarget(); ok && f.enableTransfer {
			return f.agent.TransferToAgent(runCtx, target)
		}

		if last.IsEscalation() || last.IsFinalResponse() {
			return nil
		}

		if len(last.GetFunctionResponses()) == 0 {
			return nil
		}
	}
}

// tools returns the executable tools for this flow keyed by name.
func (f *BaseFlow) tools() map[string]tool.Tool {
	registry := make(map[string]tool.Tool)
	for _, t := range f.agent.Tools() {
		registry[t.Name()] = t
	}

	if f.enableTransfer {
		if _, ok := registry[tool.TransferToAgentName]; !ok {
			registry[tool.TransferToAgentName] = tool.NewTransferToAgentTool()
		}
	}

	return registry
}

// runOnce performs one model call plus the execution of any requested tools
// and returns the last emitted event. A nil event means nothing was emitted.
func (f *BaseFlow) runOnce(runCtx *core.RunContext) (*core.Event, error) {
	req := new(model.Request)

	for _, t := range f.agent.Tools() {
		req.Tools = append(req.Tools, toolDefinition(t))
	}

	for _, processor := range f.requestProcessors {
		if err := processor.ProcessRequest(runCtx, req, f.agent); err != nil {
			return nil, f.fail(runCtx, "REQUEST_PROCESSOR", fmt.Errorf("request processor %s failed: %w", processor.Name(), err))
		}
	}

	if err := runCtx.Limiter.Increment(); err != nil {
		return nil, f.fail(runCtx, "MODEL_CALL_LIMIT", err)
	}

	llm := f.agent.Model()
	if llm == nil {
		return nil, f.fail(runCtx, "NO_MODEL", errors.New("agent has no model"))
	}

	runCtx.LogDebug("agent.model.request", "agent", f.agent.Name(), "model", llm.Info().Name,
		"contents", len(req.Contents), "tools", len(req.Tools))

	start := time.Now()
	respCh, errCh := llm.Generate(runCtx.Context, *req)

	var (
		lastEvent *core.Event
		logged    bool
	)

	for resp := range respCh {
		for _, processor := range f.responseProcessors {
			if err := processor.ProcessResponse(runCtx, &resp, f.agent); err != nil {
				return lastEvent, f.fail(runCtx, "RESPONSE_PROCESSOR", fmt.Errorf("response processor %s failed: %w", processor.Name(), err))
			}
		}

		if !resp.Partial && !logged {
			tokens := 0
			if resp.Usage != nil {
				tokens = resp.Usage.TotalTokens
			}
			logLLMCall(runCtx, llm.Info().Name, tokens, time.Since(start), nil)
			logged = true
		}

		ev := core.NewEvent(runCtx.RunID, f.agent.Name())
		content := resp.Content
		ev.Content = &content

		if resp.Partial {
			partial := true
			ev.Partial = &partial
		} else if len(ev.GetFunctionCalls()) == 0 {
			complete := true
			ev.TurnComplete = &complete
		}

		if err := runCtx.EmitEvent(ev); err != nil {
			return lastEvent, err
		}

		lastEvent = &ev

		if ev.IsPartial() {
			continue
		}

		if fnCalls := ev.GetFunctionCalls(); len(fnCalls) > 0 {
			respEv, err := f.executeFunctions(runCtx, fnCalls)
			if err != nil {
				return lastEvent, err
			}
			if respEv != nil {
				lastEvent = respEv
			}
		}
	}

	if err, ok := <-errCh; ok && err != nil {
		logLLMCall(runCtx, llm.Info().Name, 0, time.Since(start), err)
		if ctxErr := runCtx.Err(); ctxErr != nil {
			return lastEvent, ctxErr
		}
		return lastEvent, f.fail(runCtx, "MODEL_ERROR", fmt.Errorf("model %s: %w", llm.Info().Name, err))
	}

	return lastEvent, nil
}

// logLLMCall records the model call when the run logs through a ContextLogger.
func logLLMCall(runCtx *core.RunContext, modelName string, tokens int, dur time.Duration, err error) {
	if cl, ok := runCtx.Logger().(*logging.ContextLogger); ok {
		cl.LogLLMCall(modelName, tokens, dur, err)
	}
}

// executeFunctions runs the calls and emits one merged function response event.
func (f *BaseFlow) executeFunctions(runCtx *core.RunContext, fnCalls []core.FunctionCall) (*core.Event, error) {
	responses := f.executor.Execute(runCtx, f.agent, f.tools(), fnCalls)
	if len(responses) == 0 {
		return nil, runCtx.Err()
	}

	merged := mergeFunctionResponseEvents(runCtx.RunID, f.agent.Name(), responses)

	if err := runCtx.EmitEvent(merged); err != nil {
		return nil, err
	}

	return &merged, nil
}

// fail emits an error event for err and returns err.
func (f *BaseFlow) fail(runCtx *core.RunContext, code string, err error) error {
	runCtx.LogError("agent.flow.error", "agent", f.agent.Name(), "code", code, "error", err.Error())

	ev := core.NewErrorEvent(runCtx.RunID, f.agent.Name(), code, err.Error())
	if emitErr := runCtx.EmitEvent(ev); emitErr != nil {
		runCtx.LogWarn("agent.flow.error_emit_failed", "agent", f.agent.Name(), "error", emitErr.Error())
	}

	return err
}
