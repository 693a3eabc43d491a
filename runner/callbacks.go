package runner

import (
	"context"
	"sync"

	"github.com/hupe1980/adkservice/core"
)

// CallbackType names a point in the run lifecycle.
type CallbackType string

const (
	// CallbackBeforeRun fires after the user event is persisted and before
	// the root agent starts. An error aborts the run.
	CallbackBeforeRun CallbackType = "before_run"
	// CallbackOnEvent fires for every event after it has been persisted and
	// before it is delivered. An error aborts the run.
	CallbackOnEvent CallbackType = "on_event"
	// CallbackAfterRun fires once the agent returned and all events were delivered.
	CallbackAfterRun CallbackType = "after_run"
	// CallbackOnError fires with the terminal error of a failed run.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext describes the run a callback fires for.
type CallbackContext struct {
	SessionID string
	RunID     string
	Agent     core.AgentInfo
	Type      CallbackType
	// Event is set for CallbackOnEvent.
	Event *core.Event
	// Err is set for CallbackOnError.
	Err error
}

// Callback hooks into the run lifecycle.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, cbCtx *CallbackContext) error
}

// FunctionCallback adapts a function to Callback.
type FunctionCallback struct {
	typ CallbackType
	fn  func(ctx context.Context, cbCtx *CallbackContext) error
}

// NewFunctionCallback wraps fn as a callback of the given type.
//
//	onEvent := runner.NewFunctionCallback(runner.CallbackOnEvent,
//	  func(ctx context.Context, cb *runner.CallbackContext) error {
//	    log.Println(cb.Event.Author)
//	    return nil
//	  })
func NewFunctionCallback(typ CallbackType, fn func(ctx context.Context, cbCtx *CallbackContext) error) *FunctionCallback {
	return &FunctionCallback{typ: typ, fn: fn}
}

// Type returns the lifecycle point the callback is registered for.
func (c *FunctionCallback) Type() CallbackType { return c.typ }

// Execute runs the wrapped function.
func (c *FunctionCallback) Execute(ctx context.Context, cbCtx *CallbackContext) error {
	return c.fn(ctx, cbCtx)
}

// callbackSet dispatches callbacks by type in registration order.
type callbackSet struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

func newCallbackSet(cbs []Callback) *callbackSet {
	s := &callbackSet{callbacks: make(map[CallbackType][]Callback)}
	for _, cb := range cbs {
		s.add(cb)
	}
	return s
}

func (s *callbackSet) add(cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks[cb.Type()] = append(s.callbacks[cb.Type()], cb)
}

// run executes the callbacks of cbCtx.Type and stops at the first error.
func (s *callbackSet) run(ctx context.Context, cbCtx *CallbackContext) error {
	s.mu.RLock()
	cbs := s.callbacks[cbCtx.Type]
	s.mu.RUnlock()

	for _, cb := range cbs {
		if err := cb.Execute(ctx, cbCtx); err != nil {
			return err
		}
	}

	return nil
}
