package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/adkservice/core"
	"github.com/hupe1980/adkservice/logging"
	"github.com/hupe1980/adkservice/session"
)

var (
	// ErrRunNotFound is returned by Cancel for unknown or finished runs.
	ErrRunNotFound = errors.New("run not found")
	// ErrTooManyRuns is returned when MaxConcurrentRuns runs are active.
	ErrTooManyRuns = errors.New("too many concurrent runs")
)

// Options holds dependency and configuration overrides passed to New.
type Options struct {
	// MaxConcurrentRuns caps active runs. Zero or less is unlimited.
	MaxConcurrentRuns int
	// EventBufferSize sets the buffering of event channels.
	EventBufferSize int
	// MaxModelCalls limits model calls per run. Zero or less is unlimited.
	MaxModelCalls int
	// SessionStore persists sessions. Defaults to an in-memory store.
	SessionStore core.SessionStore
	// Callbacks observe the run lifecycle.
	Callbacks []Callback
	// Logger receives run lifecycle logs.
	Logger logging.Logger
	// TracerProvider creates the run spans. Defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Runner executes a root agent. Public methods are safe for concurrent use.
type Runner struct {
	agent  core.Agent
	opts   Options
	tracer trace.Tracer

	callbacks *callbackSet

	mu         sync.Mutex
	activeRuns map[string]context.CancelFunc
}

// New constructs a Runner for the given root agent.
func New(agent core.Agent, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxConcurrentRuns: 10,
		EventBufferSize:   100,
		MaxModelCalls:     100,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.EventBufferSize < 0 {
		opts.EventBufferSize = 0
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	return &Runner{
		agent:      agent,
		opts:       opts,
		tracer:     opts.TracerProvider.Tracer("github.com/hupe1980/adkservice/runner"),
		callbacks:  newCallbackSet(opts.Callbacks),
		activeRuns: make(map[string]context.CancelFunc),
	}
}

// Agent returns the root agent.
func (r *Runner) Agent() core.Agent { return r.agent }

// SessionStore returns the store runs persist into.
func (r *Runner) SessionStore() core.SessionStore { return r.opts.SessionStore }

// AddCallback registers a lifecycle callback for subsequent runs.
func (r *Runner) AddCallback(cb Callback) { r.callbacks.add(cb) }

// Run starts an asynchronous run. The events channel is closed when the run
// ends; the errors channel then yields at most one terminal error and is
// closed too. A cancelled run ends without an error.
func (r *Runner) Run(
	ctx context.Context,
	sessionID string,
	userContent core.Content,
) (string, <-chan core.Event, <-chan error, error) {
	stored, err := r.opts.SessionStore.Get(ctx, sessionID)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to get session: %w", err)
	}

	runID := core.NewID()
	info := agentInfo(r.agent)

	ctx, cancel := context.WithCancel(ctx)
	if err := r.register(runID, cancel); err != nil {
		cancel()
		return "", nil, nil, err
	}

	userEvent := core.NewUserContentEvent(runID, &userContent)
	if err := r.opts.SessionStore.AppendEvent(ctx, sessionID, userEvent); err != nil {
		r.unregister(runID)
		cancel()
		return "", nil, nil, fmt.Errorf("failed to append user event: %w", err)
	}

	ctx, span := r.tracer.Start(ctx, "runner.run", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("run.id", runID),
		attribute.String("agent.name", info.Name),
	))

	// The agent works on a private copy; the pump keeps the store in sync.
	working := stored.Clone()
	working.AddEvent(userEvent)

	agentEmit := make(chan core.Event, r.opts.EventBufferSize)
	eventsCh := make(chan core.Event, r.opts.EventBufferSize)
	errorsCh := make(chan error, 1)
	done := make(chan error, 1)

	runCtx := core.NewRunContext(ctx, sessionID, runID, info, userContent,
		r.opts.MaxModelCalls, agentEmit, working, r.opts.SessionStore, r.runLogger(sessionID, runID, info.Name))

	cbCtx := CallbackContext{SessionID: sessionID, RunID: runID, Agent: info}

	r.opts.Logger.Info("runner.run.start", "session_id", sessionID, "run_id", runID, "agent", info.Name)

	go func() {
		defer close(agentEmit)
		done <- r.runAgent(runCtx, cbCtx)
	}()

	go func() {
		defer func() {
			span.End()
			cancel()
			r.unregister(runID)
			close(errorsCh)
		}()

		pumpErr := r.pump(ctx, cbCtx, agentEmit, eventsCh)
		agentErr := <-done
		close(eventsCh)

		r.finish(ctx, span, cbCtx, pumpErr, agentErr, errorsCh)
	}()

	return runID, eventsCh, errorsCh, nil
}

// runLogger scopes a ContextLogger to one run. Other loggers are used as is.
func (r *Runner) runLogger(sessionID, runID, agentName string) logging.Logger {
	cl, ok := r.opts.Logger.(*logging.ContextLogger)
	if !ok {
		return r.opts.Logger
	}

	return cl.WithComponent("runner").WithSession(sessionID, runID).WithContext("root_agent", agentName)
}

// RunSync runs to completion and returns every delivered event.
func (r *Runner) RunSync(ctx context.Context, sessionID string, userContent core.Content) (string, []core.Event, error) {
	runID, eventsCh, errorsCh, err := r.Run(ctx, sessionID, userContent)
	if err != nil {
		return "", nil, err
	}

	var events []core.Event
	for ev := range eventsCh {
		events = append(events, ev)
	}

	if err := <-errorsCh; err != nil {
		return runID, events, err
	}

	return runID, events, ctx.Err()
}

// Cancel cancels a live run by id.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	cancel, ok := r.activeRuns[runID]
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	cancel()

	return nil
}

// ActiveRuns returns the number of runs in flight.
func (r *Runner) ActiveRuns() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.activeRuns)
}

func (r *Runner) register(runID string, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.opts.MaxConcurrentRuns > 0 && len(r.activeRuns) >= r.opts.MaxConcurrentRuns {
		return ErrTooManyRuns
	}

	r.activeRuns[runID] = cancel

	return nil
}

func (r *Runner) unregister(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.activeRuns, runID)
}

func (r *Runner) runAgent(runCtx *core.RunContext, cbCtx CallbackContext) error {
	cbCtx.Type = CallbackBeforeRun
	if err := r.callbacks.run(runCtx.Context, &cbCtx); err != nil {
		return fmt.Errorf("before_run callback: %w", err)
	}

	if err := r.agent.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start agent %s: %w", r.agent.Name(), err)
	}

	defer func() {
		if err := r.agent.Stop(runCtx); err != nil {
			r.opts.Logger.Warn("runner.agent.stop_failed", "agent", r.agent.Name(), "error", err.Error())
		}
	}()

	return r.agent.Run(runCtx)
}

// pump persists and forwards agent events until the agent closes its
// channel. After a failure it keeps draining so the agent never blocks.
func (r *Runner) pump(
	ctx context.Context,
	cbCtx CallbackContext,
	agentEmit <-chan core.Event,
	eventsCh chan<- core.Event,
) error {
	var pumpErr error

	fail := func(err error) {
		pumpErr = err
		_ = r.Cancel(cbCtx.RunID)
	}

	for ev := range agentEmit {
		if pumpErr != nil || ctx.Err() != nil {
			continue
		}

		if err := r.persist(ctx, cbCtx.SessionID, ev); err != nil {
			fail(err)
			continue
		}

		cbCtx.Type = CallbackOnEvent
		cbCtx.Event = &ev
		if err := r.callbacks.run(ctx, &cbCtx); err != nil {
			fail(fmt.Errorf("on_event callback: %w", err))
			continue
		}

		select {
		case <-ctx.Done():
		case eventsCh <- ev:
			if !ev.IsPartial() {
				trace.SpanFromContext(ctx).AddEvent("event", trace.WithAttributes(
					attribute.String("event.id", ev.ID),
					attribute.String("event.author", ev.Author),
				))
			}
			r.opts.Logger.Debug("runner.event.delivered", "event_id", ev.ID, "author", ev.Author, "session_id", cbCtx.SessionID)
		}
	}

	return pumpErr
}

func (r *Runner) persist(ctx context.Context, sessionID string, ev core.Event) error {
	if len(ev.Actions.StateDelta) > 0 {
		if err := r.opts.SessionStore.ApplyDelta(ctx, sessionID, ev.Actions.StateDelta); err != nil {
			return fmt.Errorf("failed to apply state delta: %w", err)
		}
	}

	if target, ok := ev.TransferTarget(); ok {
		r.opts.Logger.Debug("runner.event.transfer", "target", target, "session_id", sessionID)
	}

	if ev.IsEscalation() {
		r.opts.Logger.Debug("runner.event.escalate", "author", ev.Author, "session_id", sessionID)
	}

	if ev.IsPartial() {
		return nil
	}

	if err := r.opts.SessionStore.AppendEvent(ctx, sessionID, ev); err != nil {
		return fmt.Errorf("failed to append event to session: %w", err)
	}

	return nil
}

// finish reports the terminal outcome of a run.
func (r *Runner) finish(ctx context.Context, span trace.Span, cbCtx CallbackContext, pumpErr, agentErr error, errorsCh chan<- error) {
	err := pumpErr
	if err == nil && agentErr != nil && ctx.Err() == nil {
		err = fmt.Errorf("agent execution failed: %w", agentErr)
	}

	cbCtx.Event = nil

	if err != nil {
		r.opts.Logger.Error("runner.run.error", "session_id", cbCtx.SessionID, "run_id", cbCtx.RunID, "error", err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		cbCtx.Type, cbCtx.Err = CallbackOnError, err
		if cbErr := r.callbacks.run(context.WithoutCancel(ctx), &cbCtx); cbErr != nil {
			r.opts.Logger.Warn("runner.callback.failed", "type", string(CallbackOnError), "error", cbErr.Error())
		}

		errorsCh <- err

		return
	}

	if ctx.Err() != nil {
		span.SetAttributes(attribute.Bool("run.cancelled", true))
		r.opts.Logger.Info("runner.run.cancelled", "session_id", cbCtx.SessionID, "run_id", cbCtx.RunID)
		return
	}

	cbCtx.Type = CallbackAfterRun
	if cbErr := r.callbacks.run(ctx, &cbCtx); cbErr != nil {
		r.opts.Logger.Warn("runner.callback.failed", "type", string(CallbackAfterRun), "error", cbErr.Error())
	}

	r.opts.Logger.Info("runner.run.complete", "session_id", cbCtx.SessionID, "run_id", cbCtx.RunID)
}

func agentInfo(a core.Agent) core.AgentInfo {
	if i, ok := a.(interface{ Info() core.AgentInfo }); ok {
		return i.Info()
	}
	return core.AgentInfo{Name: a.Name()}
}
