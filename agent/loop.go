package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/adkservice/core"
)

// DefaultMaxIterations bounds a LoopAgent when no limit is configured.
const DefaultMaxIterations = 100

// LoopAgent runs its sub-agents in sequence, repeatedly, until one of them
// emits an escalation event (see the exit_loop tool), the iteration limit is
// reached, or the context is cancelled. Escalation ends the loop without error.
type LoopAgent struct {
	BaseAgent
	maxIters    int
	interval    time.Duration
	stopOnError bool
}

// LoopOption defines a configuration function for a LoopAgent.
type LoopOption func(*LoopAgent)

// WithMaxIters sets the maximum number of iterations. Values <= 0 select
// DefaultMaxIterations.
func WithMaxIters(n int) LoopOption {
	return func(l *LoopAgent) { l.maxIters = n }
}

// WithInterval sets a delay between iterations.
func WithInterval(d time.Duration) LoopOption {
	return func(l *LoopAgent) { l.interval = d }
}

// WithContinueOnError keeps looping when an iteration fails.
func WithContinueOnError() LoopOption {
	return func(l *LoopAgent) { l.stopOnError = false }
}

// NewLoopAgent constructs a looping coordinator around children.
// Defaults: 100 iterations, no interval, stop on first error.
func NewLoopAgent(name string, children []core.Agent, opts ...LoopOption) (*LoopAgent, error) {
	l := &LoopAgent{
		BaseAgent:   NewBaseAgent(name),
		maxIters:    DefaultMaxIterations,
		stopOnError: true,
	}
	l.Bind(l, "loop")

	for _, o := range opts {
		o(l)
	}

	if l.maxIters <= 0 {
		l.maxIters = DefaultMaxIterations
	}

	if err := l.SetSubAgents(children...); err != nil {
		return nil, err
	}

	return l, nil
}

// MaxIterations returns the effective iteration limit.
func (l *LoopAgent) MaxIterations() int { return l.maxIters }

// Run implements core.Agent.
func (l *LoopAgent) Run(runCtx *core.RunContext) error {
	children := l.SubAgents()

	for i := 0; i < l.maxIters; i++ {
		if err := runCtx.Err(); err != nil {
			return err
		}

		runCtx.LogDebug("agent.loop.iteration", "agent", l.Name(), "iteration", i+1)

		escalated, err := l.runIteration(runCtx, children)
		if escalated {
			runCtx.LogInfo("agent.loop.escalated", "agent", l.Name(), "iteration", i+1)
			return nil
		}

		if err != nil {
			if l.stopOnError {
				return fmt.Errorf("loop iteration %d failed for agent %s: %w", i+1, l.Name(), err)
			}
			runCtx.LogWarn("agent.loop.iteration_failed", "agent", l.Name(), "iteration", i+1, "error", err.Error())
		}

		if l.interval > 0 && i < l.maxIters-1 {
			select {
			case <-runCtx.Done():
				return runCtx.Err()
			case <-time.After(l.interval):
			}
		}
	}

	runCtx.LogDebug("agent.loop.completed", "agent", l.Name(), "iterations", l.maxIters)

	return nil
}

// runIteration executes every child once while intercepting emitted events.
// Events are forwarded to the parent; the first escalation cancels the
// remaining work of this iteration. Between children the runner waits on a
// barrier so that an escalation is observed before the next child starts.
func (l *LoopAgent) runIteration(runCtx *core.RunContext, children []core.Agent) (bool, error) {
	ctx, cancel := context.WithCancel(runCtx.Context)
	defer cancel()

	intercept := make(chan core.Event)
	barrier := make(chan chan struct{})
	iterCtx := runCtx.NewChildContext(ctx, intercept)

	done := make(chan error, 1)

	go func() {
		defer close(intercept)
		for _, child := range children {
			if err := runChild(iterCtx, child); err != nil {
				done <- err
				return
			}

			ack := make(chan struct{})
			select {
			case barrier <- ack:
				<-ack
			case <-ctx.Done():
			}

			if err := ctx.Err(); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	var (
		escalated  bool
		forwardErr error
	)

loop:
	for {
		select {
		case ack := <-barrier:
			close(ack)
		case ev, ok := <-intercept:
			if !ok {
				break loop
			}

			if forwardErr != nil || escalated {
				continue // drain until the runner exits
			}

			if err := forward(runCtx, ev); err != nil {
				forwardErr = err
				cancel()
				continue
			}

			if ev.IsEscalation() {
				escalated = true
				cancel()
			}
		}
	}

	err := <-done

	if escalated || errors.Is(err, ErrEscalated) {
		return true, nil
	}

	if forwardErr != nil {
		return false, forwardErr
	}

	return false, err
}

// forward re-emits an already stamped child event to the parent channel.
func forward(runCtx *core.RunContext, ev core.Event) error {
	select {
	case <-runCtx.Done():
		return runCtx.Err()
	case runCtx.Emit <- ev:
		return nil
	}
}

// ErrEscalated can be returned by custom agents that want to end an
// enclosing loop without emitting an event.
var ErrEscalated = errors.New("child agent escalated")

// NewEscalationEvent builds an event that asks enclosing loops to stop.
func NewEscalationEvent(runID, author string, content *core.Content) core.Event {
	escalate := true
	ev := core.NewEvent(runID, author)
	ev.Actions.Escalate = &escalate
	ev.Content = content
	return ev
}
