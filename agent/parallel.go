package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/adkservice/core"
)

// ParallelAgent runs its sub-agents concurrently. Each child runs on its own
// branch ("<parent>.<child>") so that LLM children only see their own part of
// the conversation, while state writes still land in the shared session.
type ParallelAgent struct {
	BaseAgent
	timeout time.Duration
}

// ParallelOption configures a ParallelAgent.
type ParallelOption func(*ParallelAgent)

// WithTimeout bounds the total execution time of all children. Zero disables the bound.
func WithTimeout(d time.Duration) ParallelOption {
	return func(p *ParallelAgent) { p.timeout = d }
}

// NewParallelAgent creates a parallel coordinator over children.
func NewParallelAgent(name string, children []core.Agent, opts ...ParallelOption) (*ParallelAgent, error) {
	p := &ParallelAgent{BaseAgent: NewBaseAgent(name)}
	p.Bind(p, "parallel")

	for _, o := range opts {
		o(p)
	}

	if err := p.SetSubAgents(children...); err != nil {
		return nil, err
	}

	return p, nil
}

// Run implements core.Agent. All children run to completion even when a
// sibling fails; the first error observed is returned.
func (p *ParallelAgent) Run(runCtx *core.RunContext) error {
	ctx := runCtx.Context
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	children := p.SubAgents()
	errCh := make(chan error, len(children))

	var wg sync.WaitGroup
	for _, child := range children {
		wg.Add(1)
		go func(c core.Agent) {
			defer wg.Done()

			branchCtx := runCtx.NewChildContext(ctx, runCtx.Emit)
			branchCtx.Branch = buildBranchPath(runCtx.Branch, p.Name()+"."+c.Name())
			branchCtx.Agent = infoOf(c)

			if err := c.Run(branchCtx); err != nil {
				errCh <- fmt.Errorf("parallel execution failed for agent %s: %w", c.Name(), err)
			}
		}(child)
	}

	wg.Wait()
	close(errCh)

	return <-errCh
}
