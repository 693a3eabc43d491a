package agent

import (
	"fmt"

	"github.com/hupe1980/adkservice/core"
)

// SequentialAgent runs its sub-agents one after another. All children share
// the session, so outputs written by earlier steps (for example through an
// output key) are visible to later ones. The first error aborts the sequence.
type SequentialAgent struct {
	BaseAgent
}

// NewSequentialAgent creates a sequential coordinator over children.
func NewSequentialAgent(name string, children ...core.Agent) (*SequentialAgent, error) {
	s := &SequentialAgent{BaseAgent: NewBaseAgent(name)}
	s.Bind(s, "sequential")

	if err := s.SetSubAgents(children...); err != nil {
		return nil, err
	}

	return s, nil
}

// Run implements core.Agent.
func (s *SequentialAgent) Run(runCtx *core.RunContext) error {
	for i, child := range s.SubAgents() {
		if err := runCtx.Err(); err != nil {
			return err
		}

		runCtx.LogDebug("agent.sequential.step", "agent", s.Name(), "step", i, "child", child.Name())

		if err := runChild(runCtx, child); err != nil {
			return fmt.Errorf("sequential execution failed at agent %s: %w", child.Name(), err)
		}
	}

	return nil
}
