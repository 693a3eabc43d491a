package flow

// Selector determines which flow to use based on agent capabilities.
type Selector struct{}

// NewSelector creates a new flow selector.
func NewSelector() *Selector { return &Selector{} }

// SelectFlow returns a SingleAgentFlow for agents without transfer targets
// and a MultiAgentFlow otherwise.
func (s *Selector) SelectFlow(agent FlowAgent) Flow {
	if len(agent.TransferTargets()) == 0 {
		return NewSingleAgentFlow(agent)
	}
	return NewMultiAgentFlow(agent)
}
