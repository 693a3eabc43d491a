package flow

// MultiAgentFlow extends SingleAgentFlow with agent transfer: the
// transfer_to_agent tool is offered to the model together with a description
// of every reachable agent.
type MultiAgentFlow struct{ *BaseFlow }

// NewMultiAgentFlow creates a new multi-agent flow.
func NewMultiAgentFlow(agent FlowAgent) *MultiAgentFlow {
	baseFlow := NewBaseFlow(agent)

	baseFlow.AddRequestProcessor(NewInstructionsProcessor())
	baseFlow.AddRequestProcessor(NewContentsProcessor())
	baseFlow.AddRequestProcessor(NewTransferToolInjector())
	baseFlow.AddResponseProcessor(NewOutputKeyProcessor())
	baseFlow.enableTransfer = true

	return &MultiAgentFlow{BaseFlow: baseFlow}
}
