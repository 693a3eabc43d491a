package core

// Agent defines the interface that every agent must implement.
//
// Agents receive their inputs through a RunContext, process them and emit
// events through it to communicate results and state changes back to the
// Runner. The hierarchy methods support composite agents (sequential,
// parallel, loop) as well as agent transfer between LLM agents.
//
// Implementations must:
//   - Respect context cancellation for graceful shutdown
//   - Emit events through the provided RunContext
//   - Manage their lifecycle through Start/Stop
type Agent interface {
	Name() string
	Description() string
	Start(runCtx *RunContext) error
	Stop(runCtx *RunContext) error
	Run(runCtx *RunContext) error
	SetSubAgents(children ...Agent) error
	SubAgents() []Agent
	Parent() Agent
	FindAgent(name string) Agent
}

// AgentInfo carries identifying details about an agent used in contexts & events.
// Name is the external identifier; Type categorizes the implementation
// (e.g. "llm", "sequential", "loop").
type AgentInfo struct{ Name, Type string }

// RootAgent walks up the parent chain and returns the top-most agent.
func RootAgent(a Agent) Agent {
	for a != nil {
		p := a.Parent()
		if p == nil {
			return a
		}
		a = p
	}
	return nil
}
