// Package agent contains the agent implementations that make up an agent
// tree:
//
//  1. Base lifecycle + hierarchy plumbing (BaseAgent)
//  2. Coordination patterns (SequentialAgent, ParallelAgent, LoopAgent)
//  3. The LLM agent (ModelAgent), driven by the flow package
//
// Execution model:
//   - An agent's Run receives a *core.RunContext and emits events through it
//   - Composite agents run children with a derived context carrying the child's identity
//   - ParallelAgent isolates children on branches; LoopAgent stops on escalation
//   - ModelAgent transfers control to sub-agents, its parent or peers
//
// Custom agents embed BaseAgent, call Bind in their constructor and implement Run.
package agent
