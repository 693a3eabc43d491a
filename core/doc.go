// Package core provides the foundational domain types, interfaces and execution
// contexts shared by every other package. It defines the core abstractions for:
//
//   - Agents (units of autonomous / orchestrated work)
//   - Sessions (stateful conversational containers with event history)
//   - Events (immutable communication + orchestration records)
//   - RunContext / ToolContext (scoped execution & tool sandboxing)
//   - A pluggable SessionStore for state and history persistence
//
// The package keeps implementation concerns (persistence backends, runners,
// concrete agents) out of scope, exposing small interfaces so custom backends
// can be plugged in.
package core
