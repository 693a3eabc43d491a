package agent

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/adkservice/core"
)

// ErrNotRunning is returned by Stop when no run is active.
var ErrNotRunning = errors.New("agent is not running")

// BaseAgent bundles shared lifecycle (Start/Stop), hierarchy management and
// identity helpers. Embed it in concrete agent implementations, supply a Run
// method and call Bind with the concrete agent so that hierarchy lookups
// return the embedding type. All exported methods are goroutine-safe.
type BaseAgent struct {
	name        string
	description string
	kind        string
	self        core.Agent // concrete agent embedding this BaseAgent

	mu        sync.Mutex
	active    int // number of concurrent runs between Start and Stop
	parent    core.Agent
	subAgents []core.Agent
}

// NewBaseAgent constructs a BaseAgent with a generated description
// (customizable via SetDescription).
func NewBaseAgent(name string) BaseAgent {
	return BaseAgent{
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
	}
}

// Bind records the concrete agent embedding b and its type label. Custom
// agents call it once in their constructor, before SetSubAgents.
func (b *BaseAgent) Bind(self core.Agent, kind string) {
	b.self = self
	b.kind = kind
}

// Name returns the agent name.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a description of this agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription updates the agent's description. Descriptions are shown to
// other LLM agents deciding whether to transfer.
func (b *BaseAgent) SetDescription(desc string) { b.description = desc }

// Info returns the identifying details used in run contexts.
func (b *BaseAgent) Info() core.AgentInfo { return core.AgentInfo{Name: b.name, Type: b.kind} }

// Start marks a run as active. Concurrent runs of the same agent tree are
// allowed, each must be paired with Stop.
func (b *BaseAgent) Start(_ *core.RunContext) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.active++

	return nil
}

// Stop marks a run as finished.
func (b *BaseAgent) Stop(_ *core.RunContext) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active == 0 {
		return ErrNotRunning
	}

	b.active--

	return nil
}

// Running reports whether at least one run is active.
func (b *BaseAgent) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active > 0
}

// SetSubAgents atomically replaces the child agent set, detaching previous
// children and assigning this agent as the parent of each new child. A child
// that already belongs to another parent is rejected.
func (b *BaseAgent) SetSubAgents(children ...core.Agent) error {
	seen := make(map[string]struct{}, len(children))
	for _, child := range children {
		if child == nil {
			return errors.New("sub-agent must not be nil")
		}
		if _, dup := seen[child.Name()]; dup {
			return fmt.Errorf("duplicate sub-agent name %q", child.Name())
		}
		seen[child.Name()] = struct{}{}
		if p := child.Parent(); p != nil && p != b.self {
			return fmt.Errorf("agent %q already has parent %q", child.Name(), p.Name())
		}
	}

	b.mu.Lock()
	previous := b.subAgents
	b.subAgents = append([]core.Agent(nil), children...)
	b.mu.Unlock()

	for _, child := range previous {
		if setter, ok := child.(interface{ setParent(core.Agent) }); ok {
			setter.setParent(nil)
		}
	}

	for _, child := range children {
		if setter, ok := child.(interface{ setParent(core.Agent) }); ok {
			setter.setParent(b.self)
		}
	}

	return nil
}

func (b *BaseAgent) setParent(p core.Agent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parent = p
}

// Parent returns the parent agent or nil for a root agent.
func (b *BaseAgent) Parent() core.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parent
}

// SubAgents returns a shallow copy of the current child agents.
func (b *BaseAgent) SubAgents() []core.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()
	result := make([]core.Agent, len(b.subAgents))
	copy(result, b.subAgents)
	return result
}

// FindAgent performs a depth-first search over the subtree rooted at this
// agent (including itself) returning the first agent whose Name matches.
func (b *BaseAgent) FindAgent(name string) core.Agent {
	if b.name == name {
		return b.self
	}

	for _, child := range b.SubAgents() {
		if found := child.FindAgent(name); found != nil {
			return found
		}
	}

	return nil
}

// runChild runs a sub-agent with the context rebound to the child's identity.
func runChild(runCtx *core.RunContext, child core.Agent) error {
	childCtx := runCtx.NewChildContext(runCtx.Context, runCtx.Emit)
	childCtx.Agent = infoOf(child)
	return child.Run(childCtx)
}

func infoOf(a core.Agent) core.AgentInfo {
	if ia, ok := a.(interface{ Info() core.AgentInfo }); ok {
		return ia.Info()
	}
	return core.AgentInfo{Name: a.Name(), Type: fmt.Sprintf("%T", a)}
}
