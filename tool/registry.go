package tool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrToolNotFound is returned by Lookup for unregistered names.
var ErrToolNotFound = errors.New("tool not found")

// ErrDuplicateTool is returned when a name is registered twice.
var ErrDuplicateTool = errors.New("tool already registered")

// Registry maps tool names to Tool instances so that declarative agent
// configs can reference tools by name. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// NewRegistryWithBuiltins creates a registry pre-populated with the built-in
// tools (transfer_to_agent, exit_loop, get_state, set_state).
func NewRegistryWithBuiltins() *Registry {
	r := NewRegistry()
	for _, t := range Builtins() {
		_ = r.Register(t)
	}
	return r
}

// Builtins returns fresh instances of the built-in tools.
func Builtins() []Tool {
	return []Tool{
		NewTransferToAgentTool(),
		NewExitLoopTool(),
		NewGetStateTool(),
		NewSetStateTool(),
	}
}

// Register adds a tool. Registering a second tool under an existing name fails.
func (r *Registry) Register(t Tool) error {
	if t == nil || t.Name() == "" {
		return errors.New("tool must have a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[t.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name())
	}

	r.tools[t.Name()] = t

	return nil
}

// MustRegister is like Register but panics on error. Intended for init functions.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	return t, nil
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

var defaultRegistry = NewRegistryWithBuiltins()

// DefaultRegistry returns the process-wide registry used by agentconfig when
// no registry is supplied.
func DefaultRegistry() *Registry { return defaultRegistry }

// Register adds t to the default registry.
func Register(t Tool) error { return defaultRegistry.Register(t) }
