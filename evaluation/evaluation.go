// Package evaluation holds the contract between agent packages and external
// evaluation harnesses: the module shape a harness loads (AgentModule), a
// registry through which modules are discovered by name, and the minimal
// evaluator interface.
package evaluation

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/adkservice/core"
)

// AgentModule is what a harness loads: a value exposing the root agent.
type AgentModule struct {
	// RootAgent is the agent under evaluation.
	RootAgent core.Agent
}

// Invocation is one user turn and the agent's final answer to it.
type Invocation struct {
	UserContent   core.Content
	FinalResponse core.Content
	Events        []core.Event
}

// Result is produced by an Evaluator.
type Result struct {
	Score  float64
	Passed bool
	Detail string
}

// Evaluator scores an invocation.
type Evaluator interface {
	Evaluate(invocation Invocation) (*Result, error)
}

// NewInvocation derives the final response from the events of one run: the
// text of the last non-partial content event authored by an agent.
func NewInvocation(user core.Content, events []core.Event) Invocation {
	inv := Invocation{UserContent: user, Events: events}

	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.Content == nil || ev.IsPartial() || ev.Author == "user" || ev.Content.Text() == "" {
			continue
		}
		inv.FinalResponse = *ev.Content
		break
	}

	return inv
}

// ModuleLoader produces a module. Loaders are expected to memoize.
type ModuleLoader func() (*AgentModule, error)

// ErrModuleNotFound is returned by Lookup for unknown names.
var ErrModuleNotFound = errors.New("agent module not found")

var (
	mu      sync.RWMutex
	modules = map[string]ModuleLoader{}
)

// Register makes a module discoverable under name. Registering a name twice panics.
func Register(name string, loader ModuleLoader) {
	mu.Lock()
	defer mu.Unlock()

	if loader == nil {
		panic("evaluation: Register loader is nil")
	}
	if _, dup := modules[name]; dup {
		panic("evaluation: Register called twice for module " + name)
	}

	modules[name] = loader
}

// Lookup loads the module registered under name.
func Lookup(name string) (*AgentModule, error) {
	mu.RLock()
	loader, ok := modules[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}

	return loader()
}

// Modules returns the registered module names in sorted order.
func Modules() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(modules))
	for n := range modules {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}
