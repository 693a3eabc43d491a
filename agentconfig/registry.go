package agentconfig

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/adkservice/core"
	"github.com/hupe1980/adkservice/model"
	"github.com/hupe1980/adkservice/model/anthropic"
	"github.com/hupe1980/adkservice/model/openai"
)

// AgentFactory creates a fresh agent for a `code:` reference. A new instance
// is needed per reference because an agent can only have one parent.
type AgentFactory func() (core.Agent, error)

// AgentRegistry maps names to agent factories. Safe for concurrent use.
type AgentRegistry struct {
	mu        sync.RWMutex
	factories map[string]AgentFactory
}

// NewAgentRegistry returns an empty registry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{factories: make(map[string]AgentFactory)}
}

// Register binds name to factory. Names must be unique.
func (r *AgentRegistry) Register(name string, factory AgentFactory) error {
	if name == "" || factory == nil {
		return errors.New("agent registration requires a name and a factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, name)
	}

	r.factories[name] = factory

	return nil
}

// Create builds a new agent from the factory registered under name.
func (r *AgentRegistry) Create(name string) (core.Agent, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgentRef, name)
	}

	a, err := factory()
	if err != nil {
		return nil, fmt.Errorf("create agent %s: %w", name, err)
	}

	return a, nil
}

// Names returns the registered names in sorted order.
func (r *AgentRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

var defaultAgents = NewAgentRegistry()

// RegisterAgent registers a code-defined agent in the default registry.
func RegisterAgent(name string, factory AgentFactory) error {
	return defaultAgents.Register(name, factory)
}

// DefaultAgentRegistry returns the process-wide agent registry.
func DefaultAgentRegistry() *AgentRegistry { return defaultAgents }

var (
	defaultModelsOnce sync.Once
	defaultModels     *model.Registry
)

// DefaultModelRegistry returns a registry serving OpenAI, Anthropic and mock
// models. Provider clients read their API keys from the environment.
func DefaultModelRegistry() *model.Registry {
	defaultModelsOnce.Do(func() {
		defaultModels = model.NewRegistry()
		openai.Register(defaultModels)
		anthropic.Register(defaultModels)
		defaultModels.RegisterMock()
	})
	return defaultModels
}
