package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownModel is returned when no registered provider claims a model name.
var ErrUnknownModel = errors.New("unknown model")

// Factory builds a Model for a concrete model name.
type Factory func(name string) (Model, error)

// Registry resolves model names to providers by longest matching prefix.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register binds a name prefix (e.g. "gpt-", "claude-") to a factory.
// Registering the same prefix again replaces the previous factory.
func (r *Registry) Register(prefix string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[prefix] = f
}

// Prefixes returns the registered prefixes in sorted order.
func (r *Registry) Prefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for p := range r.factories {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Resolve builds the model registered under the longest prefix of name.
func (r *Registry) Resolve(name string) (Model, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty model name", ErrUnknownModel)
	}

	r.mu.RLock()
	var (
		best    string
		factory Factory
	)
	for prefix, f := range r.factories {
		if strings.HasPrefix(name, prefix) && len(prefix) > len(best) {
			best, factory = prefix, f
		}
	}
	r.mu.RUnlock()

	if factory == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}

	m, err := factory(name)
	if err != nil {
		return nil, fmt.Errorf("build model %s: %w", name, err)
	}
	return m, nil
}

// MockPrefix selects the in-memory MockModel ("mock/<name>").
const MockPrefix = "mock/"

// RegisterMock registers the MockModel under MockPrefix.
func (r *Registry) RegisterMock() {
	r.Register(MockPrefix, func(name string) (Model, error) {
		return NewMockModel(strings.TrimPrefix(name, MockPrefix), "mock"), nil
	})
}
