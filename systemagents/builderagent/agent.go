// Package builderagent exposes the builder system agent: an LLM agent,
// declared in root_agent.yaml next to this file, that helps users author
// agent configuration files.
//
// The agent is built lazily on first use and at most once per process.
// Harnesses discover it through the evaluation registry under ModuleName;
// Go callers use RootAgent or Module directly.
package builderagent

import (
	"path/filepath"
	"runtime"
	"sync"

	"github.com/hupe1980/adkservice/agentconfig"
	"github.com/hupe1980/adkservice/core"
	"github.com/hupe1980/adkservice/evaluation"
)

const (
	// ConfigFileName is the declarative config located beside this package's source.
	ConfigFileName = "root_agent.yaml"
	// ModuleName is the evaluation registry name of this agent.
	ModuleName = "builder_agent"
)

// ConfigPath returns the absolute path of root_agent.yaml in the directory of
// this source file. The file is not checked for existence.
//
// The path comes from the compile time source location. Binaries built with
// -trimpath, or run away from the source tree, do not have the file there;
// they should ship root_agent.yaml and pass its location to NewLoader.
func ConfigPath() string {
	_, file, _, _ := runtime.Caller(0)

	path := filepath.Join(filepath.Dir(file), ConfigFileName)
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}

	return path
}

// Factory builds an agent from a config path.
type Factory func(path string) (core.Agent, error)

// Loader binds the agent produced by a factory exactly once. Errors are
// cached as well: a failed load is never retried.
type Loader struct {
	path    string
	factory Factory

	once   sync.Once
	agent  core.Agent
	module *evaluation.AgentModule
	err    error
}

// NewLoader returns a loader for the config at path.
func NewLoader(path string, factory Factory) *Loader {
	return &Loader{path: path, factory: factory}
}

// Path returns the config path handed to the factory.
func (l *Loader) Path() string { return l.path }

// Load calls the factory on first use and returns its result unchanged on
// every call.
func (l *Loader) Load() (core.Agent, error) {
	l.once.Do(func() {
		l.agent, l.err = l.factory(l.path)
		if l.err == nil {
			l.module = &evaluation.AgentModule{RootAgent: l.agent}
		}
	})

	return l.agent, l.err
}

// Module returns the module view of the loaded agent. Its RootAgent is the
// same instance Load returns.
func (l *Loader) Module() (*evaluation.AgentModule, error) {
	if _, err := l.Load(); err != nil {
		return nil, err
	}

	return l.module, nil
}

var defaultLoader = NewLoader(ConfigPath(), func(path string) (core.Agent, error) {
	return agentconfig.FromConfig(path)
})

// RootAgent returns the builder agent, constructing it on first call.
func RootAgent() (core.Agent, error) { return defaultLoader.Load() }

// Module returns the builder agent wrapped as an evaluation module.
func Module() (*evaluation.AgentModule, error) { return defaultLoader.Module() }

// MustRootAgent is like RootAgent but panics if the agent cannot be built.
func MustRootAgent() core.Agent {
	a, err := RootAgent()
	if err != nil {
		panic(err)
	}

	return a
}

func init() {
	evaluation.Register(ModuleName, Module)
}
