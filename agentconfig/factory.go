package agentconfig

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hupe1980/adkservice/agent"
	"github.com/hupe1980/adkservice/core"
	"github.com/hupe1980/adkservice/logging"
	"github.com/hupe1980/adkservice/model"
	"github.com/hupe1980/adkservice/tool"
)

// Options configures FromConfig.
type Options struct {
	// Models resolves model names. Defaults to DefaultModelRegistry.
	Models *model.Registry
	// Tools resolves tool names. Defaults to tool.DefaultRegistry.
	Tools *tool.Registry
	// Agents resolves `code:` references. Defaults to DefaultAgentRegistry.
	Agents *AgentRegistry
	// DefaultModel is used by LlmAgents that neither set nor inherit a model.
	DefaultModel string
	// EnableStreaming requests partial model responses from LlmAgents.
	EnableStreaming bool
	// Logger receives build diagnostics.
	Logger logging.Logger
}

// Option mutates Options.
type Option func(o *Options)

// WithModelRegistry overrides the model registry.
func WithModelRegistry(r *model.Registry) Option { return func(o *Options) { o.Models = r } }

// WithToolRegistry overrides the tool registry.
func WithToolRegistry(r *tool.Registry) Option { return func(o *Options) { o.Tools = r } }

// WithAgentRegistry overrides the registry used for `code:` references.
func WithAgentRegistry(r *AgentRegistry) Option { return func(o *Options) { o.Agents = r } }

// WithDefaultModel sets the fallback model name.
func WithDefaultModel(name string) Option { return func(o *Options) { o.DefaultModel = name } }

// WithStreaming enables partial responses for all LlmAgents.
func WithStreaming(enabled bool) Option { return func(o *Options) { o.EnableStreaming = enabled } }

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option { return func(o *Options) { o.Logger = l } }

func newOptions(opts []Option) Options {
	o := Options{}
	for _, fn := range opts {
		fn(&o)
	}

	if o.Models == nil {
		o.Models = DefaultModelRegistry()
	}
	if o.Tools == nil {
		o.Tools = tool.DefaultRegistry()
	}
	if o.Agents == nil {
		o.Agents = DefaultAgentRegistry()
	}
	if o.Logger == nil {
		o.Logger = logging.NoOpLogger{}
	}

	return o
}

// FromConfig loads the config at path, validates it and builds the agent
// tree, following sub-agent config paths recursively.
func FromConfig(path string, opts ...Option) (core.Agent, error) {
	b := newBuilder(newOptions(opts))

	b.opts.Logger.Info("agentconfig.load.start", "path", path)

	a, err := b.buildFile(path, "")
	if err != nil {
		b.opts.Logger.Error("agentconfig.load.error", "path", path, "error", err.Error())
		return nil, err
	}

	b.opts.Logger.Info("agentconfig.load.complete", "path", path, "agent", a.Name(), "agents_built", b.built)

	return a, nil
}

// Build constructs the agent tree for an already loaded config.
func Build(cfg *AgentConfig, opts ...Option) (core.Agent, error) {
	b := newBuilder(newOptions(opts))

	if cfg.path != "" {
		b.visiting[cfg.path] = true
		b.stack = append(b.stack, cfg.path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Path: cfg.path, Err: err}
	}

	return b.build(cfg, "")
}

type builder struct {
	opts     Options
	visiting map[string]bool
	stack    []string
	models   map[string]model.Model
	built    int
}

func newBuilder(opts Options) *builder {
	return &builder{
		opts:     opts,
		visiting: make(map[string]bool),
		models:   make(map[string]model.Model),
	}
}

func (b *builder) buildFile(path, inheritedModel string) (core.Agent, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	if b.visiting[abs] {
		chain := append(append([]string(nil), b.stack...), abs)
		return nil, &ConfigError{Path: abs, Err: fmt.Errorf("%w: %s", ErrConfigCycle, strings.Join(chain, " -> "))}
	}

	b.visiting[abs] = true
	b.stack = append(b.stack, abs)

	defer func() {
		delete(b.visiting, abs)
		b.stack = b.stack[:len(b.stack)-1]
	}()

	cfg, err := LoadConfig(abs)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Path: abs, Err: err}
	}

	return b.build(cfg, inheritedModel)
}

func (b *builder) build(cfg *AgentConfig, inheritedModel string) (core.Agent, error) {
	modelName := inheritedModel
	if cfg.Class().IsLLM() && cfg.Model != "" {
		modelName = cfg.Model
	}

	children, err := b.buildChildren(cfg, modelName)
	if err != nil {
		return nil, err
	}

	var a core.Agent

	switch cfg.Class() {
	case ClassSequentialAgent:
		a, err = agent.NewSequentialAgent(cfg.Name, children...)
	case ClassParallelAgent:
		a, err = agent.NewParallelAgent(cfg.Name, children)
	case ClassLoopAgent:
		var loopOpts []agent.LoopOption
		if cfg.MaxIterations != nil {
			loopOpts = append(loopOpts, agent.WithMaxIters(*cfg.MaxIterations))
		}
		a, err = agent.NewLoopAgent(cfg.Name, children, loopOpts...)
	default:
		a, err = b.buildLLM(cfg, modelName, children)
	}

	if err != nil {
		return nil, b.wrap(cfg, err)
	}

	if cfg.Description != "" {
		if d, ok := a.(interface{ SetDescription(string) }); ok {
			d.SetDescription(cfg.Description)
		}
	}

	b.built++
	b.opts.Logger.Debug("agentconfig.agent.built", "agent", cfg.Name, "class", string(cfg.Class()), "model", modelName, "sub_agents", len(children))

	return a, nil
}

func (b *builder) buildChildren(cfg *AgentConfig, modelName string) ([]core.Agent, error) {
	children := make([]core.Agent, 0, len(cfg.SubAgents))
	names := make(map[string]struct{}, len(cfg.SubAgents))

	for _, ref := range cfg.SubAgents {
		var (
			child core.Agent
			err   error
		)

		if ref.Code != "" {
			child, err = b.opts.Agents.Create(ref.Code)
			if err != nil {
				return nil, b.wrap(cfg, err)
			}
		} else {
			child, err = b.buildFile(cfg.ResolvePath(ref.ConfigPath), modelName)
			if err != nil {
				return nil, err
			}
		}

		if _, dup := names[child.Name()]; dup || child.Name() == cfg.Name {
			return nil, b.wrap(cfg, fmt.Errorf("%w: %q", ErrDuplicateAgent, child.Name()))
		}
		names[child.Name()] = struct{}{}

		children = append(children, child)
	}

	return children, nil
}

func (b *builder) buildLLM(cfg *AgentConfig, modelName string, children []core.Agent) (core.Agent, error) {
	if modelName == "" {
		modelName = b.opts.DefaultModel
	}
	if modelName == "" {
		return nil, fmt.Errorf("%w for agent %q", ErrMissingModel, cfg.Name)
	}

	llm, err := b.model(modelName)
	if err != nil {
		return nil, err
	}

	tools := make([]tool.Tool, 0, len(cfg.Tools))
	for _, ref := range cfg.Tools {
		t, err := b.opts.Tools.Lookup(ref.Name)
		if err != nil {
			if errors.Is(err, tool.ErrToolNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownTool, ref.Name)
			}
			return nil, err
		}
		tools = append(tools, t)
	}

	a := agent.NewModelAgent(cfg.Name, llm, func(o *agent.ModelAgentOptions) {
		if cfg.Instruction != "" {
			o.Instruction = agent.NewInstructionFromText(cfg.Instruction)
		}
		if cfg.GlobalInstruction != "" {
			o.GlobalInstruction = agent.NewInstructionFromText(cfg.GlobalInstruction)
		}
		o.OutputKey = cfg.OutputKey
		if cfg.IncludeContents == string(agent.IncludeContentsNone) {
			o.IncludeContents = agent.IncludeContentsNone
		}
		o.DisallowTransferToParent = cfg.DisallowTransferToParent
		o.DisallowTransferToPeers = cfg.DisallowTransferToPeers
		if g := cfg.GenerateContentConfig; g != nil {
			o.GenerateConfig = model.GenerateConfig{Temperature: g.Temperature, MaxOutputTokens: g.MaxOutputTokens}
		}
		o.EnableStreaming = b.opts.EnableStreaming
		o.Tools = tools
	})

	if err := a.SetSubAgents(children...); err != nil {
		return nil, err
	}

	return a, nil
}

// model resolves and caches model instances per name for one build.
func (b *builder) model(name string) (model.Model, error) {
	if m, ok := b.models[name]; ok {
		return m, nil
	}

	m, err := b.opts.Models.Resolve(name)
	if err != nil {
		return nil, err
	}

	b.models[name] = m

	return m, nil
}

func (b *builder) wrap(cfg *AgentConfig, err error) error {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return err
	}
	path := cfg.path
	if path == "" {
		path = cfg.Name
	}
	return &ConfigError{Path: path, Err: err}
}
