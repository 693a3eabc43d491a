package agent

import (
	"fmt"
	"strings"

	"github.com/hupe1980/adkservice/core"
	"github.com/hupe1980/adkservice/flow"
	"github.com/hupe1980/adkservice/model"
	"github.com/hupe1980/adkservice/tool"
)

// IncludeContents selects how much conversation history a ModelAgent sends.
type IncludeContents string

const (
	// IncludeContentsDefault sends the (branch filtered) session history.
	IncludeContentsDefault IncludeContents = "default"
	// IncludeContentsNone sends only the current user input and the agent's
	// own tool exchanges of the current run.
	IncludeContentsNone IncludeContents = "none"
)

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	Instruction              Instruction
	GlobalInstruction        Instruction
	EnableStreaming          bool
	OutputKey                string
	MaxHistoryMessages       int
	IncludeContents          IncludeContents
	DisallowTransferToParent bool
	DisallowTransferToPeers  bool
	GenerateConfig           model.GenerateConfig
	Tools                    []tool.Tool
}

// ModelAgent is the LLM agent: it drives a model through the flow package,
// executes tool calls, transfers control to related agents and optionally
// stores its final answer in session state under an output key.
type ModelAgent struct {
	BaseAgent
	llm  model.Model
	opts ModelAgentOptions

	tools map[string]tool.Tool
	order []string
}

// NewModelAgent creates a new model-based agent.
//
// Defaults: streaming enabled, 20 history messages, full history.
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		EnableStreaming:    true,
		MaxHistoryMessages: 20,
		IncludeContents:    IncludeContentsDefault,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Instruction.IsZero() {
		opts.Instruction = NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name))
	}

	a := &ModelAgent{
		BaseAgent: NewBaseAgent(name),
		llm:       llm,
		opts:      opts,
		tools:     make(map[string]tool.Tool),
	}
	a.Bind(a, "llm")

	a.RegisterTools(opts.Tools...)

	return a
}

// RegisterTool adds a tool. A tool registered under an existing name replaces it.
func (a *ModelAgent) RegisterTool(t tool.Tool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.tools[t.Name()]; !exists {
		a.order = append(a.order, t.Name())
	}
	a.tools[t.Name()] = t
}

// RegisterTools adds multiple tools.
func (a *ModelAgent) RegisterTools(tools ...tool.Tool) {
	for _, t := range tools {
		a.RegisterTool(t)
	}
}

// HasTool checks if a tool is registered with the agent.
func (a *ModelAgent) HasTool(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, exists := a.tools[name]
	return exists
}

// Tools returns the registered tools in registration order.
func (a *ModelAgent) Tools() []tool.Tool {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]tool.Tool, 0, len(a.order))
	for _, n := range a.order {
		out = append(out, a.tools[n])
	}

	return out
}

// Model returns the language model.
func (a *ModelAgent) Model() model.Model { return a.llm }

// IsStreamingEnabled returns whether partial responses are requested.
func (a *ModelAgent) IsStreamingEnabled() bool { return a.opts.EnableStreaming }

// OutputKey returns the session state key for the final response.
func (a *ModelAgent) OutputKey() string { return a.opts.OutputKey }

// MaxHistoryMessages returns the maximum number of history messages sent.
func (a *ModelAgent) MaxHistoryMessages() int { return a.opts.MaxHistoryMessages }

// IncludesHistory reports whether prior conversation history is sent.
func (a *ModelAgent) IncludesHistory() bool { return a.opts.IncludeContents != IncludeContentsNone }

// GenerateConfig returns the per-agent sampling overrides.
func (a *ModelAgent) GenerateConfig() model.GenerateConfig { return a.opts.GenerateConfig }

// Options returns a copy of the agent's configuration.
func (a *ModelAgent) Options() ModelAgentOptions { return a.opts }

// ResolveInstructions produces the system prompt: the root agent's global
// instruction (when the root is a ModelAgent) followed by this agent's
// instruction, both rendered against session state.
func (a *ModelAgent) ResolveInstructions(runCtx *core.RunContext) (string, error) {
	var parts []string

	if root, ok := core.RootAgent(a).(*ModelAgent); ok && !root.opts.GlobalInstruction.IsZero() {
		global, err := root.opts.GlobalInstruction.Resolve(runCtx)
		if err != nil {
			return "", fmt.Errorf("global instruction: %w", err)
		}
		if global != "" {
			parts = append(parts, global)
		}
	}

	local, err := a.opts.Instruction.Resolve(runCtx)
	if err != nil {
		return "", fmt.Errorf("instruction: %w", err)
	}
	if local != "" {
		parts = append(parts, local)
	}

	return strings.Join(parts, "\n\n"), nil
}

// TransferTargets returns the agents this agent may hand control to: its
// sub-agents, plus its parent and peers when the parent is a ModelAgent and
// the respective transfer is not disallowed.
func (a *ModelAgent) TransferTargets() []core.Agent {
	targets := a.SubAgents()

	parent, ok := a.Parent().(*ModelAgent)
	if !ok {
		return targets
	}

	if !a.opts.DisallowTransferToParent {
		targets = append(targets, parent)
	}

	if !a.opts.DisallowTransferToPeers {
		for _, peer := range parent.SubAgents() {
			if peer.Name() != a.Name() {
				targets = append(targets, peer)
			}
		}
	}

	return targets
}

// TransferToAgent hands control to a transfer target. The target runs with
// the same session and emit channel.
func (a *ModelAgent) TransferToAgent(runCtx *core.RunContext, agentName string) error {
	for _, target := range a.TransferTargets() {
		if target.Name() == agentName {
			runCtx.LogInfo("agent.transfer", "from_agent", a.Name(), "to_agent", agentName)
			return runChild(runCtx, target)
		}
	}

	return fmt.Errorf("%w: %q is not a transfer target of %q", flow.ErrInvalidTransfer, agentName, a.Name())
}

// Run implements core.Agent by executing the model flow selected for this agent.
func (a *ModelAgent) Run(runCtx *core.RunContext) error {
	runCtx.LogDebug("agent.run.start", "agent", a.Name(), "run", runCtx.RunID)

	fl := flow.NewSelector().SelectFlow(a)

	if err := fl.Execute(runCtx); err != nil {
		runCtx.LogError("agent.flow.execute.error", "agent", a.Name(), "error", err.Error())
		return fmt.Errorf("flow execution failed: %w", err)
	}

	runCtx.LogDebug("agent.run.complete", "agent", a.Name())

	return nil
}
