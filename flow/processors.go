package flow

import (
	"fmt"
	"strings"

	"github.com/hupe1980/adkservice/core"
	"github.com/hupe1980/adkservice/model"
	"github.com/hupe1980/adkservice/tool"
)

// InstructionsProcessor resolves the system prompt and per-agent generation settings.
type InstructionsProcessor struct{}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor() *InstructionsProcessor { return &InstructionsProcessor{} }

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest sets instructions, generation config and streaming mode.
func (p *InstructionsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	instructions, err := agent.ResolveInstructions(runCtx)
	if err != nil {
		return fmt.Errorf("failed to resolve instruction: %w", err)
	}

	runCtx.LogDebug("agent.instruction.resolved", "agent", agent.Name(), "length", len(instructions))

	req.Instructions = instructions
	req.Config = agent.GenerateConfig()
	req.Stream = agent.IsStreamingEnabled()

	return nil
}

// ContentsProcessor assembles the conversation sent to the model.
type ContentsProcessor struct{}

// NewContentsProcessor creates a new contents processor.
func NewContentsProcessor() *ContentsProcessor { return &ContentsProcessor{} }

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest fills req.Contents from the session history. Events of other
// branches are skipped and messages authored by other agents are presented
// as user context so the model does not mistake them for its own output.
func (p *ContentsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	var contents []core.Content

	history := runCtx.History()

	if !agent.IncludesHistory() {
		if len(runCtx.UserContent.Parts) > 0 {
			contents = append(contents, runCtx.UserContent)
		}

		for _, ev := range history {
			if ev.RunID == runCtx.RunID && ev.Author == agent.Name() && visibleInBranch(ev.Branch, runCtx.Branch) {
				contents = append(contents, *ev.Content)
			}
		}

		req.Contents = contents

		return nil
	}

	for _, ev := range history {
		if !visibleInBranch(ev.Branch, runCtx.Branch) || len(ev.Content.Parts) == 0 {
			continue
		}

		if ev.Author == "user" || ev.Author == agent.Name() {
			contents = append(contents, *ev.Content)
			continue
		}

		if c, ok := foreignContext(ev); ok {
			contents = append(contents, c)
		}
	}

	if limit := agent.MaxHistoryMessages(); limit > 0 && len(contents) > limit {
		contents = contents[len(contents)-limit:]
		// a tool result cannot open the conversation without its call
		for len(contents) > 0 && contents[0].Role == "tool" {
			contents = contents[1:]
		}
	}

	req.Contents = contents

	return nil
}

// visibleInBranch reports whether an event recorded on eventBranch is part of
// the conversation seen from current. Root events are visible everywhere;
// events of a branch are visible to that branch and its descendants.
func visibleInBranch(eventBranch, current string) bool {
	if eventBranch == "" || eventBranch == current {
		return true
	}
	return strings.HasPrefix(current, eventBranch+".")
}

// foreignContext rewrites an event authored by another agent into user content.
func foreignContext(ev core.Event) (core.Content, bool) {
	var b strings.Builder

	for _, part := range ev.Content.Parts {
		switch p := part.(type) {
		case core.TextPart:
			if p.Text == "" {
				continue
			}
			fmt.Fprintf(&b, "[%s] said: %s\n", ev.Author, p.Text)
		case core.FunctionCallPart:
			fmt.Fprintf(&b, "[%s] called tool `%s` with parameters: %s\n", ev.Author, p.FunctionCall.Name, p.FunctionCall.Arguments)
		case core.FunctionResponsePart:
			fmt.Fprintf(&b, "[%s] `%s` tool returned result: %s\n", ev.Author, p.FunctionResponse.Name, model.FunctionResponseText(p.FunctionResponse))
		}
	}

	if b.Len() == 0 {
		return core.Content{}, false
	}

	return core.NewTextContent("user", "For context:\n"+strings.TrimRight(b.String(), "\n")), true
}

// TransferToolInjector offers the transfer_to_agent tool and describes the
// reachable agents in the system prompt.
type TransferToolInjector struct{}

// NewTransferToolInjector creates a new transfer tool injector.
func NewTransferToolInjector() *TransferToolInjector { return &TransferToolInjector{} }

// Name returns the processor's identifier.
func (p *TransferToolInjector) Name() string { return "transfer_tool_injector" }

// ProcessRequest appends transfer guidance and the tool definition.
func (p *TransferToolInjector) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	targets := agent.TransferTargets()
	if len(targets) == 0 {
		return nil
	}

	var b strings.Builder

	b.WriteString("You can transfer the conversation to one of the following agents when it is better suited to answer:\n")

	for _, t := range targets {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name(), t.Description())
	}

	fmt.Fprintf(&b, "To transfer, call the %s tool with the agent name. Do not answer the question yourself after transferring.", tool.TransferToAgentName)

	if req.Instructions == "" {
		req.Instructions = b.String()
	} else {
		req.Instructions += "\n\n" + b.String()
	}

	for _, def := range req.Tools {
		if def.Function.Name == tool.TransferToAgentName {
			return nil
		}
	}

	req.Tools = append(req.Tools, toolDefinition(tool.NewTransferToAgentTool()))

	return nil
}

// OutputKeyProcessor stages the final text answer under the agent's output key.
type OutputKeyProcessor struct{}

// NewOutputKeyProcessor creates a new output key processor.
func NewOutputKeyProcessor() *OutputKeyProcessor { return &OutputKeyProcessor{} }

// Name returns the processor's identifier.
func (p *OutputKeyProcessor) Name() string { return "output_key" }

// ProcessResponse records the text of complete responses without tool calls.
func (p *OutputKeyProcessor) ProcessResponse(runCtx *core.RunContext, resp *model.Response, agent FlowAgent) error {
	key := agent.OutputKey()
	if key == "" || resp.Partial {
		return nil
	}

	for _, part := range resp.Content.Parts {
		if _, ok := part.(core.FunctionCallPart); ok {
			return nil
		}
	}

	if text := resp.Content.Text(); text != "" {
		runCtx.SetState(key, text)
	}

	return nil
}

func toolDefinition(t tool.Tool) model.ToolDefinition {
	return model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}
