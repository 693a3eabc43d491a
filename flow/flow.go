// Package flow implements the request -> model -> tool loop that drives LLM
// agents. A flow assembles the model request through request processors,
// streams the model output as events, executes requested tools and hands
// control to other agents when a tool asks for a transfer.
package flow

import (
	"errors"

	"github.com/hupe1980/adkservice/core"
	"github.com/hupe1980/adkservice/model"
	"github.com/hupe1980/adkservice/tool"
)

// ErrInvalidTransfer is returned when a transfer names an agent that is not
// a valid target.
var ErrInvalidTransfer = errors.New("invalid transfer target")

// Flow executes one agent turn, emitting events through the RunContext.
type Flow interface {
	Execute(runCtx *core.RunContext) error
}

// FlowAgent is the view of an LLM agent a flow needs.
type FlowAgent interface {
	Name() string
	Model() model.Model
	ResolveInstructions(runCtx *core.RunContext) (string, error)
	Tools() []tool.Tool
	TransferTargets() []core.Agent
	TransferToAgent(runCtx *core.RunContext, agentName string) error
	IncludesHistory() bool
	IsStreamingEnabled() bool
	OutputKey() string
	MaxHistoryMessages() int
	GenerateConfig() model.GenerateConfig
}

// RequestProcessor processes the request before sending it to the model.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the request before model execution.
	ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error
}

// ResponseProcessor processes each model response before it is emitted.
type ResponseProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessResponse may inspect the response and stage state changes.
	ProcessResponse(runCtx *core.RunContext, resp *model.Response, agent FlowAgent) error
}
