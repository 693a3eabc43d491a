package agent

import (
	"context"
	"testing"

	"github.com/hupe1980/adkservice/core"
	"github.com/hupe1980/adkservice/logging"
)

// funcAgent runs fn; it is the smallest concrete agent built on BaseAgent.
type funcAgent struct {
	BaseAgent
	fn func(*core.RunContext) error
}

func newFuncAgent(name string, fn func(*core.RunContext) error) *funcAgent {
	a := &funcAgent{BaseAgent: NewBaseAgent(name), fn: fn}
	a.Bind(a, "func")
	return a
}

func (a *funcAgent) Run(rc *core.RunContext) error { return a.fn(rc) }

// sayAgent emits a single assistant message.
func sayAgent(name, text string) *funcAgent {
	return newFuncAgent(name, func(rc *core.RunContext) error {
		ev := core.NewMessageEvent(rc.Agent.Name, text)
		return rc.EmitEvent(ev)
	})
}

func newTestRunContext(t *testing.T, userText string) (*core.RunContext, chan core.Event) {
	t.Helper()

	events := make(chan core.Event, 256)
	sess := core.NewSession("sess")
	content := core.NewTextContent("user", userText)
	sess.AddEvent(core.NewUserContentEvent("run", &content))

	rc := core.NewRunContext(context.Background(), "sess", "run",
		core.AgentInfo{Name: "root"}, content, 0, events, sess, nil, logging.NoOpLogger{})

	return rc, events
}

func drain(ch chan core.Event) []core.Event {
	var out []core.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func texts(events []core.Event) []string {
	var out []string
	for _, ev := range events {
		if ev.Content != nil && !ev.IsPartial() {
			out = append(out, ev.Author+":"+ev.Content.Text())
		}
	}
	return out
}
