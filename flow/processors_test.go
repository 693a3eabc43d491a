package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/adkservice/core"
	"github.com/hupe1980/adkservice/model"
)

func TestVisibleInBranch(t *testing.T) {
	tests := []struct {
		event, current string
		want           bool
	}{
		{"", "", true},
		{"", "par.a", true},
		{"par.a", "par.a", true},
		{"par.a", "par.a.inner.x", true},
		{"par.a", "par.b", false},
		{"par.ab", "par.a", false},
		{"par.a", "", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, visibleInBranch(tt.event, tt.current), "%q in %q", tt.event, tt.current)
	}
}

func TestContentsProcessor_ForeignAgentsBecomeContext(t *testing.T) {
	rc, _ := newTestRunContext(t, "plan a trip", 0)

	planner := core.NewMessageEvent("planner", "Visit Rome")
	rc.Session.AddEvent(planner)

	other := core.NewMessageEvent("sibling", "hidden")
	other.Branch = "par.sibling"
	rc.Session.AddEvent(other)

	rc.Branch = "par.writer"

	req := new(model.Request)
	require.NoError(t, NewContentsProcessor().ProcessRequest(rc, req, &stubAgent{name: "writer"}))

	require.Len(t, req.Contents, 2)
	assert.Equal(t, "user", req.Contents[1].Role)
	assert.Equal(t, "For context:\n[planner] said: Visit Rome", req.Contents[1].Text())
}

func TestContentsProcessor_IncludeNone(t *testing.T) {
	rc, _ := newTestRunContext(t, "current question", 0)

	old := core.NewMessageEvent("assistant", "earlier answer")
	old.RunID = "previous-run"
	rc.Session.AddEvent(old)

	req := new(model.Request)
	require.NoError(t, NewContentsProcessor().ProcessRequest(rc, req, &stubAgent{name: "assistant", noHistory: true}))

	require.Len(t, req.Contents, 1)
	assert.Equal(t, "current question", req.Contents[0].Text())
}

func TestContentsProcessor_TrimDropsDanglingToolResult(t *testing.T) {
	rc, _ := newTestRunContext(t, "q", 0)

	call := core.NewFunctionCallEvent("assistant", "echo", `{}`)
	rc.Session.AddEvent(call)
	rc.Session.AddEvent(core.NewFunctionResponseEvent("assistant", "fc", "echo", "ok", nil))
	rc.Session.AddEvent(core.NewMessageEvent("assistant", "answer"))

	req := new(model.Request)
	require.NoError(t, NewContentsProcessor().ProcessRequest(rc, req, &stubAgent{name: "assistant", maxHistory: 2}))

	require.Len(t, req.Contents, 1)
	assert.Equal(t, "answer", req.Contents[0].Text())
}

func TestOutputKeyProcessor(t *testing.T) {
	rc, _ := newTestRunContext(t, "q", 0)
	p := NewOutputKeyProcessor()
	agent := &stubAgent{name: "assistant", outputKey: "draft"}

	partial := &model.Response{Partial: true, Content: core.NewTextContent("assistant", "par")}
	require.NoError(t, p.ProcessResponse(rc, partial, agent))
	_, ok := rc.GetState("draft")
	assert.False(t, ok)

	call := functionCallResponse("fc", "echo", "{}")
	require.NoError(t, p.ProcessResponse(rc, &call, agent))
	_, ok = rc.GetState("draft")
	assert.False(t, ok)

	final := &model.Response{Content: core.NewTextContent("assistant", "final text")}
	require.NoError(t, p.ProcessResponse(rc, final, agent))
	v, ok := rc.GetState("draft")
	require.True(t, ok)
	assert.Equal(t, "final text", v)
}
