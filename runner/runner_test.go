package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/adkservice/agent"
	"github.com/hupe1980/adkservice/core"
	"github.com/hupe1980/adkservice/logging"
	"github.com/hupe1980/adkservice/model"
	"github.com/hupe1980/adkservice/session"
)

type funcAgent struct {
	agent.BaseAgent
	fn func(*core.RunContext) error
}

func newFuncAgent(name string, fn func(*core.RunContext) error) *funcAgent {
	a := &funcAgent{BaseAgent: agent.NewBaseAgent(name), fn: fn}
	a.Bind(a, "func")
	return a
}

func (a *funcAgent) Run(rc *core.RunContext) error { return a.fn(rc) }

func blockingAgent(started chan<- struct{}) *funcAgent {
	return newFuncAgent("blocker", func(rc *core.RunContext) error {
		close(started)
		<-rc.Done()
		return rc.Err()
	})
}

func userText(s string) core.Content { return core.NewTextContent("user", s) }

func TestRunner_PersistsEventsAndState(t *testing.T) {
	ctx := context.Background()
	store := session.NewInMemoryStore()

	llm := model.NewMockModel("mock/helper", "mock")
	llm.AddResponse("hello", "hi there")

	root := agent.NewModelAgent("helper", llm, func(o *agent.ModelAgentOptions) {
		o.OutputKey = "last_answer"
	})

	r := New(root, func(o *Options) { o.SessionStore = store })

	runID, events, err := r.RunSync(ctx, "s1", userText("hello"))
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	var partials int
	var final core.Event
	for _, ev := range events {
		assert.Equal(t, runID, ev.RunID)
		if ev.IsPartial() {
			partials++
			continue
		}
		final = ev
	}
	assert.Positive(t, partials)
	assert.Equal(t, "helper", final.Author)
	assert.Equal(t, "hi there", final.Content.Text())

	sess, err := store.Get(ctx, "s1")
	require.NoError(t, err)

	stored := sess.GetEvents()
	require.Len(t, stored, 2)
	assert.Equal(t, "user", stored[0].Author)
	assert.Equal(t, "hi there", stored[1].Content.Text())

	v, ok := sess.GetState("last_answer")
	require.True(t, ok)
	assert.Equal(t, "hi there", v)

	assert.Zero(t, r.ActiveRuns())
}

func TestRunner_HistoryCarriesAcrossRuns(t *testing.T) {
	ctx := context.Background()

	llm := model.NewMockModel("mock/helper", "mock")
	root := agent.NewModelAgent("helper", llm, func(o *agent.ModelAgentOptions) {
		o.EnableStreaming = false
	})

	r := New(root)

	_, _, err := r.RunSync(ctx, "s1", userText("first"))
	require.NoError(t, err)
	_, _, err = r.RunSync(ctx, "s1", userText("second"))
	require.NoError(t, err)

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[0].Contents, 1)
	assert.Len(t, reqs[1].Contents, 3)
}

func TestRunner_AgentErrorIsReported(t *testing.T) {
	boom := errors.New("boom")

	var reported error
	r := New(newFuncAgent("broken", func(*core.RunContext) error { return boom }), func(o *Options) {
		o.Callbacks = []Callback{NewFunctionCallback(CallbackOnError, func(_ context.Context, cb *CallbackContext) error {
			reported = cb.Err
			return nil
		})}
	})

	_, _, err := r.RunSync(context.Background(), "s1", userText("hi"))
	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, reported, boom)
}

func TestRunner_CallbacksFireInOrder(t *testing.T) {
	var seen []CallbackType
	record := func(_ context.Context, cb *CallbackContext) error {
		seen = append(seen, cb.Type)
		return nil
	}

	a := newFuncAgent("speaker", func(rc *core.RunContext) error {
		return rc.EmitEvent(core.NewMessageEvent(rc.Agent.Name, "done"))
	})

	r := New(a)
	for _, typ := range []CallbackType{CallbackBeforeRun, CallbackOnEvent, CallbackAfterRun} {
		r.AddCallback(NewFunctionCallback(typ, record))
	}

	_, events, err := r.RunSync(context.Background(), "s1", userText("hi"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, []CallbackType{CallbackBeforeRun, CallbackOnEvent, CallbackAfterRun}, seen)
}

func TestRunner_OnEventCallbackAborts(t *testing.T) {
	veto := errors.New("veto")

	a := newFuncAgent("chatty", func(rc *core.RunContext) error {
		for i := 0; i < 5; i++ {
			if err := rc.EmitEvent(core.NewMessageEvent(rc.Agent.Name, "msg")); err != nil {
				return err
			}
		}
		return nil
	})

	r := New(a, func(o *Options) {
		o.EventBufferSize = 0
		o.Callbacks = []Callback{NewFunctionCallback(CallbackOnEvent, func(context.Context, *CallbackContext) error {
			return veto
		})}
	})

	_, events, err := r.RunSync(context.Background(), "s1", userText("hi"))
	require.ErrorIs(t, err, veto)
	assert.Empty(t, events)
}

func TestRunner_Cancel(t *testing.T) {
	started := make(chan struct{})
	r := New(blockingAgent(started))

	runID, events, errs, err := r.Run(context.Background(), "s1", userText("hi"))
	require.NoError(t, err)

	<-started
	require.NoError(t, r.Cancel(runID))

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}

	assert.NoError(t, <-errs)
	assert.ErrorIs(t, r.Cancel("unknown"), ErrRunNotFound)
}

func TestRunner_MaxConcurrentRuns(t *testing.T) {
	started := make(chan struct{})
	r := New(blockingAgent(started), func(o *Options) { o.MaxConcurrentRuns = 1 })

	runID, events, _, err := r.Run(context.Background(), "s1", userText("hi"))
	require.NoError(t, err)
	<-started

	_, _, _, err = r.Run(context.Background(), "s2", userText("hi"))
	assert.ErrorIs(t, err, ErrTooManyRuns)

	require.NoError(t, r.Cancel(runID))
	for range events {
	}
}

func TestRunner_RejectedRunLeavesSessionUntouched(t *testing.T) {
	ctx := context.Background()
	store := session.NewInMemoryStore()

	started := make(chan struct{})
	r := New(blockingAgent(started), func(o *Options) {
		o.SessionStore = store
		o.MaxConcurrentRuns = 1
	})

	runID, events, _, err := r.Run(ctx, "s1", userText("first"))
	require.NoError(t, err)
	<-started

	_, _, _, err = r.Run(ctx, "s1", userText("rejected"))
	require.ErrorIs(t, err, ErrTooManyRuns)

	sess, err := store.Get(ctx, "s1")
	require.NoError(t, err)

	stored := sess.GetEvents()
	require.Len(t, stored, 1)
	assert.Equal(t, "first", stored[0].Content.Text())

	require.NoError(t, r.Cancel(runID))
	for range events {
	}
	assert.Zero(t, r.ActiveRuns())
}

func TestRunner_ScopesContextLoggerToRun(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Format: "json", Output: &buf})

	llm := model.NewMockModel("mock/helper", "mock")
	r := New(agent.NewModelAgent("helper", llm), func(o *Options) { o.Logger = logger })

	runID, _, err := r.RunSync(context.Background(), "s1", userText("hello"))
	require.NoError(t, err)

	var found bool
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var rec map[string]any
		require.NoError(t, dec.Decode(&rec))
		if rec["msg"] != "llm.call.completed" {
			continue
		}
		found = true
		assert.Equal(t, "runner", rec["component"])
		assert.Equal(t, "s1", rec["session_id"])
		assert.Equal(t, runID, rec["run_id"])
		assert.Equal(t, "helper", rec["root_agent"])
	}
	assert.True(t, found)
}
