package agent

import (
	"errors"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/adkservice/core"
)

func TestSequentialAgent_RunsInOrder(t *testing.T) {
	seq, err := NewSequentialAgent("seq", sayAgent("first", "1"), sayAgent("second", "2"))
	require.NoError(t, err)

	rc, events := newTestRunContext(t, "go")
	require.NoError(t, seq.Run(rc))

	assert.Equal(t, []string{"first:1", "second:2"}, texts(drain(events)))
}

func TestSequentialAgent_StateFlowsBetweenSteps(t *testing.T) {
	writer := newFuncAgent("writer", func(rc *core.RunContext) error {
		rc.SetState("draft", "v1")
		return rc.EmitEvent(core.NewMessageEvent(rc.Agent.Name, "wrote"))
	})

	var seen any
	reader := newFuncAgent("reader", func(rc *core.RunContext) error {
		seen, _ = rc.GetState("draft")
		return nil
	})

	seq, err := NewSequentialAgent("seq", writer, reader)
	require.NoError(t, err)

	rc, _ := newTestRunContext(t, "go")
	require.NoError(t, seq.Run(rc))
	assert.Equal(t, "v1", seen)
}

func TestSequentialAgent_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	var ran atomic.Bool

	seq, err := NewSequentialAgent("seq",
		newFuncAgent("bad", func(*core.RunContext) error { return boom }),
		newFuncAgent("never", func(*core.RunContext) error { ran.Store(true); return nil }),
	)
	require.NoError(t, err)

	rc, _ := newTestRunContext(t, "go")
	err = seq.Run(rc)
	require.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "agent bad")
	assert.False(t, ran.Load())
}

func TestParallelAgent_BranchesAndErrors(t *testing.T) {
	boom := errors.New("boom")

	branchOf := func(name string) *funcAgent {
		return newFuncAgent(name, func(rc *core.RunContext) error {
			return rc.EmitEvent(core.NewMessageEvent(rc.Agent.Name, rc.Branch))
		})
	}

	par, err := NewParallelAgent("par", []core.Agent{
		branchOf("a"),
		branchOf("b"),
		newFuncAgent("c", func(*core.RunContext) error { return boom }),
	})
	require.NoError(t, err)

	rc, events := newTestRunContext(t, "go")
	err = par.Run(rc)
	require.ErrorIs(t, err, boom)

	got := texts(drain(events))
	sort.Strings(got)
	assert.Equal(t, []string{"a:par.a", "b:par.b"}, got)
}

func TestLoopAgent_StopsOnEscalation(t *testing.T) {
	var iterations atomic.Int32

	worker := newFuncAgent("worker", func(rc *core.RunContext) error {
		iterations.Add(1)
		return rc.EmitEvent(core.NewMessageEvent(rc.Agent.Name, "work"))
	})

	critic := newFuncAgent("critic", func(rc *core.RunContext) error {
		if iterations.Load() < 3 {
			return rc.EmitEvent(core.NewMessageEvent(rc.Agent.Name, "again"))
		}
		return rc.EmitEvent(NewEscalationEvent(rc.RunID, rc.Agent.Name, &core.Content{Role: "assistant"}))
	})

	var afterRuns atomic.Int32
	after := newFuncAgent("after", func(*core.RunContext) error {
		afterRuns.Add(1)
		return nil
	})

	loop, err := NewLoopAgent("loop", []core.Agent{worker, critic, after}, WithMaxIters(10))
	require.NoError(t, err)

	rc, events := newTestRunContext(t, "go")
	require.NoError(t, loop.Run(rc))

	assert.Equal(t, int32(3), iterations.Load())
	assert.Equal(t, int32(2), afterRuns.Load(), "the escalating iteration must not reach later agents")

	got := drain(events)
	require.NotEmpty(t, got)
	assert.True(t, got[len(got)-1].IsEscalation())
}

func TestLoopAgent_MaxIterations(t *testing.T) {
	var n atomic.Int32
	loop, err := NewLoopAgent("loop", []core.Agent{
		newFuncAgent("tick", func(*core.RunContext) error { n.Add(1); return nil }),
	}, WithMaxIters(4))
	require.NoError(t, err)

	rc, _ := newTestRunContext(t, "go")
	require.NoError(t, loop.Run(rc))
	assert.Equal(t, int32(4), n.Load())
}

func TestLoopAgent_DefaultsAndErrors(t *testing.T) {
	loop, err := NewLoopAgent("loop", nil, WithMaxIters(0))
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxIterations, loop.MaxIterations())

	boom := errors.New("boom")
	var n atomic.Int32
	failing := func() core.Agent {
		return newFuncAgent("f", func(*core.RunContext) error { n.Add(1); return boom })
	}

	stop, err := NewLoopAgent("stop", []core.Agent{failing()}, WithMaxIters(3))
	require.NoError(t, err)
	rc, _ := newTestRunContext(t, "go")
	require.ErrorIs(t, stop.Run(rc), boom)
	assert.Equal(t, int32(1), n.Load())

	n.Store(0)
	cont, err := NewLoopAgent("cont", []core.Agent{failing()}, WithMaxIters(3), WithContinueOnError())
	require.NoError(t, err)
	require.NoError(t, cont.Run(rc))
	assert.Equal(t, int32(3), n.Load())

	n.Store(0)
	escalating, err := NewLoopAgent("esc", []core.Agent{
		newFuncAgent("e", func(*core.RunContext) error { n.Add(1); return ErrEscalated }),
	}, WithMaxIters(3))
	require.NoError(t, err)
	require.NoError(t, escalating.Run(rc))
	assert.Equal(t, int32(1), n.Load())
}
