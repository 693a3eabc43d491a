package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/adkservice/core"
)

func TestBaseAgent_Hierarchy(t *testing.T) {
	leaf := sayAgent("leaf", "hi")
	mid, err := NewSequentialAgent("mid", leaf)
	require.NoError(t, err)
	root, err := NewSequentialAgent("root", mid, sayAgent("other", "x"))
	require.NoError(t, err)

	assert.Same(t, mid, leaf.Parent())
	assert.Same(t, root, mid.Parent())
	assert.Nil(t, root.Parent())

	assert.Same(t, leaf, root.FindAgent("leaf"))
	assert.Same(t, root, root.FindAgent("root"))
	assert.Nil(t, root.FindAgent("nobody"))
	assert.Same(t, root, core.RootAgent(leaf))

	assert.Equal(t, core.AgentInfo{Name: "mid", Type: "sequential"}, mid.Info())
}

func TestBaseAgent_SetSubAgentsRules(t *testing.T) {
	a := sayAgent("a", "")
	_, err := NewSequentialAgent("p1", a)
	require.NoError(t, err)

	_, err = NewSequentialAgent("p2", a)
	assert.ErrorContains(t, err, "already has parent")

	_, err = NewSequentialAgent("p3", sayAgent("x", ""), sayAgent("x", ""))
	assert.ErrorContains(t, err, "duplicate sub-agent name")

	p4, err := NewSequentialAgent("p4", sayAgent("b", ""))
	require.NoError(t, err)
	old := p4.SubAgents()[0]
	require.NoError(t, p4.SetSubAgents())
	assert.Nil(t, old.Parent())
}

func TestBaseAgent_StartStop(t *testing.T) {
	a := sayAgent("a", "")
	rc, _ := newTestRunContext(t, "")

	assert.ErrorIs(t, a.Stop(rc), ErrNotRunning)

	require.NoError(t, a.Start(rc))
	require.NoError(t, a.Start(rc))
	assert.True(t, a.Running())

	require.NoError(t, a.Stop(rc))
	assert.True(t, a.Running())
	require.NoError(t, a.Stop(rc))
	assert.False(t, a.Running())
}

func TestBuildBranchPath(t *testing.T) {
	assert.Equal(t, "b", buildBranchPath("", "b"))
	assert.Equal(t, "a", buildBranchPath("a", ""))
	assert.Equal(t, "a.b", buildBranchPath("a", "b"))
}
