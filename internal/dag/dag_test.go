package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphAddNodeAndEdge(t *testing.T) {
	g := New()
	g.AddNode(":a", nil)
	g.AddNode(":b", nil)
	g.AddNode(":a", nil) // duplicate is a no-op

	assert.Equal(t, 2, g.Len())

	require.NoError(t, g.AddEdge(":a", ":b"))
	require.Error(t, g.AddEdge(":a", ":a"), "self-referential edge")
	require.Error(t, g.AddEdge(":missing", ":b"))
	require.Error(t, g.AddEdge(":a", ":missing"))

	_, ok := g.Node(":a")
	assert.True(t, ok)
	_, ok = g.Node(":missing")
	assert.False(t, ok)
}

func TestDetectCycles(t *testing.T) {
	t.Run("acyclic", func(t *testing.T) {
		g := New()
		g.AddNode(":a", nil)
		g.AddNode(":b", nil)
		g.AddNode(":c", nil)
		require.NoError(t, g.AddEdge(":a", ":b"))
		require.NoError(t, g.AddEdge(":b", ":c"))
		require.NoError(t, g.AddEdge(":a", ":c"))

		assert.NoError(t, g.DetectCycles())
	})

	t.Run("cyclic", func(t *testing.T) {
		g := New()
		g.AddNode(":a", nil)
		g.AddNode(":b", nil)
		g.AddNode(":c", nil)
		require.NoError(t, g.AddEdge(":a", ":b"))
		require.NoError(t, g.AddEdge(":b", ":c"))
		require.NoError(t, g.AddEdge(":c", ":a"))

		assert.Error(t, g.DetectCycles())
	})
}
