package dag

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/compobuild/internal/ctxlog"
)

func testContext() context.Context {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

// recorder tracks execution order in a thread-safe way.
type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) action(id string) Action {
	return func(ctx context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.order = append(r.order, id)
		return nil
	}
}

func (r *recorder) indexOf(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, got := range r.order {
		if got == id {
			return i
		}
	}
	return -1
}

func TestExecutorRunsDependenciesFirst(t *testing.T) {
	rec := &recorder{}
	g := New()
	g.AddNode(":generate", rec.action(":generate"))
	g.AddNode(":compile", rec.action(":compile"))
	g.AddNode(":test", rec.action(":test"))
	require.NoError(t, g.AddEdge(":generate", ":compile"))
	require.NoError(t, g.AddEdge(":compile", ":test"))

	err := NewExecutor(g, 4).Run(testContext())
	require.NoError(t, err)

	assert.Less(t, rec.indexOf(":generate"), rec.indexOf(":compile"))
	assert.Less(t, rec.indexOf(":compile"), rec.indexOf(":test"))

	for _, id := range []string{":generate", ":compile", ":test"} {
		n, ok := g.Node(id)
		require.True(t, ok)
		assert.Equal(t, Done, n.State())
	}
}

func TestExecutorFailureSkipsDependents(t *testing.T) {
	boom := errors.New("boom")
	rec := &recorder{}

	g := New()
	g.AddNode(":a", func(ctx context.Context) error { return boom })
	g.AddNode(":b", rec.action(":b"))
	require.NoError(t, g.AddEdge(":a", ":b"))

	err := NewExecutor(g, 2).Run(testContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), ":a")

	assert.Equal(t, -1, rec.indexOf(":b"), "dependent of failed task must not run")

	b, _ := g.Node(":b")
	assert.Equal(t, Failed, b.State())
	assert.ErrorIs(t, b.Err, ErrSkipped)
}

func TestExecutorIndependentTasksAllRun(t *testing.T) {
	rec := &recorder{}
	g := New()
	for _, id := range []string{":a", ":b", ":c", ":d"} {
		g.AddNode(id, rec.action(id))
	}

	err := NewExecutor(g, 2).Run(testContext())
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.order, 4)
}

func TestExecutorEmptyGraph(t *testing.T) {
	err := NewExecutor(New(), 4).Run(testContext())
	assert.NoError(t, err)
}

func TestExecutorNilActionSucceeds(t *testing.T) {
	g := New()
	g.AddNode(":noop", nil)

	require.NoError(t, NewExecutor(g, 1).Run(testContext()))

	n, _ := g.Node(":noop")
	assert.Equal(t, Done, n.State())
}

func TestExecutorRejectsCyclicGraph(t *testing.T) {
	g := New()
	g.AddNode(":a", nil)
	g.AddNode(":b", nil)
	require.NoError(t, g.AddEdge(":a", ":b"))
	require.NoError(t, g.AddEdge(":b", ":a"))

	err := NewExecutor(g, 1).Run(testContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}
