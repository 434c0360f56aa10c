package launcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/compobuild/internal/buildid"
	"github.com/vk/compobuild/internal/ctxlog"
	"github.com/vk/compobuild/internal/definition"
)

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testDefinition() *definition.Definition {
	return definition.New("/tmp/child", "child", []definition.Project{
		{Path: buildid.MustParsePath(":lib"), Name: "lib"},
	}, []definition.Task{
		{Path: ":lib:generate"},
		{Path: ":lib:compile", DependsOn: []string{":lib:generate"}},
		{Path: ":lib:test", DependsOn: []string{":lib:compile"}},
	}, nil, nil)
}

// recordingListener captures lifecycle notifications.
type recordingListener struct {
	mu        sync.Mutex
	scheduled [][]string
	finished  []error
}

func (r *recordingListener) TasksScheduled(paths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled = append(r.scheduled, paths)
}

func (r *recordingListener) BuildFinished(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, err)
}

func TestExecuteRunsScheduledTasksWithDependencies(t *testing.T) {
	var mu sync.Mutex
	var ran []string
	runner := func(ctx context.Context, task definition.Task) error {
		mu.Lock()
		defer mu.Unlock()
		ran = append(ran, task.Path)
		return nil
	}

	f := NewEngineFactory(runner, 2)
	l, err := f.NewLauncher(testContext(), testDefinition(), Owner{})
	require.NoError(t, err)

	l.ScheduleTasks(testContext(), []string{":lib:test"})
	require.NoError(t, l.ExecuteTasks(testContext()))

	// The transitive dependency closure ran, dependencies first.
	require.Len(t, ran, 3)
	assert.Equal(t, ":lib:generate", ran[0])
	assert.Equal(t, ":lib:compile", ran[1])
	assert.Equal(t, ":lib:test", ran[2])
}

func TestExecuteIsSingleUse(t *testing.T) {
	f := NewEngineFactory(nil, 1)
	l, err := f.NewLauncher(testContext(), testDefinition(), Owner{})
	require.NoError(t, err)

	l.ScheduleTasks(testContext(), []string{":lib:generate"})
	require.NoError(t, l.ExecuteTasks(testContext()))

	assert.ErrorIs(t, l.ExecuteTasks(testContext()), ErrAlreadyExecuted)
}

func TestExecuteUnknownTask(t *testing.T) {
	f := NewEngineFactory(nil, 1)
	l, err := f.NewLauncher(testContext(), testDefinition(), Owner{})
	require.NoError(t, err)

	l.ScheduleTasks(testContext(), []string{":lib:missing"})
	err = l.ExecuteTasks(testContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":lib:missing")
}

func TestExecutePropagatesTaskFailure(t *testing.T) {
	boom := errors.New("boom")
	runner := func(ctx context.Context, task definition.Task) error {
		if task.Path == ":lib:compile" {
			return boom
		}
		return nil
	}

	f := NewEngineFactory(runner, 2)
	l, err := f.NewLauncher(testContext(), testDefinition(), Owner{})
	require.NoError(t, err)

	listener := &recordingListener{}
	l.AddListener(listener)

	l.ScheduleTasks(testContext(), []string{":lib:test"})
	err = l.ExecuteTasks(testContext())
	assert.ErrorIs(t, err, boom)

	require.Len(t, listener.finished, 1)
	assert.ErrorIs(t, listener.finished[0], boom)
}

func TestScheduleDeduplicatesAndNotifies(t *testing.T) {
	f := NewEngineFactory(nil, 1)
	l, err := f.NewLauncher(testContext(), testDefinition(), Owner{})
	require.NoError(t, err)

	listener := &recordingListener{}
	l.AddListener(listener)

	l.ScheduleTasks(testContext(), []string{":lib:compile", ":lib:compile"})
	l.ScheduleTasks(testContext(), []string{":lib:compile"})

	require.Len(t, listener.scheduled, 1, "re-scheduling known paths must not notify again")
	assert.Equal(t, []string{":lib:compile"}, listener.scheduled[0])
}

func TestFinishBuildNotifiesWithoutExecuting(t *testing.T) {
	f := NewEngineFactory(nil, 1)
	l, err := f.NewLauncher(testContext(), testDefinition(), Owner{})
	require.NoError(t, err)

	listener := &recordingListener{}
	l.AddListener(listener)

	l.FinishBuild(testContext())

	require.Len(t, listener.finished, 1)
	assert.NoError(t, listener.finished[0])
}

func TestStopIsIdempotentAndBlocksExecution(t *testing.T) {
	f := NewEngineFactory(nil, 1)
	l, err := f.NewLauncher(testContext(), testDefinition(), Owner{})
	require.NoError(t, err)

	require.NoError(t, l.Stop())
	require.NoError(t, l.Stop())

	assert.ErrorIs(t, l.ExecuteTasks(testContext()), ErrStopped)
}

func TestLoadedSettings(t *testing.T) {
	f := NewEngineFactory(nil, 1)

	parent := buildid.MustParsePath(":outer")
	l, err := f.NewLauncher(testContext(), testDefinition(), Owner{ParentIdentityPath: &parent})
	require.NoError(t, err)

	settings := l.LoadedSettings()
	assert.Equal(t, "child", settings.RootProjectName)
	require.NotNil(t, settings.ParentIdentityPath)
	assert.Equal(t, ":outer", settings.ParentIdentityPath.String())
	require.Len(t, settings.Projects, 1)
}
