package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/compobuild/internal/definition"
	"github.com/vk/compobuild/internal/launcher"
	"github.com/vk/compobuild/internal/testutil"
)

const rootSettings = `
build {
  name = "composite-root"
}

include "child" {
  dir = "child"
}
`

const childSettings = `
build {
  name = "child"
}

project ":lib" {
  group   = "com.example"
  module  = "lib"
  version = "1.0"
}

project ":app" {}

task ":lib:compile" {}

task ":lib:assemble" {
  depends_on = [":lib:compile"]
}
`

// newTestComposite writes a root settings file with one included build to a
// temp directory and returns the root directory.
func newTestComposite(t *testing.T) string {
	t.Helper()
	rootDir := t.TempDir()
	childDir := filepath.Join(rootDir, "child")
	require.NoError(t, os.Mkdir(childDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rootDir, definition.SettingsFileName), []byte(rootSettings), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(childDir, definition.SettingsFileName), []byte(childSettings), 0o644))
	return rootDir
}

func TestRunExecutesTasksInDependencyOrder(t *testing.T) {
	t.Parallel()

	rootDir := newTestComposite(t)

	var mu sync.Mutex
	var order []string
	runner := func(ctx context.Context, task definition.Task) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, task.Path)
		return nil
	}

	cfg, err := NewConfig(Config{
		SettingsPath: rootDir,
		Build:        "child",
		Tasks:        []string{":lib:assemble"},
		LogFormat:    "text",
		LogLevel:     "debug",
		WorkerCount:  2,
	})
	require.NoError(t, err)

	out := &testutil.SafeBuffer{}
	a := NewApp(out, cfg, definition.NewLoader(), launcher.TaskRunner(runner))
	require.NoError(t, a.Run(context.Background(), cfg))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{":lib:compile", ":lib:assemble"}, order)

	count, err := promtestutil.GatherAndCount(a.Gatherer(), "compobuild_included_build_executions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunFailsForUnknownBuild(t *testing.T) {
	t.Parallel()

	rootDir := newTestComposite(t)
	cfg, err := NewConfig(Config{
		SettingsPath: rootDir,
		Build:        "no-such-build",
		Tasks:        []string{":lib:compile"},
		WorkerCount:  1,
	})
	require.NoError(t, err)

	a := NewApp(&testutil.SafeBuffer{}, cfg, definition.NewLoader(), nil)
	err = a.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no included build named 'no-such-build'")
}

func TestRunFailsForUndeclaredTask(t *testing.T) {
	t.Parallel()

	rootDir := newTestComposite(t)
	cfg, err := NewConfig(Config{
		SettingsPath: rootDir,
		Tasks:        []string{":missing"},
		WorkerCount:  1,
	})
	require.NoError(t, err)

	a := NewApp(&testutil.SafeBuffer{}, cfg, definition.NewLoader(), nil)
	err = a.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task ':missing' not found in build 'child'")
}

func TestAppPublishesComponentMetadata(t *testing.T) {
	t.Parallel()

	rootDir := newTestComposite(t)
	cfg, err := NewConfig(Config{
		SettingsPath: rootDir,
		WorkerCount:  1,
	})
	require.NoError(t, err)

	a := NewApp(&testutil.SafeBuffer{}, cfg, definition.NewLoader(), nil)
	build, ok := a.Build("child")
	require.True(t, ok)

	modules, err := build.AvailableModules(testutil.Context())
	require.NoError(t, err)
	require.Len(t, modules, 2)

	// Declared coordinate is used as-is; projects publishing nothing get a
	// synthesized one.
	assert.Equal(t, "com.example:lib:1.0", modules[0].Coordinate.String())
	assert.Equal(t, "child:app:unspecified", modules[1].Coordinate.String())
	assert.Equal(t, ":child:app", modules[1].ID.IdentityPath.String())
}

func TestNewAppPanicsOnBrokenSettings(t *testing.T) {
	t.Parallel()

	rootDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rootDir, definition.SettingsFileName), []byte("build {"), 0o644))

	cfg, err := NewConfig(Config{SettingsPath: rootDir, WorkerCount: 1})
	require.NoError(t, err)

	assert.Panics(t, func() {
		NewApp(&testutil.SafeBuffer{}, cfg, definition.NewLoader(), nil)
	})
}
