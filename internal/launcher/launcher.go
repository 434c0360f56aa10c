// Package launcher defines the single-use execution handle for one nested
// build lifecycle, and a dag-backed implementation of it.
//
// A Launcher supports exactly one execute cycle. The orchestrator that owns
// it discards the handle after ExecuteTasks and constructs a fresh one from
// the build definition for the next cycle.
package launcher

import (
	"context"

	"github.com/vk/compobuild/internal/buildid"
	"github.com/vk/compobuild/internal/definition"
)

// Listener observes the lifecycle of a nested build execution.
type Listener interface {
	// TasksScheduled fires when task paths are recorded for execution.
	TasksScheduled(paths []string)

	// BuildFinished fires when the build completes, with the execution
	// error, or nil for non-execution completion notifications.
	BuildFinished(err error)
}

// Owner is the parent identity context a launcher is created with.
type Owner struct {
	// ParentIdentityPath locates the owning build in the composite tree.
	// Nil when the nested build hangs directly under the top build.
	ParentIdentityPath *buildid.Path
}

// Launcher is the opaque, single-use execution handle of a nested build.
type Launcher interface {
	// LoadedSettings exposes the nested build's loaded settings.
	LoadedSettings() definition.Settings

	// ConfiguredProjects returns the fully configured projects of the
	// nested build, in a deterministic order.
	ConfiguredProjects() []definition.Project

	// AddListener attaches a lifecycle listener.
	AddListener(l Listener)

	// ScheduleTasks records the given qualified task paths for execution.
	// Scheduling is cheap; nothing runs until ExecuteTasks.
	ScheduleTasks(ctx context.Context, paths []string)

	// ExecuteTasks runs the scheduled task graph synchronously. A launcher
	// supports exactly one execute cycle; further calls fail.
	ExecuteTasks(ctx context.Context) error

	// FinishBuild signals completion to listeners without executing.
	FinishBuild(ctx context.Context)

	// Stop releases the handle's resources.
	Stop() error
}

// Factory produces a fresh execution handle from an immutable build
// definition plus the parent identity context.
type Factory interface {
	NewLauncher(ctx context.Context, def *definition.Definition, owner Owner) (Launcher, error)
}

// TaskRunner executes one task of a nested build. Injected so the engine
// stays independent of what tasks actually do.
type TaskRunner func(ctx context.Context, task definition.Task) error
