package included

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vk/compobuild/internal/buildid"
	"github.com/vk/compobuild/internal/component"
	"github.com/vk/compobuild/internal/ctxlog"
	"github.com/vk/compobuild/internal/definition"
	"github.com/vk/compobuild/internal/launcher"
	"github.com/vk/compobuild/internal/lease"
	"github.com/vk/compobuild/internal/metrics"
)

// ErrUnqualifiedTaskPath is the argument error for task paths missing the
// leading separator.
var ErrUnqualifiedTaskPath = errors.New("not a qualified task path")

// ErrSubstitutionsResolved is the illegal-state error for substitution
// registration after the set has been consumed.
var ErrSubstitutionsResolved = errors.New("cannot configure included build after dependency substitutions are resolved")

// launcherState tags the lifecycle of the single-use launcher handle.
type launcherState int

const (
	// stateUncreated: no handle exists yet, or the previous one was stopped.
	stateUncreated launcherState = iota
	// stateActive: a handle exists and has not run its execute cycle.
	stateActive
	// stateStale: the handle ran its one execute cycle and must be replaced
	// before the next one. It still serves identity and configuration
	// queries, because other builds in progress may hold references into
	// this build.
	stateStale
)

// Owner is the view of the outer build that registered this included build.
type Owner interface {
	// CurrentChildPrefix is the identity path prefix for projects in child
	// builds of the owner.
	CurrentChildPrefix() buildid.Path
}

// AvailableModule pairs a project's externally visible module coordinate
// with its build-scoped component identifier.
type AvailableModule struct {
	Coordinate component.ModuleCoordinate
	ID         component.ProjectID
}

// Config carries everything a Build is registered with. Identity fields are
// assigned once by the owning build and never change.
type Config struct {
	ID           buildid.ID
	IdentityPath buildid.Path
	Definition   *definition.Definition
	Implicit     bool
	Owner        Owner

	// ParentIdentityPath locates the owning build for identity resolution;
	// nil when this build hangs directly under the top build.
	ParentIdentityPath *buildid.Path

	// ParentLease is the borrowed concurrency permit execute cycles derive
	// their shared sub-lease from. Never owned, never released here.
	ParentLease *lease.Lease
	Coordinator *lease.Coordinator

	Factory    launcher.Factory
	Components component.Registry

	// Collector is optional; a nil collector disables metrics.
	Collector *metrics.Collector
}

// Build orchestrates one included build.
type Build struct {
	id           buildid.ID
	identityPath buildid.Path
	def          *definition.Definition
	implicit     bool
	owner        Owner
	parentPath   *buildid.Path
	parentLease  *lease.Lease
	coordinator  *lease.Coordinator
	factory      launcher.Factory
	components   component.Registry
	collector    *metrics.Collector

	// mu serializes all lifecycle-mutating operations of this instance:
	// handle creation, scheduling+execute, discard.
	mu            sync.Mutex
	state         launcherState
	launcher      launcher.Launcher
	substitutions []definition.Substitution
	subsResolved  bool
	name          string
	modules       []AvailableModule
}

// NewBuild registers an included build. Substitutions declared in the
// build's settings are pre-registered.
func NewBuild(cfg Config) (*Build, error) {
	if cfg.Definition == nil {
		return nil, errors.New("included build requires a definition")
	}
	if cfg.Factory == nil {
		return nil, errors.New("included build requires a launcher factory")
	}
	if cfg.Coordinator == nil {
		return nil, errors.New("included build requires a lease coordinator")
	}
	return &Build{
		id:            cfg.ID,
		identityPath:  cfg.IdentityPath,
		def:           cfg.Definition,
		implicit:      cfg.Implicit,
		owner:         cfg.Owner,
		parentPath:    cfg.ParentIdentityPath,
		parentLease:   cfg.ParentLease,
		coordinator:   cfg.Coordinator,
		factory:       cfg.Factory,
		components:    cfg.Components,
		collector:     cfg.Collector,
		substitutions: cfg.Definition.Substitutions(),
	}, nil
}

// BuildID is the identifier this build was registered under.
func (b *Build) BuildID() buildid.Identifier { return b.id }

// IdentityPath locates this build in the composite tree.
func (b *Build) IdentityPath() buildid.Path { return b.identityPath }

// IsImplicit reports whether the build was included implicitly.
func (b *Build) IsImplicit() bool { return b.implicit }

// ProjectDir is the root directory of the included build.
func (b *Build) ProjectDir() string { return b.def.RootDir() }

// Task returns a reference to a task of this build. The path must be fully
// qualified, e.g. ":task" or ":project:task".
func (b *Build) Task(path string) (TaskReference, error) {
	if !strings.HasPrefix(path, buildid.Separator) {
		return TaskReference{}, fmt.Errorf("task path '%s' is %w (e.g. ':task' or ':project:task')", path, ErrUnqualifiedTaskPath)
	}
	return TaskReference{build: b, path: path}, nil
}

// LoadedSettings returns the nested build's loaded settings, creating the
// launcher handle when none exists yet.
func (b *Build) LoadedSettings(ctx context.Context) (definition.Settings, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, err := b.launcherLocked(ctx)
	if err != nil {
		return definition.Settings{}, err
	}
	return l.LoadedSettings(), nil
}

// Name resolves the build's name from the nested build's root project name
// once settings load, then is memoized permanently.
func (b *Build) Name(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nameLocked(ctx)
}

func (b *Build) nameLocked(ctx context.Context) (string, error) {
	if b.name != "" {
		return b.name, nil
	}
	l, err := b.launcherLocked(ctx)
	if err != nil {
		return "", err
	}
	b.name = l.LoadedSettings().RootProjectName
	return b.name, nil
}

// CurrentChildPrefix is the identity path prefix for projects in child
// builds of this build. When the name is not resolved yet, it falls back to
// the raw build identifier's name appended to the owner's child prefix;
// dependency resolution can ask for identity before the nested build's
// settings have loaded.
func (b *Build) CurrentChildPrefix() buildid.Path {
	prefix := b.owner.CurrentChildPrefix()

	b.mu.Lock()
	name := b.name
	b.mu.Unlock()

	if name == "" {
		name = b.id.BuildName()
	}
	return prefix.Child(name)
}

// IdentityPathForProject resolves the identity path of a project of this
// build, given its path relative to the build's root.
func (b *Build) IdentityPathForProject(ctx context.Context, projectPath buildid.Path) (buildid.Path, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.identityPathForProjectLocked(ctx, projectPath)
}

func (b *Build) identityPathForProjectLocked(ctx context.Context, projectPath buildid.Path) (buildid.Path, error) {
	name, err := b.nameLocked(ctx)
	if err != nil {
		return buildid.Path{}, err
	}
	l, err := b.launcherLocked(ctx)
	if err != nil {
		return buildid.Path{}, err
	}

	var rootPath buildid.Path
	if parent := l.LoadedSettings().ParentIdentityPath; parent == nil {
		rootPath = buildid.Root.Child(name)
	} else {
		rootPath = parent.Child(name)
	}
	return rootPath.Append(projectPath), nil
}

// ForeignIdentifierFor rewrites a project identifier for use from another
// build's perspective: the build component carries this build's name but
// never evaluates as the current build, while project path and name are
// preserved.
func (b *Build) ForeignIdentifierFor(ctx context.Context, id component.ProjectID) (component.ProjectID, error) {
	name, err := b.Name(ctx)
	if err != nil {
		return component.ProjectID{}, err
	}
	return component.ProjectID{
		Build:        buildid.NewForeignID(b.id.BuildName(), name),
		IdentityPath: id.IdentityPath,
		ProjectPath:  id.ProjectPath,
		ProjectName:  id.ProjectName,
	}, nil
}

// RegisterSubstitution records a substitution rule. Registration fails once
// the set has been consumed by a resolution.
func (b *Build) RegisterSubstitution(rule definition.Substitution) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subsResolved {
		return ErrSubstitutionsResolved
	}
	b.substitutions = append(b.substitutions, rule)
	return nil
}

// ConsumeRegisteredSubstitutions freezes the substitution set on first call
// and returns the same frozen sequence on every call thereafter.
func (b *Build) ConsumeRegisteredSubstitutions() []definition.Substitution {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subsResolved = true
	return b.substitutions
}

// AvailableModules visits every project of the configured nested build and
// pairs its externally visible module coordinate with a project component
// identifier scoped to this build's identifier. Traversal order is the
// configuration order, one entry per project. The result is memoized after
// the first success and is not invalidated by later reconfiguration of the
// nested build.
func (b *Build) AvailableModules(ctx context.Context) ([]AvailableModule, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.modules != nil {
		return b.modules, nil
	}
	if b.components == nil {
		return nil, errors.New("included build has no component registry")
	}

	l, err := b.launcherLocked(ctx)
	if err != nil {
		return nil, err
	}

	logger := ctxlog.FromContext(ctx)
	projects := l.ConfiguredProjects()
	modules := make([]AvailableModule, 0, len(projects))
	for _, project := range projects {
		meta, ok := b.components.ComponentFor(project.Path)
		if !ok {
			return nil, fmt.Errorf("project %s of %s exposes no component metadata", project.Path, b.id)
		}
		identityPath, err := b.identityPathForProjectLocked(ctx, project.Path)
		if err != nil {
			return nil, err
		}
		id := component.ProjectID{
			Build:        b.id,
			IdentityPath: identityPath,
			ProjectPath:  project.Path,
			ProjectName:  project.Name,
		}
		logger.Info("Registering project in composite build.", "project", project.Path.String(), "module", meta.Coordinate.GroupModule())
		modules = append(modules, AvailableModule{Coordinate: meta.Coordinate, ID: id})
	}

	b.modules = modules
	return b.modules, nil
}

// AddTasks records the given task paths on the launcher without executing.
func (b *Build) AddTasks(ctx context.Context, taskPaths []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, err := b.launcherLocked(ctx)
	if err != nil {
		return err
	}
	l.ScheduleTasks(ctx, taskPaths)
	return nil
}

// Execute schedules the given tasks and runs the nested build's task graph
// synchronously under a sub-lease shared with the parent lease. The handle
// is marked stale on every exit path, so the next cycle starts clean
// whether this one succeeded or failed.
func (b *Build) Execute(ctx context.Context, tasks []string, listener launcher.Listener) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Cleanup deferred from the previous cycle.
	if err := b.discardStaleLocked(ctx); err != nil {
		return err
	}

	l, err := b.launcherLocked(ctx)
	if err != nil {
		return err
	}
	if listener != nil {
		l.AddListener(listener)
	}
	l.ScheduleTasks(ctx, tasks)

	defer func() {
		// A launcher supports exactly one execute cycle. Hang on to the
		// handle itself: other builds in progress may still resolve against
		// this build after its tasks have completed.
		b.state = stateStale
	}()

	start := time.Now()
	err = b.coordinator.WithSharedLease(ctx, b.parentLease, func() error {
		return l.ExecuteTasks(ctx)
	})
	b.observeExecution(time.Since(start), err)
	return err
}

// FinishBuild signals "finish" to the active handle without altering its
// state. A no-op when no handle exists or the handle is stale.
func (b *Build) FinishBuild(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.launcher == nil || b.state == stateStale {
		return
	}
	b.launcher.FinishBuild(ctx)
}

// Stop releases the launcher handle. Safe to call repeatedly; the handle
// reference is cleared even if the release fails, so a broken handle is
// never reused, and any release failure is still surfaced.
func (b *Build) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.launcher == nil {
		return nil
	}
	err := b.launcher.Stop()
	b.launcher = nil
	b.state = stateUncreated
	return err
}

// launcherLocked returns the current handle, creating one when none exists.
// A stale handle is returned as-is: it still serves identity and
// configuration queries, and only Execute replaces it.
func (b *Build) launcherLocked(ctx context.Context) (launcher.Launcher, error) {
	if b.launcher != nil {
		return b.launcher, nil
	}
	l, err := b.factory.NewLauncher(ctx, b.def, launcher.Owner{ParentIdentityPath: b.parentPath})
	if err != nil {
		return nil, fmt.Errorf("creating launcher for %s: %w", b.id, err)
	}
	b.launcher = l
	b.state = stateActive
	return l, nil
}

// discardStaleLocked stops and drops a handle that already ran its execute
// cycle. The reference is cleared even when the stop fails.
func (b *Build) discardStaleLocked(ctx context.Context) error {
	if b.launcher == nil || b.state != stateStale {
		return nil
	}
	ctxlog.FromContext(ctx).Debug("Replacing stale launcher handle.", "build", b.id.BuildName())
	err := b.launcher.Stop()
	b.launcher = nil
	b.state = stateUncreated
	return err
}

func (b *Build) observeExecution(elapsed time.Duration, err error) {
	if b.collector == nil {
		return
	}
	name := b.id.BuildName()
	b.collector.ExecutionsTotal.WithLabelValues(name).Inc()
	b.collector.ExecutionDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if err != nil {
		b.collector.FailuresTotal.WithLabelValues(name).Inc()
	}
}
