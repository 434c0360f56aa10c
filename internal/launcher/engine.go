package launcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/vk/compobuild/internal/ctxlog"
	"github.com/vk/compobuild/internal/dag"
	"github.com/vk/compobuild/internal/definition"
)

// ErrAlreadyExecuted is returned when a launcher is asked to run a second
// execute cycle.
var ErrAlreadyExecuted = errors.New("launcher already executed its task graph")

// ErrStopped is returned when a stopped launcher is used.
var ErrStopped = errors.New("launcher already stopped")

// EngineFactory creates dag-backed launchers.
type EngineFactory struct {
	runner  TaskRunner
	workers int
}

// NewEngineFactory creates a factory. runner may be nil, in which case tasks
// only log their execution. workers bounds the nested build's internal
// parallelism.
func NewEngineFactory(runner TaskRunner, workers int) *EngineFactory {
	if runner == nil {
		runner = func(ctx context.Context, task definition.Task) error {
			ctxlog.FromContext(ctx).Info("Executing task.", "task", task.Path)
			return nil
		}
	}
	if workers < 1 {
		workers = 1
	}
	return &EngineFactory{runner: runner, workers: workers}
}

// NewLauncher implements Factory.
func (f *EngineFactory) NewLauncher(ctx context.Context, def *definition.Definition, owner Owner) (Launcher, error) {
	if def == nil {
		return nil, errors.New("launcher requires a build definition")
	}
	l := &engineLauncher{
		cycleID: uuid.NewString(),
		def:     def,
		owner:   owner,
		runner:  f.runner,
		workers: f.workers,
	}
	ctxlog.FromContext(ctx).Debug("Created nested build launcher.", "build", def.BuildName(), "cycleID", l.cycleID)
	return l, nil
}

// engineLauncher runs one execute cycle of a nested build on the dag
// executor.
type engineLauncher struct {
	cycleID string
	def     *definition.Definition
	owner   Owner
	runner  TaskRunner
	workers int

	mu        sync.Mutex
	scheduled []string
	seen      map[string]struct{}
	listeners []Listener
	executed  bool
	stopped   bool
}

func (l *engineLauncher) LoadedSettings() definition.Settings {
	return definition.Settings{
		RootProjectName:    l.def.BuildName(),
		ParentIdentityPath: l.owner.ParentIdentityPath,
		Projects:           l.def.Projects(),
	}
}

func (l *engineLauncher) ConfiguredProjects() []definition.Project {
	return l.def.Projects()
}

func (l *engineLauncher) AddListener(listener Listener) {
	if listener == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, listener)
}

func (l *engineLauncher) ScheduleTasks(ctx context.Context, paths []string) {
	l.mu.Lock()
	if l.seen == nil {
		l.seen = make(map[string]struct{})
	}
	var added []string
	for _, path := range paths {
		if _, ok := l.seen[path]; ok {
			continue
		}
		l.seen[path] = struct{}{}
		l.scheduled = append(l.scheduled, path)
		added = append(added, path)
	}
	listeners := append([]Listener(nil), l.listeners...)
	l.mu.Unlock()

	if len(added) == 0 {
		return
	}
	ctxlog.FromContext(ctx).Debug("Scheduled tasks.", "build", l.def.BuildName(), "tasks", added)
	for _, listener := range listeners {
		listener.TasksScheduled(added)
	}
}

func (l *engineLauncher) ExecuteTasks(ctx context.Context) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrStopped
	}
	if l.executed {
		l.mu.Unlock()
		return ErrAlreadyExecuted
	}
	l.executed = true
	scheduled := append([]string(nil), l.scheduled...)
	listeners := append([]Listener(nil), l.listeners...)
	l.mu.Unlock()

	logger := ctxlog.FromContext(ctx).With("build", l.def.BuildName(), "cycleID", l.cycleID)
	logger.Info("Executing nested build tasks.", "tasks", scheduled)

	err := l.runGraph(ctx, scheduled)
	for _, listener := range listeners {
		listener.BuildFinished(err)
	}
	if err != nil {
		logger.Error("Nested build execution failed.", "error", err)
		return err
	}
	logger.Info("Nested build execution finished.")
	return nil
}

// runGraph builds the task graph for the scheduled paths plus their
// transitive dependencies, then runs it.
func (l *engineLauncher) runGraph(ctx context.Context, scheduled []string) error {
	declared := make(map[string]definition.Task)
	for _, task := range l.def.Tasks() {
		declared[task.Path] = task
	}

	graph := dag.New()
	var add func(path string) error
	add = func(path string) error {
		if _, ok := graph.Node(path); ok {
			return nil
		}
		task, ok := declared[path]
		if !ok {
			return fmt.Errorf("task '%s' not found in build '%s'", path, l.def.BuildName())
		}
		graph.AddNode(path, func(ctx context.Context) error {
			return l.runner(ctx, task)
		})
		for _, dep := range task.DependsOn {
			if err := add(dep); err != nil {
				return err
			}
			if err := graph.AddEdge(dep, path); err != nil {
				return err
			}
		}
		return nil
	}
	for _, path := range scheduled {
		if err := add(path); err != nil {
			return err
		}
	}

	return dag.NewExecutor(graph, l.workers).Run(ctx)
}

func (l *engineLauncher) FinishBuild(ctx context.Context) {
	l.mu.Lock()
	listeners := append([]Listener(nil), l.listeners...)
	l.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("Finishing nested build.", "build", l.def.BuildName(), "cycleID", l.cycleID)
	for _, listener := range listeners {
		listener.BuildFinished(nil)
	}
}

func (l *engineLauncher) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return nil
	}
	l.stopped = true
	return nil
}
