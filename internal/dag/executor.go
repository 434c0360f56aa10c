package dag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vk/compobuild/internal/ctxlog"
)

// ErrSkipped marks nodes that never ran because an upstream task failed.
var ErrSkipped = errors.New("skipped due to upstream failure")

// Executor runs a task graph on a bounded worker pool.
type Executor struct {
	graph      *Graph
	numWorkers int
	wg         sync.WaitGroup
}

// NewExecutor creates an executor for the given graph. numWorkers bounds the
// number of tasks running concurrently; values below 1 are clamped to 1.
func NewExecutor(graph *Graph, numWorkers int) *Executor {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Executor{graph: graph, numWorkers: numWorkers}
}

// Run executes the entire graph concurrently and returns an error if any
// task fails. The first failure cancels the run; tasks already running
// finish, pending dependents are skipped.
func (e *Executor) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	if err := e.graph.DetectCycles(); err != nil {
		return err
	}

	nodes := e.graph.nodesSnapshot()
	if len(nodes) == 0 {
		return nil
	}
	e.graph.initCounters()

	readyChan := make(chan *Node, len(nodes))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rootCount := 0
	for _, n := range nodes {
		if n.depCount.Load() == 0 {
			readyChan <- n
			rootCount++
		}
	}
	logger.Debug("Found all root tasks.", "count", rootCount)

	e.wg.Add(len(nodes))

	logger.Debug("Starting worker pool.", "workers", e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(runCtx, readyChan, cancel, i)
	}

	e.wg.Wait()
	close(readyChan)

	return e.collectFailure(ctx, nodes)
}

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *Node, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)

	for n := range readyChan {
		taskLogger := logger.With("workerID", workerID, "task", n.ID)

		if ctx.Err() != nil {
			n.skipOnce.Do(func() {
				n.state.Store(int32(Failed))
				n.Err = ctx.Err()
				e.wg.Done()
				// Dependents can never become ready once this node is
				// skipped; cascade so the wait group still drains.
				e.skipDependents(ctx, n)
			})
			continue
		}

		taskLogger.Debug("Worker picked up task.")
		n.state.Store(int32(Running))

		var err error
		if n.Action != nil {
			err = n.Action(ctx)
		}

		if err != nil {
			taskLogger.Error("Task failed.", "error", err)
			n.state.Store(int32(Failed))
			n.Err = err
			cancel()
			e.skipDependents(ctx, n)
			e.wg.Done()
			continue
		}

		taskLogger.Debug("Task succeeded.")
		n.state.Store(int32(Done))

		for _, dependent := range n.dependents {
			if dependent.depCount.Add(-1) == 0 {
				readyChan <- dependent
			}
		}

		e.wg.Done()
	}
}

// skipDependents recursively marks downstream tasks as failed without
// running them.
func (e *Executor) skipDependents(ctx context.Context, n *Node) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range n.dependents {
		dependent.skipOnce.Do(func() {
			logger.Warn("Skipping task due to upstream failure.", "task", dependent.ID, "failed", n.ID)
			dependent.state.Store(int32(Failed))
			dependent.Err = fmt.Errorf("%w of '%s'", ErrSkipped, n.ID)
			e.wg.Done()
			e.skipDependents(ctx, dependent)
		})
	}
}

// collectFailure distills the per-node errors into a single root-cause
// error. Skip and cancellation errors are symptoms, not causes.
func (e *Executor) collectFailure(ctx context.Context, nodes []*Node) error {
	logger := ctxlog.FromContext(ctx)

	var failedTasks []string
	var rootCause error
	for _, n := range nodes {
		if n.State() != Failed {
			continue
		}
		logger.Error("Task failed execution.", "task", n.ID, "error", n.Err)
		if n.Err != nil && !errors.Is(n.Err, ErrSkipped) && !errors.Is(n.Err, context.Canceled) {
			failedTasks = append(failedTasks, n.ID)
			if rootCause == nil {
				rootCause = n.Err
			}
		}
	}

	if rootCause != nil {
		sort.Strings(failedTasks)
		return fmt.Errorf("execution failed for %s: %w", strings.Join(failedTasks, ", "), rootCause)
	}
	return nil
}
