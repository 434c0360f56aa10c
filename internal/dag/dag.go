package dag

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Action is the unit of work a task node runs.
type Action func(ctx context.Context) error

// State is the execution state of a node.
type State int32

const (
	Pending State = iota
	Running
	Done
	Failed
)

// Node is a single task in the graph.
type Node struct {
	// ID is the qualified task path, e.g. ":lib:compile".
	ID     string
	Action Action

	deps       map[string]*Node
	dependents map[string]*Node

	state    atomic.Int32
	depCount atomic.Int32
	skipOnce sync.Once

	// Err is set once when the node fails or is skipped.
	Err error
}

// State returns the node's current execution state.
func (n *Node) State() State {
	return State(n.state.Load())
}

// Graph is a collection of task nodes and their dependency edges. All
// operations are concurrency-safe.
type Graph struct {
	mutex sync.RWMutex
	nodes map[string]*Node
}

// New creates an initialized, empty Graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// AddNode adds a task node with the given ID and action. Adding an existing
// ID again does nothing.
func (g *Graph) AddNode(id string, action Action) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = &Node{
		ID:         id,
		Action:     action,
		deps:       make(map[string]*Node),
		dependents: make(map[string]*Node),
	}
}

// AddEdge records that `toID` depends on `fromID`. An error is returned if
// either node does not exist or the edge would be self-referential.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("dependency task not found: %s", fromID)
	}
	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("task not found: %s", toID)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode
	return nil
}

// Node looks up a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// nodesSnapshot returns all nodes without holding the lock during iteration
// by the caller.
func (g *Graph) nodesSnapshot() []*Node {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// DetectCycles checks the graph for cycles. It returns a non-nil error if a
// cycle is found, naming the first node involved.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// Classic depth-first search with a permanent set (fully visited) and a
	// temporary set (current recursion stack).
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *Node) error
	visit = func(n *Node) error {
		if permanent[n.ID] {
			return nil
		}
		if temporary[n.ID] {
			return fmt.Errorf("cycle detected involving task '%s'", n.ID)
		}

		temporary[n.ID] = true
		for _, dependent := range n.dependents {
			if err := visit(dependent); err != nil {
				return err
			}
		}
		delete(temporary, n.ID)
		permanent[n.ID] = true
		return nil
	}

	for _, n := range g.nodes {
		if !permanent[n.ID] {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// initCounters primes every node's pending-dependency counter. Must be
// called once, after the graph is fully linked and before execution.
func (g *Graph) initCounters() {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	for _, n := range g.nodes {
		n.depCount.Store(int32(len(n.deps)))
	}
}
