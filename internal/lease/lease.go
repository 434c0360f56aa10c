// Package lease implements the worker-permit system bounding parallel build
// work across the whole composite build. A Lease is one slot in the global
// pool; sharing a lease lets a nested build run its own internal parallelism
// while still counting as a single slot against the outer pool.
package lease

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrLeaseReleased is returned when a released lease is used again.
var ErrLeaseReleased = errors.New("worker lease already released")

// Gauge is the subset of a metrics gauge the coordinator reports to.
// prometheus.Gauge satisfies it.
type Gauge interface {
	Inc()
	Dec()
}

type nopGauge struct{}

func (nopGauge) Inc() {}
func (nopGauge) Dec() {}

// Coordinator owns the global pool of worker permits.
type Coordinator struct {
	sem      *semaphore.Weighted
	capacity int64
	inUse    Gauge
}

// NewCoordinator creates a coordinator with the given capacity. Values below
// 1 are clamped to 1.
func NewCoordinator(maxWorkers int) *Coordinator {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Coordinator{
		sem:      semaphore.NewWeighted(int64(maxWorkers)),
		capacity: int64(maxWorkers),
		inUse:    nopGauge{},
	}
}

// SetGauge wires a leases-in-use gauge. Must be called before leases are
// handed out.
func (c *Coordinator) SetGauge(g Gauge) {
	if g != nil {
		c.inUse = g
	}
}

// Capacity is the total number of permits in the pool.
func (c *Coordinator) Capacity() int64 {
	return c.capacity
}

// NewLease acquires one permit from the pool, blocking until a permit is
// free or the context is done. The caller owns the returned lease and must
// release it.
func (c *Coordinator) NewLease(ctx context.Context) (*Lease, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring worker lease: %w", err)
	}
	c.inUse.Inc()
	return &Lease{coordinator: c}, nil
}

// WithSharedLease runs fn while holding a sub-lease derived from parent.
// The sub-lease shares the parent's permit: any number of concurrent holders
// under one parent lease count as a single slot against the pool. With a nil
// parent a fresh permit is acquired instead, which may block until the pool
// has spare capacity. The sub-lease is released on every exit path,
// including panics; it never outlives this call.
func (c *Coordinator) WithSharedLease(ctx context.Context, parent *Lease, fn func() error) error {
	if parent != nil {
		if err := parent.share(); err != nil {
			return err
		}
		defer parent.unshare()
		return fn()
	}

	sub, err := c.NewLease(ctx)
	if err != nil {
		return err
	}
	defer func() {
		// The permit was acquired here; release cannot fail with a double
		// release unless fn released it, which would be a caller bug.
		_ = sub.Release()
	}()
	return fn()
}

// Lease is one held permit. It is borrowed by the code executing under it
// and owned by whoever acquired it.
type Lease struct {
	coordinator *Coordinator
	released    atomic.Bool
	holders     atomic.Int32
}

// Release returns the permit to the pool. Releasing twice, or while shared
// holders are still active, is an error; the permit is returned at most
// once.
func (l *Lease) Release() error {
	if holders := l.holders.Load(); holders > 0 {
		return fmt.Errorf("cannot release worker lease: %d shared holder(s) still active", holders)
	}
	if !l.released.CompareAndSwap(false, true) {
		return ErrLeaseReleased
	}
	l.coordinator.sem.Release(1)
	l.coordinator.inUse.Dec()
	return nil
}

func (l *Lease) share() error {
	if l.released.Load() {
		return ErrLeaseReleased
	}
	l.holders.Add(1)
	// Re-check: the lease may have been released between the check and the
	// increment.
	if l.released.Load() {
		l.holders.Add(-1)
		return ErrLeaseReleased
	}
	return nil
}

func (l *Lease) unshare() {
	l.holders.Add(-1)
}
