// Package gate bounds how many operations of one kind may run at once.
//
// The storage service holds one gate per operation family (uploads,
// downloads). Each gate is an explicitly constructed object handed to the
// components that need it, never package-level state, so two services in
// one process (as in tests) get independent capacity.
package gate

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate is a counting admission gate with a fixed capacity.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int64
}

// New returns a gate admitting at most capacity concurrent holders.
// Capacities below one are clamped to one so a misconfigured gate degrades
// to serial execution instead of deadlock.
func New(capacity int64) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{
		sem:      semaphore.NewWeighted(capacity),
		capacity: capacity,
	}
}

// Acquire blocks until a slot is free or ctx is done. When it returns an
// error the caller holds nothing and must not call Release.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// TryAcquire grabs a slot if one is immediately available.
func (g *Gate) TryAcquire() bool {
	return g.sem.TryAcquire(1)
}

// Release frees a slot taken by a successful Acquire. Exactly one Release
// per successful Acquire, on every exit path.
func (g *Gate) Release() {
	g.sem.Release(1)
}

// Capacity reports the configured slot count.
func (g *Gate) Capacity() int64 {
	return g.capacity
}
