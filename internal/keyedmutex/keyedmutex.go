// Package keyedmutex serializes work per string key.
//
// Uploads for the same object id must not interleave, but the id space is
// unbounded, so a plain map of key to mutex would grow with every id ever
// seen. This implementation reference-counts lock entries and returns them
// to a pool once the last holder or waiter leaves, keeping memory
// proportional to the number of currently contended keys.
package keyedmutex

import (
	"context"
	"sync"
)

// UnlockFunc releases a lock obtained from Lock. It must be called exactly
// once.
type UnlockFunc func()

type entry struct {
	// ch holds a token when the lock is free. Receiving the token acquires
	// the lock, sending it back releases it.
	ch   chan struct{}
	refs int
}

// KeyedMutex provides mutual exclusion scoped to individual keys. The zero
// value is not usable, construct with New.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
	pool    sync.Pool
}

func New() *KeyedMutex {
	return &KeyedMutex{
		entries: make(map[string]*entry),
		pool: sync.Pool{
			New: func() any {
				return &entry{ch: make(chan struct{}, 1)}
			},
		},
	}
}

// Lock acquires the lock for key, suspending until the current holder
// releases it or ctx is done. On success the returned UnlockFunc releases
// the lock; on error nothing is held.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (UnlockFunc, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = m.pool.Get().(*entry)
		e.refs = 0
		e.ch <- struct{}{}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case <-e.ch:
		var once sync.Once
		return func() {
			once.Do(func() {
				e.ch <- struct{}{}
				m.decref(key, e)
			})
		}, nil
	case <-ctx.Done():
		m.decref(key, e)
		return nil, ctx.Err()
	}
}

// decref drops one reference and reclaims the entry when nobody holds or
// awaits the key anymore.
func (m *KeyedMutex) decref(key string, e *entry) {
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
		// Drain the free token so pooled entries always start empty.
		select {
		case <-e.ch:
		default:
		}
		m.pool.Put(e)
	}
	m.mu.Unlock()
}

// Len reports how many keys currently have holders or waiters.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
