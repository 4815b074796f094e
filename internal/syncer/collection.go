// internal/syncer/collection.go
package syncer

import (
	"sync"
	"time"
)

// LoadingState tracks one cached collection's fetch lifecycle.
type LoadingState string

const (
	StateIdle    LoadingState = "idle"
	StateLoading LoadingState = "loading"
	StateLoaded  LoadingState = "loaded"
	StateFailed  LoadingState = "failed"
)

// Collection is the in-memory cache of one entity family. It is owned and
// mutated exclusively by the coordinator the slice is bound to; readers get
// copied snapshots, never the backing slice.
type Collection[T any] struct {
	mu            sync.RWMutex
	items         []T
	state         LoadingState
	lastFetchedAt time.Time
}

func NewCollection[T any]() *Collection[T] {
	return &Collection[T]{state: StateIdle}
}

// Items returns a snapshot copy of the cached items.
func (c *Collection[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Collection[T]) State() LoadingState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastFetchedAt returns the completion time of the last successful fetch,
// zero if the collection has never loaded.
func (c *Collection[T]) LastFetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastFetchedAt
}

func (c *Collection[T]) replace(items []T) {
	c.mu.Lock()
	c.items = items
	c.state = StateLoaded
	c.lastFetchedAt = time.Now()
	c.mu.Unlock()
}

func (c *Collection[T]) markLoading() {
	c.mu.Lock()
	c.state = StateLoading
	c.mu.Unlock()
}

// markFailed degrades the state but keeps the last good items.
func (c *Collection[T]) markFailed() {
	c.mu.Lock()
	c.state = StateFailed
	c.mu.Unlock()
}

func (c *Collection[T]) clear() {
	c.mu.Lock()
	c.items = nil
	c.state = StateIdle
	c.lastFetchedAt = time.Time{}
	c.mu.Unlock()
}
