// internal/syncer/coordinator.go
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"clinicsync/internal/logger"
	"clinicsync/internal/model"
	"clinicsync/internal/restapi"
)

// SliceStatus is a read-only summary of one bound collection, exposed on the
// status API.
type SliceStatus struct {
	Name          string       `json:"name"`
	State         LoadingState `json:"state"`
	Count         int          `json:"count"`
	LastFetchedAt *time.Time   `json:"last_fetched_at,omitempty"`
}

// Slice binds one entity family to the coordinator: how to fetch it, how to
// apply the result, and how to clear or degrade its cache. Built with Bind.
type Slice struct {
	Name string

	// fetch runs the remote read and returns the apply step; the
	// coordinator runs the apply only if the cycle's generation is still
	// current.
	fetch       func(ctx context.Context) (apply func(), err error)
	markLoading func()
	markFailed  func()
	clear       func()
	status      func() SliceStatus
}

// Bind wires a typed collection and its fetch function into a Slice. An
// ErrNoSession result is a degraded read, not a failure: the slice applies
// as empty, matching the fail-closed contract for reads without a token.
func Bind[T any](name string, col *Collection[T], fetch func(ctx context.Context) ([]T, error)) Slice {
	return Slice{
		Name: name,
		fetch: func(ctx context.Context) (func(), error) {
			items, err := fetch(ctx)
			if err != nil {
				if errors.Is(err, restapi.ErrNoSession) {
					logger.LogWarn("Fetch %s ran without a session, degrading to empty", name)
					return func() { col.replace(nil) }, nil
				}
				return nil, err
			}
			return func() { col.replace(items) }, nil
		},
		markLoading: col.markLoading,
		markFailed:  col.markFailed,
		clear:       col.clear,
		status: func() SliceStatus {
			st := SliceStatus{Name: name, State: col.State(), Count: col.Len()}
			if t := col.LastFetchedAt(); !t.IsZero() {
				st.LastFetchedAt = &t
			}
			return st
		},
	}
}

// Coordinator owns the fetch lifecycle of one data domain. It guarantees at
// most one in-flight fetch cycle at any instant and exactly one cycle per
// transition into the authenticated state, and it discards results of cycles
// superseded by a later transition (generation guard).
type Coordinator struct {
	name     string
	fetchers []restapi.TokenSetter
	slices   []Slice

	mu         sync.Mutex
	generation uint64
	inFlight   bool
	loaded     bool
	closed     bool
}

func NewCoordinator(name string, fetchers []restapi.TokenSetter, slices ...Slice) *Coordinator {
	return &Coordinator{name: name, fetchers: fetchers, slices: slices}
}

func (c *Coordinator) Name() string { return c.name }

// OnAuthTransition is the session watcher handler. The synchronous prefix
// (state reset, token push, guard checks) runs inline on the watcher's
// dispatch goroutine; the fetch cycle itself runs in its own goroutine. It
// never panics out: cycle errors are logged and absorbed.
func (c *Coordinator) OnAuthTransition(s model.Session) {
	if !s.Present {
		c.mu.Lock()
		c.generation++
		c.loaded = false
		c.mu.Unlock()

		for _, f := range c.fetchers {
			f.ClearAccessToken()
		}
		for _, sl := range c.slices {
			sl.clear()
		}
		logger.LogInfo("Coordinator %s: signed out, cache cleared", c.name)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	// Every present-session transition pushes its token, including a refresh
	// of an already-loaded domain: a rotated token must reach the fetchers
	// even when no new cycle starts, or later refreshes would run against
	// the superseded one. Pushing under the lock means the token reaches
	// every fetcher before any request of a new cycle is issued.
	for _, f := range c.fetchers {
		f.SetAccessToken(s.AccessToken)
	}
	if c.inFlight || c.loaded {
		c.mu.Unlock()
		return
	}
	gen := c.generation
	c.inFlight = true
	c.loaded = true
	c.mu.Unlock()

	go c.runCycle(context.Background(), gen)
}

// Refresh runs a fetch cycle regardless of the already-loaded guard. A
// refresh while a cycle is in flight is a no-op, not queued.
func (c *Coordinator) Refresh(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.inFlight {
		c.mu.Unlock()
		logger.LogInfo("Coordinator %s: refresh skipped, cycle already running or closed", c.name)
		return
	}
	gen := c.generation
	c.inFlight = true
	c.mu.Unlock()

	c.runCycle(ctx, gen)
}

// Close marks the coordinator dead. Results of any still-running cycle are
// discarded; no further cycles start.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.generation++
	c.mu.Unlock()
}

// Status summarizes every bound slice.
func (c *Coordinator) Status() []SliceStatus {
	out := make([]SliceStatus, 0, len(c.slices))
	for _, sl := range c.slices {
		out = append(out, sl.status())
	}
	return out
}

func (c *Coordinator) runCycle(ctx context.Context, gen uint64) {
	start := time.Now()
	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	for _, sl := range c.slices {
		c.applyIfLive(gen, sl.markLoading)
	}

	var wg sync.WaitGroup
	var failMu sync.Mutex
	var failed []string

	// Fan-out/join: slice failures are isolated, siblings keep going.
	for _, sl := range c.slices {
		wg.Add(1)
		go func(sl Slice) {
			defer wg.Done()
			apply, err := sl.fetch(ctx)
			if err != nil {
				logger.LogError("Coordinator %s: fetch %s failed: %v", c.name, sl.Name, err)
				sliceFailures.WithLabelValues(c.name, sl.Name).Inc()
				c.applyIfLive(gen, sl.markFailed)
				failMu.Lock()
				failed = append(failed, sl.Name)
				failMu.Unlock()
				return
			}
			if !c.applyIfLive(gen, apply) {
				logger.LogInfo("Coordinator %s: discarded stale %s result (generation advanced)", c.name, sl.Name)
			}
		}(sl)
	}
	wg.Wait()

	result := "success"
	if len(failed) > 0 {
		result = "partial_failure"
	}
	cyclesTotal.WithLabelValues(c.name, result).Inc()
	cycleDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
	logger.LogInfo("Coordinator %s: cycle finished in %v (%d/%d slices ok)",
		c.name, time.Since(start), len(c.slices)-len(failed), len(c.slices))
}

// applyIfLive runs fn only while the cycle's generation is still current and
// the coordinator is open. The check and the mutation happen under the same
// lock that sign-out takes, so a fetch that resolves after a sign-out (or
// after Close) can never overwrite the cleared cache.
func (c *Coordinator) applyIfLive(gen uint64, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.generation != gen {
		return false
	}
	fn()
	return true
}
