package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicsync/internal/model"
	"clinicsync/internal/restapi"
)

type fakeTokenSetter struct {
	mu     sync.Mutex
	tokens []string
	clears int
}

func (f *fakeTokenSetter) SetAccessToken(token string) {
	f.mu.Lock()
	f.tokens = append(f.tokens, token)
	f.mu.Unlock()
}

func (f *fakeTokenSetter) ClearAccessToken() {
	f.mu.Lock()
	f.clears++
	f.mu.Unlock()
}

func (f *fakeTokenSetter) current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tokens) == 0 {
		return ""
	}
	return f.tokens[len(f.tokens)-1]
}

func signedIn(token string) model.Session {
	return model.Session{Present: true, AccessToken: token, UserID: "user-1"}
}

func signedOut() model.Session {
	return model.Session{}
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestSignInRunsExactlyOneCycle(t *testing.T) {
	var fetches atomic.Int64
	col := NewCollection[string]()
	coord := NewCoordinator("test", []restapi.TokenSetter{&fakeTokenSetter{}},
		Bind("rows", col, func(ctx context.Context) ([]string, error) {
			fetches.Add(1)
			return []string{"a", "b"}, nil
		}),
	)

	// Repeated authenticated events for the same session: components
	// remounting, token refreshes. Only the first may start a cycle.
	coord.OnAuthTransition(signedIn("tok-1"))
	coord.OnAuthTransition(signedIn("tok-1"))
	coord.OnAuthTransition(signedIn("tok-2"))

	waitFor(t, func() bool { return col.State() == StateLoaded }, "collection to load")
	assert.Equal(t, int64(1), fetches.Load())
	assert.Equal(t, []string{"a", "b"}, col.Items())
	assert.False(t, col.LastFetchedAt().IsZero())
}

func TestAtMostOneCycleInFlight(t *testing.T) {
	var inFlight atomic.Int64
	var maxInFlight atomic.Int64
	release := make(chan struct{})

	col := NewCollection[int]()
	coord := NewCoordinator("test", nil,
		Bind("rows", col, func(ctx context.Context) ([]int, error) {
			n := inFlight.Add(1)
			for {
				old := maxInFlight.Load()
				if n <= old || maxInFlight.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			inFlight.Add(-1)
			return []int{1}, nil
		}),
	)

	coord.OnAuthTransition(signedIn("tok"))
	waitFor(t, func() bool { return inFlight.Load() == 1 }, "first cycle to start")

	// Concurrent manual refreshes while the cycle is running are no-ops.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			coord.Refresh(context.Background())
		}()
	}
	wg.Wait()

	close(release)
	waitFor(t, func() bool { return col.State() == StateLoaded }, "cycle to finish")
	assert.Equal(t, int64(1), maxInFlight.Load())
}

func TestSignOutClearsCacheAndPermitsRefetch(t *testing.T) {
	var fetches atomic.Int64
	setter := &fakeTokenSetter{}
	col := NewCollection[string]()
	coord := NewCoordinator("test", []restapi.TokenSetter{setter},
		Bind("rows", col, func(ctx context.Context) ([]string, error) {
			fetches.Add(1)
			return []string{"x"}, nil
		}),
	)

	coord.OnAuthTransition(signedIn("tok-1"))
	waitFor(t, func() bool { return col.State() == StateLoaded }, "first load")

	coord.OnAuthTransition(signedOut())
	assert.Equal(t, StateIdle, col.State())
	assert.Empty(t, col.Items())
	assert.True(t, col.LastFetchedAt().IsZero())

	setter.mu.Lock()
	clears := setter.clears
	setter.mu.Unlock()
	assert.Equal(t, 1, clears, "sign-out must clear the fetcher token")

	// A new session loads again.
	coord.OnAuthTransition(signedIn("tok-2"))
	waitFor(t, func() bool { return col.State() == StateLoaded }, "second load")
	assert.Equal(t, int64(2), fetches.Load())
	assert.Equal(t, []string{"x"}, col.Items())
}

func TestStaleFetchResultDiscardedAfterSignOut(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	col := NewCollection[string]()
	coord := NewCoordinator("test", nil,
		Bind("rows", col, func(ctx context.Context) ([]string, error) {
			close(started)
			<-release
			return []string{"stale"}, nil
		}),
	)

	coord.OnAuthTransition(signedIn("tok"))
	<-started

	// Sign-out supersedes the running cycle before its fetch resolves.
	coord.OnAuthTransition(signedOut())
	close(release)

	// Give the cycle time to (wrongly) apply; it must not.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, col.Items(), "stale result must not repopulate a cleared cache")
	assert.Equal(t, StateIdle, col.State())
}

func TestResultsDiscardedAfterClose(t *testing.T) {
	release := make(chan struct{})
	col := NewCollection[string]()
	coord := NewCoordinator("test", nil,
		Bind("rows", col, func(ctx context.Context) ([]string, error) {
			<-release
			return []string{"late"}, nil
		}),
	)

	coord.OnAuthTransition(signedIn("tok"))
	coord.Close()
	close(release)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, col.Items())

	// And nothing new starts after Close.
	coord.Refresh(context.Background())
	coord.OnAuthTransition(signedIn("tok-2"))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, col.Items())
}

func TestSliceFailureIsIsolated(t *testing.T) {
	good := NewCollection[string]()
	bad := NewCollection[string]()
	var attempt atomic.Int64

	coord := NewCoordinator("test", nil,
		Bind("good", good, func(ctx context.Context) ([]string, error) {
			return []string{"ok"}, nil
		}),
		Bind("bad", bad, func(ctx context.Context) ([]string, error) {
			if attempt.Add(1) == 1 {
				return nil, errors.New("backend exploded")
			}
			return []string{"recovered"}, nil
		}),
	)

	coord.OnAuthTransition(signedIn("tok"))
	waitFor(t, func() bool { return good.State() == StateLoaded && bad.State() == StateFailed },
		"partial failure to settle")
	assert.Equal(t, []string{"ok"}, good.Items())
	assert.Empty(t, bad.Items())

	// A manual refresh recovers the failed slice without disturbing its sibling.
	coord.Refresh(context.Background())
	waitFor(t, func() bool { return bad.State() == StateLoaded }, "failed slice to recover")
	assert.Equal(t, []string{"recovered"}, bad.Items())
}

func TestFailureRetainsLastGoodItems(t *testing.T) {
	var attempt atomic.Int64
	col := NewCollection[string]()
	coord := NewCoordinator("test", nil,
		Bind("rows", col, func(ctx context.Context) ([]string, error) {
			if attempt.Add(1) == 1 {
				return []string{"good"}, nil
			}
			return nil, errors.New("flaky backend")
		}),
	)

	coord.OnAuthTransition(signedIn("tok"))
	waitFor(t, func() bool { return col.State() == StateLoaded }, "initial load")

	coord.Refresh(context.Background())
	waitFor(t, func() bool { return col.State() == StateFailed }, "refresh failure")
	assert.Equal(t, []string{"good"}, col.Items(), "failed refresh must retain last good items")
}

func TestTokenPushedBeforeFetchIssued(t *testing.T) {
	setter := &fakeTokenSetter{}
	col := NewCollection[string]()
	var tokenAtFetch string

	coord := NewCoordinator("test", []restapi.TokenSetter{setter},
		Bind("rows", col, func(ctx context.Context) ([]string, error) {
			tokenAtFetch = setter.current()
			return nil, nil
		}),
	)

	coord.OnAuthTransition(signedIn("tok-abc"))
	waitFor(t, func() bool { return col.State() == StateLoaded }, "load")
	require.Equal(t, "tok-abc", tokenAtFetch, "token must reach the fetcher before any request")
}

func TestRotatedTokenReachesFetchers(t *testing.T) {
	setter := &fakeTokenSetter{}
	col := NewCollection[string]()

	var mu sync.Mutex
	var tokensSeen []string
	coord := NewCoordinator("test", []restapi.TokenSetter{setter},
		Bind("rows", col, func(ctx context.Context) ([]string, error) {
			mu.Lock()
			tokensSeen = append(tokensSeen, setter.current())
			mu.Unlock()
			return []string{"v"}, nil
		}),
	)

	coord.OnAuthTransition(signedIn("tok-old"))
	waitFor(t, func() bool { return col.State() == StateLoaded }, "initial load")

	// A token refresh arrives while the domain is loaded: no new cycle, but
	// the rotated token must still reach the fetchers.
	coord.OnAuthTransition(signedIn("tok-new"))
	assert.Equal(t, "tok-new", setter.current())

	coord.Refresh(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, tokensSeen, 2)
	assert.Equal(t, "tok-new", tokensSeen[1],
		"refresh after a token rotation must use the rotated token")
}

func TestFetchWithoutSessionDegradesToEmpty(t *testing.T) {
	col := NewCollection[string]()
	coord := NewCoordinator("test", nil,
		Bind("rows", col, func(ctx context.Context) ([]string, error) {
			return nil, fmt.Errorf("list items: %w", restapi.ErrNoSession)
		}),
	)

	coord.OnAuthTransition(signedIn("tok"))
	waitFor(t, func() bool { return col.State() == StateLoaded }, "degraded load")
	assert.Empty(t, col.Items())
}

func TestRefreshBypassesLoadedGuard(t *testing.T) {
	var fetches atomic.Int64
	col := NewCollection[string]()
	coord := NewCoordinator("test", nil,
		Bind("rows", col, func(ctx context.Context) ([]string, error) {
			fetches.Add(1)
			return []string{"v"}, nil
		}),
	)

	coord.OnAuthTransition(signedIn("tok"))
	waitFor(t, func() bool { return col.State() == StateLoaded }, "load")

	coord.Refresh(context.Background())
	assert.Equal(t, int64(2), fetches.Load())
}

func TestStatusSnapshot(t *testing.T) {
	col := NewCollection[string]()
	coord := NewCoordinator("inventory", nil,
		Bind("items", col, func(ctx context.Context) ([]string, error) {
			return []string{"a", "b", "c"}, nil
		}),
	)

	st := coord.Status()
	require.Len(t, st, 1)
	assert.Equal(t, "items", st[0].Name)
	assert.Equal(t, StateIdle, st[0].State)

	coord.OnAuthTransition(signedIn("tok"))
	waitFor(t, func() bool { return col.State() == StateLoaded }, "load")

	st = coord.Status()
	assert.Equal(t, StateLoaded, st[0].State)
	assert.Equal(t, 3, st[0].Count)
	require.NotNil(t, st[0].LastFetchedAt)
}
