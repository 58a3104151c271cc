package ratelimit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/caredesk/gatekit/pkg/ratelimit"
	"github.com/stretchr/testify/require"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestAdmitBoundary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	policy := ratelimit.Policy{Max: 5, Window: 15 * time.Minute}

	l := ratelimit.New(ratelimit.NewMemoryStore())
	l.Now = fixedClock(base)

	t.Run("first five calls are allowed", func(t *testing.T) {
		for i := 1; i <= 5; i++ {
			d := l.Admit(ctx, "10.0.0.1", "/v1/auth/login", policy)
			require.True(t, d.Allowed, "call %d", i)
			require.Equal(t, 5-i, d.Remaining, "call %d", i)
			require.Equal(t, base.Add(15*time.Minute), d.ResetAt)
		}
	})

	t.Run("sixth call is rejected with retry metadata", func(t *testing.T) {
		l.Now = fixedClock(base.Add(time.Minute))
		d := l.Admit(ctx, "10.0.0.1", "/v1/auth/login", policy)
		require.False(t, d.Allowed)
		require.Equal(t, 0, d.Remaining)
		require.Equal(t, 14*time.Minute, d.RetryAfter)
	})

	t.Run("fresh window starts at count one", func(t *testing.T) {
		l.Now = fixedClock(base.Add(16 * time.Minute))
		d := l.Admit(ctx, "10.0.0.1", "/v1/auth/login", policy)
		require.True(t, d.Allowed)
		require.Equal(t, 4, d.Remaining)
	})
}

func TestAdmitKeysAreIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	policy := ratelimit.Policy{Max: 1, Window: time.Minute}
	l := ratelimit.New(ratelimit.NewMemoryStore())

	require.True(t, l.Admit(ctx, "a", "/login", policy).Allowed)
	require.False(t, l.Admit(ctx, "a", "/login", policy).Allowed)

	// Different client, same endpoint.
	require.True(t, l.Admit(ctx, "b", "/login", policy).Allowed)
	// Same client, different endpoint.
	require.True(t, l.Admit(ctx, "a", "/profile", policy).Allowed)
}

func TestReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	policy := ratelimit.Policy{Max: 1, Window: time.Hour}
	l := ratelimit.New(ratelimit.NewMemoryStore())

	require.True(t, l.Admit(ctx, "a", "/login", policy).Allowed)
	require.False(t, l.Admit(ctx, "a", "/login", policy).Allowed)

	require.NoError(t, l.Reset(ctx, "a", "/login"))
	require.True(t, l.Admit(ctx, "a", "/login", policy).Allowed)
}

func TestConcurrentAdmitNeverExceedsLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	policy := ratelimit.Policy{Max: 50, Window: time.Hour}
	l := ratelimit.New(ratelimit.NewMemoryStore())

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Admit(ctx, "swarm", "/login", policy).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 50, allowed)
}

func TestSweep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := ratelimit.NewMemoryStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	l := ratelimit.New(store)
	l.Now = fixedClock(base)

	l.Admit(ctx, "a", "/x", ratelimit.Policy{Max: 5, Window: time.Minute})
	l.Admit(ctx, "b", "/x", ratelimit.Policy{Max: 5, Window: time.Hour})
	require.Equal(t, 2, store.Len())

	l.Now = fixedClock(base.Add(30 * time.Minute))
	removed, err := l.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.Equal(t, 1, store.Len())
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("down")
}

func (failingStore) Increment(context.Context, string, time.Time, time.Time) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("down")
}

func (failingStore) Reset(context.Context, string) error { return errors.New("down") }

func (failingStore) Sweep(context.Context, time.Time) (int, error) { return 0, errors.New("down") }

func TestAdmitFailsOpenWhenStoreDown(t *testing.T) {
	t.Parallel()

	l := ratelimit.New(failingStore{})
	d := l.Admit(context.Background(), "a", "/login", ratelimit.Policy{Max: 5, Window: time.Minute})
	require.True(t, d.Allowed)
}
