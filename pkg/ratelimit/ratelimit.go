// Package ratelimit implements fixed-window request throttling keyed by
// (client identity, endpoint). The window resets wholesale when it elapses;
// bursts straddling a window boundary are a known, accepted approximation of
// this strategy.
//
// Counters live behind the CounterStore interface so a single-process map
// and a distributed cache are interchangeable.
package ratelimit

import (
	"context"
	"time"

	"github.com/caredesk/gatekit/pkg/slogx"
)

// Policy is the budget for one endpoint: at most Max requests per Window.
// The limiter is policy-agnostic; it enforces whatever numbers it is given.
type Policy struct {
	Max    int
	Window time.Duration
}

// Decision is the admit/reject outcome plus the throttling metadata callers
// surface to clients.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// CounterStore is the injected counting backend.
type CounterStore interface {
	// Get returns the live count and window end for key, or (0, zero) if the
	// key is unknown or its window has passed.
	Get(ctx context.Context, key string) (count int, resetAt time.Time, err error)

	// Increment atomically bumps the counter for key. If the key is new or
	// its window has passed at now, the entry is reset to count=1 with the
	// provided window end. The returned count reflects this call.
	Increment(ctx context.Context, key string, now, resetAt time.Time) (count int, effectiveResetAt time.Time, err error)

	// Reset drops the entry for key.
	Reset(ctx context.Context, key string) error

	// Sweep removes entries whose window has passed, bounding memory to
	// active clients. Returns the number of entries removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Limiter enforces fixed-window policies over a CounterStore.
type Limiter struct {
	store CounterStore

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

func New(store CounterStore) *Limiter {
	return &Limiter{store: store, Now: time.Now}
}

// Key builds the counter key for a (client, endpoint) pair.
func Key(client, endpoint string) string {
	return "rate:" + endpoint + ":" + client
}

// Admit decides whether one more request from client against endpoint fits
// the policy. It performs a single atomic increment and rejects when the
// post-increment count exceeds the budget, so two racing requests can never
// both slip under the limit: the request that would make count = Max+1 is
// the one rejected.
//
// If the counting store is unreachable the request is admitted and the
// failure logged. Availability wins over strict enforcement here; the
// opposite trade-off applies to token verification.
func (l *Limiter) Admit(ctx context.Context, client, endpoint string, p Policy) Decision {
	now := l.Now()
	key := Key(client, endpoint)

	count, resetAt, err := l.store.Increment(ctx, key, now, now.Add(p.Window))
	if err != nil {
		slogx.FromContext(ctx).Warn("rate limiter store unavailable, admitting request",
			"key", key, "err", err)
		return Decision{Allowed: true, Remaining: p.Max - 1, ResetAt: now.Add(p.Window)}
	}

	if count > p.Max {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: resetAt.Sub(now),
			ResetAt:    resetAt,
		}
	}

	return Decision{
		Allowed:   true,
		Remaining: p.Max - count,
		ResetAt:   resetAt,
	}
}

// Reset clears the window for a (client, endpoint) pair. Administrative
// escape hatch, e.g. after a manual unblock.
func (l *Limiter) Reset(ctx context.Context, client, endpoint string) error {
	return l.store.Reset(ctx, Key(client, endpoint))
}

// Sweep garbage-collects expired windows.
func (l *Limiter) Sweep(ctx context.Context) (int, error) {
	return l.store.Sweep(ctx, l.Now())
}
