package httpx

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/caredesk/gatekit/pkg/slogx"
)

// FloodGuard is a coarse per-client token bucket sitting in front of the
// fixed-window limiters. It sheds bursty abuse cheaply before any policy
// bookkeeping happens.
type FloodGuard struct {
	mu      sync.Mutex
	clients map[string]*rate.Limiter

	rps   rate.Limit
	burst int
}

// NewFloodGuard builds a guard admitting rps requests per second with the
// given burst per client IP. Zero or negative values disable the guard.
func NewFloodGuard(rps float64, burst int) *FloodGuard {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &FloodGuard{
		clients: make(map[string]*rate.Limiter),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

func (g *FloodGuard) limiterFor(client string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.clients[client]
	if !ok {
		l = rate.NewLimiter(g.rps, g.burst)
		g.clients[client] = l
	}
	return l
}

// Sweep drops buckets that have refilled completely. Safe to call from a
// housekeeping loop.
func (g *FloodGuard) Sweep() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	for client, l := range g.clients {
		if l.Tokens() >= float64(g.burst) {
			delete(g.clients, client)
		}
	}
}

// Middleware returns the guard as a chainable middleware. A nil guard is a
// no-op so callers can wire it unconditionally.
func (g *FloodGuard) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		if g == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := IPKeyExtractor(r)
			if !g.limiterFor(client).Allow() {
				slogx.FromContext(r.Context()).Warn("flood guard rejected request", "client", client)
				WriteError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
