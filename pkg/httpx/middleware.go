package httpx

import "net/http"

// Middleware wraps a handler with cross-cutting behavior. Wrappers compose
// with Chain; ordering is significant (rate limiting runs before auth so
// unauthenticated floods are rejected before signature verification cost is
// paid).
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares so the first listed is the outermost, i.e. runs
// first on the way in.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
