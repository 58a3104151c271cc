package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/caredesk/gatekit/pkg/cryptox"
	"github.com/caredesk/gatekit/pkg/jwtx"
	"github.com/caredesk/gatekit/pkg/slogx"
)

// AccessVerifier validates a bearer token and yields the identity it proves.
// Implemented by the token service; the middleware never learns why a token
// failed.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, token string) (jwtx.AccessClaims, error)
}

// unauthorizedMessage is deliberately uniform: an expired token and a forged
// one read identically to the caller.
const unauthorizedMessage = "Invalid or expired token"

// Authn requires a valid bearer access token. On success the resolved
// identity is injected into the request context; on any failure the wrapped
// handler is never invoked and the caller gets a uniform 401.
func Authn(v AccessVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := BearerToken(r)
			if !ok {
				writeUnauthorized(w)
				return
			}

			claims, err := v.VerifyAccess(ctx, token)
			if err != nil {
				// Fingerprint, never the token: enough to correlate repeat
				// offenders across log lines.
				slogx.FromContext(ctx).Warn("access token rejected",
					"token_fp", cryptox.FingerprintToken(token))
				writeUnauthorized(w)
				return
			}

			ctx = context.WithValue(ctx, CtxKeyUserID, claims.UserID)
			ctx = context.WithValue(ctx, CtxKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuthn injects identity when a valid token is present but never
// rejects. Used by logout, which must work for half-expired sessions.
func OptionalAuthn(v AccessVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if token, ok := BearerToken(r); ok {
				if claims, err := v.VerifyAccess(ctx, token); err == nil {
					ctx = context.WithValue(ctx, CtxKeyUserID, claims.UserID)
					ctx = context.WithValue(ctx, CtxKeyClaims, claims)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}

	token := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))
	return token, token != ""
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	WriteError(w, http.StatusUnauthorized, unauthorizedMessage)
}
