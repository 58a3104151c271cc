package http

import (
	"net/http"
	"time"

	"github.com/caredesk/gatekit/internal/gate/service"
	"github.com/caredesk/gatekit/pkg/httpx"
	"github.com/caredesk/gatekit/pkg/slogx"
)

type LogoutHandler struct {
	Tokens *service.TokenService
}

// ServeHTTP revokes the session behind the refresh cookie and clears it.
// Logout always succeeds from the caller's perspective: a missing or dead
// cookie means there is nothing left to revoke.
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if refreshToken := httpx.RefreshTokenFromRequest(r); refreshToken != "" {
		if err := h.Tokens.Revoke(ctx, refreshToken); err != nil {
			// Revocation failures must not strand the user in a session they
			// asked to leave; log and clear the cookie regardless.
			slogx.FromContext(ctx).Error("logout revocation failed", "err", err)
		}
	} else if claims, ok := httpx.ClaimsFromContext(ctx); ok {
		// No cookie but a live access token: revoke by its token id. The
		// entry outlives the longest refresh token that could share the id.
		expiresAt := time.Now().Add(h.Tokens.RefreshTTL)
		if err := h.Tokens.RevokeID(ctx, claims.TokenID, expiresAt); err != nil {
			slogx.FromContext(ctx).Error("logout revocation failed", "err", err)
		}
	}

	httpx.ClearRefreshCookie(w)
	httpx.WriteJSON(w, http.StatusOK, envelope{Success: true, Message: "Logged out"})
}
