package http

import (
	"net/http"

	"github.com/caredesk/gatekit/internal/gate/service"
	"github.com/caredesk/gatekit/pkg/httpx"
)

type RefreshHandler struct {
	Tokens *service.TokenService
}

// ServeHTTP exchanges the refresh cookie for a fresh access token. The
// cookie is left untouched so the session still ends at the horizon set
// when it was issued.
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	refreshToken := httpx.RefreshTokenFromRequest(r)
	if refreshToken == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	user, pair, err := h.Tokens.RefreshAccess(ctx, refreshToken)
	if err != nil {
		httpx.ClearRefreshCookie(w)
		writeServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, sessionResponse{
		User:        user.Profile(),
		AccessToken: pair.AccessToken,
		ExpiresIn:   pair.ExpiresIn,
	})
}
