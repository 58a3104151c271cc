package http

import (
	"net/http"

	"github.com/caredesk/gatekit/internal/gate/service"
	"github.com/caredesk/gatekit/pkg/httpx"
)

type LoginHandler struct {
	UserService *service.UserService
	Tokens      *service.TokenService
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, pair, err := h.UserService.Authenticate(ctx, req.Email, req.Password, httpx.IPKeyExtractor(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httpx.SetRefreshCookie(w, pair.RefreshToken, h.Tokens.RefreshTTL)
	writeData(w, http.StatusOK, sessionResponse{
		User:        user.Profile(),
		AccessToken: pair.AccessToken,
		ExpiresIn:   pair.ExpiresIn,
	})
}
