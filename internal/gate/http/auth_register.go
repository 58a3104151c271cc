package http

import (
	"net/http"

	"github.com/caredesk/gatekit/internal/gate/service"
	"github.com/caredesk/gatekit/pkg/httpx"
	"github.com/caredesk/gatekit/pkg/slogx"
)

type RegisterHandler struct {
	UserService *service.UserService
	Tokens      *service.TokenService
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User        any    `json:"user"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in_ms"`
}

// ServeHTTP creates an account and signs the first session in. The refresh
// token travels only in the hardened cookie, never in the body.
func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, pair, err := h.UserService.Register(ctx, service.RegisterInput{
		Email:          req.Email,
		Name:           req.Name,
		Password:       req.Password,
		ClientIdentity: httpx.IPKeyExtractor(r),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	slogx.FromContext(ctx).Info("registration complete", "user_id", user.ID)

	httpx.SetRefreshCookie(w, pair.RefreshToken, h.Tokens.RefreshTTL)
	writeData(w, http.StatusCreated, sessionResponse{
		User:        user.Profile(),
		AccessToken: pair.AccessToken,
		ExpiresIn:   pair.ExpiresIn,
	})
}
