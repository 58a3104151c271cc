package http

import (
	"net/http"

	"github.com/caredesk/gatekit/internal/gate/service"
	"github.com/caredesk/gatekit/pkg/httpx"
)

type ProfileHandler struct {
	UserService *service.UserService
}

type updateProfileRequest struct {
	Name string `json:"name"`
}

func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	profile, err := h.UserService.Profile(ctx, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, profile)
}

func (h *ProfileHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	profile, err := h.UserService.UpdateProfile(ctx, userID, req.Name, httpx.IPKeyExtractor(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, profile)
}
