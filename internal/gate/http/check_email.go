package http

import (
	"net/http"

	"github.com/caredesk/gatekit/internal/gate/service"
)

type CheckEmailHandler struct {
	UserService *service.UserService
}

type checkEmailRequest struct {
	Email string `json:"email"`
}

type checkEmailResponse struct {
	Available bool `json:"available"`
}

// ServeHTTP reports whether an address is free to register. This endpoint
// necessarily discloses account existence, which is why it runs under its
// own tight throttling policy.
func (h *CheckEmailHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req checkEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	available, err := h.UserService.EmailAvailable(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, checkEmailResponse{Available: available})
}
