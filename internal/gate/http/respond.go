package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/caredesk/gatekit/internal/gate/service"
	"github.com/caredesk/gatekit/pkg/httpx"
)

// envelope is the uniform response shape.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

func writeData(w http.ResponseWriter, code int, data any) {
	httpx.WriteJSON(w, code, envelope{Success: true, Data: data})
}

// maxBodyBytes bounds request bodies well above any legitimate payload.
const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Request body is not valid JSON")
		return false
	}
	return true
}

// writeServiceError maps service-layer failures onto HTTP responses without
// leaking internals.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.WriteJSON(w, http.StatusBadRequest, envelope{
			Success: false,
			Message: "Validation failed",
			Errors:  verr.Fields,
		})
	case errors.Is(err, service.ErrEmailTaken):
		httpx.WriteError(w, http.StatusConflict, "An account with this email already exists")
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrRevokedToken):
		httpx.WriteError(w, http.StatusUnauthorized, "Invalid or expired token")
	case errors.Is(err, service.ErrUserNotFound):
		httpx.WriteError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, service.ErrHostileParam):
		httpx.WriteError(w, http.StatusBadRequest, "Request contains disallowed content")
	case errors.Is(err, service.ErrOperationBudget):
		httpx.WriteError(w, http.StatusTooManyRequests, "Too many changes, slow down")
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "Something went wrong")
	}
}
