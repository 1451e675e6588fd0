package httpx

import (
	"errors"
	"net/http"

	"github.com/warden-authz/warden/internal/shared"
)

// Stable problem type codes surfaced to API callers.
const (
	CodeNotFound   = "not_found"
	CodeConflict   = "conflict"
	CodeProtected  = "protected_entity"
	CodeValidation = "validation"
)

// RespondError maps domain errors to RFC7807 responses.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, CodeNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, CodeConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrProtected):
		Problem(w, http.StatusForbidden, CodeProtected, "Protected Entity", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, CodeValidation, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", "")
	default:
		Problem(w, http.StatusInternalServerError, "internal", "Internal Error", "")
	}
}
