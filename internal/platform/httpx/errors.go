package httpx

import (
	"errors"
	"net/http"

	"github.com/oxiliere/oxutils/internal/shared"
)

// RespondError maps well-known service errors to problem responses. Handlers
// with richer domain errors do their own mapping first and fall back here.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
