package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/m365dash/internal/api/response"
	"github.com/kiranshivaraju/m365dash/internal/backend"
	"github.com/kiranshivaraju/m365dash/internal/retry"
)

// writeBackendError maps a backend client error onto the response envelope.
func writeBackendError(w http.ResponseWriter, r *http.Request, err error) {
	var statusErr *retry.StatusError
	switch {
	case errors.Is(err, backend.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Tenant not found", nil)
	case errors.Is(err, retry.ErrUnreachable), errors.Is(err, retry.ErrTimeout):
		response.Error(w, http.StatusBadGateway, "BACKEND_UNREACHABLE",
			"The tenant backend is not reachable", nil)
	case errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500:
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			"The tenant backend rejected the request", map[string]any{
				"backend_status": statusErr.StatusCode,
				"backend_body":   statusErr.Body,
			})
	case errors.As(err, &statusErr):
		response.Error(w, http.StatusBadGateway, "BACKEND_UNREACHABLE",
			"The tenant backend failed", map[string]any{"backend_status": statusErr.StatusCode})
	default:
		slog.Error("backend call failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
