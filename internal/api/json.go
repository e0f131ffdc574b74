package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/inkwell/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Kind  string `json:"kind,omitempty" example:"validation"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps an engine error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrAlreadyExists),
		errors.Is(err, apperr.ErrPrecondition),
		errors.Is(err, apperr.ErrMergeConflict),
		errors.Is(err, apperr.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrCredential):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, apperr.ErrTimedOut):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err with its mapped status. Internal errors are logged
// and their details withheld.
func writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errResponse{Error: "internal error", Kind: apperr.KindName(err)})
		return
	}
	writeJSON(w, status, errResponse{Error: err.Error(), Kind: apperr.KindName(err)})
}
