package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/list-to-entities/internal/configentry"
	"github.com/nerrad567/list-to-entities/internal/homeassistant"
	"github.com/nerrad567/list-to-entities/internal/listsync"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeConflict     = "conflict"
	ErrCodeNotLoaded    = "not_loaded"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeBadGateway   = "bad_gateway"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeManagerError maps an error from the entry manager to a response.
func (s *Server) writeManagerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, configentry.ErrInvalidEntityID):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, configentry.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "config entry not found")
	case errors.Is(err, configentry.ErrAlreadyConfigured):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, listsync.ErrNotLoaded):
		writeError(w, http.StatusConflict, ErrCodeNotLoaded, err.Error())
	case errors.Is(err, homeassistant.ErrEntityNotFound),
		errors.Is(err, homeassistant.ErrNotConnected),
		errors.Is(err, homeassistant.ErrRequestFailed),
		errors.Is(err, homeassistant.ErrTimeout),
		errors.Is(err, homeassistant.ErrClosed):
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, err.Error())
	default:
		s.logger.Error("entry manager error", "error", err)
		writeInternalError(w, "internal server error")
	}
}
