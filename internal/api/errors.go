package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/signalchain-core/internal/chain"
	"github.com/nerrad567/signalchain-core/internal/control"
	"github.com/nerrad567/signalchain-core/internal/drivers/mfli"
	"github.com/nerrad567/signalchain-core/internal/nodes"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeConflict           = "conflict"
	ErrCodeInternal           = "internal_error"
	ErrCodeValidation         = "validation_error"
	ErrCodeDeviceError        = "device_error"
	ErrCodeServiceUnavailable = "service_unavailable"
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

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeChainError maps an error from the chain controller to a response.
func writeChainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chain.ErrInvalidSetpoint),
		errors.Is(err, chain.ErrInvalidFrequency),
		errors.Is(err, chain.ErrInvalidAdvisoryConfig),
		errors.Is(err, nodes.ErrInvalidParameter),
		errors.Is(err, mfli.ErrOutOfRange):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, chain.ErrZeroTransconductance),
		errors.Is(err, control.ErrNotAdjustable):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, chain.ErrGuardUnavailable):
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, ErrCodeDeviceError, err.Error())
	default:
		writeError(w, http.StatusBadGateway, ErrCodeDeviceError, err.Error())
	}
}
