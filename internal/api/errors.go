package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Yogesh-MG/Iotfarming/internal/auth"
	"github.com/Yogesh-MG/Iotfarming/internal/device"
	"github.com/Yogesh-MG/Iotfarming/internal/irrigation"
)

// ErrorBody is the payload of every error response:
//
//	{"error":{"code":"invalid_request","message":"moisture must be within 0-100"}}
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code and a human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeConflictRetry  = "conflict_retry"
	ErrCodeInternal       = "internal_error"
	ErrCodeUnavailable    = "service_unavailable"
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
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeServiceError translates domain errors into HTTP responses. Messages
// of validation errors are returned to the caller; internal failures are
// logged and replaced with a generic message.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, irrigation.ErrValidation),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidUser),
		errors.Is(err, device.ErrInvalidDevice),
		errors.Is(err, device.ErrInvalidName),
		errors.Is(err, device.ErrInvalidHardwareID):
		writeBadRequest(w, err.Error())
	case errors.Is(err, irrigation.ErrDeviceNotFound),
		errors.Is(err, device.ErrDeviceNotFound),
		errors.Is(err, device.ErrOwnerNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, auth.ErrUsernameExists),
		errors.Is(err, device.ErrDeviceExists):
		writeConflict(w, err.Error())
	case errors.Is(err, irrigation.ErrConflict):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, ErrCodeConflictRetry, "device is busy, retry the request")
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestIDFrom(r.Context()),
			"error", err,
		)
		writeInternalError(w, "internal server error")
	}
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
