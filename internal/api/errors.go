package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"mfa-orphans/internal/action/domain"
	"mfa-orphans/internal/mfastatus/reader"
)

// ErrorBody is the JSON error envelope. Code is a stable machine-readable identifier.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

// Stable error codes, shared with the operator client.
const (
	CodeValidation       = "validation"
	CodeAdminProtected   = "admin_protected"
	CodeProtectionCheck  = "protection_check_failed"
	CodeQueueUnavailable = "queue_unavailable"
	CodeNotReady         = "not_ready"
	CodeNotFound         = "not_found"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, raw []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorBody{Error: msg})
}

// StatusFor maps a core error to its HTTP status and code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, domain.ErrAdminProtected):
		return http.StatusForbidden, CodeAdminProtected
	case errors.Is(err, domain.ErrProtectionCheck):
		return http.StatusServiceUnavailable, CodeProtectionCheck
	case errors.Is(err, domain.ErrQueueUnavailable):
		return http.StatusServiceUnavailable, CodeQueueUnavailable
	case errors.Is(err, domain.ErrNotReady):
		return http.StatusAccepted, CodeNotReady
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, reader.ErrNoSnapshot):
		return http.StatusNotFound, CodeNotFound
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeCoreError writes err with its mapped status. Internal errors are logged and not echoed.
func writeCoreError(w http.ResponseWriter, op string, err error) {
	status, code := StatusFor(err)
	body := ErrorBody{Error: err.Error(), Code: code}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	if code == CodeInternal {
		log.Printf("api: %s: %v", op, err)
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}
