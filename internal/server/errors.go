package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
)

// Error codes in response bodies.
const (
	codeInvalidRequest        = "invalid_request"
	codeIndexUnavailable      = "index_unavailable"
	codeGenerationUnavailable = "generation_unavailable"
	codeSchemaViolation       = "schema_violation"
	codeRateLimited           = "rate_limited"
	codeInternal              = "internal"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// classify maps an error to an HTTP status and response code.
func classify(err error) (int, string) {
	switch awerrors.GetCode(err) {
	case awerrors.ErrCodeInvalidInput, awerrors.ErrCodeConfigInvalid:
		return http.StatusBadRequest, codeInvalidRequest
	case awerrors.ErrCodeIndexUnavailable, awerrors.ErrCodeCorruptIndex,
		awerrors.ErrCodeEmbeddingFailed, awerrors.ErrCodeDimensionMismatch:
		return http.StatusServiceUnavailable, codeIndexUnavailable
	case awerrors.ErrCodeGenerationUnavailable:
		return http.StatusServiceUnavailable, codeGenerationUnavailable
	case awerrors.ErrCodeSchemaViolation:
		return http.StatusBadGateway, codeSchemaViolation
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// fail writes err as a JSON error body. Internal errors are logged and
// their text withheld from the client.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if ae, ok := awerrors.As(err); ok {
		msg = ae.Message
	}
	if status == http.StatusInternalServerError {
		attrs := append([]any{slog.String("request_id", RequestID(r.Context()))}, awerrors.LogAttrs(err)...)
		slog.Error("http_internal_error", attrs...)
		msg = "internal server error"
	}
	writeError(w, status, code, msg)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
