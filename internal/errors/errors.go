package errors

import (
	"errors"
	"fmt"
)

// AutoError is the structured error type for autowriter.
// It carries enough context for logging, HTTP mapping and CLI presentation.
type AutoError struct {
	// Code is the unique error code (e.g., "ERR_201_INDEX_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category.
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Sentinels for errors.Is checks. Matching is by code, so any AutoError
// created with the same code matches.
var (
	ErrConfiguration         = &AutoError{Code: ErrCodeConfigInvalid}
	ErrEmptyCorpus           = &AutoError{Code: ErrCodeEmptyCorpus}
	ErrEmbeddingFailure      = &AutoError{Code: ErrCodeEmbeddingFailed}
	ErrIndexUnavailable      = &AutoError{Code: ErrCodeIndexUnavailable}
	ErrCorruptIndex          = &AutoError{Code: ErrCodeCorruptIndex}
	ErrBuildLocked           = &AutoError{Code: ErrCodeBuildLocked}
	ErrGenerationUnavailable = &AutoError{Code: ErrCodeGenerationUnavailable}
	ErrSchemaViolation       = &AutoError{Code: ErrCodeSchemaViolation}
	ErrInvalidInput          = &AutoError{Code: ErrCodeInvalidInput}
)

// Error implements the error interface.
func (e *AutoError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AutoError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *AutoError) Is(target error) bool {
	if t, ok := target.(*AutoError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *AutoError) WithDetail(key, value string) *AutoError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *AutoError) WithSuggestion(suggestion string) *AutoError {
	e.Suggestion = suggestion
	return e
}

// New creates a new AutoError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *AutoError {
	return &AutoError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an AutoError from an existing error.
func Wrap(code string, err error) *AutoError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError reports invalid parameters that the caller must fix before retrying.
func ConfigError(message string, cause error) *AutoError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// EmptyCorpus reports a build that was given no chunks at all.
func EmptyCorpus() *AutoError {
	return New(ErrCodeEmptyCorpus, "no chunks to index", nil).
		WithSuggestion("check that the chunk file is not empty or that ingestion found documents")
}

// EmbeddingFailure reports an embedding error during a build.
func EmbeddingFailure(processed int, cause error) *AutoError {
	return New(ErrCodeEmbeddingFailed, "embedding failed during index build", cause).
		WithDetail("checkpointed", fmt.Sprintf("%d", processed)).
		WithSuggestion("fix the embedding backend and rerun with --resume")
}

// IndexUnavailable reports retrieval attempted before artifacts were built or loaded.
func IndexUnavailable(message string, cause error) *AutoError {
	return New(ErrCodeIndexUnavailable, message, cause).
		WithSuggestion("run 'autowriter ingest' or 'autowriter index' first")
}

// CorruptIndex reports artifacts that cannot be used together.
func CorruptIndex(message string, cause error) *AutoError {
	return New(ErrCodeCorruptIndex, message, cause).
		WithSuggestion("rebuild the index with --force")
}

// GenerationUnavailable reports an unreachable backend or unparseable model output.
func GenerationUnavailable(message string, cause error) *AutoError {
	return New(ErrCodeGenerationUnavailable, message, cause)
}

// SchemaViolation reports model output that parsed as JSON but does not match the schema.
func SchemaViolation(message string) *AutoError {
	return New(ErrCodeSchemaViolation, message, nil)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *AutoError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *AutoError {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first AutoError in err's chain.
func As(err error) (*AutoError, bool) {
	var ae *AutoError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if ae, ok := As(err); ok {
		return ae.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if ae, ok := As(err); ok {
		return ae.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an AutoError.
// Returns empty string if err carries no AutoError.
func GetCode(err error) string {
	if ae, ok := As(err); ok {
		return ae.Code
	}
	return ""
}
