// Package errors provides structured error handling for autowriter.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Index and artifact errors
//   - 3XX: Network errors
//   - 4XX: Validation errors
//   - 5XX: Model and internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIndex indicates missing, locked or damaged index artifacts.
	CategoryIndex Category = "INDEX"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input or output validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates model backend and unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Index errors (200-299)
	ErrCodeIndexUnavailable = "ERR_201_INDEX_UNAVAILABLE"
	ErrCodeCorruptIndex     = "ERR_202_INDEX_CORRUPT"
	ErrCodeBuildLocked      = "ERR_203_BUILD_LOCKED"
	ErrCodeFileNotFound     = "ERR_204_FILE_NOT_FOUND"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeEmptyCorpus       = "ERR_401_EMPTY_CORPUS"
	ErrCodeSchemaViolation   = "ERR_402_SCHEMA_VIOLATION"
	ErrCodeInvalidInput      = "ERR_403_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_404_DIMENSION_MISMATCH"

	// Model and internal errors (500-599)
	ErrCodeEmbeddingFailed       = "ERR_501_EMBEDDING_FAILED"
	ErrCodeGenerationUnavailable = "ERR_502_GENERATION_UNAVAILABLE"
	ErrCodeIngestFailed          = "ERR_503_INGEST_FAILED"
	ErrCodeInternal              = "ERR_599_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "ERR_101_..." -> '1'
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIndex
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeConfigInvalid:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// A failed embedding run keeps its checkpoint, so the build can be resumed.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable,
		ErrCodeEmbeddingFailed, ErrCodeGenerationUnavailable, ErrCodeBuildLocked:
		return true
	default:
		return false
	}
}
