// Package mcp exposes evidence retrieval and listing generation as Model
// Context Protocol tools over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"

	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
)

// MCP error codes. The -3200x range is application specific.
const (
	ErrCodeIndexUnavailable      = -32001
	ErrCodeEmbeddingFailed       = -32002
	ErrCodeTimeout               = -32003
	ErrCodeGenerationUnavailable = -32004
	ErrCodeSchemaViolation       = -32005

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	if ae, ok := awerrors.As(err); ok {
		return mapAutoError(ae)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Resource '%s' not found.", uri)}
}

func mapAutoError(ae *awerrors.AutoError) *MCPError {
	message := ae.Message
	if ae.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", ae.Message, ae.Suggestion)
	}

	switch ae.Code {
	case awerrors.ErrCodeIndexUnavailable, awerrors.ErrCodeCorruptIndex, awerrors.ErrCodeDimensionMismatch:
		return &MCPError{Code: ErrCodeIndexUnavailable, Message: message}
	case awerrors.ErrCodeEmbeddingFailed:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	case awerrors.ErrCodeGenerationUnavailable:
		return &MCPError{Code: ErrCodeGenerationUnavailable, Message: message}
	case awerrors.ErrCodeSchemaViolation:
		return &MCPError{Code: ErrCodeSchemaViolation, Message: message}
	}

	switch ae.Category {
	case awerrors.CategoryValidation, awerrors.CategoryConfig:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case awerrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
