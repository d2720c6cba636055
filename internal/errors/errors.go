// Package errors provides custom error types for the audit trail API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import (
	stderrors "errors"
	"net/http"
	"strings"
)

// auditCodePrefix marks codes raised by the audit write path.
const auditCodePrefix = "AUDIT_"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is reports whether target is an AppError with the same code, so that
// errors.Is(err, ErrAuditWriteFailed) holds for values produced by Wrap.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// IsAuditError reports whether err carries an audit-specific error code.
func IsAuditError(err error) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return strings.HasPrefix(appErr.Code, auditCodePrefix)
}

// Authentication & authorization errors.
var (
	ErrUnauthorized = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrForbidden    = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// Audit write-path errors.
var (
	ErrAuditInvalidEntry  = &AppError{Code: "AUDIT_INVALID_ENTRY", Message: "Audit entry is missing required fields", StatusCode: http.StatusBadRequest}
	ErrAuditWriteFailed   = &AppError{Code: "AUDIT_WRITE_FAILED", Message: "Failed to log audit event", StatusCode: http.StatusInternalServerError}
	ErrAuditQueueFull     = &AppError{Code: "AUDIT_QUEUE_FULL", Message: "Audit queue is saturated", StatusCode: http.StatusServiceUnavailable}
	ErrAuditServiceClosed = &AppError{Code: "AUDIT_SERVICE_CLOSED", Message: "Audit service is shutting down", StatusCode: http.StatusServiceUnavailable}
	ErrAuditChainConflict = &AppError{Code: "AUDIT_CHAIN_CONFLICT", Message: "Audit chain head moved during append", StatusCode: http.StatusConflict}
)

// Audit reporting errors.
var (
	ErrInvalidTimeWindow   = &AppError{Code: "INVALID_TIME_WINDOW", Message: "The start of the window must not be after its end", StatusCode: http.StatusBadRequest}
	ErrInvalidPurgeCutoff  = &AppError{Code: "INVALID_PURGE_CUTOFF", Message: "Purge cutoff must not be in the future", StatusCode: http.StatusBadRequest}
	ErrUnsupportedFormat   = &AppError{Code: "UNSUPPORTED_EXPORT_FORMAT", Message: "Export format must be csv or json", StatusCode: http.StatusBadRequest}
	ErrAuditRecordMutation = &AppError{Code: "AUDIT_RECORD_IMMUTABLE", Message: "Audit records cannot be modified", StatusCode: http.StatusConflict}
)
