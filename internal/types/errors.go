package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Handlers and services use these constants instead of
// hardcoded strings so that HTTP mapping and log filtering stay consistent.
const (
	// Validation (400)
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationPriority     ErrorCode = "validation_invalid_priority"
	ErrCodeValidationEventType    ErrorCode = "validation_invalid_event_type"
	ErrCodeValidationCron         ErrorCode = "validation_invalid_cron_expression"

	// Not Found (404)
	ErrCodeNotFoundSubscriber ErrorCode = "not_found_subscriber"
	ErrCodeNotFoundSchedule   ErrorCode = "not_found_schedule"
	ErrCodeNotFoundConnection ErrorCode = "not_found_connection"

	// Conflict (409)
	ErrCodeConflictProcessor ErrorCode = "conflict_processor_registered"
	ErrCodeConflictSchedule  ErrorCode = "conflict_schedule_registered"

	// Delivery and background work (contained, never cascade to siblings)
	ErrCodeDeliveryFailed   ErrorCode = "delivery_failed"
	ErrCodeHandlerExecution ErrorCode = "handler_execution_failed"
	ErrCodeScheduleFire     ErrorCode = "schedule_fire_failed"

	// Degradation (503)
	ErrCodeCacheUnavailable ErrorCode = "cache_unavailable"

	// Internal (500)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized codes as a safe default. Codes that never
// surface over HTTP (delivery, handler, schedule fire) map to 500 so an
// accidental surface is at least honest about being a server-side problem.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case c == ErrCodeCacheUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type used throughout the core.
// Domain and handler errors are expressed as AppError to enable consistent
// formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
