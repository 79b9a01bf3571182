// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Standard sentinel errors
var (
	ErrSessionExpired   = errors.New("session expired")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrConnectionFailed = errors.New("connection failed")
	ErrTimeout          = errors.New("operation timed out")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrDataNotFound     = errors.New("data not found")
	ErrDatabaseError    = errors.New("database error")
	ErrReadOnlyMode     = errors.New("operation blocked: read-only mode enabled")
	ErrInputValidation  = errors.New("input validation failed")
	ErrCycleInFlight    = errors.New("refresh already in progress")
	ErrInsufficientData = errors.New("not enough data")
	ErrMaxLossReached   = errors.New("max daily loss reached")
	ErrBotNotRunning    = errors.New("bot is not running")
	ErrActionInFlight   = errors.New("action already in progress")
	ErrSessionEnded     = errors.New("session ended")
)

// Kind classifies a failure for handling purposes.
type Kind int

const (
	// KindNone is the classification of a nil error.
	KindNone Kind = iota
	// KindAuth ends the session; it is never retried.
	KindAuth
	// KindTransient keeps the previous snapshot; the next cycle retries.
	KindTransient
	// KindValidation rejects operator input before any network call.
	KindValidation
	// KindReadOnly rejects a mutating operation in read-only mode.
	KindReadOnly
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindAuth:
		return "auth"
	case KindTransient:
		return "transient"
	case KindValidation:
		return "validation"
	case KindReadOnly:
		return "read_only"
	default:
		return "unknown"
	}
}

// Classify maps an error onto the handling taxonomy.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if IsUnauthorized(err) {
		return KindAuth
	}
	if errors.Is(err, ErrInputValidation) {
		return KindValidation
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	if errors.Is(err, ErrReadOnlyMode) {
		return KindReadOnly
	}
	return KindTransient
}

// IsUnauthorized reports whether err means the session is no longer valid.
func IsUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrNotAuthenticated) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		return true
	}
	return strings.Contains(err.Error(), "Unauthorized")
}

// APIError represents an application-level failure from the trading service.
type APIError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("api error [%s %s %d]: %s: %v", e.Method, e.Endpoint, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("api error [%s %s %d]: %s", e.Method, e.Endpoint, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewAPIError creates a new APIError.
func NewAPIError(method, endpoint string, status int, message string, err error) *APIError {
	return &APIError{
		Method:     method,
		Endpoint:   endpoint,
		StatusCode: status,
		Message:    message,
		Err:        err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s]: %s: %v", e.DataType, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s]: %s", e.DataType, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Message:  message,
		Err:      err,
	}
}

// SecurityError represents a security-related error.
type SecurityError struct {
	Operation string
	Reason    string
	Err       error
}

func (e *SecurityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("security error [%s]: %s: %v", e.Operation, e.Reason, e.Err)
	}
	return fmt.Sprintf("security error [%s]: %s", e.Operation, e.Reason)
}

func (e *SecurityError) Unwrap() error {
	return e.Err
}

// NewSecurityError creates a new SecurityError.
func NewSecurityError(operation, reason string, err error) *SecurityError {
	return &SecurityError{
		Operation: operation,
		Reason:    reason,
		Err:       err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Message returns the human-readable message of err for the trade log,
// preferring the service's own message for API errors.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		if apiErr.StatusCode == http.StatusUnauthorized {
			return "Unauthorized"
		}
		return apiErr.Message
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return err.Error()
}
