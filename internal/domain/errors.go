package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAuthentication marks a credential or authorization failure from the
	// text-completion service. It aborts the whole model chain.
	ErrAuthentication = errors.New("authentication failed")

	// ErrAllModelsFailed is returned when a model chain is exhausted without any recorded error.
	ErrAllModelsFailed = errors.New("all model attempts failed")

	// ErrNoModels is returned when a model chain is configured without identifiers.
	ErrNoModels = errors.New("no models configured")

	// ErrSchemaMismatch marks a model response that did not match the expected contract.
	ErrSchemaMismatch = errors.New("response does not match expected schema")

	// ErrNotFound is returned by stores for unknown result IDs.
	ErrNotFound = errors.New("not found")
)

// ModelError wraps a failed attempt against a single model identifier.
type ModelError struct {
	Model      string
	StatusCode int
	Err        error
}

func (e *ModelError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("model %s: status %d: %v", e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("model %s: %v", e.Model, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err signals an authentication or authorization failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	CodeInvalidInput   = "INVALID_INPUT"
	CodeNotFound       = "NOT_FOUND"
	CodeStorage        = "STORAGE_ERROR"
	CodeRateLimit      = "RATE_LIMIT_EXCEEDED"
	CodeAuthentication = "AUTHENTICATION_ERROR"
	CodeInternalServer = "INTERNAL_SERVER_ERROR"
	CodeValidation     = "VALIDATION_ERROR"
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
