package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeNotFound marks a referenced board, node or edge that does not exist
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeProvider marks a failed LLM call
	ErrorTypeProvider ErrorType = "provider"
	// ErrorTypeTransport marks a failed send on a live connection
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeMalformedInput marks an inbound frame that could not be parsed
	ErrorTypeMalformedInput ErrorType = "malformed_input"
	// ErrorTypeStorage marks a storage read/write failure
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypePartialFailure marks a multi-step write whose rollback also failed
	ErrorTypePartialFailure ErrorType = "partial_failure"
	// ErrorTypeValidation marks a request rejected before touching storage
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Not found

// ErrNotFound is returned when a board, node or edge is absent
type ErrNotFound struct {
	*BaseError
	Kind string
	ID   string
}

func NewNotFound(kind, id string) *ErrNotFound {
	return &ErrNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("%s not found: %s", kind, id), nil),
		Kind:      kind,
		ID:        id,
	}
}

// Provider

// ErrProvider is returned when the LLM call fails. Message carries the
// provider's own error text.
type ErrProvider struct {
	*BaseError
	Model    string
	Attempts int
}

func NewProviderError(model string, attempts int, err error) *ErrProvider {
	return &ErrProvider{
		BaseError: NewBaseError(ErrorTypeProvider, fmt.Sprintf("LLM call failed after %d attempt(s)", attempts), err),
		Model:     model,
		Attempts:  attempts,
	}
}

// Transport

// ErrTransportFailure is returned by a connection whose send failed
type ErrTransportFailure struct {
	*BaseError
	ConnectionID string
}

func NewTransportFailure(connectionID string, err error) *ErrTransportFailure {
	return &ErrTransportFailure{
		BaseError:    NewBaseError(ErrorTypeTransport, fmt.Sprintf("send failed on connection %s", connectionID), err),
		ConnectionID: connectionID,
	}
}

// Malformed input

// ErrMalformedInput is returned when an inbound payload cannot be decoded
type ErrMalformedInput struct {
	*BaseError
	Reason string
}

func NewMalformedInput(reason string, err error) *ErrMalformedInput {
	return &ErrMalformedInput{
		BaseError: NewBaseError(ErrorTypeMalformedInput, reason, err),
		Reason:    reason,
	}
}

// Storage

// ErrStorageFault wraps a failing storage operation
type ErrStorageFault struct {
	*BaseError
	Operation string
}

func NewStorageFault(operation string, err error) *ErrStorageFault {
	return &ErrStorageFault{
		BaseError: NewBaseError(ErrorTypeStorage, fmt.Sprintf("storage operation failed: %s", operation), err),
		Operation: operation,
	}
}

// Partial failure

// ErrPartialFailure is returned when a step failed and its compensation
// failed as well, leaving storage half-written.
type ErrPartialFailure struct {
	*BaseError
	Operation       string
	CompensationErr error
}

func NewPartialFailure(operation string, cause, compensationErr error) *ErrPartialFailure {
	return &ErrPartialFailure{
		BaseError:       NewBaseError(ErrorTypePartialFailure, fmt.Sprintf("%s failed and rollback failed (%v)", operation, compensationErr), cause),
		Operation:       operation,
		CompensationErr: compensationErr,
	}
}

// Validation

// ErrValidation is returned for requests rejected before any side effect
type ErrValidation struct {
	*BaseError
	Field string
}

func NewValidation(field, reason string) *ErrValidation {
	return &ErrValidation{
		BaseError: NewBaseError(ErrorTypeValidation, fmt.Sprintf("%s: %s", field, reason), nil),
		Field:     field,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

type typed interface {
	errorType() ErrorType
}

func (e *BaseError) errorType() ErrorType { return e.Type }

// IsErrorType reports whether any error in err's chain has the given type.
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if t, ok := err.(typed); ok && t.errorType() == errType {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// TypeOf returns the type of the outermost typed error in err's chain, or ""
func TypeOf(err error) ErrorType {
	for err != nil {
		if t, ok := err.(typed); ok {
			return t.errorType()
		}
		err = stderrors.Unwrap(err)
	}
	return ""
}

// IsNotFound reports whether err is or wraps a not-found error
func IsNotFound(err error) bool {
	return IsErrorType(err, ErrorTypeNotFound)
}
