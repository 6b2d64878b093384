package operations

import (
	"context"
	"errors"
	"fmt"

	apperrors "hudlink/internal/errors"
)

// ErrorType represents the type of operation error
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeDependency   ErrorType = "dependency"
	ErrorTypeExecution    ErrorType = "execution"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeCancellation ErrorType = "cancellation"
	ErrorTypeFatal        ErrorType = "fatal"
	ErrorTypeNotFound     ErrorType = "not_found"
)

// OperationError is a step failure that aborts its unit
type OperationError struct {
	Type      ErrorType              `json:"type"`
	Step      string                 `json:"step,omitempty"`
	Message   string                 `json:"message"`
	Cause     error                  `json:"-"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Retryable bool                   `json:"retryable"`
}

// Error implements the error interface
func (e *OperationError) Error() string {
	if e == nil {
		return "unknown operation error"
	}
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Step != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.Step, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Type, msg)
}

// Unwrap returns the underlying error
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewValidationError creates a validation error
func NewValidationError(step, message string) *OperationError {
	return &OperationError{Type: ErrorTypeValidation, Step: step, Message: message}
}

// NewDependencyError creates a dependency error
func NewDependencyError(step, dependsOn, message string) *OperationError {
	return &OperationError{
		Type:    ErrorTypeDependency,
		Step:    step,
		Message: message,
		Context: map[string]interface{}{"depends_on": dependsOn},
	}
}

// NewExecutionError creates an execution error
func NewExecutionError(step string, cause error, retryable bool) *OperationError {
	return &OperationError{
		Type:      ErrorTypeExecution,
		Step:      step,
		Message:   "step execution failed",
		Cause:     cause,
		Retryable: retryable,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(step string, timeout string) *OperationError {
	return &OperationError{
		Type:    ErrorTypeTimeout,
		Step:    step,
		Message: fmt.Sprintf("step exceeded timeout of %s", timeout),
		Context: map[string]interface{}{"timeout": timeout},
	}
}

// NewCancellationError creates a cancellation error
func NewCancellationError(step string) *OperationError {
	return &OperationError{Type: ErrorTypeCancellation, Step: step, Message: "unit was cancelled"}
}

// NewFatalError creates a fatal error. Integrity faults land here.
func NewFatalError(step string, cause error) *OperationError {
	return &OperationError{
		Type:    ErrorTypeFatal,
		Step:    step,
		Message: "data integrity fault",
		Cause:   cause,
		Context: map[string]interface{}{"kind": string(apperrors.KindOf(cause))},
	}
}

// Classify wraps a step error. Integrity faults are fatal, storage errors
// are retryable, cancellation and deadlines keep their own types.
func Classify(step string, err error) *OperationError {
	if err == nil {
		return nil
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		if opErr.Step == "" {
			opErr.Step = step
		}
		return opErr
	}
	switch {
	case errors.Is(err, context.Canceled):
		e := NewCancellationError(step)
		e.Cause = err
		return e
	case errors.Is(err, context.DeadlineExceeded):
		e := &OperationError{Type: ErrorTypeTimeout, Step: step, Message: "deadline exceeded", Cause: err}
		return e
	case apperrors.IsIntegrityFault(err):
		return NewFatalError(step, err)
	case apperrors.KindOf(err) == apperrors.KindStorage:
		return NewExecutionError(step, err, true)
	}
	return NewExecutionError(step, err, false)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Retryable
	}
	return false
}

// IsFatal reports whether err is a data integrity fault
func IsFatal(err error) bool {
	return GetErrorType(err) == ErrorTypeFatal
}

// GetErrorType returns the type of the error
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ""
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Type
	}
	return ErrorTypeExecution
}

// ErrOperationNotFound is returned for an unknown operation id
var ErrOperationNotFound = &OperationError{Type: ErrorTypeNotFound, Message: "operation not found"}
