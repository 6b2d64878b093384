package errors

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindMissingCrosswalkEntry    ErrorKind = "MISSING_CROSSWALK_ENTRY"
	KindInvalidIncomeLimitLookup ErrorKind = "INVALID_INCOME_LIMIT_LOOKUP"
	KindWeightInvariantViolation ErrorKind = "WEIGHT_INVARIANT_VIOLATION"
	KindInput                    ErrorKind = "INPUT"
	KindConfig                   ErrorKind = "CONFIG"
	KindStorage                  ErrorKind = "STORAGE"
	KindUnknown                  ErrorKind = "UNKNOWN"
)

// MissingCrosswalkEntryError is returned when a PUMA has no allocation
// rows for the vintage a record needs.
type MissingCrosswalkEntryError struct {
	StateFIPS string
	PUMA      string
	Vintage   int
}

func (e *MissingCrosswalkEntryError) Error() string {
	return fmt.Sprintf("no crosswalk entry for PUMA %s (state %s) in the %d vintage", e.PUMA, e.StateFIPS, e.Vintage)
}

// Kind implements Kinded.
func (e *MissingCrosswalkEntryError) Kind() ErrorKind { return KindMissingCrosswalkEntry }

// InvalidIncomeLimitLookupError is returned when no income limit exists
// for a unit's county, year, size and threshold.
type InvalidIncomeLimitLookupError struct {
	CountyID      string
	Year          int
	HouseholdSize int
	Threshold     int
}

func (e *InvalidIncomeLimitLookupError) Error() string {
	return fmt.Sprintf("no income limit for county %s, year %d, household size %d, %d%% AMI",
		e.CountyID, e.Year, e.HouseholdSize, e.Threshold)
}

// Kind implements Kinded.
func (e *InvalidIncomeLimitLookupError) Kind() ErrorKind { return KindInvalidIncomeLimitLookup }

// WeightInvariantViolationError reports a weight sum that drifted from its
// source beyond tolerance. The run must halt.
type WeightInvariantViolationError struct {
	Stage     string
	Key       string
	Expected  float64
	Actual    float64
	Tolerance float64
}

func (e *WeightInvariantViolationError) Error() string {
	return fmt.Sprintf("%s: weight sum for %s is %.9f, expected %.9f (tolerance %g)",
		e.Stage, e.Key, e.Actual, e.Expected, e.Tolerance)
}

// Kind implements Kinded.
func (e *WeightInvariantViolationError) Kind() ErrorKind { return KindWeightInvariantViolation }

// Kinded is implemented by errors that know their ErrorKind.
type Kinded interface {
	Kind() ErrorKind
}

// AppError wraps lower-level failures (I/O, parsing, config) with a kind.
type AppError struct {
	Type    ErrorKind
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Kind implements Kinded.
func (e *AppError) Kind() ErrorKind { return e.Type }

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(kind ErrorKind, message string, cause error) *AppError {
	return &AppError{
		Type:    kind,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewInputError creates an error for malformed source data.
func NewInputError(message string, cause error) *AppError {
	return NewAppError(KindInput, message, cause)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(KindConfig, message, cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(KindStorage, message, cause)
}

// KindOf returns the kind of the first Kinded error in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// IsIntegrityFault reports whether err is one of the taxonomy errors that
// must abort a state/year unit.
func IsIntegrityFault(err error) bool {
	switch KindOf(err) {
	case KindMissingCrosswalkEntry, KindInvalidIncomeLimitLookup, KindWeightInvariantViolation:
		return true
	}
	return false
}
