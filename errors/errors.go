// Package errors provides classified errors and the sentinel values used across zipstage.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/c360/zipstage/pkg/retry"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

var (
	// Stage construction
	ErrDuplicateEndpoint = errors.New("duplicate endpoint name")
	ErrUnknownEndpoint   = errors.New("unknown endpoint")
	ErrPrepareFailed     = errors.New("prepare failed")
	ErrUnknownType       = errors.New("unknown stage type")
	ErrAlreadyRegistered = errors.New("stage type already registered")

	// Dispatch
	ErrArityMismatch      = errors.New("tuple arity mismatch")
	ErrProcessingFailed   = errors.New("processing failed")
	ErrStageFailed        = errors.New("stage is in a failed state")
	ErrDeliveryFailed     = errors.New("output delivery failed")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrNoDirection        = errors.New("endpoint has no direction")
	ErrFormatNotSupported = errors.New("format not supported")

	// Properties
	ErrUnknownProperty     = errors.New("unknown property")
	ErrPropertyNotWritable = errors.New("property not writable")
	ErrPropertyNotReadable = errors.New("property not readable")
	ErrPropertyType        = errors.New("property value has wrong type")

	// Connection and networking errors
	ErrNoConnection       = errors.New("no connection available")
	ErrConnectionLost     = errors.New("connection lost")
	ErrConnectionTimeout  = errors.New("connection timeout")
	ErrSubscriptionFailed = errors.New("subscription failed")
	ErrCircuitOpen        = errors.New("circuit breaker open")

	// Data errors
	ErrInvalidData   = errors.New("invalid data format")
	ErrParsingFailed = errors.New("parsing failed")

	// Storage errors
	ErrBucketNotFound = errors.New("bucket not found")
	ErrKeyNotFound    = errors.New("key not found")

	// Configuration errors
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrMissingConfig  = errors.New("missing required configuration")
	ErrConfigNotFound = errors.New("configuration not found")

	// Retry errors
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// ContractViolation is the panic payload for programming-contract violations.
// It is never returned as a plain error from a public API; stage entry points
// recover it and convert it to a fatal stage error.
type ContractViolation struct {
	Err    error
	Detail string
}

func (cv *ContractViolation) Error() string {
	if cv.Detail == "" {
		return "contract violation: " + cv.Err.Error()
	}
	return fmt.Sprintf("contract violation: %s: %s", cv.Err, cv.Detail)
}

func (cv *ContractViolation) Unwrap() error {
	return cv.Err
}

// Violate panics with a *ContractViolation.
func Violate(err error, format string, args ...any) {
	panic(&ContractViolation{Err: err, Detail: fmt.Sprintf(format, args...)})
}

// FromPanic converts a recovered panic value into an error. A nil value yields nil.
func FromPanic(v any) error {
	switch p := v.(type) {
	case nil:
		return nil
	case *ContractViolation:
		return p
	case error:
		return &ContractViolation{Err: p}
	default:
		return &ContractViolation{Err: fmt.Errorf("panic: %v", p)}
	}
}

// IsContractViolation reports whether err carries a *ContractViolation.
func IsContractViolation(err error) bool {
	var cv *ContractViolation
	return errors.As(err, &cv)
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrNoConnection) ||
		errors.Is(err, ErrDeliveryFailed) ||
		errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection", "network", "temporary", "unavailable", "flushing"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	if IsContractViolation(err) ||
		errors.Is(err, ErrDuplicateEndpoint) ||
		errors.Is(err, ErrPrepareFailed) ||
		errors.Is(err, ErrArityMismatch) ||
		errors.Is(err, ErrStageFailed) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"fatal", "panic", "out of memory"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrInvalidData) ||
		errors.Is(err, ErrParsingFailed) ||
		errors.Is(err, ErrUnknownProperty) ||
		errors.Is(err, ErrPropertyNotWritable) ||
		errors.Is(err, ErrPropertyNotReadable) ||
		errors.Is(err, ErrPropertyType) ||
		errors.Is(err, ErrUnknownEndpoint) ||
		errors.Is(err, ErrUnknownType)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}

	// Fatal before transient: a contract violation mentioning "connection" is still fatal.
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}
	return ErrorTransient
}

func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// RetryConfig defines how transport connections are retried.
type RetryConfig struct {
	MaxRetries    int           `json:"max_retries" yaml:"max_retries" toml:"max_retries"`
	InitialDelay  time.Duration `json:"initial_delay" yaml:"initial_delay" toml:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay" yaml:"max_delay" toml:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor" yaml:"backoff_factor" toml:"backoff_factor"`
}

// DefaultRetryConfig returns the retry settings used when none are configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    5,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// ShouldRetry reports whether err is worth another attempt.
func (rc RetryConfig) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= rc.MaxRetries {
		return false
	}
	return IsTransient(err)
}

// ToRetryConfig converts to the retry package's Config. MaxRetries counts
// additional attempts, so one is added for the total.
func (rc RetryConfig) ToRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  rc.MaxRetries + 1,
		InitialDelay: rc.InitialDelay,
		MaxDelay:     rc.MaxDelay,
		Multiplier:   rc.BackoffFactor,
		AddJitter:    true,
	}
}
