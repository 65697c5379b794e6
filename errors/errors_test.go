package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.class.String())
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"delivery failed", ErrDeliveryFailed, true},
		{"context canceled", context.Canceled, true},
		{"flushing in message", fmt.Errorf("downstream is flushing"), true},
		{"unknown property", ErrUnknownProperty, false},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("connection")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsTransient(test.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.True(t, IsFatal(ErrDuplicateEndpoint))
	assert.True(t, IsFatal(ErrPrepareFailed))
	assert.True(t, IsFatal(fmt.Errorf("wrapped: %w", ErrArityMismatch)))
	assert.True(t, IsFatal(&ContractViolation{Err: ErrNoDirection}))
	assert.False(t, IsFatal(ErrConnectionLost))
}

func TestIsInvalid(t *testing.T) {
	assert.False(t, IsInvalid(nil))
	assert.True(t, IsInvalid(ErrUnknownProperty))
	assert.True(t, IsInvalid(ErrPropertyType))
	assert.True(t, IsInvalid(ErrUnknownType))
	assert.False(t, IsInvalid(ErrPrepareFailed))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorFatal, Classify(&ContractViolation{Err: fmt.Errorf("connection table corrupt")}))
	assert.Equal(t, ErrorInvalid, Classify(ErrPropertyNotWritable))
	assert.Equal(t, ErrorTransient, Classify(ErrConnectionLost))
	assert.Equal(t, ErrorTransient, Classify(errors.New("something odd")))
	assert.Equal(t, ErrorInvalid, Classify(WrapInvalid(ErrConnectionLost, "Stage", "SetProperty", "apply")))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "Stage", "Chain", "push"))

	err := Wrap(ErrProcessingFailed, "Stage", "Chain", "process")
	assert.Equal(t, "Stage.Chain: process failed: processing failed", err.Error())
	assert.ErrorIs(t, err, ErrProcessingFailed)
}

func TestWrapClassified(t *testing.T) {
	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		class ErrorClass
	}{
		{"transient", WrapTransient, ErrorTransient},
		{"invalid", WrapInvalid, ErrorInvalid},
		{"fatal", WrapFatal, ErrorFatal},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Nil(t, test.wrap(nil, "c", "m", "a"))

			err := test.wrap(ErrInvalidData, "Registry", "Declare", "insert")
			var ce *ClassifiedError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, test.class, ce.Class)
			assert.Equal(t, "Registry", ce.Component)
			assert.Equal(t, "Declare", ce.Operation)
			assert.ErrorIs(t, err, ErrInvalidData)
			assert.Equal(t, "Registry.Declare: insert failed: invalid data format", err.Error())
		})
	}
}

func TestViolateAndFromPanic(t *testing.T) {
	var recovered error
	func() {
		defer func() { recovered = FromPanic(recover()) }()
		Violate(ErrArityMismatch, "got %d inputs, want %d", 1, 2)
	}()

	require.Error(t, recovered)
	assert.True(t, IsContractViolation(recovered))
	assert.ErrorIs(t, recovered, ErrArityMismatch)
	assert.Contains(t, recovered.Error(), "got 1 inputs, want 2")

	assert.Nil(t, FromPanic(nil))
	assert.True(t, IsContractViolation(FromPanic("boom")))
	assert.ErrorIs(t, FromPanic(ErrNoDirection), ErrNoDirection)
}

func TestRetryConfig(t *testing.T) {
	rc := DefaultRetryConfig()
	assert.True(t, rc.ShouldRetry(ErrConnectionTimeout, 0))
	assert.False(t, rc.ShouldRetry(ErrConnectionTimeout, rc.MaxRetries))
	assert.False(t, rc.ShouldRetry(ErrInvalidConfig, 0))
	assert.False(t, rc.ShouldRetry(nil, 0))

	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Second, BackoffFactor: 3}.ToRetryConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 3.0, cfg.Multiplier)
	assert.True(t, cfg.AddJitter)
}
