package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"sink timeout", ErrSinkTimeout, ErrorTransient},
		{"deadline", context.DeadlineExceeded, ErrorTransient},
		{"connection in message", fmt.Errorf("dial: connection refused"), ErrorTransient},
		{"parsing failed", ErrParsingFailed, ErrorInvalid},
		{"unknown source", fmt.Errorf("decode: %w", ErrUnknownSource), ErrorInvalid},
		{"malformed rule", ErrMalformedRule, ErrorInvalid},
		{"invalid config", ErrInvalidConfig, ErrorFatal},
		{"missing config", ErrMissingConfig, ErrorFatal},
		{"unrecognized defaults transient", fmt.Errorf("something odd"), ErrorTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "Queue", "Enqueue", "size check"))

	err := Wrap(ErrPayloadTooLarge, "Queue", "Enqueue", "size check")
	require.Error(t, err)
	assert.Equal(t, "Queue.Enqueue: size check failed: payload too large", err.Error())
	assert.True(t, errors.Is(err, ErrPayloadTooLarge))
}

func TestWrapClassified(t *testing.T) {
	cause := fmt.Errorf("boom")

	transient := WrapTransient(cause, "NATSSink", "SendLogEvent", "publish")
	invalid := WrapInvalid(cause, "LogDecoder", "Decode", "split")
	fatal := WrapFatal(cause, "Config", "Load", "parse yaml")

	assert.True(t, IsTransient(transient))
	assert.True(t, IsInvalid(invalid))
	assert.True(t, IsFatal(fatal))
	assert.False(t, IsFatal(transient))
	assert.False(t, IsTransient(invalid))

	var ce *ClassifiedError
	require.True(t, errors.As(fatal, &ce))
	assert.Equal(t, "Config", ce.Component)
	assert.Equal(t, "Load", ce.Operation)
	assert.True(t, errors.Is(fatal, cause))
	assert.Equal(t, "Config.Load: parse yaml failed: boom", fatal.Error())

	assert.Nil(t, WrapTransient(nil, "a", "b", "c"))
	assert.Nil(t, WrapInvalid(nil, "a", "b", "c"))
	assert.Nil(t, WrapFatal(nil, "a", "b", "c"))
}

func TestNilIsNeverClassified(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsInvalid(nil))
	assert.False(t, IsFatal(nil))
}
