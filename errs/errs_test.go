package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEKind(t *testing.T) {
	err := E(Malformed, "bad digit at %d", 3)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, Malformed, e.Kind)
	assert.Equal(t, "malformed mappings: bad digit at 3", err.Error())
}

func TestEWrap(t *testing.T) {
	inner := errors.New("boom")
	err := E(OutOfBounds, inner)
	assert.ErrorIs(t, err, inner)
	assert.True(t, Is(err, OutOfBounds))
	assert.False(t, Is(err, Destroyed))
}

func TestMessage(t *testing.T) {
	err := E(Destroyed)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "use after destroy", e.Message())
}
