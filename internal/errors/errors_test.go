package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewNetwork("github_unreachable", "contents request failed", cause)

	msg := err.Error()
	assert.Contains(t, msg, "[github_unreachable]")
	assert.Contains(t, msg, "contents request failed")
	assert.Contains(t, msg, "connection refused")
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("401 bad credentials")
	err := NewAuth("bad_token", "github rejected token", cause)

	assert.ErrorIs(t, err, cause)
}

func TestIsMatchesTypeAndCode(t *testing.T) {
	a := NewConflict("manifest_sha", "manifest changed upstream", nil)
	b := NewConflict("manifest_sha", "different message", nil)
	c := NewConflict("other_code", "manifest changed upstream", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))

	wrapped := fmt.Errorf("publish: %w", a)
	assert.True(t, errors.Is(wrapped, b))
}

func TestRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(NewValidation("bad_logo_id", "duplicate id")))
	assert.True(t, IsRecoverable(fmt.Errorf("wrap: %w", NewNetwork("timeout", "timed out", nil))))
	assert.False(t, IsRecoverable(NewAuth("bad_token", "rejected", nil)))
	assert.False(t, IsRecoverable(errors.New("plain")))
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, TypeConfig, TypeOf(NewConfig("bad_broker", "unsupported scheme")))
	assert.Equal(t, TypeInternal, TypeOf(errors.New("plain")))
}

func TestWithContext(t *testing.T) {
	err := NewValidation("logo_too_large", "logo exceeds size limit").
		WithContext("size", 3<<20).
		WithContext("limit", 2<<20)

	assert.Equal(t, 3<<20, err.Context["size"])
	assert.Equal(t, 2<<20, err.Context["limit"])
}
