package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	base := NewUnavailable("dispatcher", fmt.Errorf("smtp host not set"))
	wrapped := fmt.Errorf("run cycle: %w", base)

	assert.True(t, HasCode(wrapped, ErrUnavailable))
	assert.False(t, HasCode(wrapped, ErrNotFound))
	assert.False(t, HasCode(fmt.Errorf("plain"), ErrInternal))
	assert.False(t, HasCode(nil, ErrInternal))
}

func TestHasCodeNested(t *testing.T) {
	inner := NotFound("user", nil)
	outer := &AppError{Code: ErrInternal, Message: "lookup failed", Err: inner}

	assert.True(t, HasCode(outer, ErrInternal))
	assert.True(t, HasCode(outer, ErrNotFound))
	assert.Equal(t, "lookup failed: user not found", outer.Error())
}

func TestConflict(t *testing.T) {
	err := fmt.Errorf("run: %w", NewConflict("digest cycle already running", nil))

	assert.True(t, HasCode(err, ErrConflict))
	assert.Equal(t, "run: digest cycle already running", err.Error())
}
