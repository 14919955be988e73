package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lalith-99/echocast/internal/apperr"
	"github.com/stretchr/testify/assert"
)

func TestKindOfWrappedError(t *testing.T) {
	base := apperr.Validation("name", "name too short")
	wrapped := fmt.Errorf("create channel: %w", base)

	assert.Equal(t, apperr.KindValidation, apperr.KindOf(wrapped))
	assert.True(t, apperr.Is(wrapped, apperr.KindValidation))
	assert.False(t, apperr.Is(wrapped, apperr.KindConflict))
	assert.Equal(t, "name", apperr.FieldOf(wrapped))
}

func TestKindOfPlainErrorIsInternal(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Empty(t, apperr.FieldOf(err))
}

func TestDependencyKeepsCause(t *testing.T) {
	cause := errors.New("queue service unavailable")
	err := apperr.Dependency("failed to create queue", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to create queue: queue service unavailable", err.Error())
}
