package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByType(t *testing.T) {
	err := MissingSession("/tmp/session.json", nil)
	wrapped := fmt.Errorf("startup: %w", err)

	assert.True(t, errors.Is(wrapped, ErrMissingSession))
	assert.False(t, errors.Is(wrapped, ErrMissingManifest))
	assert.Contains(t, err.Error(), "/tmp/session.json")
}

func TestNavigationFailureClassification(t *testing.T) {
	timeout := NavigationFailure("A1", fmt.Errorf("goto: %w", context.DeadlineExceeded))
	assert.Equal(t, ErrorTypeNavigationTimeout, timeout.Type)
	assert.True(t, errors.Is(timeout, ErrNavigationTimeout))
	assert.True(t, errors.Is(timeout, context.DeadlineExceeded))
	assert.Contains(t, timeout.Error(), "item A1")

	other := NavigationFailure("A2", errors.New("net::ERR_NAME_NOT_RESOLVED"))
	assert.Equal(t, ErrorTypeNavigation, other.Type)
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		errType ErrorType
		fatal   bool
	}{
		{ErrorTypeMissingManifest, true},
		{ErrorTypeInvalidManifest, true},
		{ErrorTypeMissingSession, true},
		{ErrorTypeInvalidSession, true},
		{ErrorTypeRunInProgress, true},
		{ErrorTypeBrowserLaunch, true},
		{ErrorTypeNavigationTimeout, false},
		{ErrorTypeNavigation, false},
		{ErrorTypeCapture, false},
		{ErrorTypeWrite, false},
		{ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			assert.Equal(t, tt.fatal, IsFatal(tt.errType))
		})
	}

	assert.False(t, IsFatalError(nil))
	assert.False(t, IsFatalError(errors.New("plain")))
	assert.True(t, IsFatalError(fmt.Errorf("x: %w", MissingManifest("m.json", nil))))
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, ErrorTypeWrite, TypeOf(ForItem(ErrorTypeWrite, "x", "disk full", nil)))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("boom")))
}
