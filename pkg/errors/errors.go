package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorType represents the different failures a harvest run can hit
type ErrorType string

const (
	// Startup failures. Raised before any item is attempted.
	ErrorTypeMissingManifest ErrorType = "missing_manifest"
	ErrorTypeInvalidManifest ErrorType = "invalid_manifest"
	ErrorTypeMissingSession  ErrorType = "missing_session"
	ErrorTypeInvalidSession  ErrorType = "invalid_session"
	ErrorTypeRunInProgress   ErrorType = "run_in_progress"
	ErrorTypeBrowserLaunch   ErrorType = "browser_launch"

	// Per-item failures. Counted, logged and skipped.
	ErrorTypeNavigationTimeout ErrorType = "navigation_timeout"
	ErrorTypeNavigation        ErrorType = "navigation"
	ErrorTypeCapture           ErrorType = "capture"
	ErrorTypeWrite             ErrorType = "write"
	ErrorTypeUnknown           ErrorType = "unknown"
)

// Sentinels for errors.Is matching against an *Error of the same type
var (
	ErrMissingManifest   = &Error{Type: ErrorTypeMissingManifest}
	ErrInvalidManifest   = &Error{Type: ErrorTypeInvalidManifest}
	ErrMissingSession    = &Error{Type: ErrorTypeMissingSession}
	ErrInvalidSession    = &Error{Type: ErrorTypeInvalidSession}
	ErrRunInProgress     = &Error{Type: ErrorTypeRunInProgress}
	ErrBrowserLaunch     = &Error{Type: ErrorTypeBrowserLaunch}
	ErrNavigationTimeout = &Error{Type: ErrorTypeNavigationTimeout}
	ErrNavigation        = &Error{Type: ErrorTypeNavigation}
	ErrCapture           = &Error{Type: ErrorTypeCapture}
	ErrWrite             = &Error{Type: ErrorTypeWrite}
)

// Error is a typed harvest error. ItemID is empty for startup failures.
type Error struct {
	Type    ErrorType
	ItemID  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Type)
	}
	if e.ItemID != "" {
		msg = fmt.Sprintf("item %s: %s", e.ItemID, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, msg, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Type, msg)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// New creates a startup error of the given type
func New(errType ErrorType, message string, cause error) *Error {
	return &Error{Type: errType, Message: message, Err: cause}
}

// ForItem creates a per-item error of the given type
func ForItem(errType ErrorType, itemID, message string, cause error) *Error {
	return &Error{Type: errType, ItemID: itemID, Message: message, Err: cause}
}

// MissingManifest reports that no manifest exists at path
func MissingManifest(path string, cause error) *Error {
	return New(ErrorTypeMissingManifest, fmt.Sprintf("manifest not found at %s", path), cause)
}

// MissingSession reports that no saved session exists at path
func MissingSession(path string, cause error) *Error {
	return New(ErrorTypeMissingSession, fmt.Sprintf("session not found at %s", path), cause)
}

// NavigationFailure classifies a navigation error, turning an exceeded
// deadline into a navigation timeout
func NavigationFailure(itemID string, cause error) *Error {
	if errors.Is(cause, context.DeadlineExceeded) {
		return ForItem(ErrorTypeNavigationTimeout, itemID, "navigation timed out", cause)
	}
	return ForItem(ErrorTypeNavigation, itemID, "navigation failed", cause)
}

// TypeOf returns the ErrorType carried by err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsFatal checks if an error type aborts the run before any work begins
func IsFatal(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeMissingManifest, ErrorTypeInvalidManifest,
		ErrorTypeMissingSession, ErrorTypeInvalidSession,
		ErrorTypeRunInProgress, ErrorTypeBrowserLaunch:
		return true
	default:
		return false
	}
}

// IsFatalError is IsFatal applied to the type carried by err
func IsFatalError(err error) bool {
	if err == nil {
		return false
	}
	return IsFatal(TypeOf(err))
}
