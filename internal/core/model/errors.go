package model

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrBusy                = errors.New("another attendance request is in progress")
	ErrMalformedSnapshot   = errors.New("malformed attendance status")
)

// ValidationError is a rejection the user can act on, either from the server
// or from a local precondition check.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// LateReasonRequiredError is the validation failure returned when a punch-in
// happens after the late threshold and no reason was attached.
type LateReasonRequiredError struct {
	Options []LateReasonOption
	Message string
}

func (e *LateReasonRequiredError) Error() string {
	if e.Message == "" {
		return "late reason required"
	}
	return e.Message
}

// Unwrap exposes the error as a ValidationError.
func (e *LateReasonRequiredError) Unwrap() error {
	return &ValidationError{Message: e.Error()}
}

// RequestFailedError covers transport failures and unusable server responses.
type RequestFailedError struct {
	Message string
	Err     error
}

func (e *RequestFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *RequestFailedError) Unwrap() error {
	return e.Err
}
