package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrActivityNotFound indicates the activity does not exist.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrPatientNotFound indicates the patient does not exist.
	ErrPatientNotFound = errors.New("patient not found")
	// ErrChatNotFound indicates the conversation does not exist.
	ErrChatNotFound = errors.New("chat not found")
)

// ValidationError reports a rejected field on an inbound record.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
