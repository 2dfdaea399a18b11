package engine

import (
	"errors"
	"fmt"
)

// Error is the engine's structured error.
//
// Codes:
//   - NOT_FOUND: the subject has no record
//   - MALFORMED: an entry-point input is missing a required field
//   - DECLINED: a business precondition was not met
//   - TRANSPORT_FAILURE: a store or channel call failed, or conflicting
//     writers exhausted the retry budget
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// SubjectID identifies the affected subject, when known.
	SubjectID string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	ErrCodeNotFound  ErrorCode = "NOT_FOUND"
	ErrCodeMalformed ErrorCode = "MALFORMED"
	ErrCodeDeclined  ErrorCode = "DECLINED"
	ErrCodeTransport ErrorCode = "TRANSPORT_FAILURE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.SubjectID != "" {
		msg += fmt.Sprintf(" (subject=%s)", e.SubjectID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsNotFound reports whether err is a NOT_FOUND engine error.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsMalformed reports whether err is a MALFORMED engine error.
func IsMalformed(err error) bool { return hasCode(err, ErrCodeMalformed) }

// IsDeclined reports whether err is a DECLINED engine error.
func IsDeclined(err error) bool { return hasCode(err, ErrCodeDeclined) }

// IsTransport reports whether err is a TRANSPORT_FAILURE engine error.
func IsTransport(err error) bool { return hasCode(err, ErrCodeTransport) }

func newNotFound(subjectID string, err error) *Error {
	return &Error{Code: ErrCodeNotFound, Message: "subject not found", SubjectID: subjectID, Err: err}
}

func newMalformed(subjectID string, err error) *Error {
	return &Error{Code: ErrCodeMalformed, Message: "malformed input", SubjectID: subjectID, Err: err}
}

func newTransport(subjectID, op string, err error) *Error {
	return &Error{Code: ErrCodeTransport, Message: op + " failed", SubjectID: subjectID, Err: err}
}
