package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/sitecms/internal/auth"
	"github.com/roach88/sitecms/internal/store"
	"github.com/roach88/sitecms/internal/validate"
)

// Error is the typed failure of an engine operation.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description safe to show editors.
	Message string

	// Section and Key identify the affected content unit, when known.
	Section string
	Key     string

	// Violations lists every failed constraint for VALIDATION_FAILED.
	Violations []validate.Violation

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeValidation blocks publish and explicit save, never autosave.
	ErrCodeValidation ErrorCode = "VALIDATION_FAILED"

	// ErrCodeStore is a persistence failure; the operation may be retried.
	ErrCodeStore ErrorCode = "STORE_FAILURE"

	// ErrCodeUnauthorized is a missing or insufficient role.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// ErrCodeNotFound is an unknown section, field, item or revision.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInvalidState is a transition the state machine does not allow.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if len(e.Violations) > 0 {
		msg += ": " + strings.Join(validate.Messages(e.Violations), "; ")
	}
	switch {
	case e.Section != "" && e.Key != "":
		return fmt.Sprintf("%s: %s (section=%s, key=%s)", e.Code, msg, e.Section, e.Key)
	case e.Section != "":
		return fmt.Sprintf("%s: %s (section=%s)", e.Code, msg, e.Section)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsValidation returns true if err carries constraint violations.
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsStore returns true if err is a persistence failure.
func IsStore(err error) bool {
	return hasCode(err, ErrCodeStore)
}

// IsAuthorization returns true if err is a missing or insufficient role.
func IsAuthorization(err error) bool {
	return hasCode(err, ErrCodeUnauthorized)
}

// IsNotFound returns true if a referenced section, item or revision does
// not exist.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsInvalidState returns true if the requested transition is not allowed.
func IsInvalidState(err error) bool {
	return hasCode(err, ErrCodeInvalidState)
}

// ViolationsOf returns the violations carried by err, if any.
func ViolationsOf(err error) []validate.Violation {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Violations
	}
	return nil
}

func unauthorized(err error) *Error {
	return &Error{Code: ErrCodeUnauthorized, Message: err.Error(), Err: err}
}

func validationFailed(section, key string, vs []validate.Violation) *Error {
	return &Error{
		Code:       ErrCodeValidation,
		Message:    fmt.Sprintf("%d validation error(s)", len(vs)),
		Section:    section,
		Key:        key,
		Violations: vs,
	}
}

func notFound(section, key, message string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: message, Section: section, Key: key}
}

func invalidState(section, key, message string) *Error {
	return &Error{Code: ErrCodeInvalidState, Message: message, Section: section, Key: key}
}

// storeFailure maps adapter errors to engine errors. Lookup misses become
// NOT_FOUND; everything else is a retry-able STORE_FAILURE.
func storeFailure(section, key string, err error) *Error {
	if store.IsNotFound(err) {
		msg := err.Error()
		var se *store.Error
		if errors.As(err, &se) {
			msg = se.Message
		}
		return &Error{Code: ErrCodeNotFound, Message: msg, Section: section, Key: key, Err: err}
	}
	return &Error{
		Code:    ErrCodeStore,
		Message: "could not save changes, please retry",
		Section: section,
		Key:     key,
		Err:     err,
	}
}

// authorize converts auth failures into engine errors.
func authorize(check func(auth.Identity) error, id auth.Identity) error {
	if err := check(id); err != nil {
		return unauthorized(err)
	}
	return nil
}
