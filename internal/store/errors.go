package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by every lookup that matches no row.
var ErrNotFound = errors.New("not found")

// Error is a persistence failure surfaced at the adapter boundary. Message
// is safe to show to editors; Err keeps the driver error for logs.
type Error struct {
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store: %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("store: %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(op, message string, err error) error {
	return &Error{Op: op, Message: message, Err: err}
}

func notFound(op, what string) error {
	return &Error{Op: op, Message: what + " not found", Err: ErrNotFound}
}

// IsNotFound reports whether err is a lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
