package app

import (
	"errors"
	"fmt"
)

// ErrorKind is a stable classification of service failures.
type ErrorKind string

const (
	KindInvalidInput         ErrorKind = "InvalidInput"
	KindNotFound             ErrorKind = "NotFound"
	KindStoreUnavailable     ErrorKind = "StoreUnavailable"
	KindStoreOperationFailed ErrorKind = "StoreOperationFailed"
)

// Error is returned by every ImageService operation.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of err, or StoreOperationFailed for errors that
// did not come from this package. A nil error has no kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindStoreOperationFailed
}

func invalidInput(format string, args ...any) *Error {
	return NewError(KindInvalidInput, fmt.Sprintf(format, args...), nil)
}
