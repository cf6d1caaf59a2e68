package utils

import (
	"errors"
	"fmt"
)

// AppError wraps an operation, human-facing message, and underlying error.
// Status carries the collaborator's HTTP status when the failure came from one.
type AppError struct {
	Op     string
	Msg    string
	Status int
	Err    error
}

func (e *AppError) Error() string {
	msg := e.Msg
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", e.Msg, e.Status)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// NewStatusError constructs an AppError for a collaborator that answered with
// a non-success HTTP status.
func NewStatusError(op, msg string, status int, err error) error {
	return &AppError{Op: op, Msg: msg, Status: status, Err: err}
}

// StatusOf returns the collaborator status carried anywhere in err's chain, or 0.
func StatusOf(err error) int {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return 0
		}
		if appErr.Status != 0 {
			return appErr.Status
		}
		err = appErr.Err
	}
	return 0
}
