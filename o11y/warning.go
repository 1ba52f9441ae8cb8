package o11y

import (
	"context"
	"errors"
)

// errWarning is the sentinel every warning wraps, so errors.Is can spot one
// anywhere in a chain.
var errWarning = errors.New("")

// NewWarning returns an error that IsWarning reports true for. No two
// errors from NewWarning compare equal with errors.Is.
func NewWarning(warn string) error {
	return &wrapWarnError{msg: warn, err: errWarning}
}

// IsWarning returns true if any error in the chain is a warning.
func IsWarning(err error) bool {
	return errors.Is(err, errWarning)
}

// IsWarningNoUnwrap returns true only if err itself is the warning
// sentinel. It never unwraps, so other errors can call it from their own
// Is method to recognise a direct test for warning.
func IsWarningNoUnwrap(err error) bool {
	// nolint: errorlint // the entire point here is to not unwrap
	return err == errWarning
}

// DontErrorTrace returns true when the chain amounts to a warning or a
// context cancellation, the cases that should not emit an error trace.
func DontErrorTrace(err error) bool {
	return IsWarning(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

type wrapWarnError struct {
	msg string
	err error
}

func (e *wrapWarnError) Error() string {
	return e.msg
}

func (e *wrapWarnError) Unwrap() error {
	return e.err
}
