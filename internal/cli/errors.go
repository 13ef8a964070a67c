package cli

import (
	"errors"
	"fmt"

	"github.com/tOgg1/dmail/internal/dmail"
)

// Exit codes.
const (
	ExitCodeFailure   = 1
	ExitCodeUsage     = 2
	ExitCodeState     = 3
	ExitCodeTransport = 4
)

// ExitError carries a process exit code. Printed marks errors the command
// already reported to the user.
type ExitError struct {
	Code    int
	Err     error
	Printed bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Exitf builds an ExitError from a format string.
func Exitf(code int, format string, args ...any) *ExitError {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

// exitFor maps store errors onto exit codes.
func exitFor(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	var stateErr *dmail.InvalidStateError
	if errors.As(err, &stateErr) {
		return &ExitError{Code: ExitCodeState, Err: err}
	}
	var transportErr *dmail.TransportError
	if errors.As(err, &transportErr) {
		return &ExitError{Code: ExitCodeTransport, Err: err}
	}
	return &ExitError{Code: ExitCodeFailure, Err: err}
}
