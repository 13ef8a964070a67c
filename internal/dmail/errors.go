package dmail

import (
	"errors"
	"fmt"
)

// ErrNoSelection is returned by Send when no conversation is open.
var ErrNoSelection = &InvalidStateError{Op: "send", Reason: "no conversation selected"}

// TransportError wraps any failed request to the directory/history/send service.
// Message is the human-readable text shown to the user.
type TransportError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed", e.Op)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// InvalidStateError is a local precondition failure; the operation was not attempted.
type InvalidStateError struct {
	Op     string
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Is matches any InvalidStateError with the same Op and Reason, so copies of
// ErrNoSelection compare equal.
func (e *InvalidStateError) Is(target error) bool {
	t, ok := target.(*InvalidStateError)
	if !ok {
		return false
	}
	return e.Op == t.Op && e.Reason == t.Reason
}

// AsTransportError converts any error from a Service into a *TransportError.
func AsTransportError(op string, err error) *TransportError {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		out := *te
		if out.Op == "" {
			out.Op = op
		}
		return &out
	}
	return &TransportError{Op: op, Message: err.Error(), Err: err}
}
