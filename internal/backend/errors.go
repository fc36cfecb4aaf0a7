package backend

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can decide how to recover.
type Kind string

const (
	NetworkFailure  Kind = "network_failure"
	ProtocolError   Kind = "protocol_error"
	ValidationError Kind = "validation_error"
	UserDeclined    Kind = "user_declined"
	// RemoteFailure is a well-formed error reported by the backend itself.
	RemoteFailure Kind = "remote_failure"
)

var ErrNoBody = errors.New("response has no body")

type Error struct {
	Kind Kind
	Op   string
	// Message is safe to show to the user.
	Message string
	// StatusCode is set when the backend answered with a non-2xx status.
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind, true
	}
	return "", false
}

// UserMessage returns the message meant for display.
func UserMessage(err error) string {
	var be *Error
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
