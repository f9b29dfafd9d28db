// Package edgelinkerr defines the error-kind taxonomy shared across the engine.
package edgelinkerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error without requiring callers to match on message text.
type Kind int

const (
	Permission Kind = iota
	BadFlowsJson
	UnsupportedFlowsJsonFormat
	NotSupported
	BadArguments
	TaskCancelled
	InvalidOperation
	InvalidData
	OutOfRange
	Configuration
	IO
)

func (k Kind) String() string {
	switch k {
	case Permission:
		return "Permission"
	case BadFlowsJson:
		return "BadFlowsJson"
	case UnsupportedFlowsJsonFormat:
		return "UnsupportedFlowsJsonFormat"
	case NotSupported:
		return "NotSupported"
	case BadArguments:
		return "BadArguments"
	case TaskCancelled:
		return "TaskCancelled"
	case InvalidOperation:
		return "InvalidOperation"
	case InvalidData:
		return "InvalidData"
	case OutOfRange:
		return "OutOfRange"
	case Configuration:
		return "Configuration"
	case IO:
		return "IO"
	default:
		return "Unknown"
	}
}

// Error is the engine's structured error type. It carries a Kind so callers can
// branch on the taxonomy from spec §7 instead of parsing messages.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New constructs an Error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf constructs an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind, preserving cause for errors.Unwrap.
func Wrap(kind Kind, cause error, msg string) error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Of reports the Kind of err, if it is (or wraps) an *Error.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// HasKind reports whether err is (or wraps) an *Error with the given Kind.
func HasKind(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}
