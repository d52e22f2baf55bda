package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a command failure. Every kind is non-fatal for the
// connection except KindProtocol.
type ErrorKind uint8

const (
	KindArity ErrorKind = iota + 1
	KindType
	KindValidation
	KindUnknownCommand
	KindProtocol
	KindInternal
)

// String returns a short label, used as a metric status.
func (k ErrorKind) String() string {
	switch k {
	case KindArity:
		return "arity"
	case KindType:
		return "type"
	case KindValidation:
		return "validation"
	case KindUnknownCommand:
		return "unknown_command"
	case KindProtocol:
		return "protocol"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// CommandError is a failure of one command, tagged with its kind.
// The reply sent to the client is derived from it by Reply.
type CommandError struct {
	Kind    ErrorKind
	Message string // reply text without the "ERR " prefix
	Cause   error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *CommandError) Unwrap() error {
	return e.Cause
}

// Is matches any CommandError of the same kind.
func (e *CommandError) Is(target error) bool {
	t, ok := target.(*CommandError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Reply returns the error text as written on the wire, without the
// leading '-' and trailing CRLF.
func (e *CommandError) Reply() string {
	return "ERR " + e.Message
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *CommandError) WithCause(cause error) *CommandError {
	return &CommandError{Kind: e.Kind, Message: e.Message, Cause: cause}
}

// Sentinels for errors.Is matching by kind.
var (
	ErrArity          = &CommandError{Kind: KindArity, Message: "wrong number of arguments"}
	ErrWrongType      = &CommandError{Kind: KindType, Message: "wrong type of key"}
	ErrValidation     = &CommandError{Kind: KindValidation, Message: "invalid argument"}
	ErrUnknownCommand = &CommandError{Kind: KindUnknownCommand, Message: "unknown command"}
	ErrProtocol       = &CommandError{Kind: KindProtocol, Message: "protocol error"}
	ErrInternal       = &CommandError{Kind: KindInternal, Message: "internal error"}
)

// Frequently returned validation failures.
var (
	ErrNotInteger = &CommandError{Kind: KindValidation, Message: "value is not an integer or out of range"}
	ErrNotNumber  = &CommandError{Kind: KindValidation, Message: "wrong argument type (should be number)"}
)

// NewArityError reports a call to name with too few arguments.
func NewArityError(name string) *CommandError {
	return &CommandError{
		Kind:    KindArity,
		Message: fmt.Sprintf("wrong number of arguments for '%s' command", name),
	}
}

// NewProtocolError reports a malformed frame.
func NewProtocolError(detail string) *CommandError {
	return &CommandError{Kind: KindProtocol, Message: "protocol error: " + detail}
}

// NewInternalError reports an unexpected failure inside a handler.
func NewInternalError(name string, cause error) *CommandError {
	return &CommandError{
		Kind:    KindInternal,
		Message: fmt.Sprintf("internal error executing '%s'", name),
		Cause:   cause,
	}
}

// KindOf returns the kind of a CommandError in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}
