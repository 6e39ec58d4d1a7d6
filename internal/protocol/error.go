package protocol

import "fmt"

// ErrorKind is the closed set of error kinds spec.md §7 enumerates.
// Handlers convert any error crossing the protocol boundary into one of
// these before it reaches a client.
type ErrorKind string

const (
	ErrSessionNotFound     ErrorKind = "SessionNotFound"
	ErrUnknownKeyName      ErrorKind = "UnknownKeyName"
	ErrUnknownMouseAction  ErrorKind = "UnknownMouseAction"
	ErrUnsupportedModifier ErrorKind = "UnsupportedModifier"
	ErrInvalidCoordinates  ErrorKind = "InvalidCoordinates"
	ErrTimeout             ErrorKind = "Timeout"
	ErrIoError             ErrorKind = "IoError"
	ErrProtocolError       ErrorKind = "ProtocolError"
	ErrChildExited         ErrorKind = "ChildExited"
)

// Error is the tagged error type every request handler returns instead of
// a bare error, so the dispatcher can always recover a Kind for the JSON
// response without string-matching messages.
type Error struct {
	Kind    ErrorKind
	Message string
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Wrap classifies a generic error as IoError unless it is already a
// *Error, in which case its kind is preserved.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*Error); ok {
		return pe
	}
	return &Error{Kind: ErrIoError, Message: err.Error()}
}
