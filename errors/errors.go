// Package errors defines the error model shared by every streambus component.
//
// Errors carry a Kind from a closed enumeration with stable wire codes, so a
// failure produced by one element can be transported inside a response entry
// and reconstructed by the caller, regardless of which client implementation
// produced it. Application-defined failure codes ride a dedicated user band
// above UserErrorOffset.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an Error. The integer values are the wire codes written to
// the err_code field of response entries and must not be reordered.
type Kind int

const (
	// NoError is the wire code of a successful response. It never appears on
	// a non-nil Error; FromCode maps it to a nil error.
	NoError Kind = iota
	// Internal is an unexpected local fault, including transport failures.
	Internal
	// Store means the store itself returned an error reply; the message
	// carries the store's text.
	Store
	// NoResponse is a timeout or empty reply where one was required.
	NoResponse
	// InvalidCommand is a local validation failure: empty or malformed entry
	// data, a reserved-key violation, or a malformed request.
	InvalidCommand
	// UnsupportedCommand is a well-formed command with no registered handler.
	UnsupportedCommand
	// CallbackFailed means a registered handler failed or panicked.
	CallbackFailed

	// User marks application-defined failures reported by command handlers.
	// Its wire code is UserErrorOffset plus the application code.
	User Kind = 1000
)

// UserErrorOffset is added to application failure codes on the wire so they
// never collide with the kinds above.
const UserErrorOffset = 1000

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	switch k {
	case NoError:
		return "no_error"
	case Internal:
		return "internal_error"
	case Store:
		return "store_error"
	case NoResponse:
		return "no_response"
	case InvalidCommand:
		return "invalid_command"
	case UnsupportedCommand:
		return "unsupported_command"
	case CallbackFailed:
		return "callback_failed"
	case User:
		return "user_error"
	default:
		return "unknown"
	}
}

// Error is a kind-tagged error with an optional detail message and wrapped
// cause.
type Error struct {
	kind Kind
	msg  string
	code int // application code, set only for the User kind
	err  error
}

// New creates an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind that wraps err. The cause remains
// reachable through errors.Is and errors.As.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

// NewUser creates a User-kind Error carrying an application failure code.
// Negative codes are clamped to zero.
func NewUser(code int, msg string) *Error {
	if code < 0 {
		code = 0
	}
	return &Error{kind: User, msg: msg, code: code}
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.msg != "" && e.err != nil:
		return e.kind.String() + ": " + e.msg + ": " + e.err.Error()
	case e.msg != "":
		return e.kind.String() + ": " + e.msg
	case e.err != nil:
		return e.kind.String() + ": " + e.err.Error()
	default:
		return e.kind.String()
	}
}

// Kind returns the error's kind.
func (e *Error) Kind() Kind {
	return e.kind
}

// Message returns the detail message without the kind prefix.
func (e *Error) Message() string {
	return e.msg
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.err
}

// Is reports whether target is an *Error of the same kind. A target with an
// empty message matches any message, so sentinels like New(Store, "") match
// every store error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.kind != e.kind {
		return false
	}
	return t.msg == "" || t.msg == e.msg
}

// Code returns the wire code for the err_code field.
func (e *Error) Code() int {
	if e.kind == User {
		return UserErrorOffset + e.code
	}
	return int(e.kind)
}

// UserCode returns the application code of a User-kind error.
func (e *Error) UserCode() (int, bool) {
	if e.kind != User {
		return 0, false
	}
	return e.code, true
}

// KindOf walks err's chain and returns the kind of the outermost *Error.
// A nil error is NoError; a chain without any *Error classifies as Internal.
func KindOf(err error) Kind {
	if err == nil {
		return NoError
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.kind
	}
	return Internal
}

// IsKind reports whether err classifies as the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Code returns the wire code for any error: 0 for nil, the *Error code when
// the chain contains one, and the Internal code otherwise.
func Code(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code()
	}
	return int(Internal)
}

// KindFromCode maps a wire code to its Kind. Codes in the user band map to
// User; unknown codes classify as Internal.
func KindFromCode(code int) Kind {
	switch {
	case code == 0:
		return NoError
	case code >= int(Internal) && code <= int(CallbackFailed):
		return Kind(code)
	case code >= UserErrorOffset:
		return User
	default:
		return Internal
	}
}

// FromCode reconstructs an error from a wire code and message. Code zero
// yields nil. Codes in the user band decode to User-kind errors carrying the
// application code; codes outside every known range classify as Internal with
// the original code noted in the message.
func FromCode(code int, msg string) error {
	switch {
	case code == 0:
		return nil
	case code >= int(Internal) && code <= int(CallbackFailed):
		return &Error{kind: Kind(code), msg: msg}
	case code >= UserErrorOffset:
		return &Error{kind: User, msg: msg, code: code - UserErrorOffset}
	default:
		return &Error{kind: Internal, msg: fmt.Sprintf("error code %d: %s", code, msg)}
	}
}
