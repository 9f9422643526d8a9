package link

import "errors"

var (
	// ErrConfigNil indicates that a nil Config was provided.
	ErrConfigNil = errors.New("config is nil")

	// ErrConnClosed indicates that the connection is closed and cannot be
	// used for further operations.
	ErrConnClosed = errors.New("connection closed")

	// ErrConnNotConnected indicates that an operation requires an established
	// connection but the connection is not in the Connected state.
	ErrConnNotConnected = errors.New("connection not connected")

	// ErrConnBusy indicates that another request is already in flight on the
	// connection. A connection performs one request/reply at a time.
	ErrConnBusy = errors.New("connection busy with an in-flight request")

	// ErrReplyOutstanding indicates that the previous reply has not been
	// released yet. Release it before issuing the next request.
	ErrReplyOutstanding = errors.New("previous reply not released")

	// ErrReplyReleased indicates that the reply buffer was already released.
	ErrReplyReleased = errors.New("reply already released")
)

var (
	// ErrTransport indicates a socket-level failure: reset, timeout, broken
	// pipe, or an unexpected close. The connection transitions to Closed.
	ErrTransport = errors.New("transport failure")

	// ErrInvalidTransition is returned when an attempt is made to transition
	// the connection state to an invalid state.
	ErrInvalidTransition = errors.New("invalid state transition")
)

var (
	// ErrPoolExhausted indicates that no idle connection became available
	// within the acquire timeout.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrPoolClosed indicates that the pool has been closed.
	ErrPoolClosed = errors.New("connection pool closed")
)
