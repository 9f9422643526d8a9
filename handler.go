package streambus

import (
	"context"
	stderrors "errors"
	"time"

	buserr "github.com/arloliu/streambus/errors"
	"github.com/arloliu/streambus/serial"
)

// Handler processes one command request and produces a response.
//
// Commands are delivered at least once: a handler may observe the same
// request id twice and must be idempotent or dedupe by Request.ID. A handler
// error is reported to the caller as callback_failed unless it is a
// User-kind error, whose application code rides the user error band.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Request is one decoded command delivery.
type Request struct {
	// Caller is the name of the element that sent the command.
	Caller string
	// Command is the invoked command name.
	Command string
	// ID is the store-assigned id of the command entry, unique per command
	// stream. It doubles as the deduplication key for at-least-once
	// delivery.
	ID string
	// Data is the raw request payload.
	Data []byte
	// Value is the decoded payload, set only when the command was registered
	// with WithRequestMethod.
	Value any
}

// Response is a handler's reply to one command.
type Response struct {
	// Data is the encoded response payload.
	Data []byte
	// Method tags how Data was encoded.
	Method serial.Method
	// ErrCode is the wire error code: 0 for success, an application failure
	// code offset onto the user error band otherwise.
	ErrCode int
	// ErrStr carries the failure detail when ErrCode is non-zero.
	ErrStr string
}

// OK creates a successful response with a raw payload.
func OK(data []byte) *Response {
	return &Response{Data: data}
}

// Encoded creates a successful response with v encoded under method m.
func Encoded(v any, m serial.Method) (*Response, error) {
	data, err := serial.Encode(v, m)
	if err != nil {
		return nil, err
	}

	return &Response{Data: data, Method: m}, nil
}

// Fail creates a failed response with an application failure code. The code
// is offset onto the user error band on the wire, so it never collides with
// the framework's own error kinds; the caller decodes it back to code.
func Fail(code int, msg string) *Response {
	if code < 0 {
		code = 0
	}

	return &Response{ErrCode: buserr.UserErrorOffset + code, ErrStr: msg}
}

// command is one registry slot of the handler map.
type command struct {
	handler   Handler
	timeout   time.Duration
	reqMethod serial.Method
	decodeReq bool
	builtin   bool
}

// CommandOption customizes one registered command.
type CommandOption func(*command) error

// WithTimeout sets the response deadline this command declares in its
// acknowledgement; callers wait that long for the response. It also bounds
// the handler's context. Defaults to the element's handler timeout.
func WithTimeout(d time.Duration) CommandOption {
	return func(c *command) error {
		if d <= 0 {
			return stderrors.New("command timeout must be positive")
		}
		c.timeout = d

		return nil
	}
}

// WithRequestMethod declares the serialization method of the request payload;
// the dispatcher decodes it before invoking the handler and passes the value
// in Request.Value.
func WithRequestMethod(m serial.Method) CommandOption {
	return func(c *command) error {
		c.reqMethod = m
		c.decodeReq = true

		return nil
	}
}

// AddCommand registers a named command handler. Peers invoke it with
// Element.Command. Built-in command names cannot be re-registered;
// registering is safe while the dispatcher runs.
func (e *Element) AddCommand(name string, h Handler, opts ...CommandOption) error {
	if name == "" {
		return buserr.New(buserr.InvalidCommand, "command name is empty")
	}
	if h == nil {
		return buserr.New(buserr.InvalidCommand, "command handler is nil")
	}
	if existing, ok := e.handlers.Load(name); ok && existing.builtin {
		return buserr.Newf(buserr.InvalidCommand, "command name %q is reserved", name)
	}

	cmd := &command{handler: h, timeout: e.handlerTimeout}
	for _, opt := range opts {
		if err := opt(cmd); err != nil {
			return err
		}
	}

	e.handlers.Store(name, cmd)

	return nil
}

// commandTimeout returns the response deadline a command declares, falling
// back to the element default for unknown commands so the acknowledgement
// always carries a bound.
func (e *Element) commandTimeout(name string) time.Duration {
	if cmd, ok := e.handlers.Load(name); ok {
		return cmd.timeout
	}

	return e.handlerTimeout
}
