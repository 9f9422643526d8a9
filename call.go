package streambus

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	buserr "github.com/arloliu/streambus/errors"
	"github.com/arloliu/streambus/serial"
	"github.com/arloliu/streambus/stream"
)

// defaultAckTimeout bounds the wait for the acknowledgement entry that
// carries the response deadline.
const defaultAckTimeout = time.Second

// callConfig collects per-call parameters.
type callConfig struct {
	method     serial.Method
	ackTimeout time.Duration
}

// CallOption customizes one Command invocation.
type CallOption func(*callConfig) error

// WithCallSerialization sets the serialization method of the request payload
// for this call. Defaults to the element's serialization method.
func WithCallSerialization(m serial.Method) CallOption {
	return func(cfg *callConfig) error {
		cfg.method = m
		return nil
	}
}

// WithAckTimeout sets how long the caller waits for the target to acknowledge
// the command before giving up. Defaults to 1 second.
func WithAckTimeout(d time.Duration) CallOption {
	return func(cfg *callConfig) error {
		if d <= 0 {
			return stderrors.New("ack timeout must be positive")
		}
		cfg.ackTimeout = d

		return nil
	}
}

// CallReply is the successful outcome of a Command call: the response payload
// and the method it was encoded under.
type CallReply struct {
	Data   []byte
	Method serial.Method
}

// Decode deserializes the payload under its declared method.
func (r *CallReply) Decode() (any, error) {
	return serial.Decode(r.Data, r.Method)
}

// DecodeInto deserializes a msgpack payload into dst, which must be a
// pointer.
func (r *CallReply) DecodeInto(dst any) error {
	return serial.DecodeInto(r.Data, r.Method, dst)
}

// Command invokes a named command on a target element and waits for its
// response.
//
// The exchange rides streams end to end: the request is appended to the
// target's command stream, then the caller follows its own response stream
// for an acknowledgement from the target carrying the request's entry id.
// The acknowledgement declares the response deadline the target commits to;
// the caller then waits up to that deadline for the response entry.
//
// A missing acknowledgement or response yields a NoResponse-kind error. A
// response with a non-zero err_code is reconstructed into the error the
// handler reported, including application-defined failure codes.
func (e *Element) Command(ctx context.Context, target, name string, payload any, opts ...CallOption) (*CallReply, error) {
	if e.closed.Load() {
		return nil, buserr.New(buserr.Internal, "element is closed")
	}
	if target == "" || name == "" {
		return nil, buserr.New(buserr.InvalidCommand, "target and command names must not be empty")
	}

	cfg := &callConfig{method: e.method, ackTimeout: defaultAckTimeout}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	data, err := serial.Encode(payload, cfg.method)
	if err != nil {
		return nil, buserr.Wrap(buserr.InvalidCommand, "encode command payload", err)
	}

	// Pin the cursor of this element's own response stream before sending, so
	// the ack cannot slip past between the write and the first read.
	cursor, err := e.responseCursor(ctx)
	if err != nil {
		return nil, err
	}

	req := [][]byte{
		[]byte(elementKey), []byte(e.name),
		[]byte(cmdKey), []byte(name),
		[]byte(dataKey), data,
		[]byte(stream.SerKey), []byte(cfg.method.String()),
	}

	cmdID, err := e.engine.Append(ctx, commandStream(target), req...)
	if err != nil {
		return nil, err
	}

	ack, cursor, err := e.awaitEntry(ctx, responseStream(e.name), cursor,
		time.Now().Add(cfg.ackTimeout),
		func(ent *stream.Entry) bool {
			responder, _ := ent.Get(elementKey)
			id, _ := ent.Get(cmdIDKey)
			_, hasTimeout := ent.Get(timeoutKey)

			return hasTimeout && string(responder) == target && string(id) == cmdID
		})
	if err != nil {
		return nil, err
	}
	if ack == nil {
		return nil, buserr.Newf(buserr.NoResponse, "did not receive acknowledge from %s", target)
	}

	tv, _ := ack.Get(timeoutKey)
	ms, err := strconv.ParseInt(string(tv), 10, 64)
	if err != nil || ms <= 0 {
		return nil, buserr.Newf(buserr.Internal, "acknowledge from %s carries invalid timeout %q", target, string(tv))
	}

	res, _, err := e.awaitEntry(ctx, responseStream(e.name), cursor,
		time.Now().Add(time.Duration(ms)*time.Millisecond),
		func(ent *stream.Entry) bool {
			id, _ := ent.Get(cmdIDKey)
			_, hasCode := ent.Get(errCodeKey)

			return hasCode && string(id) == cmdID
		})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, buserr.Newf(buserr.NoResponse, "did not receive response from %s", target)
	}

	return decodeResponse(target, res)
}

// responseCursor returns the id of the newest entry on this element's own
// response stream, or "0" when the stream is empty, so the follow starts just
// before the command is sent.
func (e *Element) responseCursor(ctx context.Context) (string, error) {
	entries, err := e.engine.ReverseRangeRead(ctx, responseStream(e.name), "", "", 1)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "0", nil
	}

	return entries[0].ID, nil
}

// awaitEntry follows a stream from cursor until match accepts an entry or the
// deadline passes. It returns the matched entry (nil on deadline) and the
// advanced cursor.
func (e *Element) awaitEntry(ctx context.Context, streamName, cursor string, deadline time.Time, match func(*stream.Entry) bool) (*stream.Entry, string, error) {
	for {
		// A wait shorter than the store's 1ms block resolution counts as
		// expired; one more read could not be bounded by it anyway.
		remaining := time.Until(deadline)
		if remaining < time.Millisecond {
			return nil, cursor, nil
		}

		entries, err := e.engine.Read(ctx, streamName, cursor, remaining, 0)
		if err != nil {
			return nil, cursor, err
		}

		for i := range entries {
			cursor = entries[i].ID
			if match(&entries[i]) {
				return &entries[i], cursor, nil
			}
		}
	}
}

// decodeResponse converts a response entry into a CallReply or the error the
// handler reported.
func decodeResponse(target string, ent *stream.Entry) (*CallReply, error) {
	codeBytes, _ := ent.Get(errCodeKey)
	code, err := strconv.Atoi(string(codeBytes))
	if err != nil {
		return nil, buserr.Newf(buserr.Internal, "response from %s carries invalid error code %q", target, string(codeBytes))
	}

	if code != 0 {
		msg, _ := ent.Get(errStrKey)
		return nil, buserr.FromCode(code, string(msg))
	}

	method, err := ent.Method()
	if err != nil {
		return nil, buserr.Wrap(buserr.Internal, "response from "+target, err)
	}

	data, _ := ent.Get(dataKey)

	return &CallReply{Data: data, Method: method}, nil
}
