package streambus

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	buserr "github.com/arloliu/streambus/errors"
	"github.com/arloliu/streambus/internal/pool"
	"github.com/arloliu/streambus/serial"
	"github.com/arloliu/streambus/stream"
)

const (
	// dispatchQueueSize bounds commands accepted but not yet handled; a full
	// queue applies backpressure to the read loop instead of growing memory.
	dispatchQueueSize = 64
	// dispatchWorkers is the number of goroutines executing handlers.
	dispatchWorkers = 4

	readBlock   = time.Second
	readBatch   = 16
	readBackoff = 100 * time.Millisecond
)

// Start launches the command dispatcher: a read loop following the element's
// command stream through a consumer group, and a fixed set of workers running
// the handlers. It returns once the loop is up; call Close to stop it.
//
// Commands registered after Start are served without restarting.
func (e *Element) Start() error {
	if e.closed.Load() {
		return buserr.New(buserr.Internal, "element is closed")
	}
	if !e.started.CompareAndSwap(false, true) {
		return buserr.New(buserr.Internal, "element already started")
	}

	ctx, cancel := context.WithTimeout(e.taskMgr.Context(), 10*time.Second)
	defer cancel()

	// The group cursor starts at the stream tail: commands sent before this
	// element ever existed are stale and never served. On restart the group
	// survives with its cursor, so undelivered commands are picked up.
	err := e.engine.GroupCreate(ctx, commandStream(e.name), e.name, "$")
	if err != nil && !stderrors.Is(err, stream.ErrGroupExists) {
		e.started.Store(false)
		return err
	}

	for i := 0; i < dispatchWorkers; i++ {
		if err := e.taskMgr.StartWorker(fmt.Sprintf("dispatch-worker-%d", i), e.jobs, nil); err != nil {
			e.started.Store(false)
			return err
		}
	}

	if err := e.taskMgr.Start("dispatch-read", e.readCommands); err != nil {
		e.started.Store(false)
		return err
	}

	e.logger.Info("dispatcher started", "consumer", e.consumer)

	return nil
}

// readCommands is one iteration of the dispatcher read loop.
func (e *Element) readCommands() bool {
	ctx := e.taskMgr.Context()

	entries, err := e.engine.GroupRead(ctx, e.name, e.consumer, commandStream(e.name), readBlock, readBatch)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}

		e.logger.Error("command read failed", "error", err)

		t := pool.GetTimer(readBackoff)
		defer pool.PutTimer(t)
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
		}

		return true
	}

	for i := range entries {
		e.dispatchEntry(ctx, &entries[i])
	}

	return true
}

// dispatchEntry writes the acknowledgement to the caller's response stream
// and queues the handler job. The acknowledgement goes out before the handler
// runs so the caller learns the response deadline immediately; the handler
// outcome travels in the later response entry.
//
// Entries that never reach a worker are acknowledged to the group here;
// dispatched entries are acknowledged by the worker after the response is
// written, so a crash mid-handler leaves the command pending for redelivery.
func (e *Element) dispatchEntry(ctx context.Context, ent *stream.Entry) {
	name, hasCmd := ent.Get(cmdKey)
	caller, hasCaller := ent.Get(elementKey)

	if !hasCmd || !hasCaller || len(caller) == 0 {
		// Identity meta entries share the command stream; skip them quietly.
		if _, meta := ent.Get(stream.LanguageKey); !meta {
			e.logger.Warn("malformed command entry", "id", ent.ID)
		}
		e.ackDelivery(ctx, ent.ID)

		return
	}

	data, _ := ent.Get(dataKey)
	timeout := e.commandTimeout(string(name))

	ack := [][]byte{
		[]byte(elementKey), []byte(e.name),
		[]byte(cmdIDKey), []byte(ent.ID),
		[]byte(timeoutKey), []byte(strconv.FormatInt(timeout.Milliseconds(), 10)),
	}
	if _, err := e.engine.Append(ctx, responseStream(string(caller)), ack...); err != nil {
		if ctx.Err() == nil {
			e.logger.Error("acknowledge write failed", "id", ent.ID, "cmd", string(name), "error", err)
		}

		return
	}

	req := &Request{
		Caller:  string(caller),
		Command: string(name),
		ID:      ent.ID,
		Data:    data,
	}

	select {
	case e.jobs <- func() { e.runCommand(e.taskMgr.Context(), req, timeout) }:
	case <-ctx.Done():
	}
}

// ackDelivery marks one command entry as processed for the dispatcher group.
func (e *Element) ackDelivery(ctx context.Context, id string) {
	if _, err := e.engine.Acknowledge(ctx, commandStream(e.name), e.name, id); err != nil && ctx.Err() == nil {
		e.logger.Warn("command delivery ack failed", "id", id, "error", err)
	}
}

// runCommand executes one queued command, writes its response entry to the
// caller's response stream, and settles the group delivery.
func (e *Element) runCommand(ctx context.Context, req *Request, timeout time.Duration) {
	res := e.execute(ctx, req, timeout)

	fields := [][]byte{
		[]byte(elementKey), []byte(e.name),
		[]byte(cmdKey), []byte(req.Command),
		[]byte(cmdIDKey), []byte(req.ID),
		[]byte(errCodeKey), []byte(strconv.Itoa(res.ErrCode)),
	}
	if res.ErrStr != "" {
		fields = append(fields, []byte(errStrKey), []byte(res.ErrStr))
	}
	fields = append(fields,
		[]byte(dataKey), res.Data,
		[]byte(stream.SerKey), []byte(res.Method.String()),
	)

	if _, err := e.engine.Append(ctx, responseStream(req.Caller), fields...); err != nil && ctx.Err() == nil {
		e.logger.Error("response write failed", "id", req.ID, "cmd", req.Command, "error", err)
	}

	e.ackDelivery(ctx, req.ID)
}

// execute resolves the handler and runs it under the command's deadline,
// converting every failure mode into a response the caller can decode. A
// panicking handler is contained here so one bad handler never takes the
// worker down.
func (e *Element) execute(ctx context.Context, req *Request, timeout time.Duration) (res *Response) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic in command handler", "cmd", req.Command, "panic", r)
			res = &Response{
				ErrCode: int(buserr.CallbackFailed),
				ErrStr:  fmt.Sprintf("handler for command %q panicked: %v", req.Command, r),
			}
		}
	}()

	cmd, ok := e.handlers.Load(req.Command)
	if !ok {
		return &Response{
			ErrCode: int(buserr.UnsupportedCommand),
			ErrStr:  fmt.Sprintf("element %s does not support command %s", e.name, req.Command),
		}
	}

	if cmd.decodeReq {
		v, err := serial.Decode(req.Data, cmd.reqMethod)
		if err != nil {
			return &Response{
				ErrCode: int(buserr.CallbackFailed),
				ErrStr:  fmt.Sprintf("decode request of command %q: %v", req.Command, err),
			}
		}
		req.Value = v
	}

	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := cmd.handler(hctx, req)
	if err != nil {
		code := int(buserr.CallbackFailed)
		msg := err.Error()

		var berr *buserr.Error
		if stderrors.As(err, &berr) && berr.Kind() == buserr.User {
			code = berr.Code()
			msg = berr.Message()
		}

		return &Response{ErrCode: code, ErrStr: msg}
	}
	if out == nil {
		out = &Response{}
	}

	return out
}
