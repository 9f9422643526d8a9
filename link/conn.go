package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	buserr "github.com/arloliu/streambus/errors"
	"github.com/arloliu/streambus/internal/task"
	"github.com/arloliu/streambus/logger"
	"github.com/arloliu/streambus/resp"
)

// Conn is one logical connection to the log store.
//
// It owns exactly one socket and one receive buffer, performs strictly one
// in-flight request/reply at a time, and allows at most one outstanding
// unreleased Reply. A Conn must not be shared by two in-flight operations;
// lease one per caller from a Pool instead.
type Conn struct {
	cfg      *Config
	logger   logger.Logger
	stateMgr *connStateMgr
	taskMgr  *task.Manager

	opMu sync.Mutex // serializes request/reply exchange

	sockMu sync.Mutex
	sock   net.Conn
	reader *resp.Reader

	dialMu     sync.Mutex
	dialCancel context.CancelFunc

	outstanding atomic.Pointer[Reply]
	metrics     ConnMetrics
}

// NewConn creates a connection in the Disconnected state. Call Connect or
// ConnectAsync to establish it.
func NewConn(cfg *Config, handlers ...StateChangeHandler) (*Conn, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}

	c := &Conn{
		cfg:     cfg,
		logger:  cfg.logger,
		taskMgr: task.NewManager(context.Background(), cfg.logger),
	}
	c.stateMgr = newConnStateMgr(cfg.logger, handlers...)

	return c, nil
}

// State returns the current connection state.
func (c *Conn) State() ConnState {
	return c.stateMgr.State()
}

// WaitState waits for the connection to reach the specified state or until
// the context is done.
func (c *Conn) WaitState(ctx context.Context, state ConnState) error {
	return c.stateMgr.WaitState(ctx, state)
}

// GetLogger returns the logger instance of the connection.
func (c *Conn) GetLogger() logger.Logger {
	return c.logger
}

// GetMetrics returns the metrics of the connection.
func (c *Conn) GetMetrics() *ConnMetrics {
	return &c.metrics
}

// Connect establishes the connection synchronously.
//
// Connecting an already-connected conn is a no-op. On dial failure the state
// returns to Disconnected and the transport error is returned, so the caller
// may retry. A closed conn cannot be reconnected.
func (c *Conn) Connect(ctx context.Context) error {
	switch c.stateMgr.State() {
	case ConnectedState:
		return nil
	case ClosedState:
		return ErrConnClosed
	}

	if err := c.stateMgr.to(ConnectingState); err != nil {
		return fmt.Errorf("%w: connect while %s", err, c.stateMgr.State())
	}

	if err := c.dial(ctx); err != nil {
		// Close may have raced the dial; ToDisconnected is then a no-op.
		_ = c.stateMgr.to(DisconnectedState)
		return err
	}

	if err := c.stateMgr.to(ConnectedState); err != nil {
		// Close raced the dial and won; discard the fresh socket.
		c.closeSocket()
		return ErrConnClosed
	}

	c.logger.Debug("connected", "target", c.cfg.target.String())

	return nil
}

// ConnectAsync establishes the connection in the background. Completion is
// delivered on the returned 1-buffered channel.
//
// Unlike Connect, a failed asynchronous connect (including cancellation of
// ctx) transitions the conn to Closed before the error is delivered, so a
// waiter observing the state never sees a half-dead conn.
func (c *Conn) ConnectAsync(ctx context.Context) <-chan error {
	done := make(chan error, 1)

	err := c.taskMgr.StartOnce("connect", func() {
		err := c.Connect(ctx)
		if err != nil {
			_ = c.Close()
		}
		done <- err
	})
	if err != nil {
		done <- err
	}

	return done
}

// Do writes one fully-formed request frame and blocks for exactly one reply.
//
// The read deadline comes from ctx when it carries one, otherwise from the
// configured reply timeout. Canceling ctx or closing the conn unblocks the
// exchange with a transport error.
//
// A store error reply is converted into a Store-kind error carrying the
// store's message and its buffer is recycled internally; it is never returned
// as data. A successful reply is returned as a Reply that must be released
// before the next Do on this conn.
func (c *Conn) Do(ctx context.Context, args ...[]byte) (*Reply, error) {
	if len(args) == 0 {
		return nil, errors.New("empty request frame")
	}

	switch c.stateMgr.State() {
	case ClosedState:
		return nil, ErrConnClosed
	case ConnectedState:
	default:
		return nil, ErrConnNotConnected
	}

	if !c.opMu.TryLock() {
		return nil, ErrConnBusy
	}
	defer c.opMu.Unlock()

	if c.outstanding.Load() != nil {
		return nil, ErrReplyOutstanding
	}

	c.sockMu.Lock()
	sock, reader := c.sock, c.reader
	c.sockMu.Unlock()
	if sock == nil {
		return nil, ErrConnNotConnected
	}

	// Unblock the socket when the caller's context is canceled.
	stopFunc := context.AfterFunc(ctx, func() {
		_ = sock.SetDeadline(time.Now())
	})
	defer stopFunc()

	frame := resp.GetFrame()
	frame.Buf = resp.AppendCommand(frame.Buf, args...)

	_ = sock.SetWriteDeadline(time.Now().Add(c.cfg.sendTimeout))
	_, err := sock.Write(frame.Buf)
	resp.PutFrame(frame)
	if err != nil {
		return nil, c.fault("write request", err)
	}
	c.metrics.incRequestCount()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.cfg.replyTimeout)
	}
	_ = sock.SetReadDeadline(deadline)

	val, err := reader.ReadReply()
	if err != nil {
		// Protocol violations poison the stream position as surely as a
		// socket fault; both close the conn.
		return nil, c.fault("read reply", err)
	}
	c.metrics.incReplyCount()

	if val.IsError() {
		c.metrics.incStoreErrCount()
		return nil, buserr.New(buserr.Store, val.Text())
	}

	reply := &Reply{conn: c, val: val}
	c.outstanding.Store(reply)

	return reply, nil
}

// Close shuts the connection down gracefully: half-close where the transport
// supports it, then close. It is a no-op when already closed and always
// returns nil; shutdown errors are logged, not propagated, since the conn is
// being discarded anyway. Closing unblocks an in-flight Do and a pending
// asynchronous connect.
func (c *Conn) Close() error {
	if c.stateMgr.State().IsClosed() {
		return nil
	}

	_ = c.stateMgr.to(ClosedState)

	c.dialMu.Lock()
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	c.dialMu.Unlock()

	c.closeSocket()
	c.taskMgr.Stop()

	return nil
}

// dial resolves the target and establishes the raw socket.
func (c *Conn) dial(ctx context.Context) error {
	c.metrics.incDialCount()

	dctx, cancel := context.WithTimeout(ctx, c.cfg.connectTimeout)
	defer cancel()

	c.dialMu.Lock()
	c.dialCancel = cancel
	c.dialMu.Unlock()

	sock, err := c.cfg.dialFunc(dctx, c.cfg.target.Network(), c.cfg.target.Address())

	c.dialMu.Lock()
	c.dialCancel = nil
	c.dialMu.Unlock()

	if err != nil {
		c.metrics.incDialErrCount()
		c.logger.Debug("dial failed", "target", c.cfg.target.String(), "error", err)
		return fmt.Errorf("%w: dial %s: %w", ErrTransport, c.cfg.target.String(), err)
	}

	c.sockMu.Lock()
	c.sock = sock
	c.reader = resp.NewReader(sock)
	c.sockMu.Unlock()

	return nil
}

// fault records a socket-level failure, closes the conn, and returns the
// wrapped transport error.
func (c *Conn) fault(op string, err error) error {
	c.metrics.incTransportErrCount()
	c.logger.Debug("transport fault", "op", op, "target", c.cfg.target.String(), "error", err)

	_ = c.stateMgr.to(ClosedState)
	c.closeSocket()

	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

func (c *Conn) closeSocket() {
	c.sockMu.Lock()
	defer c.sockMu.Unlock()

	if c.sock == nil {
		return
	}

	if cw, ok := c.sock.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			c.logger.Debug("half-close failed", "error", err)
		}
	}
	if err := c.sock.Close(); err != nil {
		c.logger.Debug("close failed", "error", err)
	}

	c.sock = nil
	c.reader = nil
}

// releaseReply clears the outstanding reply slot, making the receive buffer
// available for the next exchange.
func (c *Conn) releaseReply(r *Reply) {
	c.outstanding.CompareAndSwap(r, nil)
}
