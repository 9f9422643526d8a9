package link

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/arloliu/streambus/logger"
)

// ConnState represents the lifecycle stage of a connection.
type ConnState uint32

// Connection states.
const (
	// DisconnectedState indicates that no socket is established. The initial
	// state, and the state after a failed synchronous connect.
	DisconnectedState ConnState = iota
	// ConnectingState indicates that a dial is in progress.
	ConnectingState
	// ConnectedState indicates that the socket is established and the
	// connection is ready for request/reply exchange.
	ConnectedState
	// ClosedState is terminal: the connection was closed, either by the
	// caller or by a transport failure, and cannot be reused.
	ClosedState
)

// IsDisconnected returns if the state is disconnected.
func (cs ConnState) IsDisconnected() bool { return cs == DisconnectedState }

// IsConnecting returns if the state is connecting.
func (cs ConnState) IsConnecting() bool { return cs == ConnectingState }

// IsConnected returns if the state is connected.
func (cs ConnState) IsConnected() bool { return cs == ConnectedState }

// IsClosed returns if the state is closed.
func (cs ConnState) IsClosed() bool { return cs == ClosedState }

// String returns string representation of the state.
func (cs ConnState) String() string {
	switch cs {
	case DisconnectedState:
		return "disconnected"
	case ConnectingState:
		return "connecting"
	case ConnectedState:
		return "connected"
	case ClosedState:
		return "closed"
	default:
		return "unknown"
	}
}

// StateChangeHandler is invoked when the connection state changes.
//
// Note: the handler is invoked in blocking mode while the state lock is held.
// Take care with long-running implementations.
type StateChangeHandler func(prevState ConnState, newState ConnState)

// connStateMgr manages the lifecycle state of one connection.
//
// State transitions are thread safe, and waiters registered through WaitState
// are woken on every transition or when their context is canceled.
type connStateMgr struct {
	mu       sync.Mutex
	cond     *sync.Cond
	state    atomic.Uint32
	logger   logger.Logger
	handlers []StateChangeHandler
}

func newConnStateMgr(l logger.Logger, handlers ...StateChangeHandler) *connStateMgr {
	mgr := &connStateMgr{
		logger:   l,
		handlers: handlers,
	}
	mgr.state.Store(uint32(DisconnectedState))
	mgr.cond = sync.NewCond(&mgr.mu)

	return mgr
}

// State returns the current connection state.
func (cs *connStateMgr) State() ConnState {
	return ConnState(cs.state.Load())
}

// AddHandler adds one or more StateChangeHandler functions invoked on state
// changes.
func (cs *connStateMgr) AddHandler(handlers ...StateChangeHandler) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.handlers = append(cs.handlers, handlers...)
}

// WaitState waits for the connection state to reach the specified state or
// until the context is done.
func (cs *connStateMgr) WaitState(ctx context.Context, state ConnState) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.State() == state {
		return nil
	}

	stopFunc := context.AfterFunc(ctx, func() {
		cs.cond.Broadcast()
	})
	defer stopFunc()

	for cs.State() != state {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			cs.cond.Wait()
		}
	}

	return nil
}

// to transitions to the desired state, returning ErrInvalidTransition when
// the lifecycle does not allow it. Transitioning to the current state is a
// no-op.
func (cs *connStateMgr) to(state ConnState) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	curState := cs.State()
	if curState == state {
		return nil
	}

	if !validTransition(curState, state) {
		return ErrInvalidTransition
	}

	cs.setState(state)
	cs.invokeHandlers(curState, state)

	return nil
}

// validTransition encodes the lifecycle: Disconnected→Connecting→Connected,
// any state→Closed, Connecting→Disconnected (failed dial), and
// Connected→Disconnected is not allowed — a lost socket closes the conn.
func validTransition(from, to ConnState) bool {
	switch to {
	case ClosedState:
		return true
	case ConnectingState:
		return from == DisconnectedState
	case ConnectedState:
		return from == ConnectingState
	case DisconnectedState:
		return from == ConnectingState
	default:
		return false
	}
}

// setState atomically sets the current state and broadcasts a signal to any
// waiting goroutines.
func (cs *connStateMgr) setState(newState ConnState) {
	cs.state.Store(uint32(newState))
	cs.cond.Broadcast()
}

func (cs *connStateMgr) invokeHandlers(prevState ConnState, newState ConnState) {
	for _, handler := range cs.handlers {
		if handler != nil {
			handler(prevState, newState)
		}
	}
}
