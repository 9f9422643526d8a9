package link

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/streambus/internal/pool"
	"github.com/arloliu/streambus/logger"
)

// Pool is a bounded, reusable set of connections to one store endpoint.
//
// Capacity is fixed at construction. A connection is either idle in the pool
// or leased to exactly one caller, never both; a connection found Closed is
// discarded and lazily replaced by a fresh one on a later acquisition, so the
// pool converges back to full capacity.
type Pool struct {
	cfg            *Config
	size           int
	acquireTimeout time.Duration
	logger         logger.Logger

	// idle holds the checked-in connections. A nil entry is an empty slot: a
	// connection is created for it lazily on acquisition.
	idle   chan *Conn
	closed atomic.Bool
}

// PoolOption customizes a Pool.
type PoolOption func(*Pool) error

// WithAcquireTimeout sets how long Acquire blocks for an idle connection
// before failing with ErrPoolExhausted. Defaults to 5 seconds.
func WithAcquireTimeout(d time.Duration) PoolOption {
	return func(p *Pool) error {
		if d <= 0 {
			return errors.New("acquire timeout must be positive")
		}
		p.acquireTimeout = d

		return nil
	}
}

// NewPool creates a pool of size connections configured by cfg. Connections
// are created and connected lazily, on first acquisition of each slot.
func NewPool(cfg *Config, size int, opts ...PoolOption) (*Pool, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if size <= 0 {
		return nil, errors.New("pool size must be positive")
	}

	p := &Pool{
		cfg:            cfg,
		size:           size,
		acquireTimeout: 5 * time.Second,
		logger:         cfg.logger,
		idle:           make(chan *Conn, size),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	for i := 0; i < size; i++ {
		p.idle <- nil
	}

	return p, nil
}

// Size returns the fixed capacity of the pool.
func (p *Pool) Size() int {
	return p.size
}

// Idle returns the number of currently checked-in connections or empty slots.
func (p *Pool) Idle() int {
	return len(p.idle)
}

// Acquire hands out an exclusive lease on an idle connection, connecting it
// first when needed.
//
// It blocks until a connection is checked in, the acquire timeout elapses
// (ErrPoolExhausted), or ctx is done. It never creates connections beyond the
// pool's capacity.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	timer := pool.GetTimer(p.acquireTimeout)
	defer pool.PutTimer(timer)

	var conn *Conn
	select {
	case conn = <-p.idle:
	case <-timer.C:
		return nil, ErrPoolExhausted
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if p.closed.Load() {
		if conn != nil {
			_ = conn.Close()
		}
		return nil, ErrPoolClosed
	}

	// A connection that died while idle is discarded here; its slot gets a
	// fresh connection, keeping the pool at capacity.
	if conn != nil && conn.State().IsClosed() {
		p.logger.Debug("discard closed idle connection")
		conn = nil
	}

	if conn == nil {
		var err error
		conn, err = NewConn(p.cfg)
		if err != nil {
			p.idle <- nil
			return nil, err
		}
	}

	if !conn.State().IsConnected() {
		if err := conn.Connect(ctx); err != nil {
			// The conn stays Disconnected and reusable; check it back in.
			p.checkin(conn)
			return nil, err
		}
	}

	return &Lease{pool: p, conn: conn}, nil
}

// Close closes all idle connections and poisons the pool. Connections still
// leased are closed when their lease is released.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	for {
		select {
		case conn := <-p.idle:
			if conn != nil {
				_ = conn.Close()
			}
		default:
			return
		}
	}
}

func (p *Pool) checkin(conn *Conn) {
	if conn != nil && conn.State().IsClosed() {
		conn = nil
	}

	if p.closed.Load() {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}

	p.idle <- conn

	// Close may have finished draining between the check above and the send,
	// which would park this connection in a poisoned pool. Re-check and sweep
	// one entry so a racing check-in never leaks a live socket.
	if p.closed.Load() {
		select {
		case swept := <-p.idle:
			if swept != nil {
				_ = swept.Close()
			}
		default:
		}
	}
}

// Lease is the exclusive checkout of one pooled connection.
type Lease struct {
	pool *Pool
	mu   sync.Mutex
	conn *Conn
}

// Conn returns the leased connection, or nil after the lease was released.
func (l *Lease) Conn() *Conn {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.conn
}

// Release returns the connection to the pool's idle set. Releasing a closed
// connection leaves an empty slot in its place. Release is idempotent per
// lease.
func (l *Lease) Release() {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	if conn == nil {
		return
	}

	l.pool.checkin(conn)
}
