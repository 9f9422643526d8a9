package streambus

import (
	"context"
	stderrors "errors"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	buserr "github.com/arloliu/streambus/errors"
	"github.com/arloliu/streambus/internal/task"
	"github.com/arloliu/streambus/link"
	"github.com/arloliu/streambus/logger"
	"github.com/arloliu/streambus/serial"
	"github.com/arloliu/streambus/stream"
)

// elementConfig collects the construction parameters of an Element.
type elementConfig struct {
	target         link.Target
	poolSize       int
	maxLen         int64
	method         serial.Method
	handlerTimeout time.Duration
	logger         logger.Logger
	healthcheck    func(ctx context.Context) error
}

// Option customizes an Element at construction.
type Option func(*elementConfig) error

// WithTarget sets the store endpoint. Defaults to TCP localhost:6379.
func WithTarget(target link.Target) Option {
	return func(cfg *elementConfig) error {
		if target == nil {
			return stderrors.New("target is nil")
		}
		cfg.target = target

		return nil
	}
}

// WithPoolSize sets the connection pool capacity, which bounds the element's
// concurrent load on the store. Defaults to 4.
func WithPoolSize(size int) Option {
	return func(cfg *elementConfig) error {
		if size <= 0 {
			return stderrors.New("pool size must be positive")
		}
		cfg.poolSize = size

		return nil
	}
}

// WithSerialization sets the default method for entry writes.
// Defaults to MethodNone.
func WithSerialization(m serial.Method) Option {
	return func(cfg *elementConfig) error {
		cfg.method = m
		return nil
	}
}

// WithHandlerTimeout sets the response deadline declared in acknowledgements
// for commands registered without their own timeout. Defaults to 1 second.
func WithHandlerTimeout(d time.Duration) Option {
	return func(cfg *elementConfig) error {
		if d <= 0 {
			return stderrors.New("handler timeout must be positive")
		}
		cfg.handlerTimeout = d

		return nil
	}
}

// WithStreamMaxLen sets the approximate length streams are trimmed to on
// writes. Defaults to 1024.
func WithStreamMaxLen(n int64) Option {
	return func(cfg *elementConfig) error {
		if n <= 0 {
			return stderrors.New("stream max length must be positive")
		}
		cfg.maxLen = n

		return nil
	}
}

// WithLogger sets the logger instance of the element.
func WithLogger(l logger.Logger) Option {
	return func(cfg *elementConfig) error {
		if l == nil {
			return stderrors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	}
}

// WithHealthcheck replaces the built-in healthcheck predicate. The default
// always reports healthy.
func WithHealthcheck(fn func(ctx context.Context) error) Option {
	return func(cfg *elementConfig) error {
		if fn == nil {
			return stderrors.New("healthcheck is nil")
		}
		cfg.healthcheck = fn

		return nil
	}
}

// Element is a named participant of the messaging system.
//
// It owns the streams it publishes, a registry of command handlers, and the
// dispatch loop that serves those commands to peers. One Element represents
// one process; it is not shared across processes.
type Element struct {
	name     string
	host     string
	consumer string
	logger   logger.Logger

	pool   *link.Pool
	engine *stream.Engine

	method         serial.Method
	handlerTimeout time.Duration
	healthcheck    func(ctx context.Context) error

	handlers *xsync.MapOf[string, *command]
	streams  *xsync.MapOf[string, struct{}]

	taskMgr *task.Manager
	jobs    chan func()

	started atomic.Bool
	closed  atomic.Bool
}

// New creates an Element with the given name, connects it to the store, and
// stamps its identity meta entries so the element's command and response
// streams exist before any peer interacts with them.
func New(name string, opts ...Option) (*Element, error) {
	if name == "" {
		return nil, buserr.New(buserr.InvalidCommand, "element name is empty")
	}
	if strings.ContainsAny(name, ": \t\n") {
		return nil, buserr.Newf(buserr.InvalidCommand, "element name %q contains reserved characters", name)
	}

	cfg := &elementConfig{
		target:         link.TCP("localhost", 6379),
		poolSize:       4,
		maxLen:         1024,
		method:         serial.MethodNone,
		handlerTimeout: time.Second,
		logger:         logger.GetLogger(),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	linkCfg, err := link.NewConfig(cfg.target, link.WithLogger(cfg.logger))
	if err != nil {
		return nil, err
	}

	pool, err := link.NewPool(linkCfg, cfg.poolSize)
	if err != nil {
		return nil, err
	}

	engine, err := stream.NewEngine(pool,
		stream.WithMaxLen(cfg.maxLen),
		stream.WithEngineLogger(cfg.logger),
	)
	if err != nil {
		pool.Close()
		return nil, err
	}

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	e := &Element{
		name:           name,
		host:           host,
		consumer:       uuid.NewString(),
		logger:         cfg.logger.With("element", name),
		pool:           pool,
		engine:         engine,
		method:         cfg.method,
		handlerTimeout: cfg.handlerTimeout,
		healthcheck:    cfg.healthcheck,
		handlers:       xsync.NewMapOf[string, *command](),
		streams:        xsync.NewMapOf[string, struct{}](),
		taskMgr:        task.NewManager(context.Background(), cfg.logger),
		jobs:           make(chan func(), dispatchQueueSize),
	}

	if err := e.stampIdentity(); err != nil {
		pool.Close()
		return nil, err
	}

	e.registerBuiltins()
	e.logger.Debug("element initialized", "host", host, "consumer", e.consumer)

	return e, nil
}

// stampIdentity writes the language/version meta entries onto the element's
// response and command streams. This both declares the client identity and
// creates the streams, and doubles as the connectivity check at construction.
func (e *Element) stampIdentity() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	meta := [][]byte{
		[]byte(stream.LanguageKey), []byte(Language),
		[]byte(stream.VersionKey), []byte(Version),
	}

	for _, s := range []string{responseStream(e.name), commandStream(e.name)} {
		if _, err := e.engine.Append(ctx, s, meta...); err != nil {
			return err
		}
	}

	return nil
}

// Name returns the element's name.
func (e *Element) Name() string {
	return e.name
}

// Close stops the dispatcher and releases the connection pool. It is
// idempotent, and safe to call whether or not Start was called.
func (e *Element) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}

	e.taskMgr.Stop()
	e.taskMgr.Wait()
	e.pool.Close()
	e.logger.Debug("element closed")
}
