package stream

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	buserr "github.com/arloliu/streambus/errors"
	"github.com/arloliu/streambus/link"
	"github.com/arloliu/streambus/logger"
	"github.com/arloliu/streambus/resp"
	"github.com/arloliu/streambus/serial"
)

// ErrGroupExists indicates that a consumer group already exists on the
// stream. The engine never overwrites an existing group's cursor; callers
// that own a fixed cursor treat this error as idempotent success. It is
// wrapped in a Store-kind error carrying the store's message.
var ErrGroupExists = stderrors.New("consumer group already exists")

// blockGrace pads the context deadline of a blocking read past the requested
// block time, leaving room for the reply to travel after the store unblocks.
const blockGrace = 5 * time.Second

// Engine executes the stream command set over connections leased from a
// pool. It is safe for concurrent use; concurrency is bounded by the pool's
// capacity.
type Engine struct {
	pool   *link.Pool
	maxLen int64
	logger logger.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine) error

// WithMaxLen sets the approximate maximum stream length entry writes trim
// streams to. Defaults to 1024.
func WithMaxLen(n int64) EngineOption {
	return func(e *Engine) error {
		if n <= 0 {
			return stderrors.New("max length must be positive")
		}
		e.maxLen = n

		return nil
	}
}

// WithEngineLogger sets the logger instance of the engine.
func WithEngineLogger(l logger.Logger) EngineOption {
	return func(e *Engine) error {
		if l == nil {
			return stderrors.New("logger is nil")
		}
		e.logger = l

		return nil
	}
}

// NewEngine creates an Engine on top of pool.
func NewEngine(pool *link.Pool, opts ...EngineOption) (*Engine, error) {
	if pool == nil {
		return nil, stderrors.New("pool is nil")
	}

	e := &Engine{
		pool:   pool,
		maxLen: 1024,
		logger: logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// WriteEntry validates and appends one entry to the stream, serializing each
// value under method and tagging the entry with it. The field sequence
// alternates keys and values: key1, value1, key2, value2, ...
//
// Validation happens before any connection is leased: the sequence must be
// non-empty and even-length, keys must be non-empty strings outside the
// reserved set. The store assigns and returns the entry id, strictly
// increasing per stream.
func (e *Engine) WriteEntry(ctx context.Context, stream string, method serial.Method, fieldValues ...any) (string, error) {
	if stream == "" {
		return "", buserr.New(buserr.InvalidCommand, "stream name is empty")
	}
	if len(fieldValues) == 0 {
		return "", buserr.New(buserr.InvalidCommand, "entry has no fields")
	}
	if len(fieldValues)%2 != 0 {
		return "", buserr.New(buserr.InvalidCommand, "entry field sequence has odd length")
	}

	args := make([][]byte, 0, 7+len(fieldValues)+2)
	args = append(args, resp.Args("XADD", stream, "MAXLEN", "~", strconv.FormatInt(e.maxLen, 10), "*")...)

	for i := 0; i < len(fieldValues); i += 2 {
		key, ok := fieldValues[i].(string)
		if !ok {
			return "", buserr.Newf(buserr.InvalidCommand, "field key at position %d is not a string", i)
		}
		if key == "" {
			return "", buserr.Newf(buserr.InvalidCommand, "field key at position %d is empty", i)
		}
		if IsReservedKey(key) {
			return "", buserr.Newf(buserr.InvalidCommand, "field key %q is reserved", key)
		}

		value, err := serial.Encode(fieldValues[i+1], method)
		if err != nil {
			return "", buserr.Wrap(buserr.InvalidCommand, "encode field "+key, err)
		}

		args = append(args, []byte(key), value)
	}

	args = append(args, []byte(SerKey), []byte(method.String()))

	var id string
	err := e.exchange(ctx, args, func(v resp.Value) error {
		if v.Type != resp.TypeBulkString {
			return replyShapeError("XADD", v)
		}
		id = v.Text()

		return nil
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

// Append appends raw key/value byte pairs to a stream without reserved-key
// validation or value encoding.
//
// It is the write path for internal plumbing — RPC framing and identity meta
// entries — that manages its own keys. Application writes go through
// WriteEntry, which enforces the reserved-key rule.
func (e *Engine) Append(ctx context.Context, stream string, kv ...[]byte) (string, error) {
	if stream == "" {
		return "", buserr.New(buserr.InvalidCommand, "stream name is empty")
	}
	if len(kv) == 0 || len(kv)%2 != 0 {
		return "", buserr.New(buserr.InvalidCommand, "raw field sequence must be non-empty and even-length")
	}

	args := make([][]byte, 0, 6+len(kv))
	args = append(args, resp.Args("XADD", stream, "MAXLEN", "~", strconv.FormatInt(e.maxLen, 10), "*")...)
	args = append(args, kv...)

	var id string
	err := e.exchange(ctx, args, func(v resp.Value) error {
		if v.Type != resp.TypeBulkString {
			return replyShapeError("XADD", v)
		}
		id = v.Text()

		return nil
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

// RangeRead returns entries of the stream with ids in [start, end] in
// ascending id order, at most count when count is positive. The bounds
// default to the stream extremes ("-" and "+"). An empty result is success
// with zero entries. The query is idempotent and safe to retry.
func (e *Engine) RangeRead(ctx context.Context, stream, start, end string, count int64) ([]Entry, error) {
	return e.rangeRead(ctx, "XRANGE", stream, defaultBound(start, "-"), defaultBound(end, "+"), count)
}

// ReverseRangeRead is the descending counterpart of RangeRead: entries with
// ids in [start, end] delivered newest first.
func (e *Engine) ReverseRangeRead(ctx context.Context, stream, end, start string, count int64) ([]Entry, error) {
	return e.rangeRead(ctx, "XREVRANGE", stream, defaultBound(end, "+"), defaultBound(start, "-"), count)
}

func (e *Engine) rangeRead(ctx context.Context, cmd, stream, first, second string, count int64) ([]Entry, error) {
	if stream == "" {
		return nil, buserr.New(buserr.InvalidCommand, "stream name is empty")
	}

	args := resp.Args(cmd, stream, first, second)
	if count > 0 {
		args = append(args, resp.Args("COUNT", strconv.FormatInt(count, 10))...)
	}

	var entries []Entry
	err := e.exchange(ctx, args, func(v resp.Value) error {
		var perr error
		entries, perr = parseEntryList(cmd, v)

		return perr
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// GroupCreate creates a consumer group on the stream with its cursor at
// startID, creating the stream itself when missing. An existing group is
// surfaced as ErrGroupExists wrapped in a Store-kind error; the cursor is
// never silently overwritten.
func (e *Engine) GroupCreate(ctx context.Context, stream, group, startID string) error {
	if stream == "" || group == "" {
		return buserr.New(buserr.InvalidCommand, "stream and group names must not be empty")
	}

	args := resp.Args("XGROUP", "CREATE", stream, group, defaultBound(startID, "$"), "MKSTREAM")

	err := e.exchange(ctx, args, func(v resp.Value) error {
		if v.Type != resp.TypeSimpleString {
			return replyShapeError("XGROUP CREATE", v)
		}

		return nil
	})

	var serr *buserr.Error
	if stderrors.As(err, &serr) && serr.Kind() == buserr.Store && strings.HasPrefix(serr.Message(), "BUSYGROUP") {
		return buserr.Wrap(buserr.Store, serr.Message(), ErrGroupExists)
	}

	return err
}

// GroupRead delivers entries of the stream newer than the group's cursor to
// the named consumer. Deliveries are disjoint across consumers of a group,
// and each delivered entry stays pending until acknowledged.
//
// A zero block returns immediately with whatever is available, possibly an
// empty slice. A positive block suspends the call until data arrives or the
// block time elapses; this is the engine's backpressure primitive. A count
// of zero reads without a count limit.
func (e *Engine) GroupRead(ctx context.Context, group, consumer, stream string, block time.Duration, count int64) ([]Entry, error) {
	if group == "" || consumer == "" || stream == "" {
		return nil, buserr.New(buserr.InvalidCommand, "group, consumer, and stream names must not be empty")
	}

	args := resp.Args("XREADGROUP", "GROUP", group, consumer)
	args = appendReadArgs(args, block, count)
	args = append(args, resp.Args("STREAMS", stream, ">")...)

	return e.readStreams(ctx, "XREADGROUP", args, block)
}

// Read delivers entries of the stream with ids newer than fromID, which
// defaults to "$" (only entries appended after the call). Block and count
// behave as in GroupRead.
func (e *Engine) Read(ctx context.Context, stream, fromID string, block time.Duration, count int64) ([]Entry, error) {
	if stream == "" {
		return nil, buserr.New(buserr.InvalidCommand, "stream name is empty")
	}

	args := resp.Args("XREAD")
	args = appendReadArgs(args, block, count)
	args = append(args, resp.Args("STREAMS", stream, defaultBound(fromID, "$"))...)

	return e.readStreams(ctx, "XREAD", args, block)
}

// Acknowledge marks entries as processed for the group and returns how many
// were newly acknowledged. Re-acknowledging an already-acknowledged id is a
// no-op, not an error.
func (e *Engine) Acknowledge(ctx context.Context, stream, group string, ids ...string) (int64, error) {
	if stream == "" || group == "" {
		return 0, buserr.New(buserr.InvalidCommand, "stream and group names must not be empty")
	}
	if len(ids) == 0 {
		return 0, buserr.New(buserr.InvalidCommand, "no entry ids to acknowledge")
	}

	args := resp.Args(append([]string{"XACK", stream, group}, ids...)...)

	return e.intExchange(ctx, "XACK", args)
}

// DeleteEntry removes entries from the stream and returns how many existed.
func (e *Engine) DeleteEntry(ctx context.Context, stream string, ids ...string) (int64, error) {
	if stream == "" {
		return 0, buserr.New(buserr.InvalidCommand, "stream name is empty")
	}
	if len(ids) == 0 {
		return 0, buserr.New(buserr.InvalidCommand, "no entry ids to delete")
	}

	args := resp.Args(append([]string{"XDEL", stream}, ids...)...)

	return e.intExchange(ctx, "XDEL", args)
}

// SetKeyValue stores a plain key/value pair.
func (e *Engine) SetKeyValue(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return buserr.New(buserr.InvalidCommand, "key is empty")
	}

	args := [][]byte{[]byte("SET"), []byte(key), value}

	return e.exchange(ctx, args, func(v resp.Value) error {
		if v.Type != resp.TypeSimpleString {
			return replyShapeError("SET", v)
		}

		return nil
	})
}

// LoadScript loads a server-side script and returns its digest for later
// invocation.
func (e *Engine) LoadScript(ctx context.Context, script string) (string, error) {
	if script == "" {
		return "", buserr.New(buserr.InvalidCommand, "script is empty")
	}

	args := resp.Args("SCRIPT", "LOAD", script)

	var sha string
	err := e.exchange(ctx, args, func(v resp.Value) error {
		if v.Type != resp.TypeBulkString {
			return replyShapeError("SCRIPT LOAD", v)
		}
		sha = v.Text()

		return nil
	})
	if err != nil {
		return "", err
	}

	return sha, nil
}

// exchange leases a connection, performs one request/reply, and hands the
// parsed reply to fn while the reply buffer is still owned. fn copies out
// whatever it keeps; the buffer is released before exchange returns.
func (e *Engine) exchange(ctx context.Context, args [][]byte, fn func(resp.Value) error) error {
	lease, err := e.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	reply, err := lease.Conn().Do(ctx, args...)
	if err != nil {
		return err
	}
	defer func() { _ = reply.Release() }()

	return fn(reply.Value())
}

func (e *Engine) intExchange(ctx context.Context, cmd string, args [][]byte) (int64, error) {
	var n int64
	err := e.exchange(ctx, args, func(v resp.Value) error {
		if v.Type != resp.TypeInteger {
			return replyShapeError(cmd, v)
		}
		n = v.Int

		return nil
	})
	if err != nil {
		return 0, err
	}

	return n, nil
}

// readStreams runs a (possibly blocking) read command. For a positive block
// the context deadline is pushed past the block window, so the connection's
// reply timeout never fires while the store is legitimately holding the
// read open.
func (e *Engine) readStreams(ctx context.Context, cmd string, args [][]byte, block time.Duration) ([]Entry, error) {
	if block > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, block+blockGrace)
		defer cancel()
	}

	var entries []Entry
	err := e.exchange(ctx, args, func(v resp.Value) error {
		var perr error
		entries, perr = parseStreamsReply(cmd, v)

		return perr
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func appendReadArgs(args [][]byte, block time.Duration, count int64) [][]byte {
	if count > 0 {
		args = append(args, resp.Args("COUNT", strconv.FormatInt(count, 10))...)
	}
	// A zero block omits BLOCK entirely: on the wire BLOCK 0 means "wait
	// forever", while the contract here is "return immediately". A positive
	// sub-millisecond block rounds up to 1ms for the same reason: truncation
	// would emit BLOCK 0 and invert the bound.
	if block > 0 {
		ms := block.Milliseconds()
		if ms == 0 {
			ms = 1
		}
		args = append(args, resp.Args("BLOCK", strconv.FormatInt(ms, 10))...)
	}

	return args
}

func defaultBound(v, def string) string {
	if v == "" {
		return def
	}

	return v
}
