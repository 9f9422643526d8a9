package streambus

import (
	"context"
	"sort"
	"time"

	buserr "github.com/arloliu/streambus/errors"
	"github.com/arloliu/streambus/stream"
)

// Entry log field keys.
const (
	hostKey  = "host"
	levelKey = "level"
	msgKey   = "msg"
)

// EntryWrite publishes one entry to this element's named stream, reachable by
// peers as stream:<element>:<name>. Values are serialized under the element's
// method; the field sequence alternates keys and values as in
// stream.Engine.WriteEntry, with the same reserved-key rule.
func (e *Element) EntryWrite(ctx context.Context, name string, fieldValues ...any) (string, error) {
	if name == "" {
		return "", buserr.New(buserr.InvalidCommand, "stream name is empty")
	}

	id, err := e.engine.WriteEntry(ctx, elementStream(e.name, name), e.method, fieldValues...)
	if err != nil {
		return "", err
	}

	e.streams.Store(name, struct{}{})

	return id, nil
}

// EntryReadN returns the latest n entries of a stream published by an
// element, newest first.
func (e *Element) EntryReadN(ctx context.Context, element, name string, n int64) ([]stream.Entry, error) {
	if element == "" || name == "" {
		return nil, buserr.New(buserr.InvalidCommand, "element and stream names must not be empty")
	}

	return e.engine.ReverseRangeRead(ctx, elementStream(element, name), "", "", n)
}

// EntryReadSince follows a stream published by an element from a cursor:
// entries with ids newer than lastID, oldest first. An empty lastID starts at
// the stream tail, delivering only entries appended after the call. Block and
// count behave as in stream.Engine.Read.
func (e *Element) EntryReadSince(ctx context.Context, element, name, lastID string, block time.Duration, count int64) ([]stream.Entry, error) {
	if element == "" || name == "" {
		return nil, buserr.New(buserr.InvalidCommand, "element and stream names must not be empty")
	}

	return e.engine.Read(ctx, elementStream(element, name), lastID, block, count)
}

// EntryHandler processes one delivered entry of a followed stream. Returning
// false stops the loop.
type EntryHandler func(ent *stream.Entry) bool

// EntryReadLoop follows a stream published by an element and hands every new
// entry to fn, in id order, advancing the cursor past each delivery. An empty
// lastID starts at the stream tail, so only entries published after the call
// are delivered.
//
// The loop blocks the calling goroutine until ctx is done or fn returns
// false (both return nil), or a read fails.
func (e *Element) EntryReadLoop(ctx context.Context, element, name, lastID string, fn EntryHandler) error {
	if element == "" || name == "" {
		return buserr.New(buserr.InvalidCommand, "element and stream names must not be empty")
	}
	if fn == nil {
		return buserr.New(buserr.InvalidCommand, "entry handler is nil")
	}

	cursor := lastID
	if cursor == "" {
		entries, err := e.engine.ReverseRangeRead(ctx, elementStream(element, name), "", "", 1)
		if err != nil {
			return err
		}
		cursor = "0"
		if len(entries) > 0 {
			cursor = entries[0].ID
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		entries, err := e.EntryReadSince(ctx, element, name, cursor, readBlock, 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}

		for i := range entries {
			cursor = entries[i].ID
			if !fn(&entries[i]) {
				return nil
			}
		}
	}
}

// Log appends one record to the shared log stream, tagged with this element's
// name and host.
func (e *Element) Log(ctx context.Context, level, msg string) error {
	fields := [][]byte{
		[]byte(elementKey), []byte(e.name),
		[]byte(hostKey), []byte(e.host),
		[]byte(levelKey), []byte(level),
		[]byte(msgKey), []byte(msg),
	}

	_, err := e.engine.Append(ctx, LogStream, fields...)

	return err
}

// Streams returns the sorted names of the streams this element has published
// to since construction.
func (e *Element) Streams() []string {
	names := make([]string, 0, e.streams.Size())
	e.streams.Range(func(name string, _ struct{}) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)

	return names
}
