package stream

import (
	buserr "github.com/arloliu/streambus/errors"
	"github.com/arloliu/streambus/internal/util"
	"github.com/arloliu/streambus/resp"
)

// replyShapeError reports a reply whose shape does not match the command's
// contract. It indicates a protocol mismatch, not a store-reported error —
// those are converted at the connection layer before parsing starts.
func replyShapeError(cmd string, v resp.Value) error {
	return buserr.Newf(buserr.Internal, "unexpected %s reply type %q", cmd, byte(v.Type))
}

// parseEntryList parses the [[id, [k, v, ...]], ...] shape shared by XRANGE
// and XREVRANGE, copying every span out of the reply buffer.
func parseEntryList(cmd string, v resp.Value) ([]Entry, error) {
	if v.IsNil() {
		return nil, nil
	}
	if v.Type != resp.TypeArray {
		return nil, replyShapeError(cmd, v)
	}

	entries := make([]Entry, 0, len(v.Elems))
	for i := range v.Elems {
		entry, err := parseEntry(cmd, v.Elems[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// parseStreamsReply parses the [[stream, [[id, fields]...]], ...] nesting of
// XREAD and XREADGROUP. A nil reply means the read found nothing: an empty
// success. Only one stream is ever requested, but every returned stream's
// entries are collected regardless.
func parseStreamsReply(cmd string, v resp.Value) ([]Entry, error) {
	if v.IsNil() {
		return nil, nil
	}
	if v.Type != resp.TypeArray {
		return nil, replyShapeError(cmd, v)
	}

	var entries []Entry
	for i := range v.Elems {
		pair := v.Elems[i]
		if pair.Type != resp.TypeArray || len(pair.Elems) != 2 {
			return nil, replyShapeError(cmd, pair)
		}

		streamEntries, err := parseEntryList(cmd, pair.Elems[1])
		if err != nil {
			return nil, err
		}
		entries = append(entries, streamEntries...)
	}

	return entries, nil
}

func parseEntry(cmd string, v resp.Value) (Entry, error) {
	if v.Type != resp.TypeArray || len(v.Elems) != 2 {
		return Entry{}, replyShapeError(cmd, v)
	}

	id := v.Elems[0]
	if id.Bytes() == nil {
		return Entry{}, replyShapeError(cmd, id)
	}

	entry := Entry{ID: id.Text()}

	fields := v.Elems[1]
	// A deleted entry still pending in a group reads back with nil fields.
	if fields.IsNil() {
		return entry, nil
	}
	if fields.Type != resp.TypeArray || len(fields.Elems)%2 != 0 {
		return Entry{}, replyShapeError(cmd, fields)
	}

	entry.Fields = make([]Field, 0, len(fields.Elems)/2)
	for i := 0; i < len(fields.Elems); i += 2 {
		key := fields.Elems[i]
		value := fields.Elems[i+1]
		if key.Bytes() == nil {
			return Entry{}, replyShapeError(cmd, key)
		}

		entry.Fields = append(entry.Fields, Field{
			Key:   key.Text(),
			Value: util.CloneSlice(value.Bytes(), 0),
		})
	}

	return entry, nil
}
