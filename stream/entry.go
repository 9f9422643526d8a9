package stream

import (
	"strconv"
	"strings"

	"github.com/arloliu/streambus/serial"
)

// Reserved entry keys. The engine writes these itself for serialization
// tagging and identity metadata; application entries may never set them.
// Matching is case-sensitive and exact.
const (
	// SerKey tags the serialization method of an entry's values.
	SerKey = "ser"
	// LanguageKey carries the writing client's implementation language on
	// identity meta entries.
	LanguageKey = "language"
	// VersionKey carries the writing client's declared version on identity
	// meta entries.
	VersionKey = "version"
)

var reservedKeys = map[string]struct{}{
	SerKey:      {},
	LanguageKey: {},
	VersionKey:  {},
}

// IsReservedKey reports whether key belongs to the reserved set.
func IsReservedKey(key string) bool {
	_, ok := reservedKeys[key]
	return ok
}

// Field is one key/value pair of a read entry. The value bytes are owned by
// the entry, detached from any reply buffer.
type Field struct {
	Key   string
	Value []byte
}

// Entry is one append unit of a stream: an ordered field sequence plus the
// id the store assigned at write time. Ids are strictly increasing within a
// stream.
type Entry struct {
	ID     string
	Fields []Field
}

// Get returns the value of the first field with the given key.
func (e *Entry) Get(key string) ([]byte, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}

	return nil, false
}

// Method returns the serialization method the entry's values were written
// with, read from the ser tag. Entries without a tag decode as MethodNone.
// An unrecognized tag is an error; the caller must not guess a decoder.
func (e *Entry) Method() (serial.Method, error) {
	tag, ok := e.Get(SerKey)
	if !ok {
		return serial.MethodNone, nil
	}

	return serial.ParseMethod(string(tag))
}

// Timestamp returns the entry's timestamp in milliseconds: an explicit
// timestamp field when present, otherwise the millisecond prefix of the
// store-assigned id.
func (e *Entry) Timestamp() int64 {
	if ts, ok := e.Get("timestamp"); ok {
		if ms, err := strconv.ParseInt(string(ts), 10, 64); err == nil {
			return ms
		}
	}

	idms, _, _ := strings.Cut(e.ID, "-")
	ms, _ := strconv.ParseInt(idms, 10, 64)

	return ms
}
