package serial

import (
	"errors"
	"fmt"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrUnknownMethod indicates a serialization method tag outside the
	// supported set.
	ErrUnknownMethod = errors.New("unknown serialization method")

	// ErrNotEncodable indicates a value that cannot be encoded under the
	// requested method.
	ErrNotEncodable = errors.New("value not encodable under method")

	// ErrDecode indicates bytes that do not decode under the declared
	// method.
	ErrDecode = errors.New("deserialization failed")
)

// Encode serializes v under method m.
//
//   - MethodNone accepts []byte and string and passes the bytes through
//     unchanged.
//   - MethodMsgpack accepts any msgpack-encodable value.
//   - MethodArrow accepts an arrow.Record.
func Encode(v any, m Method) ([]byte, error) {
	switch m {
	case MethodNone:
		switch val := v.(type) {
		case nil:
			return nil, nil
		case []byte:
			return val, nil
		case string:
			return []byte(val), nil
		default:
			return nil, fmt.Errorf("%w: method none requires string or []byte, got %T", ErrNotEncodable, v)
		}

	case MethodMsgpack:
		b, err := msgpack.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotEncodable, err)
		}
		return b, nil

	case MethodArrow:
		rec, ok := v.(arrow.Record)
		if !ok {
			return nil, fmt.Errorf("%w: method arrow requires arrow.Record, got %T", ErrNotEncodable, v)
		}
		return encodeRecord(rec)

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMethod, m)
	}
}

// Decode deserializes b under the declared method m.
//
// MethodNone yields the raw bytes, MethodMsgpack a decoded value tree, and
// MethodArrow an arrow.Record that the caller must Release. Malformed
// payloads fail with an ErrDecode-wrapped error; bytes are never
// reinterpreted under a different method.
func Decode(b []byte, m Method) (any, error) {
	switch m {
	case MethodNone:
		return b, nil

	case MethodMsgpack:
		var v any
		if err := msgpack.Unmarshal(b, &v); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return v, nil

	case MethodArrow:
		return decodeRecord(b)

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMethod, m)
	}
}

// DecodeInto deserializes a msgpack payload into dst, which must be a
// pointer. It is the typed counterpart of Decode for request and response
// payloads with a known shape.
func DecodeInto(b []byte, m Method, dst any) error {
	if m != MethodMsgpack {
		return fmt.Errorf("%w: decode-into requires msgpack, got %s", ErrDecode, m)
	}
	if err := msgpack.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return nil
}
