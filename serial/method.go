package serial

import "fmt"

// Method identifies one of the closed set of wire formats. It is persisted as
// a tag alongside each entry so heterogeneous producers and consumers agree
// on the format per field without out-of-band coordination.
type Method uint8

const (
	// MethodNone passes bytes through unchanged. Values must already be
	// text/binary-safe strings or byte slices.
	MethodNone Method = iota
	// MethodMsgpack is the primary binary format: arbitrary structured
	// key/value trees with type tags.
	MethodMsgpack
	// MethodArrow is the columnar format for bulk numeric/array payloads,
	// preserving shape and dtype metadata.
	MethodArrow
)

// String returns the wire tag of the method.
func (m Method) String() string {
	switch m {
	case MethodNone:
		return "none"
	case MethodMsgpack:
		return "msgpack"
	case MethodArrow:
		return "arrow"
	default:
		return "unknown"
	}
}

// ParseMethod maps a wire tag back to its Method. An empty tag means no
// serialization. Unknown tags fail with ErrUnknownMethod so a reader flags
// entries it cannot decode instead of misinterpreting their bytes.
func ParseMethod(tag string) (Method, error) {
	switch tag {
	case "", "none":
		return MethodNone, nil
	case "msgpack":
		return MethodMsgpack, nil
	case "arrow":
		return MethodArrow, nil
	default:
		return MethodNone, fmt.Errorf("%w: %q", ErrUnknownMethod, tag)
	}
}
