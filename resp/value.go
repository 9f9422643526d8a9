// Package resp implements the log store's request/reply wire protocol:
// requests are arrays of bulk strings, replies are typed as simple strings,
// errors, integers, bulk strings, or arbitrarily nested arrays.
//
// The Reader parses one complete reply at a time into a Value tree whose
// byte spans alias the Reader's receive buffer. Spans stay valid until the
// next ReadReply; callers that keep data longer copy it first. Connection
// and reply-buffer ownership rules are enforced one layer up, in the link
// package.
package resp

// ValueType identifies the wire type of a reply node.
type ValueType byte

const (
	// TypeSimpleString is a status reply such as OK.
	TypeSimpleString ValueType = '+'
	// TypeError is a store-reported error reply.
	TypeError ValueType = '-'
	// TypeInteger is a signed 64-bit integer reply.
	TypeInteger ValueType = ':'
	// TypeBulkString is a length-prefixed binary-safe string reply.
	TypeBulkString ValueType = '$'
	// TypeArray is a nested multi-value reply.
	TypeArray ValueType = '*'
	// TypeNil is a null bulk string or null array, e.g. a blocking read that
	// timed out with no data.
	TypeNil ValueType = '_'
)

// Value is one node of a parsed reply.
type Value struct {
	// Type discriminates which of the remaining fields is meaningful.
	Type ValueType
	// Str holds the payload of simple string, error, and bulk string nodes.
	// It aliases the receive buffer of the Reader that produced it.
	Str []byte
	// Int holds the payload of integer nodes.
	Int int64
	// Elems holds the child nodes of array nodes.
	Elems []Value

	// span into the receive buffer while a parse is in flight
	off int
	ln  int
}

// IsNil reports whether the node is a null reply.
func (v Value) IsNil() bool {
	return v.Type == TypeNil
}

// IsError reports whether the node is a store-reported error reply.
func (v Value) IsError() bool {
	return v.Type == TypeError
}

// Bytes returns the payload of string-typed nodes, nil for the rest.
func (v Value) Bytes() []byte {
	switch v.Type {
	case TypeSimpleString, TypeError, TypeBulkString:
		return v.Str
	default:
		return nil
	}
}

// Text returns the payload of string-typed nodes as a string copy.
func (v Value) Text() string {
	return string(v.Bytes())
}

// Len returns the number of child nodes of an array, zero for the rest.
func (v Value) Len() int {
	if v.Type != TypeArray {
		return 0
	}
	return len(v.Elems)
}
