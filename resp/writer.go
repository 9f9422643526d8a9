package resp

import "strconv"

// AppendCommand appends one request frame for args to dst and returns the
// extended buffer. Every argument is written as a bulk string, so binary
// payloads pass through unmodified.
func AppendCommand(dst []byte, args ...[]byte) []byte {
	dst = append(dst, byte(TypeArray))
	dst = strconv.AppendInt(dst, int64(len(args)), 10)
	dst = append(dst, '\r', '\n')

	for _, arg := range args {
		dst = append(dst, byte(TypeBulkString))
		dst = strconv.AppendInt(dst, int64(len(arg)), 10)
		dst = append(dst, '\r', '\n')
		dst = append(dst, arg...)
		dst = append(dst, '\r', '\n')
	}

	return dst
}

// Args converts string arguments to the [][]byte form AppendCommand and the
// connection layer work with.
func Args(args ...string) [][]byte {
	out := make([][]byte, len(args))
	for i, a := range args {
		out[i] = []byte(a)
	}

	return out
}
