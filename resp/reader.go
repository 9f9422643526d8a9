package resp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
)

// ErrProtocol indicates bytes that violate the reply wire protocol. It wraps
// the detail of each violation; a connection receiving it must be discarded
// because the stream position is no longer trustworthy.
var ErrProtocol = errors.New("protocol violation")

const (
	// maxBulkLen bounds a single bulk payload (the store's own limit).
	maxBulkLen = 512 << 20
	// maxDepth bounds reply nesting against a misbehaving store.
	maxDepth = 32

	readerBufSize = 4096
)

// Reader parses replies from a byte stream.
//
// Each ReadReply call consumes exactly one complete reply, blocking until all
// of its bytes arrived; a partial reply is never surfaced. The returned Value
// tree aliases the Reader's receive buffer, which is reused by the next
// ReadReply call.
type Reader struct {
	br  *bufio.Reader
	buf []byte
}

// NewReader creates a Reader on top of rd.
func NewReader(rd io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(rd, readerBufSize)}
}

// ReadReply parses the next reply. I/O errors from the underlying stream are
// returned as-is for the connection layer to classify; malformed bytes return
// an ErrProtocol-wrapped error.
func (r *Reader) ReadReply() (Value, error) {
	r.buf = r.buf[:0]

	v, err := r.readValue(0)
	if err != nil {
		return Value{}, err
	}

	r.resolve(&v)

	return v, nil
}

// readValue parses one node, accumulating payload bytes into r.buf and
// recording spans as offsets. Spans become slices in resolve, after the
// buffer stops growing.
func (r *Reader) readValue(depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, fmt.Errorf("%w: reply nesting exceeds %d levels", ErrProtocol, maxDepth)
	}

	typ, err := r.br.ReadByte()
	if err != nil {
		return Value{}, err
	}

	switch ValueType(typ) {
	case TypeSimpleString, TypeError:
		off, ln, err := r.readLineSpan()
		if err != nil {
			return Value{}, err
		}
		return Value{Type: ValueType(typ), off: off, ln: ln}, nil

	case TypeInteger:
		n, err := r.readIntLine()
		if err != nil {
			return Value{}, err
		}
		return Value{Type: TypeInteger, Int: n}, nil

	case TypeBulkString:
		n, err := r.readIntLine()
		if err != nil {
			return Value{}, err
		}
		if n == -1 {
			return Value{Type: TypeNil}, nil
		}
		if n < 0 || n > maxBulkLen {
			return Value{}, fmt.Errorf("%w: bulk length %d out of range", ErrProtocol, n)
		}
		off, err := r.readBulkSpan(int(n))
		if err != nil {
			return Value{}, err
		}
		return Value{Type: TypeBulkString, off: off, ln: int(n)}, nil

	case TypeArray:
		n, err := r.readIntLine()
		if err != nil {
			return Value{}, err
		}
		if n == -1 {
			return Value{Type: TypeNil}, nil
		}
		if n < 0 || n > maxBulkLen {
			return Value{}, fmt.Errorf("%w: array length %d out of range", ErrProtocol, n)
		}
		elems := make([]Value, 0, n)
		for i := 0; i < int(n); i++ {
			elem, err := r.readValue(depth + 1)
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, elem)
		}
		return Value{Type: TypeArray, Elems: elems}, nil

	default:
		return Value{}, fmt.Errorf("%w: unknown reply type %q", ErrProtocol, typ)
	}
}

// readLineSpan appends one CRLF-terminated line's payload to the receive
// buffer and returns its span. Lines longer than the bufio window are
// accumulated chunk by chunk.
func (r *Reader) readLineSpan() (off, ln int, err error) {
	off = len(r.buf)
	for {
		chunk, err := r.br.ReadSlice('\n')
		if err == nil {
			r.buf = append(r.buf, chunk...)
			if len(r.buf)-off < 2 || r.buf[len(r.buf)-2] != '\r' {
				return 0, 0, fmt.Errorf("%w: line missing CRLF terminator", ErrProtocol)
			}
			r.buf = r.buf[:len(r.buf)-2]
			return off, len(r.buf) - off, nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			r.buf = append(r.buf, chunk...)
			continue
		}
		return 0, 0, err
	}
}

// readIntLine parses a numeric CRLF-terminated line without copying it into
// the receive buffer. Numeric lines always fit the bufio window.
func (r *Reader) readIntLine() (int64, error) {
	line, err := r.br.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return 0, fmt.Errorf("%w: numeric line too long", ErrProtocol)
		}
		return 0, err
	}
	if len(line) < 3 || line[len(line)-2] != '\r' {
		return 0, fmt.Errorf("%w: numeric line missing CRLF terminator", ErrProtocol)
	}

	return parseInt(line[:len(line)-2])
}

// readBulkSpan reads n payload bytes plus the trailing CRLF into the receive
// buffer and returns the payload offset.
func (r *Reader) readBulkSpan(n int) (int, error) {
	off := len(r.buf)
	r.buf = slices.Grow(r.buf, n+2)[:off+n+2]
	if _, err := io.ReadFull(r.br, r.buf[off:off+n+2]); err != nil {
		return 0, err
	}
	if r.buf[off+n] != '\r' || r.buf[off+n+1] != '\n' {
		return 0, fmt.Errorf("%w: bulk payload missing CRLF terminator", ErrProtocol)
	}
	r.buf = r.buf[:off+n]

	return off, nil
}

// resolve converts recorded spans into slices of the final receive buffer.
func (r *Reader) resolve(v *Value) {
	switch v.Type {
	case TypeSimpleString, TypeError, TypeBulkString:
		v.Str = r.buf[v.off : v.off+v.ln]
	case TypeArray:
		for i := range v.Elems {
			r.resolve(&v.Elems[i])
		}
	default:
	}
}

func parseInt(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("%w: empty numeric line", ErrProtocol)
	}

	neg := false
	if b[0] == '-' {
		neg = true
		b = b[1:]
		if len(b) == 0 {
			return 0, fmt.Errorf("%w: malformed integer", ErrProtocol)
		}
	}

	var n int64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: malformed integer", ErrProtocol)
		}
		n = n*10 + int64(c-'0')
	}
	if neg {
		n = -n
	}

	return n, nil
}
