package serial

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/ipc"
	"github.com/apache/arrow/go/v15/arrow/memory"

	"github.com/arloliu/streambus/internal/util"
)

// encodeRecord frames one record as an Arrow IPC stream, schema included, so
// the payload is self-describing.
func encodeRecord(rec arrow.Record) ([]byte, error) {
	var buf bytes.Buffer

	w := ipc.NewWriter(&buf, ipc.WithSchema(rec.Schema()))
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("%w: %w", ErrNotEncodable, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotEncodable, err)
	}

	return buf.Bytes(), nil
}

// decodeRecord reads the first record of an Arrow IPC stream. The caller owns
// the returned record and must Release it.
func decodeRecord(b []byte) (arrow.Record, error) {
	rdr, err := ipc.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	defer rdr.Release()

	if !rdr.Next() {
		if err := rdr.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return nil, fmt.Errorf("%w: arrow stream holds no record", ErrDecode)
	}

	rec := rdr.Record()
	rec.Retain()

	return rec, nil
}

// Column describes one named numeric column for NewRecord. Inputs of any
// integer or float width are widened to 64 bits.
type Column struct {
	name    string
	ints    []int64
	floats  []float64
	isFloat bool
}

// Int64Column builds an int64 column from an integer slice of any width.
func Int64Column[T int | int8 | int16 | int32 | int64 | uint | uint8 | uint16 | uint32](name string, values []T) Column {
	return Column{name: name, ints: util.AppendInt64Slice(nil, values)}
}

// Float64Column builds a float64 column from a numeric slice of any width.
func Float64Column[T float32 | float64 | int | int8 | int16 | int32 | int64 | uint | uint8 | uint16 | uint32 | uint64](name string, values []T) Column {
	return Column{name: name, floats: util.AppendFloat64Slice(nil, values), isFloat: true}
}

// NewRecord assembles columns into a one-batch record suitable for Encode
// with MethodArrow. All columns must share the same length. The caller must
// Release the returned record.
func NewRecord(cols ...Column) (arrow.Record, error) {
	if len(cols) == 0 {
		return nil, errors.New("record requires at least one column")
	}

	rows := colLen(cols[0])
	fields := make([]arrow.Field, len(cols))
	for i, col := range cols {
		if colLen(col) != rows {
			return nil, fmt.Errorf("column %q length %d != %d", col.name, colLen(col), rows)
		}
		typ := arrow.DataType(arrow.PrimitiveTypes.Int64)
		if col.isFloat {
			typ = arrow.PrimitiveTypes.Float64
		}
		fields[i] = arrow.Field{Name: col.name, Type: typ}
	}

	rb := array.NewRecordBuilder(memory.DefaultAllocator, arrow.NewSchema(fields, nil))
	defer rb.Release()

	for i, col := range cols {
		if col.isFloat {
			rb.Field(i).(*array.Float64Builder).AppendValues(col.floats, nil)
		} else {
			rb.Field(i).(*array.Int64Builder).AppendValues(col.ints, nil)
		}
	}

	return rb.NewRecord(), nil
}

func colLen(c Column) int {
	if c.isFloat {
		return len(c.floats)
	}

	return len(c.ints)
}
