package util

// CloneSlice returns an owned copy of src with length cloneSize. A cloneSize
// of 0 copies the full source length. Reply parsing uses it to detach field
// values from a receive buffer before the buffer is released.
func CloneSlice[T any](src []T, cloneSize int) []T {
	if cloneSize == 0 {
		cloneSize = len(src)
	}
	clone := make([]T, cloneSize)
	copy(clone, src)

	return clone
}

// AppendInt64Slice widens values into target, appending them as int64.
//
// Unsigned inputs are assumed to fit in int64; no overflow validation is
// performed.
func AppendInt64Slice[T int | int8 | int16 | int32 | int64 | uint | uint8 | uint16 | uint32](target []int64, values []T) []int64 {
	target = append(target, make([]int64, len(values))...)
	varLen := len(values)
	targetLen := len(target)
	for i, v := range values {
		target[targetLen-varLen+i] = int64(v)
	}
	return target
}

// AppendFloat64Slice widens values into target, appending them as float64.
//
// Integer inputs beyond float64's exact range lose precision; no range
// validation is performed.
func AppendFloat64Slice[T float32 | float64 | int | int8 | int16 | int32 | int64 | uint | uint8 | uint16 | uint32 | uint64](target []float64, values []T) []float64 {
	target = append(target, make([]float64, len(values))...)
	varLen := len(values)
	targetLen := len(target)
	for i, v := range values {
		target[targetLen-varLen+i] = float64(v)
	}
	return target
}
