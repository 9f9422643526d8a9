package resp

import "sync"

// Frame is a reusable request frame buffer.
type Frame struct {
	Buf []byte
}

var framePool = sync.Pool{New: func() any { return &Frame{Buf: make([]byte, 0, 256)} }}

// maxRetainedFrame keeps oversized one-off frames out of the pool.
const maxRetainedFrame = 64 << 10

// GetFrame returns an empty frame buffer from the pool.
func GetFrame() *Frame {
	f, _ := framePool.Get().(*Frame)
	f.Buf = f.Buf[:0]

	return f
}

// PutFrame returns f to the pool. The caller must not touch f afterward.
func PutFrame(f *Frame) {
	if cap(f.Buf) > maxRetainedFrame {
		return
	}
	framePool.Put(f)
}
