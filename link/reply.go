package link

import (
	"sync/atomic"

	"github.com/arloliu/streambus/resp"
)

// Reply is the owned buffer of one store reply.
//
// Its Value tree aliases the connection's receive buffer, so a Reply has
// exactly one owner: the caller of Do that received it. Release returns the
// buffer to the connection for reuse and must be called exactly once before
// the next operation on the same connection; afterward the Reply yields a
// zero Value. Callers copy what they keep before releasing.
type Reply struct {
	conn     *Conn
	val      resp.Value
	released atomic.Bool
}

// Value returns the parsed reply tree, or a zero Value after release.
func (r *Reply) Value() resp.Value {
	if r.released.Load() {
		return resp.Value{}
	}

	return r.val
}

// Released reports whether the reply buffer was released.
func (r *Reply) Released() bool {
	return r.released.Load()
}

// Release returns the receive buffer to the connection. The first call
// succeeds; any further call fails with ErrReplyReleased.
func (r *Reply) Release() error {
	if !r.released.CompareAndSwap(false, true) {
		return ErrReplyReleased
	}

	r.val = resp.Value{}
	r.conn.releaseReply(r)

	return nil
}
