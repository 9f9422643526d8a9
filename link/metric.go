package link

import (
	"sync/atomic"
)

// ConnMetrics contains atomic metrics for a connection.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type ConnMetrics struct {
	// DialCount indicates the number of dial attempts.
	DialCount atomic.Uint64
	// DialErrCount indicates the number of failed dial attempts.
	DialErrCount atomic.Uint64

	// RequestCount indicates the number of request frames sent.
	RequestCount atomic.Uint64
	// ReplyCount indicates the number of replies received.
	ReplyCount atomic.Uint64

	// StoreErrCount indicates the number of error replies reported by the
	// store.
	StoreErrCount atomic.Uint64
	// TransportErrCount indicates the number of socket-level failures.
	TransportErrCount atomic.Uint64
}

func (m *ConnMetrics) incDialCount()         { m.DialCount.Add(1) }
func (m *ConnMetrics) incDialErrCount()      { m.DialErrCount.Add(1) }
func (m *ConnMetrics) incRequestCount()      { m.RequestCount.Add(1) }
func (m *ConnMetrics) incReplyCount()        { m.ReplyCount.Add(1) }
func (m *ConnMetrics) incStoreErrCount()     { m.StoreErrCount.Add(1) }
func (m *ConnMetrics) incTransportErrCount() { m.TransportErrCount.Add(1) }
