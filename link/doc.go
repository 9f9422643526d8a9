// Package link provides the transport layer of streambus: a Connection that
// exchanges one framed request for one reply with the log store, an owned
// Reply buffer with released-once semantics, and a fixed-capacity Pool that
// leases Connections to concurrent callers.
//
// A Connection performs strictly one in-flight request at a time and owns at
// most one outstanding Reply. Concurrency is achieved by leasing multiple
// Connections from a Pool, never by sharing one Connection.
package link
