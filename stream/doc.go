// Package stream implements the stream protocol engine: it turns typed
// operations (write-entry, range reads, consumer-group reads, acknowledge,
// and a few administrative commands) into request frames for the log store
// and parses the replies back into typed results.
//
// Every operation validates its arguments locally before any connection is
// leased, performs exactly one request/reply exchange on a pooled connection,
// copies what it returns out of the reply buffer, and releases the buffer, so
// returned entries are owned values with no ties to connection state.
package stream
