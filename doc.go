// Package streambus is the client core of a log-store-backed inter-process
// messaging framework for robotics systems.
//
// A process participates as an Element: a named identity that publishes
// entries to append-only streams, follows streams published by other
// elements, and exposes named commands that peers invoke through
// request/acknowledge/response semantics layered on the same streams.
//
// The layers underneath are available as sub-packages: link (connections,
// reply buffers, pooling), resp (the store wire protocol), stream (the typed
// command set), serial (wire formats), errors (the shared error model), and
// logger (the logging facade).
package streambus
