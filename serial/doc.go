// Package serial encodes and decodes application values to the wire formats
// supported by streambus entries.
//
// Three methods exist: none (pass-through for values that are already
// binary-safe bytes), msgpack (arbitrary structured key/value trees), and
// arrow (bulk numeric/array payloads framed as an Arrow IPC stream). The
// method used for a write is recorded alongside the entry, so a reader
// selects the matching decoder from the entry itself and never guesses.
package serial
