// Package wire implements the message grammar of the MoQ transport: the
// typed control messages carried on the session's single bidirectional
// control stream, and the header grammar for the unidirectional data
// streams and datagrams that carry group and frame payloads.
//
// This package has no knowledge of sessions, caches, or the substrate
// transport; it only knows how to turn Go structs into bytes and back.
// Higher-level dispatch lives in [github.com/zsiec/moqlite/session].
package wire
