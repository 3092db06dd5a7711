// Package session implements the MoQ session state machine: the setup
// handshake, the announce and subscribe tables in both directions, and
// the three cooperating tasks (control reader, publisher, subscriber)
// that multiplex a single substrate connection.
//
// Session depends only on the small Transport interface in this
// package, not on any concrete QUIC/WebTransport library, so it can be
// driven by a real [github.com/quic-go/webtransport-go] session or by
// an in-memory pipe in tests.
package session
