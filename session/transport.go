package session

import (
	"context"
	"io"
)

// Stream is a bidirectional substrate stream, used only for the single
// control stream of a session.
type Stream interface {
	io.Reader
	io.Writer
	CancelRead(code uint64)
	CancelWrite(code uint64)
	Close() error
}

// SendStream is a unidirectional substrate stream opened locally to
// carry one group.
type SendStream interface {
	io.Writer
	CancelWrite(code uint64)
	Close() error
}

// ReceiveStream is a unidirectional substrate stream accepted from the
// peer, also carrying one group.
type ReceiveStream interface {
	io.Reader
	CancelRead(code uint64)
}

// Transport is the substrate session object the embedding application
// provides: a QUIC/WebTransport session capable of bidirectional and
// unidirectional streams plus unreliable datagrams. [NewWebTransportAdapter]
// wraps a real *webtransport.Session to satisfy this interface;
// tests drive the session state machine with an in-memory fake instead.
type Transport interface {
	// OpenStream opens the bidirectional control stream. Called exactly
	// once, by the client endpoint.
	OpenStream(ctx context.Context) (Stream, error)
	// AcceptStream accepts the bidirectional control stream. Called
	// exactly once, by the server endpoint.
	AcceptStream(ctx context.Context) (Stream, error)

	OpenUniStream(ctx context.Context) (SendStream, error)
	AcceptUniStream(ctx context.Context) (ReceiveStream, error)

	SendDatagram(b []byte) error
	ReceiveDatagram(ctx context.Context) ([]byte, error)

	CloseWithError(code uint64, reason string) error
	Context() context.Context
}
