package session

import (
	"context"

	"github.com/quic-go/webtransport-go"
)

// webtransportAdapter wraps a real *webtransport.Session so it
// satisfies Transport. This is the only file in this package that
// knows about the concrete substrate library; everything else in
// session talks to the small Transport/Stream interfaces in transport.go.
type webtransportAdapter struct {
	session *webtransport.Session
}

// NewWebTransportAdapter wraps sess for use as a Session's Transport.
func NewWebTransportAdapter(sess *webtransport.Session) Transport {
	return &webtransportAdapter{session: sess}
}

func (a *webtransportAdapter) OpenStream(ctx context.Context) (Stream, error) {
	s, err := a.session.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return wtStream{s}, nil
}

func (a *webtransportAdapter) AcceptStream(ctx context.Context) (Stream, error) {
	s, err := a.session.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return wtStream{s}, nil
}

func (a *webtransportAdapter) OpenUniStream(ctx context.Context) (SendStream, error) {
	s, err := a.session.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return wtSendStream{s}, nil
}

func (a *webtransportAdapter) AcceptUniStream(ctx context.Context) (ReceiveStream, error) {
	s, err := a.session.AcceptUniStream(ctx)
	if err != nil {
		return nil, err
	}
	return wtReceiveStream{s}, nil
}

func (a *webtransportAdapter) SendDatagram(b []byte) error {
	return a.session.SendDatagram(b)
}

func (a *webtransportAdapter) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	return a.session.ReceiveDatagram(ctx)
}

func (a *webtransportAdapter) CloseWithError(code uint64, reason string) error {
	return a.session.CloseWithError(webtransport.SessionErrorCode(code), reason)
}

func (a *webtransportAdapter) Context() context.Context {
	return a.session.Context()
}

// wtStream adapts webtransport.Stream's code-typed Cancel methods to
// the plain uint64 codes used by this package's Stream interface.
type wtStream struct {
	webtransport.Stream
}

func (s wtStream) CancelRead(code uint64)  { s.Stream.CancelRead(webtransport.StreamErrorCode(code)) }
func (s wtStream) CancelWrite(code uint64) { s.Stream.CancelWrite(webtransport.StreamErrorCode(code)) }

type wtSendStream struct {
	webtransport.SendStream
}

func (s wtSendStream) CancelWrite(code uint64) {
	s.SendStream.CancelWrite(webtransport.StreamErrorCode(code))
}

type wtReceiveStream struct {
	webtransport.ReceiveStream
}

func (s wtReceiveStream) CancelRead(code uint64) {
	s.ReceiveStream.CancelRead(webtransport.StreamErrorCode(code))
}
