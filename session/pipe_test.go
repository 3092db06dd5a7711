package session

import (
	"context"
	"fmt"
	"io"
	"net"
)

// pipeTransport is an in-memory Transport backed by net.Pipe for the
// control stream and buffered channels for unidirectional streams and
// datagrams, so the session state machine can be exercised end to end
// without a real QUIC/WebTransport connection.
type pipeTransport struct {
	ctx context.Context

	controlOnce chan net.Conn
	control     net.Conn

	openUni   chan *io.PipeReader
	acceptUni chan *io.PipeReader

	sendDgram chan []byte
	recvDgram chan []byte
}

// newPipeTransportPair returns two linked transports: writes on one
// side's uni-stream/datagram channels are reads on the other's.
func newPipeTransportPair(ctx context.Context) (a, b Transport) {
	c1, c2 := net.Pipe()
	aToB := make(chan *io.PipeReader, 16)
	bToA := make(chan *io.PipeReader, 16)
	aDgramToB := make(chan []byte, 16)
	bDgramToA := make(chan []byte, 16)

	pa := &pipeTransport{ctx: ctx, control: c1, openUni: aToB, acceptUni: bToA, sendDgram: aDgramToB, recvDgram: bDgramToA}
	pb := &pipeTransport{ctx: ctx, control: c2, openUni: bToA, acceptUni: aToB, sendDgram: bDgramToA, recvDgram: aDgramToB}
	return pa, pb
}

func (p *pipeTransport) OpenStream(ctx context.Context) (Stream, error) {
	return pipeStream{p.control}, nil
}

func (p *pipeTransport) AcceptStream(ctx context.Context) (Stream, error) {
	return pipeStream{p.control}, nil
}

func (p *pipeTransport) OpenUniStream(ctx context.Context) (SendStream, error) {
	pr, pw := io.Pipe()
	select {
	case p.openUni <- pr:
		return pipeSendStream{pw}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeTransport) AcceptUniStream(ctx context.Context) (ReceiveStream, error) {
	select {
	case pr := <-p.acceptUni:
		return pipeReceiveStream{pr}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeTransport) SendDatagram(b []byte) error {
	cp := append([]byte(nil), b...)
	select {
	case p.sendDgram <- cp:
		return nil
	default:
		return fmt.Errorf("pipeTransport: datagram backlog full")
	}
}

func (p *pipeTransport) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	select {
	case b := <-p.recvDgram:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeTransport) CloseWithError(code uint64, reason string) error {
	return p.control.Close()
}

func (p *pipeTransport) Context() context.Context {
	return p.ctx
}

// pipeStream adapts a net.Conn half of a net.Pipe to Stream. Cancel on
// either side simply tears down the whole duplex pipe, which is enough
// to unblock a peer's pending Read/Write with an error.
type pipeStream struct {
	conn net.Conn
}

func (s pipeStream) Read(p []byte) (int, error)  { return s.conn.Read(p) }
func (s pipeStream) Write(p []byte) (int, error) { return s.conn.Write(p) }
func (s pipeStream) Close() error                { return s.conn.Close() }
func (s pipeStream) CancelRead(code uint64)      { _ = s.conn.Close() }
func (s pipeStream) CancelWrite(code uint64)     { _ = s.conn.Close() }

type pipeSendStream struct {
	w *io.PipeWriter
}

func (s pipeSendStream) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s pipeSendStream) Close() error                { return s.w.Close() }
func (s pipeSendStream) CancelWrite(code uint64) {
	_ = s.w.CloseWithError(fmt.Errorf("pipeSendStream: cancelled (code %d)", code))
}

type pipeReceiveStream struct {
	r *io.PipeReader
}

func (s pipeReceiveStream) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s pipeReceiveStream) CancelRead(code uint64) {
	_ = s.r.CloseWithError(fmt.Errorf("pipeReceiveStream: cancelled (code %d)", code))
}
