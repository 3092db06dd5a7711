package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/zsiec/moqlite/wire"
)

// ErrVersionMismatch is returned by handshake when the client and
// server endpoints share no common version.
var ErrVersionMismatch = errors.New("session: no common version")

// versionMismatchCode is sent on the control stream's CancelWrite when
// handshake fails to agree on a version, so the peer can distinguish it
// from an ordinary transport failure.
const versionMismatchCode uint64 = 0xbad0

// negotiateVersion picks the highest version present in both offered
// and supported.
func negotiateVersion(offered, supported []uint64) (uint64, bool) {
	best, ok := uint64(0), false
	for _, o := range offered {
		for _, s := range supported {
			if o == s && (!ok || o > best) {
				best, ok = o, true
			}
		}
	}
	return best, ok
}

// handshake runs the SessionClient / SessionServer exchange and records
// the negotiated version. It must be called exactly once, before any
// other control traffic.
func (s *Session) handshake(ctx context.Context) error {
	if s.isClient {
		return s.handshakeClient(ctx)
	}
	return s.handshakeServer(ctx)
}

func (s *Session) handshakeClient(ctx context.Context) error {
	stream, err := s.transport.OpenStream(ctx)
	if err != nil {
		return fmt.Errorf("session: open control stream: %w", err)
	}
	s.bindControl(stream)

	msg := wire.SessionClient{Versions: s.versions, Extensions: wire.Extensions{}}
	if err := wire.WriteMessage(s.control, wire.TagSessionClient, msg.Encode()); err != nil {
		return fmt.Errorf("session: write SessionClient: %w", err)
	}

	tag, body, err := wire.ReadMessage(s.controlR)
	if err != nil {
		return fmt.Errorf("session: read SessionServer: %w", err)
	}
	if tag != wire.TagSessionServer {
		return fmt.Errorf("session: expected SessionServer (0x%x), got 0x%x", wire.TagSessionServer, tag)
	}
	reply, err := wire.DecodeSessionServer(body)
	if err != nil {
		return fmt.Errorf("session: decode SessionServer: %w", err)
	}

	ok := false
	for _, v := range s.versions {
		if v == reply.Version {
			ok = true
			break
		}
	}
	if !ok {
		s.control.CancelWrite(versionMismatchCode)
		return fmt.Errorf("%w: server selected %d, not among %v", ErrVersionMismatch, reply.Version, s.versions)
	}

	s.version = reply.Version
	return nil
}

func (s *Session) handshakeServer(ctx context.Context) error {
	stream, err := s.transport.AcceptStream(ctx)
	if err != nil {
		return fmt.Errorf("session: accept control stream: %w", err)
	}
	s.bindControl(stream)

	tag, body, err := wire.ReadMessage(s.controlR)
	if err != nil {
		return fmt.Errorf("session: read SessionClient: %w", err)
	}
	if tag != wire.TagSessionClient {
		return fmt.Errorf("session: expected SessionClient (0x%x), got 0x%x", wire.TagSessionClient, tag)
	}
	offer, err := wire.DecodeSessionClient(body)
	if err != nil {
		return fmt.Errorf("session: decode SessionClient: %w", err)
	}

	version, ok := negotiateVersion(offer.Versions, s.versions)
	if !ok {
		s.control.CancelWrite(versionMismatchCode)
		s.control.CancelRead(versionMismatchCode)
		return fmt.Errorf("%w: client offered %v, we support %v", ErrVersionMismatch, offer.Versions, s.versions)
	}

	reply := wire.SessionServer{Version: version, Extensions: wire.Extensions{}}
	if err := wire.WriteMessage(s.control, wire.TagSessionServer, reply.Encode()); err != nil {
		return fmt.Errorf("session: write SessionServer: %w", err)
	}

	s.version = version
	return nil
}
