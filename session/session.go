package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/moqlite/cache"
	"github.com/zsiec/moqlite/coding"
	"github.com/zsiec/moqlite/origin"
	"github.com/zsiec/moqlite/wire"
)

// Config holds the parameters for constructing a Session.
type Config struct {
	Transport Transport
	// IsClient selects which side of the setup handshake this endpoint
	// plays: true opens the control stream and sends SessionClient,
	// false accepts it and sends SessionServer.
	IsClient bool
	// Versions is the set of protocol versions this endpoint accepts.
	// The client offers all of them; the server picks the highest one
	// shared with the client's offer.
	Versions []uint64
	// Registry resolves Publish/Consume/Announced against a shared
	// process-local broadcast table. Required.
	Registry *origin.Registry
	Log      *slog.Logger
	// OnAnnounce, if set, is invoked for every Announce the peer sends
	// over this session. Composing this with Subscribe is how an
	// embedding relay stitches a remote announce into a local publish;
	// the Session itself only tracks announce state for paths it holds
	// locally, never the peer's.
	OnAnnounce func(path coding.Path, active bool)
}

// Session is one MoQ connection: the setup handshake plus the control
// and data-stream plumbing that multiplexes announce and subscribe
// traffic over a single [Transport].
type Session struct {
	log       *slog.Logger
	transport Transport
	registry  *origin.Registry
	isClient  bool
	versions  []uint64
	version   uint64

	onAnnounce func(path coding.Path, active bool)

	control   Stream
	controlR  *bufio.Reader
	controlMu sync.Mutex

	mu            sync.Mutex
	nextRequestID uint64
	publishers    map[uint64]*publisherTask
	subscribers   map[uint64]*subscriberTask
	closed        bool
	closeErr      error
}

// NewSession constructs a Session. Call Run to drive it.
func NewSession(cfg Config) *Session {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		log:         log.With("component", "session"),
		transport:   cfg.Transport,
		registry:    cfg.Registry,
		isClient:    cfg.IsClient,
		versions:    cfg.Versions,
		onAnnounce:  cfg.OnAnnounce,
		publishers:  make(map[uint64]*publisherTask),
		subscribers: make(map[uint64]*subscriberTask),
	}
}

func (s *Session) bindControl(stream Stream) {
	s.control = stream
	s.controlR = bufio.NewReader(stream)
}

// writeControl serializes one control message against concurrent
// writers, so a publisher task's SubscribeOk never interleaves with
// another task's SubscribeDone mid-frame.
func (s *Session) writeControl(tag wire.Tag, body []byte) error {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()
	return wire.WriteMessage(s.control, tag, body)
}

// Run performs the setup handshake and then drives the session until
// ctx is cancelled, the peer closes the control stream, or an
// unrecoverable control error occurs. It always returns once the
// session has fully shut down.
func (s *Session) Run(ctx context.Context) error {
	if err := s.handshake(ctx); err != nil {
		return err
	}
	s.log.Info("session established", "version", s.version, "client", s.isClient)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.controlReadLoop(ctx) })
	g.Go(func() error { return s.uniStreamAcceptLoop(ctx) })
	g.Go(func() error { return s.receiveDatagramLoop(ctx) })
	// controlReadLoop blocks in a plain stream Read that does not
	// observe ctx; force the transport closed on cancellation so it
	// unblocks instead of leaking past session shutdown.
	g.Go(func() error {
		<-ctx.Done()
		_ = s.transport.CloseWithError(0, "session done")
		return ctx.Err()
	})

	err := g.Wait()
	s.shutdown(err)
	return err
}

// shutdown cancels every in-flight publisher and subscriber task
// exactly once.
func (s *Session) shutdown(cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeErr = cause
	pubs := make([]*publisherTask, 0, len(s.publishers))
	for _, p := range s.publishers {
		pubs = append(pubs, p)
	}
	subs := make([]*subscriberTask, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.publishers = make(map[uint64]*publisherTask)
	s.subscribers = make(map[uint64]*subscriberTask)
	s.mu.Unlock()

	for _, p := range pubs {
		p.cancel()
	}
	for _, sub := range subs {
		sub.track.CloseWithError(cache.ErrCancel)
	}
	_ = s.transport.CloseWithError(0, "session closed")
}

// controlReadLoop reads and dispatches control messages until the
// stream ends or ctx is cancelled.
func (s *Session) controlReadLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		tag, body, err := wire.ReadMessage(s.controlR)
		if err != nil {
			return fmt.Errorf("session: control read: %w", err)
		}
		if err := s.dispatch(ctx, tag, body); err != nil {
			s.log.Warn("dropping malformed control message", "tag", tag, "error", err)
		}
	}
}

func (s *Session) dispatch(ctx context.Context, tag wire.Tag, body []byte) error {
	switch tag {
	case wire.TagSessionInfo:
		_, err := wire.DecodeSessionInfo(body)
		return err

	case wire.TagAnnounce:
		m, err := wire.DecodeAnnounce(body)
		if err != nil {
			return err
		}
		s.log.Debug("peer announce", "path", m.Path.String(), "active", m.Active)
		if s.onAnnounce != nil {
			s.onAnnounce(m.Path, m.Active)
		}
		return nil

	case wire.TagAnnounceInterest:
		m, err := wire.DecodeAnnounceInterest(body)
		if err != nil {
			return err
		}
		go s.handleAnnounceInterest(ctx, m.Prefix)
		return nil

	case wire.TagSubscribe:
		m, err := wire.DecodeSubscribe(body)
		if err != nil {
			return err
		}
		go s.handleSubscribe(ctx, m)
		return nil

	case wire.TagSubscribeUpdate:
		_, err := wire.DecodeSubscribeUpdate(body)
		return err

	case wire.TagUnsubscribe:
		m, err := wire.DecodeUnsubscribe(body)
		if err != nil {
			return err
		}
		s.handleUnsubscribe(m.ID)
		return nil

	case wire.TagSubscribeOk:
		m, err := wire.DecodeSubscribeOk(body)
		if err != nil {
			return err
		}
		s.handleSubscribeOk(m)
		return nil

	case wire.TagSubscribeDone:
		m, err := wire.DecodeSubscribeDone(body)
		if err != nil {
			return err
		}
		s.handleSubscribeDone(m)
		return nil

	case wire.TagFetch:
		_, err := wire.DecodeFetch(body)
		return err

	default:
		s.log.Debug("unknown control tag", "tag", tag)
		return nil
	}
}

// handleAnnounceInterest forwards every Announce event matching prefix
// to the peer for the life of the session. AnnounceInterest carries no
// explicit cancellation message in this protocol's grammar, so the
// interest is treated as standing until the session itself ends.
func (s *Session) handleAnnounceInterest(ctx context.Context, prefix coding.Path) {
	a := s.registry.Announced(prefix)
	defer a.Close()
	for {
		ev, err := a.Next(ctx)
		if err != nil {
			return
		}
		msg := wire.Announce{Path: ev.Path, Active: ev.Active}
		if err := s.writeControl(wire.TagAnnounce, msg.Encode()); err != nil {
			return
		}
	}
}

// Publish registers consumer as the live broadcast at path, visible to
// any peer session sharing the same registry.
func (s *Session) Publish(path coding.Path, consumer *cache.BroadcastConsumer) error {
	return s.registry.Publish(path, consumer)
}

// Consume resolves path against the shared registry.
func (s *Session) Consume(path coding.Path) (*cache.BroadcastConsumer, bool) {
	return s.registry.Consume(path)
}

// RequestAnnounce asks the peer to start sending Announce events for
// every broadcast path under prefix, present and future. Replies
// arrive asynchronously as peer announce traffic, surfaced through
// Config.OnAnnounce.
func (s *Session) RequestAnnounce(prefix coding.Path) error {
	msg := wire.AnnounceInterest{Prefix: prefix}
	return s.writeControl(wire.TagAnnounceInterest, msg.Encode())
}

// Announced subscribes to Announce events for every path under prefix.
func (s *Session) Announced(prefix coding.Path) *origin.Announced {
	return s.registry.Announced(prefix)
}

// Close tears the session down with the given application code.
func (s *Session) Close(code uint32) error {
	_ = s.transport.CloseWithError(uint64(code), "session closed")
	s.shutdown(fmt.Errorf("session: closed (code %d)", code))
	return nil
}

var errSessionClosed = errors.New("session: closed")
