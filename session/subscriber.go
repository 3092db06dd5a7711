package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/zsiec/moqlite/cache"
	"github.com/zsiec/moqlite/coding"
	"github.com/zsiec/moqlite/wire"
)

// subscriberTask holds the local track a remote subscription feeds, and
// the in-flight group producers bridging peer data streams into it.
type subscriberTask struct {
	track *cache.TrackProducer

	ok   chan wire.SubscribeOk
	done chan wire.SubscribeDone

	mu     sync.Mutex
	groups map[uint64]*cache.GroupProducer
}

// Subscribe requests trackName under path from the peer and returns a
// consumer over a local track that mirrors the peer's groups as they
// arrive. It blocks until the peer replies SubscribeOk or
// SubscribeDone, or ctx is done.
func (s *Session) Subscribe(ctx context.Context, path coding.Path, trackName string, order cache.GroupOrder, groupMin, groupMax *uint64) (*cache.TrackConsumer, error) {
	broadcast := cache.NewBroadcast()
	trackProducer, err := broadcast.InsertTrack(trackName, 0, order, 0)
	if err != nil {
		return nil, err
	}

	task := &subscriberTask{
		track:  trackProducer,
		ok:     make(chan wire.SubscribeOk, 1),
		done:   make(chan wire.SubscribeDone, 1),
		groups: make(map[uint64]*cache.GroupProducer),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errSessionClosed
	}
	id := s.nextRequestID
	s.nextRequestID++
	s.subscribers[id] = task
	s.mu.Unlock()

	msg := wire.Subscribe{ID: id, Path: path, TrackName: trackName, Order: wire.GroupOrder(order)}
	if groupMin != nil {
		msg.HasMin, msg.GroupMin = true, *groupMin
	}
	if groupMax != nil {
		msg.HasMax, msg.GroupMax = true, *groupMax
	}
	if err := s.writeControl(wire.TagSubscribe, msg.Encode()); err != nil {
		s.dropSubscriber(id)
		return nil, err
	}

	select {
	case <-task.ok:
		return broadcast.Consumer().Subscribe(context.Background(), trackName, cache.TrackHints{})
	case d := <-task.done:
		s.dropSubscriber(id)
		return nil, cache.NewClosed(d.Code)
	case <-ctx.Done():
		s.dropSubscriber(id)
		_ = s.writeControl(wire.TagUnsubscribe, wire.Unsubscribe{ID: id}.Encode())
		return nil, ctx.Err()
	}
}

func (s *Session) dropSubscriber(id uint64) {
	s.mu.Lock()
	delete(s.subscribers, id)
	s.mu.Unlock()
}

func (s *Session) handleSubscribeOk(m wire.SubscribeOk) {
	s.mu.Lock()
	task, ok := s.subscribers[m.ID]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case task.ok <- m:
	default:
	}
}

func (s *Session) handleSubscribeDone(m wire.SubscribeDone) {
	s.mu.Lock()
	task, ok := s.subscribers[m.ID]
	if ok {
		delete(s.subscribers, m.ID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	select {
	case task.done <- m:
	default:
	}
	task.track.CloseWithError(cache.NewClosed(m.Code))
}

// uniStreamAcceptLoop demultiplexes incoming unidirectional data
// streams by subscribe id, feeding each group's frames into the local
// track that subscription's Subscribe call is reading from.
func (s *Session) uniStreamAcceptLoop(ctx context.Context) error {
	for {
		stream, err := s.transport.AcceptUniStream(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("session: accept uni stream: %w", err)
		}
		go s.receiveGroup(ctx, stream)
	}
}

func (s *Session) receiveGroup(ctx context.Context, stream ReceiveStream) {
	header, err := wire.ReadGroupHeader(stream)
	if err != nil {
		return
	}

	s.mu.Lock()
	task, ok := s.subscribers[header.SubscribeID]
	s.mu.Unlock()
	if !ok {
		stream.CancelRead(uint64(cache.Cancel))
		return
	}

	producer := task.track.AppendGroupAt(header.GroupSeq)
	task.mu.Lock()
	task.groups[header.GroupSeq] = producer
	task.mu.Unlock()
	defer func() {
		task.mu.Lock()
		delete(task.groups, header.GroupSeq)
		task.mu.Unlock()
	}()

	br := bufio.NewReader(stream)
	for {
		frame, err := wire.ReadFrame(br)
		if err != nil {
			if err == io.EOF {
				producer.Close()
			} else {
				producer.CloseWithError(cache.ErrCancel)
			}
			return
		}
		producer.WriteFrame(frame)
	}
}

// receiveDatagramLoop demultiplexes unreliable single-frame datagrams
// the same way: the first datagram for a (subscribe, group) pair
// appends a new group, and every datagram's payload is written to that
// pair's group as one frame.
func (s *Session) receiveDatagramLoop(ctx context.Context) error {
	for {
		data, err := s.transport.ReceiveDatagram(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("session: receive datagram: %w", err)
		}
		header, payload, err := wire.DecodeDatagram(data)
		if err != nil {
			s.log.Warn("dropping malformed datagram", "error", err)
			continue
		}

		s.mu.Lock()
		task, ok := s.subscribers[header.SubscribeID]
		s.mu.Unlock()
		if !ok {
			continue
		}

		task.mu.Lock()
		producer, exists := task.groups[header.GroupSeq]
		if !exists {
			producer = task.track.AppendGroupAt(header.GroupSeq)
			task.groups[header.GroupSeq] = producer
		}
		task.mu.Unlock()

		producer.WriteFrame(payload)
	}
}
