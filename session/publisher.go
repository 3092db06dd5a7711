package session

import (
	"context"
	"sync"

	"github.com/zsiec/moqlite/cache"
	"github.com/zsiec/moqlite/wire"
)

// publisherTask serves one Subscribe received from the peer: it owns
// the track cursor and every open data stream delivering that track's
// groups, until Unsubscribe, track close, or session shutdown ends it.
type publisherTask struct {
	id      uint64
	cancel  context.CancelFunc
	streams sync.WaitGroup

	groupsMu sync.Mutex
	groups   map[uint64]context.CancelFunc
	ordinal  int32
}

// handleSubscribe resolves sub against the registry and, if the track
// exists, streams its groups to the peer until the subscription ends.
func (s *Session) handleSubscribe(ctx context.Context, sub wire.Subscribe) {
	taskCtx, cancel := context.WithCancel(ctx)
	task := &publisherTask{id: sub.ID, cancel: cancel, groups: make(map[uint64]context.CancelFunc)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return
	}
	s.publishers[sub.ID] = task
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.publishers[sub.ID] == task {
			delete(s.publishers, sub.ID)
		}
		s.mu.Unlock()
		cancel()
	}()

	broadcast, ok := s.Consume(sub.Path)
	if !ok {
		s.sendSubscribeDone(sub.ID, cache.NotFound)
		return
	}

	order := cache.GroupOrder(sub.Order)
	hints := cache.TrackHints{Order: &order}
	if sub.HasMin {
		hints.GroupMin = &sub.GroupMin
	}
	if sub.HasMax {
		hints.GroupMax = &sub.GroupMax
	}

	track, err := broadcast.Subscribe(taskCtx, sub.TrackName, hints)
	if err != nil {
		if closed, ok := err.(*cache.Closed); ok {
			s.sendSubscribeDone(sub.ID, closed.Code())
		} else {
			s.sendSubscribeDone(sub.ID, cache.Cancel)
		}
		return
	}

	ok1 := wire.SubscribeOk{ID: sub.ID}
	if latest, has := track.Latest(); has {
		ok1.Latest, ok1.HasLatest = latest, true
	}
	if err := s.writeControl(wire.TagSubscribeOk, ok1.Encode()); err != nil {
		return
	}

	task.serve(taskCtx, s, sub.ID, sub.Priority, track)
}

// serve streams every group the track yields, one data stream per
// group, until the track closes or ctx is cancelled.
//
// On track close the track's own cursor is always done producing new
// groups, but any group it already handed out may still be open (a
// producer that never closed its last group, or a catalog-style track
// with group_expires=0). Per spec, track close must reset every still
// open group stream with Cancel rather than wait for it to end on its
// own, so serve cancels each group's derived context before reporting
// SubscribeDone.
func (t *publisherTask) serve(ctx context.Context, s *Session, id uint64, priority int8, track *cache.TrackConsumer) {
	for {
		group, err := track.NextGroup(ctx)
		if err != nil {
			t.cancelGroups()
			t.streams.Wait()
			if ctx.Err() != nil {
				s.sendSubscribeDone(id, cache.Cancel)
				return
			}
			s.sendSubscribeDone(id, codeOf(err))
			return
		}
		if group == nil {
			t.cancelGroups()
			t.streams.Wait()
			s.sendSubscribeDone(id, cache.Cancel)
			return
		}

		groupCtx, groupCancel := context.WithCancel(ctx)
		seq := group.Sequence()
		t.groupsMu.Lock()
		t.groups[seq] = groupCancel
		t.groupsMu.Unlock()

		bias := t.nextBias()

		t.streams.Add(1)
		go func(g *cache.GroupConsumer) {
			defer t.streams.Done()
			defer func() {
				t.groupsMu.Lock()
				delete(t.groups, seq)
				t.groupsMu.Unlock()
				groupCancel()
			}()
			t.streamGroup(groupCtx, s, id, biasedPriority(priority, bias), g)
		}(group)
	}
}

// cancelGroups force-cancels every currently streaming group's derived
// context, unblocking any streamGroup goroutine waiting in
// group.ReadFrame and causing it to reset its stream with Cancel.
func (t *publisherTask) cancelGroups() {
	t.groupsMu.Lock()
	cancels := make([]context.CancelFunc, 0, len(t.groups))
	for _, cancel := range t.groups {
		cancels = append(cancels, cancel)
	}
	t.groupsMu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// nextBias returns the next group_ordinal_bias for this task: a
// monotonically increasing per-track ordinal, so later groups are
// biased toward lower priority than earlier ones of the same track.
func (t *publisherTask) nextBias() int32 {
	t.groupsMu.Lock()
	defer t.groupsMu.Unlock()
	b := t.ordinal
	t.ordinal++
	return b
}

// biasedPriority adds bias to priority, saturating to the int8 range
// rather than wrapping, per spec.md's "track.priority + group_ordinal_bias
// is set on the substrate".
func biasedPriority(priority int8, bias int32) int8 {
	p := int32(priority) + bias
	switch {
	case p > 127:
		return 127
	case p < -128:
		return -128
	default:
		return int8(p)
	}
}

// streamGroup opens a fresh unidirectional stream for one group and
// copies its frames until the group ends. ctx is a child of the
// task's context, individually cancelled when the track closes even
// if this group itself never does, so the stream is always reset
// promptly instead of leaking.
func (t *publisherTask) streamGroup(ctx context.Context, s *Session, id uint64, priority int8, group *cache.GroupConsumer) {
	stream, err := s.transport.OpenUniStream(ctx)
	if err != nil {
		return
	}

	header := wire.GroupHeader{
		Type:        wire.DataStreamGroup,
		SubscribeID: id,
		GroupSeq:    group.Sequence(),
		Priority:    priority,
	}
	if err := wire.WriteGroupHeader(stream, header); err != nil {
		stream.CancelWrite(uint64(cache.Cancel))
		return
	}

	for {
		frame, err := group.ReadFrame(ctx)
		if err != nil {
			stream.CancelWrite(uint64(codeOf(err)))
			return
		}
		if frame == nil {
			stream.Close()
			return
		}
		if _, err := wire.WriteFrame(stream, frame); err != nil {
			return
		}
	}
}

// sendSubscribeDone reports subscription id as terminated with code.
func (s *Session) sendSubscribeDone(id uint64, code uint32) {
	msg := wire.SubscribeDone{ID: id, Code: code}
	if err := s.writeControl(wire.TagSubscribeDone, msg.Encode()); err != nil {
		s.log.Warn("write SubscribeDone failed", "id", id, "error", err)
	}
}

// handleUnsubscribe cancels a publisher task the peer no longer wants.
// Its own goroutine sends the matching SubscribeDone once torn down.
func (s *Session) handleUnsubscribe(id uint64) {
	s.mu.Lock()
	task, ok := s.publishers[id]
	s.mu.Unlock()
	if ok {
		task.cancel()
	}
}

// codeOf extracts the close code carried by a cache.Closed, or Cancel
// for any other error (including context cancellation).
func codeOf(err error) uint32 {
	if closed, ok := err.(*cache.Closed); ok {
		return closed.Code()
	}
	return cache.Cancel
}
