package cache

import (
	"context"
	"sync"
	"time"
)

// Broadcast is a named group of tracks rooted at a path. It has one
// producer side holding the authoritative track table, and any number
// of consumer sides that subscribe to named tracks and observe
// closure.
type Broadcast struct {
	mu       sync.Mutex
	tracks   map[string]*Track
	closed   bool
	closeErr *Closed
	changed  *Watch[struct{}]
}

// NewBroadcast creates an empty broadcast and returns its producer
// half. The corresponding consumer half is obtained via Consumer.
func NewBroadcast() *BroadcastProducer {
	b := &Broadcast{tracks: make(map[string]*Track), changed: NewWatch(struct{}{})}
	return &BroadcastProducer{broadcast: b}
}

// BroadcastProducer is the exclusive writer half of a Broadcast.
type BroadcastProducer struct {
	broadcast *Broadcast
}

// Consumer returns a new consumer side for this broadcast.
func (p BroadcastProducer) Consumer() *BroadcastConsumer {
	return &BroadcastConsumer{broadcast: p.broadcast}
}

// TrackHints bundles the optional parameters a subscriber supplies when
// resolving a track.
type TrackHints struct {
	Order    *GroupOrder
	GroupMin *uint64
	GroupMax *uint64
}

// InsertTrack creates track name with the given priority, delivery
// order, and group expiry, and returns its producer half. It resolves
// with Duplicate if a track with that name already exists.
func (p BroadcastProducer) InsertTrack(name string, priority int8, order GroupOrder, groupExpires time.Duration) (*TrackProducer, error) {
	b := p.broadcast
	b.mu.Lock()
	if _, exists := b.tracks[name]; exists {
		b.mu.Unlock()
		return nil, ErrDuplicate
	}
	t := newTrack(name, priority, order, groupExpires)
	b.tracks[name] = t
	b.mu.Unlock()
	b.changed.Set(struct{}{})
	return &TrackProducer{track: t}, nil
}

// Close ends the broadcast with a clean end; every track not already
// closed closes the same way.
func (p BroadcastProducer) Close() {
	p.CloseWithError(nil)
}

// CloseWithError ends the broadcast and every still-open track with
// code.
func (p BroadcastProducer) CloseWithError(err *Closed) {
	b := p.broadcast
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.closeErr = err
	tracks := make([]*Track, 0, len(b.tracks))
	for _, t := range b.tracks {
		tracks = append(tracks, t)
	}
	b.mu.Unlock()
	for _, t := range tracks {
		(TrackProducer{track: t}).CloseWithError(err)
	}
	b.changed.Set(struct{}{})
}

// BroadcastConsumer is a cloneable reader half of a Broadcast.
type BroadcastConsumer struct {
	broadcast *Broadcast
}

// Subscribe resolves track name to a consumer, waiting until the
// producer inserts it or the broadcast closes, whichever happens
// first. A subsequently-closing broadcast that never had the track
// resolves with NotFound.
func (c *BroadcastConsumer) Subscribe(ctx context.Context, name string, hints TrackHints) (*TrackConsumer, error) {
	b := c.broadcast
	for {
		b.mu.Lock()
		if t, ok := b.tracks[name]; ok {
			b.mu.Unlock()
			order := t.Order
			if hints.Order != nil {
				order = *hints.Order
			}
			return newTrackConsumer(t, order, hints.GroupMin, hints.GroupMax), nil
		}
		if b.closed {
			b.mu.Unlock()
			return nil, ErrNotFound
		}
		_, ver := b.changed.Get()
		b.mu.Unlock()

		if _, _, err := b.changed.Next(ctx, ver); err != nil {
			return nil, err
		}
	}
}

// Closed reports whether the broadcast has closed, and with what code.
// ok is false while the broadcast is still live.
func (c *BroadcastConsumer) Closed() (err *Closed, ok bool) {
	b := c.broadcast
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		return nil, false
	}
	return b.closeErr, true
}

// Wait blocks until the broadcast closes and returns its close code
// (nil for a clean end). Used by the origin registry to detect a
// dropped producer and lazily reclaim its entry.
func (c *BroadcastConsumer) Wait(ctx context.Context) (*Closed, error) {
	b := c.broadcast
	for {
		b.mu.Lock()
		if b.closed {
			err := b.closeErr
			b.mu.Unlock()
			return err, nil
		}
		_, ver := b.changed.Get()
		b.mu.Unlock()

		if _, _, err := b.changed.Next(ctx, ver); err != nil {
			return nil, err
		}
	}
}
