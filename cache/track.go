package cache

import (
	"context"
	"sync"
	"time"
)

// GroupOrder describes the order in which a TrackConsumer observes
// groups that are simultaneously buffered.
type GroupOrder uint8

const (
	// OrderAscending yields groups in insertion (sequence) order.
	OrderAscending GroupOrder = iota
	// OrderDescending yields the freshest not-yet-observed group first;
	// newly appended groups preempt older unobserved ones.
	OrderDescending
)

func (o GroupOrder) String() string {
	if o == OrderDescending {
		return "descending"
	}
	return "ascending"
}

// Track is a named, ordered, unbounded sequence of groups within a
// broadcast.
type Track struct {
	Name         string
	Priority     int8
	Order        GroupOrder
	GroupExpires time.Duration

	mu       sync.Mutex
	groups   map[uint64]*Group
	nextSeq  uint64
	closed   bool
	closeErr *Closed
	changed  *Watch[struct{}]
}

func newTrack(name string, priority int8, order GroupOrder, groupExpires time.Duration) *Track {
	return &Track{
		Name:         name,
		Priority:     priority,
		Order:        order,
		GroupExpires: groupExpires,
		groups:       make(map[uint64]*Group),
		changed:      NewWatch(struct{}{}),
	}
}

// TrackProducer is the exclusive writer half of a Track.
type TrackProducer struct {
	track *Track
}

// Latest reports the sequence of the most recently appended group, if
// any.
func (p TrackProducer) Latest() (seq uint64, ok bool) {
	t := p.track
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nextSeq == 0 {
		return 0, false
	}
	return t.nextSeq - 1, true
}

// AppendGroup creates the next group in sequence (previous + 1,
// starting at 0) and returns its producer half.
func (p TrackProducer) AppendGroup() *GroupProducer {
	t := p.track
	t.mu.Lock()
	seq := t.nextSeq
	t.nextSeq++
	g := newGroup(seq)
	t.groups[seq] = g
	t.mu.Unlock()
	t.changed.Set(struct{}{})

	if t.GroupExpires > 0 {
		time.AfterFunc(t.GroupExpires, g.expire)
	}
	return &GroupProducer{group: g}
}

// AppendGroupAt creates a group at an explicit sequence rather than the
// next one in line, advancing nextSeq past it if needed. It exists for
// bridging a remote track whose group numbering must be mirrored
// exactly rather than assigned locally.
func (p TrackProducer) AppendGroupAt(seq uint64) *GroupProducer {
	t := p.track
	t.mu.Lock()
	g := newGroup(seq)
	t.groups[seq] = g
	if seq+1 > t.nextSeq {
		t.nextSeq = seq + 1
	}
	t.mu.Unlock()
	t.changed.Set(struct{}{})

	if t.GroupExpires > 0 {
		time.AfterFunc(t.GroupExpires, g.expire)
	}
	return &GroupProducer{group: g}
}

// Close ends the track; Close with nil is a clean end, matching a
// producer drop with no error.
func (p TrackProducer) Close() {
	p.CloseWithError(nil)
}

// CloseWithError ends the track and propagates code to every consumer's
// next call to NextGroup once its buffered groups are drained.
func (p TrackProducer) CloseWithError(err *Closed) {
	t := p.track
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.closeErr = err
	t.mu.Unlock()
	t.changed.Set(struct{}{})
}

// TrackConsumer is a cloneable reader half of a Track with its own
// cursor over groups.
type TrackConsumer struct {
	track *Track
	order GroupOrder
	max   *uint64

	mu       sync.Mutex
	pending  []uint64 // ascending order; not yet yielded to this consumer
	lastSeen int64    // highest track sequence folded into pending so far; -1 = none
}

// newTrackConsumer creates a cursor. groupMin, if non-nil, backfills
// from that sequence instead of only observing groups appended after
// subscribe time. groupMax, if non-nil, bounds the highest sequence
// ever folded into pending.
func newTrackConsumer(t *Track, order GroupOrder, groupMin, groupMax *uint64) *TrackConsumer {
	c := &TrackConsumer{track: t, order: order, max: groupMax, lastSeen: -1}
	if groupMin != nil {
		c.lastSeen = int64(*groupMin) - 1
	} else {
		t.mu.Lock()
		if t.nextSeq > 0 {
			c.lastSeen = int64(t.nextSeq) - 1
		}
		t.mu.Unlock()
	}
	return c
}

// Latest reports the sequence of the most recently appended group, if
// any, without consuming it.
func (c *TrackConsumer) Latest() (seq uint64, ok bool) {
	t := c.track
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nextSeq == 0 {
		return 0, false
	}
	return t.nextSeq - 1, true
}

// Clone returns an independent cursor over the same track, starting
// from c's current position.
func (c *TrackConsumer) Clone() *TrackConsumer {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := make([]uint64, len(c.pending))
	copy(pending, c.pending)
	return &TrackConsumer{
		track:    c.track,
		order:    c.order,
		max:      c.max,
		pending:  pending,
		lastSeen: c.lastSeen,
	}
}

// sync folds any newly appended track sequences into c.pending.
// Must be called with c.mu held.
func (c *TrackConsumer) sync() {
	t := c.track
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nextSeq == 0 {
		return
	}
	top := int64(t.nextSeq) - 1
	if c.max != nil && int64(*c.max) < top {
		top = int64(*c.max)
	}
	for s := c.lastSeen + 1; s <= top; s++ {
		c.pending = append(c.pending, uint64(s))
	}
	if top > c.lastSeen {
		c.lastSeen = top
	}
}

// NextGroup yields groups in the consumer's configured order, waiting
// when none is pending. It returns (nil, nil) once the track has closed
// with no error and every buffered group is drained, or (nil, err) if
// the track closed with a code.
func (c *TrackConsumer) NextGroup(ctx context.Context) (*GroupConsumer, error) {
	t := c.track
	for {
		// Snapshot the change version before syncing so a mutation that
		// lands between the snapshot and the wait below is never missed:
		// either sync() already picked it up, or Next sees the version
		// has moved and returns immediately.
		_, ver := t.changed.Get()

		c.mu.Lock()
		c.sync()

		for len(c.pending) > 0 {
			var idx int
			if c.order == OrderDescending {
				idx = len(c.pending) - 1
			} else {
				idx = 0
			}
			seq := c.pending[idx]
			c.pending = append(c.pending[:idx], c.pending[idx+1:]...)

			t.mu.Lock()
			g, ok := t.groups[seq]
			t.mu.Unlock()
			if !ok || g.Expired() {
				continue // evicted before we got to it; never surfaced
			}
			c.mu.Unlock()
			return &GroupConsumer{group: g}, nil
		}

		t.mu.Lock()
		closed, closeErr := t.closed, t.closeErr
		t.mu.Unlock()
		if closed {
			c.mu.Unlock()
			if closeErr == nil {
				return nil, nil
			}
			return nil, closeErr
		}
		c.mu.Unlock()

		if _, _, err := t.changed.Next(ctx, ver); err != nil {
			return nil, err
		}
	}
}
