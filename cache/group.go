package cache

import (
	"context"
	"sync"
)

// Frame is an opaque, immutable byte payload. It is never copied on
// fan-out: every consumer of a group observes the same underlying
// backing array.
type Frame []byte

// Group is an independently-decodable, ordered, bounded sequence of
// frames. By contract the first frame is a keyframe or resync point. A
// group is either open (more frames may arrive) or closed; it never
// reopens.
type Group struct {
	Sequence uint64

	mu      sync.Mutex
	frames  []Frame
	closed  bool
	expired bool
	err     *Closed // meaningful only once closed; nil means a clean end
	changed *Watch[struct{}]
}

func newGroup(seq uint64) *Group {
	return &Group{Sequence: seq, changed: NewWatch(struct{}{})}
}

// Expired reports whether the group's expiry timer fired before it was
// otherwise closed. A consumer that has not yet started reading an
// expired group should skip it rather than surface it as an end event;
// one already mid-read observes the end as Cancel.
func (g *Group) Expired() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.expired
}

// expire force-closes the group with Cancel and releases its buffered
// frames, simulating cache eviction. It is a no-op if the group already
// closed naturally first.
func (g *Group) expire() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.expired = true
	g.err = ErrCancel
	g.frames = nil
	g.mu.Unlock()
	g.changed.Set(struct{}{})
}

// GroupProducer is the exclusive writer half of a Group.
type GroupProducer struct {
	group *Group
}

// WriteFrame appends a frame. It is silently dropped if the group has
// already closed (expired or otherwise) so a racing writer never panics
// against an evicted group.
func (p GroupProducer) WriteFrame(b []byte) {
	g := p.group
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.frames = append(g.frames, Frame(b))
	g.mu.Unlock()
	g.changed.Set(struct{}{})
}

// Close ends the group with a clean end (no more frames, no error).
func (p GroupProducer) Close() {
	p.closeWithError(nil)
}

// CloseWithError ends the group with a Closed code, surfaced to every
// consumer still reading it.
func (p GroupProducer) CloseWithError(err *Closed) {
	p.closeWithError(err)
}

func (p GroupProducer) closeWithError(err *Closed) {
	g := p.group
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.err = err
	g.mu.Unlock()
	g.changed.Set(struct{}{})
}

// GroupConsumer is a reader half of a Group with its own cursor. Clone
// produces an independent cursor over the same frames.
type GroupConsumer struct {
	group *Group
	next  int
}

// Clone returns an independent cursor positioned where c currently is.
func (c *GroupConsumer) Clone() *GroupConsumer {
	return &GroupConsumer{group: c.group, next: c.next}
}

// Sequence reports the group's sequence number.
func (c *GroupConsumer) Sequence() uint64 {
	return c.group.Sequence
}

// ReadFrame returns the next frame, waiting until one arrives or the
// group closes. At a clean end it returns (nil, nil). If the group
// closed with a code it returns that *Closed as the error.
func (c *GroupConsumer) ReadFrame(ctx context.Context) (Frame, error) {
	g := c.group
	for {
		g.mu.Lock()
		if c.next < len(g.frames) {
			f := g.frames[c.next]
			c.next++
			g.mu.Unlock()
			return f, nil
		}
		if g.closed {
			err := g.err
			g.mu.Unlock()
			if err == nil {
				return nil, nil
			}
			return nil, err
		}
		_, ver := g.changed.Get()
		g.mu.Unlock()

		if _, _, err := g.changed.Next(ctx, ver); err != nil {
			return nil, err
		}
	}
}
