package cache

import (
	"context"
	"testing"
)

func TestGroupFanOutInsertionOrder(t *testing.T) {
	t.Parallel()
	g := newGroup(0)
	p := GroupProducer{group: g}
	c1 := &GroupConsumer{group: g}
	c2 := c1.Clone()

	p.WriteFrame([]byte("A"))
	p.WriteFrame([]byte("B"))
	p.WriteFrame([]byte("C"))
	p.Close()

	ctx := context.Background()
	for _, c := range []*GroupConsumer{c1, c2} {
		for _, want := range []string{"A", "B", "C"} {
			f, err := c.ReadFrame(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if string(f) != want {
				t.Fatalf("got %q, want %q", f, want)
			}
		}
		f, err := c.ReadFrame(ctx)
		if err != nil || f != nil {
			t.Fatalf("expected clean end, got (%v, %v)", f, err)
		}
	}
}

func TestGroupFanOutSharesBackingArray(t *testing.T) {
	t.Parallel()
	g := newGroup(0)
	p := GroupProducer{group: g}
	payload := []byte("shared")
	p.WriteFrame(payload)
	p.Close()

	c1 := &GroupConsumer{group: g}
	c2 := c1.Clone()
	ctx := context.Background()

	f1, _ := c1.ReadFrame(ctx)
	f2, _ := c2.ReadFrame(ctx)
	if &f1[0] != &f2[0] {
		t.Fatal("expected both consumers to observe the same backing array")
	}
}

func TestGroupCloseWithError(t *testing.T) {
	t.Parallel()
	g := newGroup(0)
	p := GroupProducer{group: g}
	c := &GroupConsumer{group: g}
	p.CloseWithError(ErrCancel)

	_, err := c.ReadFrame(context.Background())
	closed, ok := err.(*Closed)
	if !ok || closed.Code() != Cancel {
		t.Fatalf("expected Cancel, got %v", err)
	}
}

func TestGroupExpiryClearsFrames(t *testing.T) {
	t.Parallel()
	g := newGroup(0)
	p := GroupProducer{group: g}
	p.WriteFrame([]byte("A"))
	c := &GroupConsumer{group: g}
	if _, err := c.ReadFrame(context.Background()); err != nil {
		t.Fatal(err)
	}

	g.expire()
	if !g.Expired() {
		t.Fatal("expected group to report expired")
	}
	_, err := c.ReadFrame(context.Background())
	closed, ok := err.(*Closed)
	if !ok || closed.Code() != Cancel {
		t.Fatalf("expected Cancel end after expiry, got %v", err)
	}
}
