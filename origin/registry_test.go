package origin

import (
	"context"
	"testing"
	"time"

	"github.com/zsiec/moqlite/cache"
	"github.com/zsiec/moqlite/coding"
)

func TestPublishConsume(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil)
	bp := cache.NewBroadcast()
	path := coding.Path{"live", "room1"}

	if err := r.Publish(path, bp.Consumer()); err != nil {
		t.Fatal(err)
	}
	got, ok := r.Consume(path)
	if !ok || got == nil {
		t.Fatal("expected to resolve the published broadcast")
	}
}

func TestPublishDuplicate(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil)
	path := coding.Path{"live", "room1"}

	bp1 := cache.NewBroadcast()
	if err := r.Publish(path, bp1.Consumer()); err != nil {
		t.Fatal(err)
	}

	bp2 := cache.NewBroadcast()
	err := r.Publish(path, bp2.Consumer())
	closed, ok := err.(*cache.Closed)
	if !ok || closed.Code() != cache.Duplicate {
		t.Fatalf("expected Duplicate, got %v", err)
	}

	// the first publisher is unaffected
	if _, ok := r.Consume(path); !ok {
		t.Fatal("expected first publisher to remain live")
	}
}

func TestAnnounceChurn(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil)
	a := r.Announced(coding.Path{"a"})
	defer a.Close()

	bx := cache.NewBroadcast()
	if err := r.Publish(coding.Path{"a", "x"}, bx.Consumer()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ev, err := a.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !ev.Path.Equal(coding.Path{"a", "x"}) || !ev.Active {
		t.Fatalf("got %+v, want active x", ev)
	}

	bx.CloseWithError(cache.ErrCancel)
	ev, err = a.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !ev.Path.Equal(coding.Path{"a", "x"}) || ev.Active {
		t.Fatalf("got %+v, want inactive x", ev)
	}

	by := cache.NewBroadcast()
	if err := r.Publish(coding.Path{"a", "y"}, by.Consumer()); err != nil {
		t.Fatal(err)
	}
	ev, err = a.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !ev.Path.Equal(coding.Path{"a", "y"}) || !ev.Active {
		t.Fatalf("got %+v, want active y", ev)
	}
}

func TestAnnouncedReplaysAlreadyLive(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil)
	bp := cache.NewBroadcast()
	path := coding.Path{"live", "room1"}
	if err := r.Publish(path, bp.Consumer()); err != nil {
		t.Fatal(err)
	}

	a := r.Announced(coding.Path{"live"})
	defer a.Close()

	ev, err := a.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !ev.Path.Equal(path) || !ev.Active {
		t.Fatalf("got %+v", ev)
	}
}

func TestAnnouncedIgnoresUnrelatedPrefix(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil)
	a := r.Announced(coding.Path{"vod"})
	defer a.Close()

	bp := cache.NewBroadcast()
	if err := r.Publish(coding.Path{"live", "room1"}, bp.Consumer()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := a.Next(ctx); err == nil {
		t.Fatal("expected no event for an unrelated prefix")
	}
}
