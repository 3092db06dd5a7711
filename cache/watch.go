package cache

import (
	"context"
	"sync"
)

// Watch holds a value that changes over time and lets readers wait for
// the next change instead of polling. Every waiter tracks its own last
// observed version, so a producer calling Set never blocks on a slow
// reader and a fast reader never misses an update that happened between
// two of its calls to Next.
type Watch[T any] struct {
	mu      sync.Mutex
	val     T
	version uint64
	changed chan struct{}
}

// NewWatch creates a Watch holding initial at version 0.
func NewWatch[T any](initial T) *Watch[T] {
	return &Watch[T]{val: initial, changed: make(chan struct{})}
}

// Get returns the current value and its version.
func (w *Watch[T]) Get() (T, uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.val, w.version
}

// Set replaces the value, bumps the version, and wakes every goroutine
// blocked in Next.
func (w *Watch[T]) Set(v T) {
	w.mu.Lock()
	w.val = v
	w.version++
	ch := w.changed
	w.changed = make(chan struct{})
	w.mu.Unlock()
	close(ch)
}

// Next blocks until the version advances past last, then returns the
// new value and version. It returns ctx.Err() if ctx is done first.
func (w *Watch[T]) Next(ctx context.Context, last uint64) (T, uint64, error) {
	for {
		w.mu.Lock()
		if w.version != last {
			v, ver := w.val, w.version
			w.mu.Unlock()
			return v, ver, nil
		}
		ch := w.changed
		w.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			var zero T
			return zero, last, ctx.Err()
		}
	}
}
