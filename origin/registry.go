package origin

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/zsiec/moqlite/cache"
	"github.com/zsiec/moqlite/coding"
)

// entry is a live broadcast registered at a path.
type entry struct {
	path     coding.Path
	consumer *cache.BroadcastConsumer
}

// watcher is one outstanding AnnounceInterest subscription.
type watcher struct {
	prefix coding.Path
	ch     chan Announcement
}

// Registry is a process-local mapping from path to live broadcast,
// indexable by prefix for Announce fan-out. It holds weak references
// in spirit: publishing a broadcast whose producer later drops causes
// the entry to be lazily reclaimed once the broadcast closes, with
// interested watchers observing the removal as active=false.
type Registry struct {
	log *slog.Logger

	mu       sync.Mutex
	entries  map[string]*entry
	watchers []*watcher
}

// NewRegistry creates an empty registry. If log is nil, slog.Default()
// is used.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:     log.With("component", "origin"),
		entries: make(map[string]*entry),
	}
}

// Publish registers consumer as the live broadcast at path. It fails
// with cache.ErrDuplicate if path is already live. The registry
// reclaims the entry on its own once the broadcast closes.
func (r *Registry) Publish(path coding.Path, consumer *cache.BroadcastConsumer) error {
	key := path.String()

	r.mu.Lock()
	if _, exists := r.entries[key]; exists {
		r.mu.Unlock()
		r.log.Warn("broadcast already live, rejecting duplicate publish", "path", key)
		return cache.ErrDuplicate
	}
	e := &entry{path: path, consumer: consumer}
	r.entries[key] = e
	r.mu.Unlock()

	r.log.Info("broadcast published", "path", key)
	r.notify(Announcement{Path: path, Active: true})

	go r.reclaimOnClose(key, path, consumer)
	return nil
}

// reclaimOnClose blocks until consumer's broadcast closes, then removes
// its entry and notifies watchers of the departure.
func (r *Registry) reclaimOnClose(key string, path coding.Path, consumer *cache.BroadcastConsumer) {
	if _, err := consumer.Wait(context.Background()); err != nil {
		return
	}

	r.mu.Lock()
	e, ok := r.entries[key]
	if ok && e.consumer == consumer {
		delete(r.entries, key)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		r.log.Info("broadcast removed", "path", key)
		r.notify(Announcement{Path: path, Active: false})
	}
}

// Consume resolves path to its live broadcast consumer, or reports
// false if no broadcast is currently published there.
func (r *Registry) Consume(path coding.Path) (*cache.BroadcastConsumer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[path.String()]
	if !ok {
		return nil, false
	}
	return e.consumer, true
}

// Announcement is one observed Announce event: path became active (a
// broadcast was published) or inactive (its producer was dropped).
type Announcement struct {
	Path   coding.Path
	Active bool
}

// Announced is an event stream of Announcement values for every
// broadcast whose path has a given prefix, starting with active=true
// for every broadcast already live when Announced was called.
type Announced struct {
	ch     chan Announcement
	cancel func()
	once   sync.Once
}

// Next blocks for the next event, or returns io.EOF once Close has been
// called, or ctx.Err() if ctx is done first.
func (a *Announced) Next(ctx context.Context) (Announcement, error) {
	select {
	case ev, ok := <-a.ch:
		if !ok {
			return Announcement{}, io.EOF
		}
		return ev, nil
	case <-ctx.Done():
		return Announcement{}, ctx.Err()
	}
}

// Close cancels the interest; the registry reclaims the associated
// state.
func (a *Announced) Close() {
	a.once.Do(a.cancel)
}

// Announced returns an event stream for every broadcast whose path has
// prefix, present or future, until the caller closes it.
func (r *Registry) Announced(prefix coding.Path) *Announced {
	ch := make(chan Announcement, 32)

	r.mu.Lock()
	for _, e := range r.entries {
		if e.path.HasPrefix(prefix) {
			ch <- Announcement{Path: e.path, Active: true}
		}
	}
	w := &watcher{prefix: prefix, ch: ch}
	r.watchers = append(r.watchers, w)
	r.mu.Unlock()

	a := &Announced{ch: ch}
	a.cancel = func() {
		r.mu.Lock()
		for i, ww := range r.watchers {
			if ww == w {
				r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
				break
			}
		}
		r.mu.Unlock()
		close(ch)
	}
	return a
}

func (r *Registry) notify(ev Announcement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.watchers {
		if !ev.Path.HasPrefix(w.prefix) {
			continue
		}
		select {
		case w.ch <- ev:
		default:
			r.log.Warn("announce watcher backlog full, dropping event", "prefix", w.prefix.String())
		}
	}
}
