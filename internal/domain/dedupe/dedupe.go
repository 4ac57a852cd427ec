// Package dedupe suppresses duplicate deliveries of inbound channel messages.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Deduper records seen message IDs so a redelivered message is processed once.
type Deduper interface {
	// SeenAndRecord reports whether id was already recorded, recording it if not.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a delivery that could not be accepted can be retried.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

type entry struct {
	id   string
	seen time.Time
}

// window keeps message ids in arrival order. The oldest id is evicted once
// the window is full or its age exceeds ttl.
type window struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List
	maxSize int           // <= 0 means unbounded
	ttl     time.Duration // <= 0 means ids never expire
	now     func() time.Time
}

// NewWindow creates a Deduper with the given options.
func NewWindow(opts ...Option) Deduper {
	w := &window{
		maxSize: 50_000,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.index = make(map[string]*list.Element)
	w.order = list.New()
	return w
}

func (w *window) SeenAndRecord(_ context.Context, id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.expire(now)

	if _, ok := w.index[id]; ok {
		return true
	}
	if w.maxSize > 0 && w.order.Len() >= w.maxSize {
		w.remove(w.order.Front())
	}
	w.index[id] = w.order.PushBack(entry{id: id, seen: now})
	return false
}

func (w *window) Unrecord(_ context.Context, id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if el, ok := w.index[id]; ok {
		w.remove(el)
	}
}

func (w *window) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int64(w.order.Len())
}

// expire drops ids older than ttl. Caller holds w.mu.
func (w *window) expire(now time.Time) {
	if w.ttl <= 0 {
		return
	}
	for el := w.order.Front(); el != nil; el = w.order.Front() {
		if now.Sub(el.Value.(entry).seen) < w.ttl {
			return
		}
		w.remove(el)
	}
}

func (w *window) remove(el *list.Element) {
	if el == nil {
		return
	}
	delete(w.index, el.Value.(entry).id)
	w.order.Remove(el)
}
