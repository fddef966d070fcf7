package classify

import (
	"slices"
	"time"
)

type keyed interface {
	Key() string
	SortTime() time.Time
}

// history is a bounded list of events kept newest first. It is not safe for
// concurrent use; classifiers guard it with their own mutex.
type history[T keyed] struct {
	items    []T
	capacity int
}

func newHistory[T keyed](capacity int) *history[T] {
	return &history[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
	}
}

// index returns the position of the event with key, or -1.
func (h *history[T]) index(key string) int {
	return slices.IndexFunc(h.items, func(e T) bool { return e.Key() == key })
}

// get returns the event stored under key.
func (h *history[T]) get(key string) (T, bool) {
	if i := h.index(key); i >= 0 {
		return h.items[i], true
	}
	var zero T
	return zero, false
}

// upsert replaces the event with the same key in place, or inserts it at the
// head. The list is then re-sorted by date, newest first, and the oldest
// entries beyond capacity are dropped. It reports whether an entry was
// replaced.
func (h *history[T]) upsert(ev T) bool {
	replaced := false
	if i := h.index(ev.Key()); i >= 0 {
		h.items[i] = ev
		replaced = true
	} else {
		h.items = slices.Insert(h.items, 0, ev)
	}

	// Zero dates compare as the oldest and sink to the tail.
	slices.SortStableFunc(h.items, func(a, b T) int {
		return b.SortTime().Compare(a.SortTime())
	})

	if len(h.items) > h.capacity {
		clear(h.items[h.capacity:])
		h.items = h.items[:h.capacity]
	}
	return replaced
}

func (h *history[T]) each(fn func(T)) {
	for _, e := range h.items {
		fn(e)
	}
}

// update applies fn to every stored event and returns how many it changed.
func (h *history[T]) update(fn func(*T) bool) int {
	n := 0
	for i := range h.items {
		if fn(&h.items[i]) {
			n++
		}
	}
	return n
}

// snapshot returns a copy safe to hand out.
func (h *history[T]) snapshot() []T {
	return slices.Clone(h.items)
}

func (h *history[T]) len() int { return len(h.items) }
