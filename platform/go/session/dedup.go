package session

import (
	"sync"
	"time"
)

const (
	defaultDedupWindow   = 2 * time.Second
	defaultDedupCapacity = 25
)

// Deduplicator drops repeat notifications of the same event name inside a
// short window. Naive subscribers across a large UI tree each react to every
// refresh notification; suppressing the duplicates here keeps that fan-out
// from cascading back into the refresh path. The manager's own throttling
// still applies underneath.
type Deduplicator struct {
	mu       sync.Mutex
	window   time.Duration
	capacity int
	seen     map[string]time.Time
	now      func() time.Time
}

// NewDeduplicator builds a deduplicator with the given suppression window and
// map capacity. Zero values pick the defaults (2s, 25 entries).
func NewDeduplicator(window time.Duration, capacity int) *Deduplicator {
	return NewDeduplicatorWithClock(window, capacity, time.Now)
}

// NewDeduplicatorWithClock is NewDeduplicator with an injectable clock.
func NewDeduplicatorWithClock(window time.Duration, capacity int, now func() time.Time) *Deduplicator {
	if window <= 0 {
		window = defaultDedupWindow
	}
	if capacity <= 0 {
		capacity = defaultDedupCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &Deduplicator{
		window:   window,
		capacity: capacity,
		seen:     make(map[string]time.Time, capacity),
		now:      now,
	}
}

// Allow reports whether the event should be forwarded. A repeat of the same
// event name inside the window is dropped; otherwise the timestamp is updated.
func (d *Deduplicator) Allow(event string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.seen[event]; ok && now.Sub(last) < d.window {
		return false
	}

	if _, ok := d.seen[event]; !ok && len(d.seen) >= d.capacity {
		d.evictOldest()
	}
	d.seen[event] = now
	return true
}

// Wrap returns a sink that forwards only events Allow admits.
func (d *Deduplicator) Wrap(sink func(event string)) func(event string) {
	return func(event string) {
		if d.Allow(event) {
			sink(event)
		}
	}
}

// evictOldest removes the stalest entry. Capacity is small, a linear scan is fine.
func (d *Deduplicator) evictOldest() {
	var (
		oldestKey string
		oldestAt  time.Time
		first     = true
	)
	for k, at := range d.seen {
		if first || at.Before(oldestAt) {
			oldestKey, oldestAt = k, at
			first = false
		}
	}
	if !first {
		delete(d.seen, oldestKey)
	}
}
