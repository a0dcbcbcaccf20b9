// Package notify provides typed change subscriptions and a debouncer for
// work that should run once after a burst of edits.
package notify

import (
	"sync"
	"time"
)

// Hub fans an event out to every subscriber in subscription order.
// The zero value is ready to use.
type Hub[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it.
func (h *Hub[T]) Subscribe(fn func(T)) (cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.subs = append(h.subs, subscriber[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, s := range h.subs {
				if s.id == id {
					h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish calls every subscriber with ev. Subscribers run on the caller's
// goroutine and may subscribe or cancel without deadlocking.
func (h *Hub[T]) Publish(ev T) {
	h.mu.Lock()
	subs := make([]subscriber[T], len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()
	for _, s := range subs {
		s.fn(ev)
	}
}

// Len returns the number of active subscribers.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Debouncer runs fn once, delay after the last Trigger.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func()
	timer   *time.Timer
	stopped bool
}

// NewDebouncer returns a Debouncer calling fn.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger (re)starts the delay. It is a no-op after Stop.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fn)
}

// Flush runs a pending call immediately. It reports whether one was pending.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	pending := d.timer != nil && d.timer.Stop()
	d.timer = nil
	d.mu.Unlock()
	if pending {
		d.fn()
	}
	return pending
}

// Stop cancels any pending call and disables further triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
