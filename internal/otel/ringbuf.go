package otel

import "sync"

// DefaultRingSize is the capacity used when NewRingBuffer gets n <= 0.
const DefaultRingSize = 512

// RingBuffer keeps the most recent events in memory. Safe for concurrent use.
type RingBuffer struct {
	mu     sync.Mutex
	events []Event
	next   int  // slot the next Push writes
	full   bool // events has wrapped at least once
}

// NewRingBuffer creates a ring holding at most n events.
func NewRingBuffer(n int) *RingBuffer {
	if n <= 0 {
		n = DefaultRingSize
	}
	return &RingBuffer{events: make([]Event, n)}
}

// Push stores e, evicting the oldest event when full.
// IDs and Extra are copied so callers may reuse them.
func (r *RingBuffer) Push(e Event) {
	if e.IDs != nil {
		e.IDs = append([]int(nil), e.IDs...)
	}
	if e.Extra != nil {
		cp := make(map[string]any, len(e.Extra))
		for k, v := range e.Extra {
			cp[k] = v
		}
		e.Extra = cp
	}

	r.mu.Lock()
	r.events[r.next] = e
	r.next++
	if r.next == len(r.events) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// ordered returns the buffered events oldest first. Caller holds r.mu.
func (r *RingBuffer) ordered() []Event {
	if !r.full {
		return append([]Event(nil), r.events[:r.next]...)
	}
	out := make([]Event, 0, len(r.events))
	out = append(out, r.events[r.next:]...)
	return append(out, r.events[:r.next]...)
}

// Snapshot returns every buffered event, oldest first.
func (r *RingBuffer) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.ordered()
	if len(out) == 0 {
		return nil
	}
	return out
}

// Last returns up to n of the most recent events, oldest first.
func (r *RingBuffer) Last(n int) []Event {
	if n <= 0 {
		return nil
	}
	all := r.Snapshot()
	if n < len(all) {
		all = all[len(all)-n:]
	}
	return all
}

// Len returns the number of buffered events.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.events)
	}
	return r.next
}

// Cap returns the buffer capacity.
func (r *RingBuffer) Cap() int {
	return len(r.events)
}

// Stats counts buffered events by kind.
func (r *RingBuffer) Stats() map[EventKind]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[EventKind]int)
	for _, e := range r.ordered() {
		counts[e.Kind]++
	}
	return counts
}
