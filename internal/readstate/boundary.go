package readstate

import "sync/atomic"

// Boundary holds the first unread message id captured when tracking began.
// The host is the only writer; the tracker only reads it. Values <= 0 mean
// "no known unread message".
type Boundary struct {
	id atomic.Int64
}

// NewBoundary returns a boundary set to id (<= 0 leaves it undefined).
func NewBoundary(id int) *Boundary {
	b := &Boundary{}
	b.Set(id)
	return b
}

// Set records the first unread id.
func (b *Boundary) Set(id int) {
	if id < 0 {
		id = 0
	}
	b.id.Store(int64(id))
}

// Clear makes the boundary undefined.
func (b *Boundary) Clear() {
	b.id.Store(0)
}

// Current returns the first unread id and whether one is defined.
func (b *Boundary) Current() (int, bool) {
	if b == nil {
		return 0, false
	}
	id := int(b.id.Load())
	return id, id > 0
}
