package visibility

import "sync"

// Viewport is the scroll container shared by a set of observers.
// All methods are safe for concurrent use.
type Viewport struct {
	// mu guards the geometry below and the mutable state of every observer
	// created from this viewport.
	mu        sync.Mutex
	top       int
	height    int
	spans     map[string]Span
	observers []*Observer
}

// NewViewport creates an empty viewport with a zero-height window.
func NewViewport() *Viewport {
	return &Viewport{spans: make(map[string]Span)}
}

// Scroll moves the visible window.
func (v *Viewport) Scroll(top, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if top == v.top && height == v.height {
		return
	}
	v.top, v.height = top, height
	for _, o := range v.observers {
		o.recomputeLocked()
	}
}

// Place sets or moves the span of the element with the given key.
func (v *Viewport) Place(key string, top, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := Span{Top: top, Height: height}
	if old, ok := v.spans[key]; ok && old == s {
		return
	}
	v.spans[key] = s
	for _, o := range v.observers {
		o.recomputeKeyLocked(key)
	}
}

// Remove forgets an element's geometry. Observers see it leave the view.
func (v *Viewport) Remove(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.spans[key]; !ok {
		return
	}
	delete(v.spans, key)
	for _, o := range v.observers {
		o.recomputeKeyLocked(key)
	}
}

// Window returns the current scroll window.
func (v *Viewport) Window() (top, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.top, v.height
}

// NewObserver creates an observer on this viewport. onFlush may be nil when
// the caller only uses per-element callbacks or Visible.
func (v *Viewport) NewObserver(cfg Config, onFlush func([]Entry)) *Observer {
	o := newObserver(v, cfg, onFlush)

	v.mu.Lock()
	v.observers = append(v.observers, o)
	v.mu.Unlock()

	return o
}

// CreateObserver implements Provider.
func (v *Viewport) CreateObserver(cfg Config, onFlush func([]Entry)) Handle {
	return v.NewObserver(cfg, onFlush)
}

// visibleLocked reports whether key is inside the window grown by margin.
// Unplaced elements are never visible. Caller holds v.mu.
func (v *Viewport) visibleLocked(key string, margin int) bool {
	s, ok := v.spans[key]
	if !ok {
		return false
	}
	return intersects(s, v.top, v.height, margin)
}

func (v *Viewport) detachLocked(o *Observer) {
	for i, cur := range v.observers {
		if cur == o {
			v.observers = append(v.observers[:i], v.observers[i+1:]...)
			return
		}
	}
}
