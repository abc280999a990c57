package visibility

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type registration struct {
	el        Element
	visible   bool
	callbacks []func(Entry)
}

type queued struct {
	entry     Entry
	callbacks []func(Entry)
}

// Observer reports visibility transitions of its registered elements.
//
// Transitions are coalesced per element (latest state wins, first-seen order
// kept) and delivered from a timer goroutine. Consecutive flushes are at least
// Config.Throttle apart; a change after a quiet period flushes immediately.
// Flushes of one observer never overlap and arrive in order.
type Observer struct {
	vp      *Viewport
	cfg     Config
	onFlush func([]Entry)
	limiter *rate.Limiter

	flushMu sync.Mutex // held while a batch is delivered

	captured func() // test hook: runs between capturing and delivering a batch

	// Guarded by vp.mu.
	regs    map[string]*registration
	order   []string // registration order, for deterministic re-reports
	pending map[string]queued
	queue   []string // keys of pending in first-transition order
	timer   *time.Timer
	gen     uint64 // invalidates timers that fired after being dropped
	frozen  bool
	closed  bool
}

func newObserver(vp *Viewport, cfg Config, onFlush func([]Entry)) *Observer {
	limit := rate.Inf
	if cfg.Throttle > 0 {
		limit = rate.Every(cfg.Throttle)
	}
	return &Observer{
		vp:      vp,
		cfg:     cfg,
		onFlush: onFlush,
		limiter: rate.NewLimiter(limit, 1),
		regs:    make(map[string]*registration),
		pending: make(map[string]queued),
	}
}

// Observe registers el and queues its current state. Observing a key that is
// already registered replaces its data and callbacks. onEntry callbacks get
// every entry for this element after the batch callback has run.
//
// The returned function unregisters the element. It is idempotent and does
// not recall entries already queued.
func (o *Observer) Observe(el Element, onEntry ...func(Entry)) (unobserve func()) {
	o.vp.mu.Lock()
	defer o.vp.mu.Unlock()

	if o.closed {
		return func() {}
	}

	reg := &registration{
		el:        el,
		visible:   o.vp.visibleLocked(el.Key, o.cfg.Margin),
		callbacks: onEntry,
	}
	if _, ok := o.regs[el.Key]; !ok {
		o.order = append(o.order, el.Key)
	}
	o.regs[el.Key] = reg
	o.enqueueLocked(reg)

	var once sync.Once
	return func() {
		once.Do(func() { o.unobserve(el.Key, reg) })
	}
}

func (o *Observer) unobserve(key string, reg *registration) {
	o.vp.mu.Lock()
	defer o.vp.mu.Unlock()

	// A later Observe of the same key owns the slot now.
	if o.regs[key] != reg {
		return
	}
	delete(o.regs, key)
	for i, k := range o.order {
		if k == key {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

// Visible reports the last known state of a registered element.
func (o *Observer) Visible(key string) bool {
	o.vp.mu.Lock()
	defer o.vp.mu.Unlock()

	reg, ok := o.regs[key]
	return ok && reg.visible
}

// Len returns the number of registered elements.
func (o *Observer) Len() int {
	o.vp.mu.Lock()
	defer o.vp.mu.Unlock()
	return len(o.regs)
}

// Freeze stops reporting. Registrations and their state keep being tracked
// and anything queued is discarded. Idempotent.
func (o *Observer) Freeze() {
	o.vp.mu.Lock()
	defer o.vp.mu.Unlock()

	if o.frozen || o.closed {
		return
	}
	o.frozen = true
	o.dropPendingLocked()
}

// Unfreeze resumes reporting and re-reports the current state of every
// registered element. Idempotent.
func (o *Observer) Unfreeze() {
	o.vp.mu.Lock()
	defer o.vp.mu.Unlock()

	if !o.frozen || o.closed {
		return
	}
	o.frozen = false
	for _, key := range o.order {
		o.enqueueLocked(o.regs[key])
	}
}

// Frozen reports whether the observer is frozen.
func (o *Observer) Frozen() bool {
	o.vp.mu.Lock()
	defer o.vp.mu.Unlock()
	return o.frozen
}

// Close stops the observer and detaches it from the viewport. A flush that
// is already running completes. Idempotent.
func (o *Observer) Close() {
	o.vp.mu.Lock()
	defer o.vp.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true
	o.dropPendingLocked()
	o.regs = make(map[string]*registration)
	o.order = nil
	o.vp.detachLocked(o)
}

// recomputeLocked re-evaluates every registration after a scroll.
func (o *Observer) recomputeLocked() {
	for _, key := range o.order {
		o.updateLocked(o.regs[key])
	}
}

// recomputeKeyLocked re-evaluates one registration after its span changed.
func (o *Observer) recomputeKeyLocked(key string) {
	if reg, ok := o.regs[key]; ok {
		o.updateLocked(reg)
	}
}

func (o *Observer) updateLocked(reg *registration) {
	visible := o.vp.visibleLocked(reg.el.Key, o.cfg.Margin)
	if visible == reg.visible {
		return
	}
	reg.visible = visible
	o.enqueueLocked(reg)
}

func (o *Observer) enqueueLocked(reg *registration) {
	if o.frozen || o.closed {
		return
	}
	key := reg.el.Key
	if _, ok := o.pending[key]; !ok {
		o.queue = append(o.queue, key)
	}
	o.pending[key] = queued{
		entry:     Entry{Key: key, Data: reg.el.Data, Visible: reg.visible},
		callbacks: reg.callbacks,
	}
	o.scheduleLocked()
}

func (o *Observer) scheduleLocked() {
	if o.timer != nil {
		return
	}
	o.gen++
	gen := o.gen
	delay := o.limiter.Reserve().Delay()
	o.timer = time.AfterFunc(delay, func() { o.flush(gen) })
}

func (o *Observer) dropPendingLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.gen++
	o.pending = make(map[string]queued)
	o.queue = nil
}

func (o *Observer) flush(gen uint64) {
	o.flushMu.Lock()
	defer o.flushMu.Unlock()

	o.vp.mu.Lock()
	if gen != o.gen {
		o.vp.mu.Unlock()
		return
	}
	o.timer = nil
	if o.frozen || o.closed || len(o.queue) == 0 {
		o.vp.mu.Unlock()
		return
	}
	batch := make([]queued, 0, len(o.queue))
	for _, key := range o.queue {
		batch = append(batch, o.pending[key])
	}
	o.pending = make(map[string]queued)
	o.queue = nil
	o.vp.mu.Unlock()

	if o.captured != nil {
		o.captured()
	}

	// A Freeze or Close that landed after capture still wins. Unfreeze
	// re-reports every registration, so nothing is lost.
	o.vp.mu.Lock()
	stale := o.frozen || o.closed
	o.vp.mu.Unlock()
	if stale {
		return
	}

	if o.onFlush != nil {
		entries := make([]Entry, len(batch))
		for i, q := range batch {
			entries[i] = q.entry
		}
		o.onFlush(entries)
	}
	for _, q := range batch {
		for _, cb := range q.callbacks {
			cb(q.entry)
		}
	}
}
