// Package visibility tracks which elements of a scrolling container are in
// view and reports changes in throttled batches.
//
// A Viewport holds the container geometry: the scroll window and the span of
// every placed element. Observers created from it each have their own
// throttle and margin, and report per-element transitions to a flush callback.
// Units are whatever the host uses for geometry; readwatch uses pixels.
package visibility

import "time"

// Dataset attribute keys understood by the read-state reducer.
const (
	AttrMessageID      = "message-id"
	AttrLastMessageID  = "last-message-id"
	AttrUnreadMention  = "has-unread-mention"
	AttrUnreadReaction = "has-unread-reaction"
)

// Dataset is the loosely typed attribute bag attached to an element.
type Dataset map[string]string

// Element is something the host registers for observation.
// Key identifies it in the viewport's geometry.
type Element struct {
	Key  string
	Data Dataset
}

// Entry reports the visibility of one element.
type Entry struct {
	Key     string
	Data    Dataset
	Visible bool
}

// Config is fixed for the lifetime of an observer.
type Config struct {
	Throttle time.Duration // minimum spacing between flushes
	Margin   int           // grows the detection region on both edges; 0 for none
}

// Span is an element's vertical extent in container coordinates.
type Span struct {
	Top    int
	Height int
}

// Handle is what consumers of an observer need.
type Handle interface {
	Observe(el Element, onEntry ...func(Entry)) (unobserve func())
	Freeze()
	Unfreeze()
	Close()
}

// Provider creates observer handles.
type Provider interface {
	CreateObserver(cfg Config, onFlush func([]Entry)) Handle
}

// intersects reports whether s overlaps the window [top-margin, top+height+margin).
// A zero-height span counts when its top lies inside the window.
func intersects(s Span, top, height, margin int) bool {
	lo := top - margin
	hi := top + height + margin
	if s.Height <= 0 {
		return s.Top >= lo && s.Top < hi
	}
	return s.Top < hi && s.Top+s.Height > lo
}
