// Package otel provides structured observability for readwatch.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
// An optional RingBuffer backs the debug overlay in the TUI.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Visibility batches
	KindBatchFlush   EventKind = "batch.flush"
	KindBatchSkipped EventKind = "batch.skipped"

	// Read-state actions
	KindReadMark      EventKind = "read.mark"
	KindMentionsRead  EventKind = "read.mentions"
	KindReactionsSeen EventKind = "read.reactions"

	// Lifecycle gate
	KindGateSuspend EventKind = "gate.suspend"
	KindGateResume  EventKind = "gate.resume"

	// Auxiliary observers
	KindMediaLoad EventKind = "media.load"
	KindMediaPlay EventKind = "media.play"

	// Sink / store
	KindSinkError  EventKind = "sink.error"
	KindStoreError EventKind = "store.error"

	// Incoming traffic
	KindFeedArrived EventKind = "feed.arrived"

	// System
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"
)

// Event is the universal observability record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // "tracker", "sink", "ui", "coord", "main"
	SessionID string         `json:"session_id,omitempty"` // same for entire run
	Observer  string         `json:"observer,omitempty"`   // "reading", "loading", "playing"
	ChatID    int64          `json:"chat,omitempty"`
	Dur       time.Duration  `json:"-"`
	DurMs     float64        `json:"dur_ms,omitempty"` // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	MaxID     int            `json:"max_id,omitempty"`
	IDs       []int          `json:"ids,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
