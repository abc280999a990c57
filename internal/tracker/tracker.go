// Package tracker wires the three visibility observers of a message list.
//
// The reading observer feeds the read-state reducer and is suspended while
// the app is in the background. The loading and playing observers only hand
// visibility to their callers, and keep running in the background.
package tracker

import (
	"runtime"
	"time"

	"github.com/abelbrown/readwatch/internal/config"
	"github.com/abelbrown/readwatch/internal/layout"
	"github.com/abelbrown/readwatch/internal/lifecycle"
	"github.com/abelbrown/readwatch/internal/logging"
	"github.com/abelbrown/readwatch/internal/otel"
	"github.com/abelbrown/readwatch/internal/readstate"
	"github.com/abelbrown/readwatch/internal/visibility"
)

// Defaults used when Timing leaves a field zero.
const (
	ReadingThrottle     = 150 * time.Millisecond
	LoadingMarginMobile = 300
	LoadingMargin       = 500
)

const comp = "tracker"

// Options configures a Tracker. Provider and Actions are required.
type Options struct {
	ListType readstate.ListType
	ChatID   int64
	Provider visibility.Provider
	Boundary *readstate.Boundary // owned by the host; may be nil
	Actions  readstate.Actions
	Device   layout.Class
	Timing   config.Timing
	GOOS     string       // defaults to runtime.GOOS
	Events   *otel.Logger // optional
}

// Configs are the observer settings chosen for one tracker.
type Configs struct {
	Reading visibility.Config
	Loading visibility.Config
	Playing visibility.Config
}

// ResolveConfigs picks observer settings from timing overrides, device class
// and platform. Zero timing fields fall back to the package defaults.
func ResolveConfigs(t config.Timing, device layout.Class, goos string) Configs {
	reading := t.ReadingThrottle
	if reading <= 0 {
		reading = ReadingThrottle
	}

	media := t.MediaThrottle
	if media <= 0 {
		media = layout.MediaThrottleFor(goos)
	}

	margin := t.LoadingMargin
	if margin <= 0 {
		margin = LoadingMargin
	}
	if device.IsMobile {
		margin = t.LoadingMarginMobile
		if margin <= 0 {
			margin = LoadingMarginMobile
		}
	}

	return Configs{
		Reading: visibility.Config{Throttle: reading},
		Loading: visibility.Config{Throttle: media, Margin: margin},
		Playing: visibility.Config{Throttle: media},
	}
}

// Tracker exposes ObserveForReading, ObserveForLoading and ObserveForPlaying
// for one message list.
type Tracker struct {
	listType readstate.ListType
	chatID   int64
	boundary *readstate.Boundary
	actions  readstate.Actions
	events   *otel.Logger
	configs  Configs

	reading visibility.Handle
	loading visibility.Handle
	playing visibility.Handle
	gate    *lifecycle.Gate
}

// New creates the observers. Configuration is fixed for the tracker's life.
func New(opts Options) *Tracker {
	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	t := &Tracker{
		listType: opts.ListType,
		chatID:   opts.ChatID,
		boundary: opts.Boundary,
		actions:  opts.Actions,
		events:   opts.Events,
		configs:  ResolveConfigs(opts.Timing, opts.Device, goos),
	}

	t.reading = opts.Provider.CreateObserver(t.configs.Reading, t.handleReading)
	t.loading = opts.Provider.CreateObserver(t.configs.Loading, nil)
	t.playing = opts.Provider.CreateObserver(t.configs.Playing, nil)
	t.gate = lifecycle.NewGate(t.reading, t.gateChanged)

	logging.Debug("Tracker created",
		"list", opts.ListType,
		"chat", opts.ChatID,
		"mobile", opts.Device.IsMobile,
		"reading_throttle", t.configs.Reading.Throttle,
		"media_throttle", t.configs.Loading.Throttle,
		"loading_margin", t.configs.Loading.Margin)

	return t
}

// Configs returns the observer settings in use.
func (t *Tracker) Configs() Configs {
	return t.configs
}

// ObserveForReading registers a message or run terminator for read, mention
// and reaction tracking.
func (t *Tracker) ObserveForReading(el visibility.Element) (unobserve func()) {
	return t.reading.Observe(el)
}

// ObserveForLoading registers an element for deferred loading. The region
// extends past the viewport by the loading margin.
func (t *Tracker) ObserveForLoading(el visibility.Element, onEntry ...func(visibility.Entry)) (unobserve func()) {
	return t.loading.Observe(el, onEntry...)
}

// ObserveForPlaying registers an element for autoplay. No margin: it has to
// actually be on screen.
func (t *Tracker) ObserveForPlaying(el visibility.Element, onEntry ...func(visibility.Entry)) (unobserve func()) {
	return t.playing.Observe(el, onEntry...)
}

// Background suspends read tracking.
func (t *Tracker) Background() {
	t.gate.Background()
}

// Foreground resumes read tracking.
func (t *Tracker) Foreground() {
	t.gate.Foreground()
}

// State reports whether read tracking is active or suspended.
func (t *Tracker) State() lifecycle.State {
	return t.gate.State()
}

// Close stops all observers.
func (t *Tracker) Close() {
	t.reading.Close()
	t.loading.Close()
	t.playing.Close()
}

func (t *Tracker) handleReading(raw []visibility.Entry) {
	if !t.listType.TracksReads() {
		t.events.Emit(otel.Event{
			Level:    otel.LevelDebug,
			Kind:     otel.KindBatchSkipped,
			Comp:     comp,
			Observer: "reading",
			ChatID:   t.chatID,
			Count:    len(raw),
			Msg:      string(t.listType),
		})
		return
	}

	start := time.Now()
	res := readstate.Reduce(readstate.DecodeAll(raw))
	if res.Empty() {
		return
	}
	d := readstate.Dispatch(res, t.boundary, t.actions)

	t.events.Emit(otel.Event{
		Level:    otel.LevelDebug,
		Kind:     otel.KindBatchFlush,
		Comp:     comp,
		Observer: "reading",
		ChatID:   t.chatID,
		Count:    len(raw),
		MaxID:    res.MaxID,
		Dur:      time.Since(start),
	})
	if d.ReadUpTo > 0 {
		t.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindReadMark, Comp: comp, ChatID: t.chatID, MaxID: d.ReadUpTo})
	}
	if d.Mentions > 0 {
		t.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindMentionsRead, Comp: comp, ChatID: t.chatID, IDs: res.MentionIDs})
	}
	if d.Reactions > 0 {
		t.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindReactionsSeen, Comp: comp, ChatID: t.chatID, IDs: res.ReactionIDs})
	}
}

func (t *Tracker) gateChanged(from, to lifecycle.State) {
	kind := otel.KindGateResume
	if to == lifecycle.Suspended {
		kind = otel.KindGateSuspend
	}
	t.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: kind, Comp: comp, ChatID: t.chatID, Observer: "reading"})
	logging.Info("Read tracking "+to.String(), "chat", t.chatID, "from", from.String())
}
