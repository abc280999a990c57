package ui

import (
	"maps"
	"strconv"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/readwatch/internal/config"
	"github.com/abelbrown/readwatch/internal/layout"
	"github.com/abelbrown/readwatch/internal/lifecycle"
	"github.com/abelbrown/readwatch/internal/logging"
	"github.com/abelbrown/readwatch/internal/otel"
	"github.com/abelbrown/readwatch/internal/readstate"
	"github.com/abelbrown/readwatch/internal/sink"
	"github.com/abelbrown/readwatch/internal/store"
	"github.com/abelbrown/readwatch/internal/tracker"
	"github.com/abelbrown/readwatch/internal/visibility"
)

// DefaultRowHeight is the pixel height given to one terminal row.
const DefaultRowHeight = 20

const comp = "ui"

// Options wires an App to its collaborators.
type Options struct {
	ChatID    int64
	ListType  readstate.ListType
	Viewport  *visibility.Viewport // nil creates a private one
	Boundary  *readstate.Boundary  // nil creates an undefined one
	Actions   readstate.Actions
	Timing    config.Timing
	Layout    config.LayoutConfig
	RowHeight int
	Events    *otel.Logger
	Ring      *otel.RingBuffer
	GOOS      string

	// Load returns a Cmd that produces MessagesLoaded.
	Load func() tea.Cmd
	// Send delivers observer callbacks to the running program. Callbacks
	// are dropped when nil.
	Send func(tea.Msg)
}

// registered tracks the observer registrations of one element.
type registered struct {
	data    visibility.Dataset
	reading func()
	media   []func()
}

// App is the root Bubble Tea model.
// IMPORTANT: App does NOT hold *store.Store. It receives messages via tea messages.
//
// The tracker is created on the first WindowSizeMsg, once the layout class
// is known, and keeps its observer settings from then on.
type App struct {
	opts    Options
	tracker *tracker.Tracker
	device  layout.Class
	rows    map[string]*registered
	media   map[int]mediaState
	outside store.Counts // unread state of messages older than the loaded window

	messages    []store.Message
	cursor      int
	offset      int
	width       int
	height      int
	ready       bool
	loading     bool
	loaded      bool
	boundarySet bool
	unfocused   bool
	showDebug   bool
	err         error
}

// NewApp creates a new App.
func NewApp(opts Options) App {
	if opts.Viewport == nil {
		opts.Viewport = visibility.NewViewport()
	}
	if opts.Boundary == nil {
		opts.Boundary = readstate.NewBoundary(0)
	}
	if opts.RowHeight <= 0 {
		opts.RowHeight = DefaultRowHeight
	}
	if opts.ListType == "" {
		opts.ListType = readstate.ListThread
	}
	return App{
		opts:    opts,
		rows:    make(map[string]*registered),
		media:   make(map[int]mediaState),
		loading: opts.Load != nil,
	}
}

// Init initializes the App by loading messages.
func (a App) Init() tea.Cmd {
	if a.opts.Load != nil {
		return a.opts.Load()
	}
	return nil
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.ensureTracker()
		a.syncRows()
		return a, nil

	case tea.FocusMsg, tea.ResumeMsg:
		a.foreground()
		return a, nil

	case tea.BlurMsg, tea.SuspendMsg:
		a.background()
		return a, nil

	case MessagesLoaded:
		a.loading = false
		if msg.Err != nil {
			a.err = msg.Err
			logging.Error("Load messages failed", "chat", a.opts.ChatID, "error", msg.Err)
			return a, nil
		}
		a.err = nil
		a.applyLoaded(msg)
		a.outside = outsideWindow(msg.Counts, windowCounts(a.messages))
		a.syncRows()
		return a, nil

	case MessagesArrived:
		if msg.ChatID != a.opts.ChatID || a.opts.Load == nil {
			return a, nil
		}
		a.loading = true
		return a, a.opts.Load()

	case sink.ReadMarked:
		if msg.ChatID != a.opts.ChatID {
			return a, nil
		}
		for i := range a.messages {
			if a.messages[i].ID <= msg.MaxID {
				a.messages[i].Read = true
			}
		}
		return a, nil

	case sink.MentionsRead:
		if msg.ChatID != a.opts.ChatID {
			return a, nil
		}
		a.clearFlags(msg.IDs, func(m *store.Message) { m.HasMention = false })
		a.syncRows()
		return a, nil

	case sink.ReactionsSeen:
		if msg.ChatID != a.opts.ChatID {
			return a, nil
		}
		a.clearFlags(msg.IDs, func(m *store.Message) { m.HasReaction = false })
		a.syncRows()
		return a, nil

	case mediaChanged:
		a.applyMedia(msg)
		return a, nil
	}

	return a, nil
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Clear any existing error on key press
	if a.err != nil {
		a.err = nil
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, keys.Suspend):
		a.background()
		return a, tea.Suspend

	case key.Matches(msg, keys.Debug):
		a.showDebug = !a.showDebug
		return a, nil

	case key.Matches(msg, keys.Pause):
		if a.tracker != nil && a.tracker.State() == lifecycle.Active {
			a.background()
		} else {
			a.foreground()
		}
		return a, nil

	case key.Matches(msg, keys.Down):
		a.moveCursor(1)
	case key.Matches(msg, keys.Up):
		a.moveCursor(-1)
	case key.Matches(msg, keys.PageDown):
		a.moveCursor(a.listHeight())
	case key.Matches(msg, keys.PageUp):
		a.moveCursor(-a.listHeight())
	case key.Matches(msg, keys.Top):
		a.moveCursor(-len(a.messages))
	case key.Matches(msg, keys.Bottom):
		a.moveCursor(len(a.messages))
	default:
		return a, nil
	}

	a.syncRows()
	return a, nil
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}

	if a.showDebug {
		return debugOverlay(a.opts.Ring, a.width, a.height-1) + "\n" + debugStatusBar(a.width)
	}

	stream := RenderStream(a.messages, a.media, a.cursor, a.offset, a.width, a.listHeight(), a.device.IsMobile)

	if a.err != nil {
		return stream + ErrorStyle.Width(a.width).Render("Error: "+a.err.Error()+" (press any key to dismiss)")
	}

	info := statusInfo{
		cursor:   a.cursor,
		total:    len(a.messages),
		mobile:   a.device.IsMobile,
		loading:  a.loading,
		tracking: lifecycle.Active,
	}
	if a.tracker != nil {
		info.tracking = a.tracker.State()
	}
	c := a.Counts()
	info.unread, info.mentions, info.reactions = c.Unread, c.Mentions, c.Reactions
	return stream + RenderStatusBar(info, a.width)
}

// Counts returns the chat's unread totals: the loaded rows as they are now,
// plus whatever the last load reported beyond them.
func (a App) Counts() store.Counts {
	c := windowCounts(a.messages)
	c.Unread += a.outside.Unread
	c.Mentions += a.outside.Mentions
	c.Reactions += a.outside.Reactions
	return c
}

func windowCounts(msgs []store.Message) store.Counts {
	var c store.Counts
	for _, m := range msgs {
		if !m.Read {
			c.Unread++
		}
		if m.HasMention {
			c.Mentions++
		}
		if m.HasReaction {
			c.Reactions++
		}
	}
	return c
}

// outsideWindow is total minus window, clamped at zero. A zero total
// (no counts reported) yields zero.
func outsideWindow(total, window store.Counts) store.Counts {
	sub := func(a, b int) int {
		if a > b {
			return a - b
		}
		return 0
	}
	return store.Counts{
		Unread:    sub(total.Unread, window.Unread),
		Mentions:  sub(total.Mentions, window.Mentions),
		Reactions: sub(total.Reactions, window.Reactions),
	}
}

// Close stops the tracker's observers. Call it on the final model once the
// program has exited.
func (a App) Close() {
	if a.tracker != nil {
		a.tracker.Close()
	}
}

// Cursor returns the current cursor position (for testing).
func (a App) Cursor() int {
	return a.cursor
}

// Messages returns the current messages (for testing).
func (a App) Messages() []store.Message {
	return a.messages
}

// Tracker returns the tracker, nil before the first WindowSizeMsg.
func (a App) Tracker() *tracker.Tracker {
	return a.tracker
}

func (a *App) ensureTracker() {
	device := layout.Resolve(a.width, a.opts.Layout.MobileMaxWidth).Forced(a.opts.Layout.Force)
	if a.tracker != nil {
		if device != a.device {
			logging.Debug("Layout class changed, observer settings unchanged", "mobile", device.IsMobile)
		}
		return
	}

	a.device = device
	a.tracker = tracker.New(tracker.Options{
		ListType: a.opts.ListType,
		ChatID:   a.opts.ChatID,
		Provider: a.opts.Viewport,
		Boundary: a.opts.Boundary,
		Actions:  a.opts.Actions,
		Device:   device,
		Timing:   a.opts.Timing,
		GOOS:     a.opts.GOOS,
		Events:   a.opts.Events,
	})
	if a.unfocused {
		a.tracker.Background()
	}
}

func (a *App) background() {
	a.unfocused = true
	if a.tracker != nil {
		a.tracker.Background()
	}
}

func (a *App) foreground() {
	a.unfocused = false
	if a.tracker != nil {
		a.tracker.Foreground()
	}
}

func (a *App) applyLoaded(msg MessagesLoaded) {
	prevID, atEnd := 0, false
	if a.cursor < len(a.messages) {
		prevID = a.messages[a.cursor].ID
		atEnd = a.cursor == len(a.messages)-1
	}
	a.messages = msg.Messages

	// The boundary is a snapshot: later loads never move it.
	if !a.boundarySet && msg.FirstUnreadID > 0 {
		a.opts.Boundary.Set(msg.FirstUnreadID)
		a.boundarySet = true
		logging.Info("Read boundary set", "chat", a.opts.ChatID, "first_unread", msg.FirstUnreadID)
	}

	last := len(a.messages) - 1
	switch {
	case !a.loaded:
		// Open at the first unread message, or at the bottom.
		a.loaded = true
		a.cursor = last
		if i := a.indexOf(msg.FirstUnreadID); i >= 0 {
			a.cursor = i
		}
		a.offset = a.cursor
	case atEnd:
		a.cursor = last
	default:
		if i := a.indexOf(prevID); i >= 0 {
			a.cursor = i
		}
	}
	if a.cursor > last {
		a.cursor = last
	}
	if a.cursor < 0 {
		a.cursor = 0
	}
}

func (a *App) applyMedia(msg mediaChanged) {
	st := a.media[msg.ID]
	wasLoaded := st.loaded

	switch msg.Kind {
	case mediaLoading:
		st.loaded = st.loaded || msg.Visible
	case mediaPlaying:
		if msg.Visible && !st.playing {
			a.opts.Events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindMediaPlay, Comp: comp, ChatID: a.opts.ChatID, IDs: []int{msg.ID}})
		}
		st.playing = msg.Visible
		// Anything on screen is inside the loading region too.
		st.loaded = st.loaded || msg.Visible
	}

	if st.loaded && !wasLoaded {
		a.opts.Events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindMediaLoad, Comp: comp, ChatID: a.opts.ChatID, IDs: []int{msg.ID}})
	}
	a.media[msg.ID] = st
}

func (a *App) clearFlags(ids []int, apply func(*store.Message)) {
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for i := range a.messages {
		if set[a.messages[i].ID] {
			apply(&a.messages[i])
		}
	}
}

func (a *App) moveCursor(delta int) {
	a.cursor += delta
	if a.cursor >= len(a.messages) {
		a.cursor = len(a.messages) - 1
	}
	if a.cursor < 0 {
		a.cursor = 0
	}
}

func (a App) indexOf(id int) int {
	if id <= 0 {
		return -1
	}
	for i, m := range a.messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// listHeight is the number of message rows on screen.
func (a App) listHeight() int {
	h := a.height - 1 // status bar
	if h < 1 {
		h = 1
	}
	return h
}

// syncRows mirrors the rendered list into the viewport: the scroll window,
// one span per message and per album, and the observer registrations.
func (a *App) syncRows() {
	if a.tracker == nil {
		return
	}

	rowH := a.opts.RowHeight
	height := a.listHeight()
	a.offset = calcScrollOffset(a.cursor, a.offset, height, len(a.messages))

	vp := a.opts.Viewport
	vp.Scroll(a.offset*rowH, height*rowH)

	want := make(map[string]bool, len(a.messages))
	for i, m := range a.messages {
		key := messageKey(m.ID)
		want[key] = true
		vp.Place(key, i*rowH, rowH)
		a.observe(key, messageData(m), m.HasMedia, m.ID)
	}

	// Albums are read as a unit: the element carries the last id of the run.
	for _, al := range findAlbums(a.messages) {
		first, last := a.messages[al.first], a.messages[al.last]
		key := albumKey(first.ID)
		want[key] = true
		vp.Place(key, al.first*rowH, (al.last-al.first+1)*rowH)
		a.observe(key, visibility.Dataset{
			visibility.AttrMessageID:     strconv.Itoa(first.ID),
			visibility.AttrLastMessageID: strconv.Itoa(last.ID),
		}, false, 0)
	}

	for key, r := range a.rows {
		if want[key] {
			continue
		}
		r.reading()
		for _, unobserve := range r.media {
			unobserve()
		}
		delete(a.rows, key)
		vp.Remove(key)
	}
}

// observe registers key with the tracker, or re-registers it for reading
// when its data changed.
func (a *App) observe(key string, data visibility.Dataset, media bool, id int) {
	r, ok := a.rows[key]
	if ok && maps.Equal(r.data, data) {
		return
	}

	el := visibility.Element{Key: key, Data: data}
	if !ok {
		r = &registered{}
		a.rows[key] = r
		if media {
			r.media = append(r.media,
				a.tracker.ObserveForLoading(el, a.mediaCallback(id, mediaLoading)),
				a.tracker.ObserveForPlaying(el, a.mediaCallback(id, mediaPlaying)))
		}
	}
	r.data = data
	r.reading = a.tracker.ObserveForReading(el)
}

func (a *App) mediaCallback(id int, kind mediaKind) func(visibility.Entry) {
	send := a.opts.Send
	return func(e visibility.Entry) {
		if send != nil {
			send(mediaChanged{ID: id, Kind: kind, Visible: e.Visible})
		}
	}
}

func messageKey(id int) string { return "msg:" + strconv.Itoa(id) }
func albumKey(id int) string   { return "album:" + strconv.Itoa(id) }

// messageData is the attribute bag the reading observer sees for a message.
func messageData(m store.Message) visibility.Dataset {
	data := visibility.Dataset{visibility.AttrMessageID: strconv.Itoa(m.ID)}
	if m.HasMention {
		data[visibility.AttrUnreadMention] = "1"
	}
	if m.HasReaction {
		data[visibility.AttrUnreadReaction] = "1"
	}
	return data
}

// Key bindings
var keys = struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Top      key.Binding
	Bottom   key.Binding
	Pause    key.Binding
	Debug    key.Binding
	Suspend  key.Binding
	Quit     key.Binding
}{
	Up:       key.NewBinding(key.WithKeys("k", "up")),
	Down:     key.NewBinding(key.WithKeys("j", "down")),
	PageUp:   key.NewBinding(key.WithKeys("pgup", "b")),
	PageDown: key.NewBinding(key.WithKeys("pgdown", "f", " ")),
	Top:      key.NewBinding(key.WithKeys("g", "home")),
	Bottom:   key.NewBinding(key.WithKeys("G", "end")),
	Pause:    key.NewBinding(key.WithKeys("s")),
	Debug:    key.NewBinding(key.WithKeys("D")),
	Suspend:  key.NewBinding(key.WithKeys("ctrl+z")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c")),
}
