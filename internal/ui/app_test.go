package ui

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelbrown/readwatch/internal/config"
	"github.com/abelbrown/readwatch/internal/lifecycle"
	"github.com/abelbrown/readwatch/internal/otel"
	"github.com/abelbrown/readwatch/internal/sink"
	"github.com/abelbrown/readwatch/internal/store"
	"github.com/abelbrown/readwatch/internal/visibility"
)

type recorder struct {
	mu        sync.Mutex
	readUpTo  []int
	mentions  [][]int
	reactions [][]int
}

func (r *recorder) MarkReadUpTo(maxID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readUpTo = append(r.readUpTo, maxID)
}

func (r *recorder) MarkMentionsRead(ids []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mentions = append(r.mentions, ids)
}

func (r *recorder) TriggerReactionSeen(ids []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reactions = append(r.reactions, ids)
}

func (r *recorder) reads() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.readUpTo...)
}

func (r *recorder) hasRead(id int) bool {
	for _, got := range r.reads() {
		if got == id {
			return true
		}
	}
	return false
}

type harness struct {
	rec  *recorder
	sent chan tea.Msg
}

func newTestApp(t *testing.T, edit ...func(*Options)) (App, *harness) {
	t.Helper()
	h := &harness{rec: &recorder{}, sent: make(chan tea.Msg, 1024)}
	opts := Options{
		ChatID:  1,
		Actions: h.rec,
		Timing:  config.Timing{ReadingThrottle: 5 * time.Millisecond, MediaThrottle: 5 * time.Millisecond},
		GOOS:    "linux",
		Send: func(m tea.Msg) {
			select {
			case h.sent <- m:
			default:
			}
		},
	}
	for _, fn := range edit {
		fn(&opts)
	}
	return NewApp(opts), h
}

func update(a App, msg tea.Msg) App {
	m, _ := a.Update(msg)
	return m.(App)
}

func press(a App, k string) App {
	return update(a, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
}

// chat builds n text messages with ids 1..n; ids below firstUnread are read.
func chat(n, firstUnread int) []store.Message {
	msgs := make([]store.Message, 0, n)
	for id := 1; id <= n; id++ {
		sender := "alice"
		if id%2 == 0 {
			sender = "bob"
		}
		msgs = append(msgs, store.Message{
			ChatID: 1,
			ID:     id,
			Sender: sender,
			Body:   fmt.Sprintf("message %d", id),
			Read:   firstUnread <= 0 || id < firstUnread,
		})
	}
	return msgs
}

// openChat sizes the window (10 list rows) and loads msgs.
func openChat(a App, msgs []store.Message, firstUnread int) App {
	a = update(a, tea.WindowSizeMsg{Width: 100, Height: 11})
	return update(a, MessagesLoaded{Messages: msgs, FirstUnreadID: firstUnread})
}

func TestViewBeforeWindowSize(t *testing.T) {
	a, _ := newTestApp(t)
	assert.Equal(t, "Loading...", a.View())
	assert.Nil(t, a.Tracker())
}

func TestInitLoads(t *testing.T) {
	a, _ := newTestApp(t, func(o *Options) {
		o.Load = func() tea.Cmd {
			return func() tea.Msg { return MessagesLoaded{Messages: chat(3, 0)} }
		}
	})

	cmd := a.Init()
	require.NotNil(t, cmd)
	loaded, ok := cmd().(MessagesLoaded)
	require.True(t, ok)
	assert.Len(t, loaded.Messages, 3)

	b, _ := newTestApp(t)
	assert.Nil(t, b.Init())
}

func TestBoundaryIsSetOnce(t *testing.T) {
	a, _ := newTestApp(t)

	a = update(a, MessagesLoaded{Messages: chat(10, 0)})
	_, ok := a.opts.Boundary.Current()
	assert.False(t, ok, "fully read chat leaves the boundary undefined")

	a = update(a, MessagesLoaded{Messages: chat(10, 4), FirstUnreadID: 4})
	first, ok := a.opts.Boundary.Current()
	require.True(t, ok)
	assert.Equal(t, 4, first)

	a = update(a, MessagesLoaded{Messages: chat(10, 8), FirstUnreadID: 8})
	first, _ = a.opts.Boundary.Current()
	assert.Equal(t, 4, first, "later loads never move the boundary")
}

func TestOpenAtFirstUnreadMarksVisibleRows(t *testing.T) {
	a, h := newTestApp(t)
	a = openChat(a, chat(30, 12), 12)
	defer a.Close()

	assert.Equal(t, 11, a.Cursor())
	require.Eventually(t, func() bool { return h.rec.hasRead(21) }, time.Second, 2*time.Millisecond)
	for _, id := range h.rec.reads() {
		assert.GreaterOrEqual(t, id, 12)
	}

	a = press(a, "G")
	assert.Equal(t, 29, a.Cursor())
	require.Eventually(t, func() bool { return h.rec.hasRead(30) }, time.Second, 2*time.Millisecond)
}

func TestBlurSuspendsReadTracking(t *testing.T) {
	a, h := newTestApp(t)
	a = openChat(a, chat(30, 1), 1)
	defer a.Close()
	require.Eventually(t, func() bool { return h.rec.hasRead(10) }, time.Second, 2*time.Millisecond)

	a = update(a, tea.BlurMsg{})
	assert.Equal(t, lifecycle.Suspended, a.Tracker().State())
	assert.Contains(t, a.View(), "paused")

	n := len(h.rec.reads())
	a = press(a, "G")
	time.Sleep(40 * time.Millisecond)
	assert.Len(t, h.rec.reads(), n, "nothing dispatched while unfocused")

	a = update(a, tea.FocusMsg{})
	assert.Equal(t, lifecycle.Active, a.Tracker().State())
	require.Eventually(t, func() bool { return h.rec.hasRead(30) }, time.Second, 2*time.Millisecond)
}

func TestBlurBeforeWindowSize(t *testing.T) {
	a, _ := newTestApp(t)
	a = update(a, tea.BlurMsg{})
	a = update(a, tea.WindowSizeMsg{Width: 100, Height: 11})
	defer a.Close()

	assert.Equal(t, lifecycle.Suspended, a.Tracker().State())
}

func TestSuspendResume(t *testing.T) {
	a, _ := newTestApp(t)
	a = update(a, tea.WindowSizeMsg{Width: 100, Height: 11})
	defer a.Close()

	m, cmd := a.Update(tea.KeyMsg{Type: tea.KeyCtrlZ})
	a = m.(App)
	assert.NotNil(t, cmd)
	assert.Equal(t, lifecycle.Suspended, a.Tracker().State())

	a = update(a, tea.ResumeMsg{})
	assert.Equal(t, lifecycle.Active, a.Tracker().State())
}

func TestPauseKeyToggles(t *testing.T) {
	a, _ := newTestApp(t)
	a = update(a, tea.WindowSizeMsg{Width: 100, Height: 11})
	defer a.Close()

	a = press(a, "s")
	assert.Equal(t, lifecycle.Suspended, a.Tracker().State())
	a = press(a, "s")
	assert.Equal(t, lifecycle.Active, a.Tracker().State())
}

func TestLayoutClassPicksLoadingMargin(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		force  string
		margin int
	}{
		{"desktop", 120, "", 500},
		{"narrow", 60, "", 300},
		{"forced desktop", 60, "desktop", 500},
		{"forced mobile", 120, "mobile", 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestApp(t, func(o *Options) { o.Layout.Force = tt.force })
			a = update(a, tea.WindowSizeMsg{Width: tt.width, Height: 20})
			defer a.Close()
			assert.Equal(t, tt.margin, a.Tracker().Configs().Loading.Margin)
			assert.Zero(t, a.Tracker().Configs().Playing.Margin)
		})
	}
}

func TestNavigation(t *testing.T) {
	a, _ := newTestApp(t)
	a = openChat(a, chat(30, 0), 0)
	defer a.Close()

	assert.Equal(t, 29, a.Cursor(), "fully read chat opens at the bottom")

	a = press(a, "j")
	assert.Equal(t, 29, a.Cursor())
	a = press(a, "k")
	assert.Equal(t, 28, a.Cursor())
	a = press(a, "g")
	assert.Equal(t, 0, a.Cursor())
	a = press(a, "k")
	assert.Equal(t, 0, a.Cursor())
	a = press(a, "f")
	assert.Equal(t, 10, a.Cursor())
	a = press(a, "b")
	assert.Equal(t, 0, a.Cursor())

	top, height := a.opts.Viewport.Window()
	assert.Equal(t, 0, top)
	assert.Equal(t, 10*DefaultRowHeight, height)
}

func TestReloadKeepsPosition(t *testing.T) {
	a, _ := newTestApp(t)
	a = openChat(a, chat(20, 0), 0)
	defer a.Close()
	require.Equal(t, 19, a.Cursor())

	// At the bottom: follow new messages.
	a = update(a, MessagesLoaded{Messages: chat(22, 0)})
	assert.Equal(t, 21, a.Cursor())

	// Elsewhere: stay on the same message.
	a = press(a, "g")
	a = press(a, "j")
	a = update(a, MessagesLoaded{Messages: chat(25, 0)})
	assert.Equal(t, 2, a.Messages()[a.Cursor()].ID)
}

func TestMessagesArrivedReloads(t *testing.T) {
	a, _ := newTestApp(t, func(o *Options) {
		o.Load = func() tea.Cmd { return func() tea.Msg { return MessagesLoaded{} } }
	})

	_, cmd := a.Update(MessagesArrived{ChatID: 1, Count: 2})
	assert.NotNil(t, cmd)

	_, cmd = a.Update(MessagesArrived{ChatID: 2, Count: 2})
	assert.Nil(t, cmd, "other chats are ignored")
}

func TestSinkNotificationsUpdateRows(t *testing.T) {
	a, _ := newTestApp(t)
	msgs := chat(5, 1)
	msgs[1].HasMention = true
	msgs[2].HasReaction = true
	a = openChat(a, msgs, 1)
	defer a.Close()

	require.Contains(t, a.rows["msg:2"].data, visibility.AttrUnreadMention)

	a = update(a, sink.ReadMarked{ChatID: 1, MaxID: 3, Changed: 3})
	for _, m := range a.Messages() {
		assert.Equal(t, m.ID <= 3, m.Read, "message %d", m.ID)
	}

	a = update(a, sink.MentionsRead{ChatID: 1, IDs: []int{2}})
	assert.False(t, a.Messages()[1].HasMention)
	assert.NotContains(t, a.rows["msg:2"].data, visibility.AttrUnreadMention, "element re-registered without the flag")

	a = update(a, sink.ReactionsSeen{ChatID: 2, IDs: []int{3}})
	assert.True(t, a.Messages()[2].HasReaction, "other chats are ignored")

	a = update(a, sink.ReactionsSeen{ChatID: 1, IDs: []int{3}})
	assert.False(t, a.Messages()[2].HasReaction)
}

func TestAlbumElements(t *testing.T) {
	a, _ := newTestApp(t)
	msgs := chat(5, 1)
	for i := 1; i <= 3; i++ {
		msgs[i].Sender = "bob"
		msgs[i].HasMedia = true
	}
	a = openChat(a, msgs, 1)
	defer a.Close()

	r, ok := a.rows["album:2"]
	require.True(t, ok)
	assert.Equal(t, "2", r.data[visibility.AttrMessageID])
	assert.Equal(t, "4", r.data[visibility.AttrLastMessageID])
	assert.Len(t, a.rows["msg:3"].media, 2, "media rows join the loading and playing observers")
	assert.Empty(t, a.rows["msg:1"].media)

	// Breaking the run removes the album element.
	msgs[2].HasMedia = false
	a = update(a, MessagesLoaded{Messages: msgs, FirstUnreadID: 1})
	_, ok = a.rows["album:2"]
	assert.False(t, ok)
}

func TestMediaStates(t *testing.T) {
	ring := otel.NewRingBuffer(64)
	events := otel.NewNullLogger()
	events.SetRingBuffer(ring)

	a, h := newTestApp(t, func(o *Options) { o.Events = events })
	msgs := chat(40, 0)
	msgs[2].HasMedia = true  // on screen
	msgs[29].HasMedia = true // inside the loading margin only
	msgs[39].HasMedia = true // far away
	a = openChat(a, msgs, 1)
	a = press(a, "g")
	defer a.Close()

	deadline := time.After(2 * time.Second)
	for !(strings.Contains(a.View(), "[▶ playing]") && a.media[30].loaded) {
		select {
		case m := <-h.sent:
			a = update(a, m)
		case <-deadline:
			t.Fatalf("media states not reported: %+v", a.media)
		}
	}

	assert.True(t, a.media[3].playing)
	assert.False(t, a.media[30].playing)
	assert.False(t, a.media[40].loaded)

	events.Close()
	assert.GreaterOrEqual(t, ring.Stats()[otel.KindMediaPlay], 1)
	assert.GreaterOrEqual(t, ring.Stats()[otel.KindMediaLoad], 2)
}

func TestDebugOverlayToggle(t *testing.T) {
	ring := otel.NewRingBuffer(16)
	a, _ := newTestApp(t, func(o *Options) { o.Ring = ring })
	a = openChat(a, chat(3, 0), 0)
	defer a.Close()

	a = press(a, "D")
	assert.Contains(t, a.View(), "Read Tracking")
	a = press(a, "D")
	assert.NotContains(t, a.View(), "Read Tracking")
}

func TestErrorIsShownAndDismissed(t *testing.T) {
	a, _ := newTestApp(t)
	a = update(a, tea.WindowSizeMsg{Width: 100, Height: 11})
	defer a.Close()

	a = update(a, MessagesLoaded{Err: fmt.Errorf("database is locked")})
	assert.Contains(t, a.View(), "database is locked")

	a = press(a, "j")
	assert.NotContains(t, a.View(), "database is locked")
}

func TestQuit(t *testing.T) {
	a, _ := newTestApp(t)
	_, cmd := a.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestCountsIncludeMessagesOutsideWindow(t *testing.T) {
	a, _ := newTestApp(t)
	defer a.Close()

	a = update(a, tea.WindowSizeMsg{Width: 100, Height: 11})
	a = update(a, MessagesLoaded{
		Messages:      chat(10, 4),
		FirstUnreadID: 4,
		Counts:        store.Counts{Unread: 20, Mentions: 2},
	})
	assert.Equal(t, store.Counts{Unread: 20, Mentions: 2}, a.Counts())
	assert.Contains(t, a.View(), "unread 20")

	a = update(a, sink.ReadMarked{ChatID: 1, MaxID: 6, Changed: 3})
	assert.Equal(t, 17, a.Counts().Unread, "rows read in the window lower the total")
	assert.Equal(t, 2, a.Counts().Mentions)
}

func TestCountsWithoutStoreTotals(t *testing.T) {
	a, _ := newTestApp(t)
	defer a.Close()

	a = openChat(a, chat(10, 8), 8)
	assert.Equal(t, store.Counts{Unread: 3}, a.Counts())
}
