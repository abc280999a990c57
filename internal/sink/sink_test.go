package sink

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelbrown/readwatch/internal/otel"
	"github.com/abelbrown/readwatch/internal/readstate"
	"github.com/abelbrown/readwatch/internal/store"
	"github.com/abelbrown/readwatch/internal/work"
)

type notes struct {
	mu   sync.Mutex
	msgs []any
}

func (n *notes) add(m any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, m)
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = st.SaveMessages([]store.Message{
		{ChatID: 7, ID: 1, Sender: "a", Body: "1"},
		{ChatID: 7, ID: 2, Sender: "a", Body: "2", HasMention: true},
		{ChatID: 7, ID: 3, Sender: "b", Body: "3", HasReaction: true},
		{ChatID: 7, ID: 4, Sender: "b", Body: "4"},
	})
	require.NoError(t, err)
	return st
}

func TestSinkAppliesDispatchToStore(t *testing.T) {
	st := newStore(t)
	q := work.NewQueue(8)
	q.Start(context.Background())
	n := &notes{}
	s := New(7, st, q, nil, n.add)

	res := readstate.Reduce([]readstate.Entry{
		{MessageID: 2, Visible: true, HasUnreadMention: true},
		{MessageID: 3, Visible: true, HasUnreadReaction: true},
	})
	readstate.Dispatch(res, readstate.NewBoundary(1), s)
	q.Stop()

	c, err := st.UnreadCounts(7)
	require.NoError(t, err)
	assert.Equal(t, store.Counts{Unread: 1, Mentions: 0, Reactions: 0}, c)

	id, err := st.FirstUnreadID(7)
	require.NoError(t, err)
	assert.Equal(t, 4, id)

	assert.Equal(t, []any{
		ReadMarked{ChatID: 7, MaxID: 3, Changed: 3},
		MentionsRead{ChatID: 7, IDs: []int{2}},
		ReactionsSeen{ChatID: 7, IDs: []int{3}},
	}, n.msgs)
}

func TestSinkCopiesIDs(t *testing.T) {
	st := newStore(t)
	q := work.NewQueue(8)
	n := &notes{}
	s := New(7, st, q, nil, n.add)

	ids := []int{2}
	s.MarkMentionsRead(ids)
	ids[0] = 99

	q.Start(context.Background())
	q.Stop()

	c, err := st.UnreadCounts(7)
	require.NoError(t, err)
	assert.Zero(t, c.Mentions)
}

type failingWriter struct{}

func (failingWriter) MarkReadUpTo(int64, int) (int, error) { return 0, errors.New("disk full") }
func (failingWriter) MarkMentionsRead(int64, []int) (int, error) {
	return 0, errors.New("disk full")
}
func (failingWriter) ClearReactions(int64, []int) (int, error) { return 0, errors.New("disk full") }

func TestSinkFailuresAreEmittedNotReturned(t *testing.T) {
	logger := otel.NewNullLogger()
	ring := otel.NewRingBuffer(8)
	logger.SetRingBuffer(ring)

	q := work.NewQueue(8)
	q.Start(context.Background())
	n := &notes{}
	s := New(7, failingWriter{}, q, logger, n.add)

	s.MarkReadUpTo(3)
	s.MarkMentionsRead([]int{1})
	s.TriggerReactionSeen([]int{1})
	q.Stop()
	logger.Close()

	assert.Empty(t, n.msgs, "no notification after a failed write")
	assert.Equal(t, 3, ring.Stats()[otel.KindStoreError])
	assert.Equal(t, int64(3), q.Stats().Failed)
}

func TestSinkReportsDrops(t *testing.T) {
	logger := otel.NewNullLogger()
	ring := otel.NewRingBuffer(8)
	logger.SetRingBuffer(ring)

	q := work.NewQueue(1)
	q.Stop()
	s := New(7, failingWriter{}, q, logger, nil)
	s.MarkReadUpTo(1)
	logger.Close()

	assert.Equal(t, 1, ring.Stats()[otel.KindSinkError])
}
