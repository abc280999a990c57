// Package sink applies read-state actions to the store.
//
// Sink implements readstate.Actions. Every call is queued on a serial
// work.Queue and returns immediately; the tracker never waits on SQLite.
package sink

import (
	"fmt"

	"github.com/abelbrown/readwatch/internal/logging"
	"github.com/abelbrown/readwatch/internal/otel"
	"github.com/abelbrown/readwatch/internal/readstate"
	"github.com/abelbrown/readwatch/internal/work"
)

const comp = "sink"

// Writer is the subset of store.Store the sink needs.
type Writer interface {
	MarkReadUpTo(chatID int64, maxID int) (int, error)
	MarkMentionsRead(chatID int64, ids []int) (int, error)
	ClearReactions(chatID int64, ids []int) (int, error)
}

// Notifications sent to the host after a successful write.
type (
	// ReadMarked reports that messages up to MaxID are now read.
	ReadMarked struct {
		ChatID  int64
		MaxID   int
		Changed int
	}

	// MentionsRead reports cleared mention flags.
	MentionsRead struct {
		ChatID int64
		IDs    []int
	}

	// ReactionsSeen reports cleared reaction flags.
	ReactionsSeen struct {
		ChatID int64
		IDs    []int
	}
)

// Sink queues store writes for one chat.
type Sink struct {
	chatID int64
	w      Writer
	q      *work.Queue
	events *otel.Logger
	notify func(any)
}

var _ readstate.Actions = (*Sink)(nil)

// New creates a sink. events and notify may be nil.
func New(chatID int64, w Writer, q *work.Queue, events *otel.Logger, notify func(any)) *Sink {
	return &Sink{chatID: chatID, w: w, q: q, events: events, notify: notify}
}

// MarkReadUpTo marks every message up to maxID read.
func (s *Sink) MarkReadUpTo(maxID int) {
	s.submit(fmt.Sprintf("read<=%d", maxID), func() error {
		n, err := s.w.MarkReadUpTo(s.chatID, maxID)
		if err != nil {
			return err
		}
		logging.Debug("Read mark applied", "chat", s.chatID, "max_id", maxID, "changed", n)
		s.send(ReadMarked{ChatID: s.chatID, MaxID: maxID, Changed: n})
		return nil
	})
}

// MarkMentionsRead clears unread mentions on ids.
func (s *Sink) MarkMentionsRead(ids []int) {
	ids = append([]int(nil), ids...)
	s.submit("mentions", func() error {
		if _, err := s.w.MarkMentionsRead(s.chatID, ids); err != nil {
			return err
		}
		s.send(MentionsRead{ChatID: s.chatID, IDs: ids})
		return nil
	})
}

// TriggerReactionSeen clears unread reactions on ids.
func (s *Sink) TriggerReactionSeen(ids []int) {
	ids = append([]int(nil), ids...)
	s.submit("reactions", func() error {
		if _, err := s.w.ClearReactions(s.chatID, ids); err != nil {
			return err
		}
		s.send(ReactionsSeen{ChatID: s.chatID, IDs: ids})
		return nil
	})
}

func (s *Sink) submit(name string, fn func() error) {
	ok := s.q.Submit(name, func() error {
		err := fn()
		if err != nil {
			s.events.Emit(otel.Event{
				Level:  otel.LevelError,
				Kind:   otel.KindStoreError,
				Comp:   comp,
				ChatID: s.chatID,
				Msg:    name,
				Err:    err.Error(),
			})
		}
		return err
	})
	if !ok {
		logging.Warn("Read action dropped", "chat", s.chatID, "action", name)
		s.events.Emit(otel.Event{
			Level:  otel.LevelWarn,
			Kind:   otel.KindSinkError,
			Comp:   comp,
			ChatID: s.chatID,
			Msg:    "dropped " + name,
		})
	}
}

func (s *Sink) send(msg any) {
	if s.notify != nil {
		s.notify(msg)
	}
}
