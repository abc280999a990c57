package coord

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/abelbrown/readwatch/internal/store"
)

var (
	senders = []string{"alice", "bob", "carol", "dmitri", "eun-ji"}
	lines   = []string{
		"did anyone look at the deploy?",
		"lunch?",
		"pushed a fix, take a look",
		"the build is green again",
		"meeting moved to 3",
		"can you review my change",
		"ok",
		"sounds good",
		"I'll pick this up tomorrow",
		"photos from the offsite",
	}
)

// RandomFeed generates chat traffic. Rates are probabilities per message.
type RandomFeed struct {
	Max          int // messages per call, at least 1
	MentionRate  float64
	ReactionRate float64
	MediaRate    float64
	Self         string // name used in mentions

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// NewRandomFeed creates a feed with typical rates. seed makes runs
// reproducible.
func NewRandomFeed(seed uint64) *RandomFeed {
	return &RandomFeed{
		Max:          3,
		MentionRate:  0.1,
		ReactionRate: 0.1,
		MediaRate:    0.15,
		Self:         "you",
		rng:          rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Next implements Feed.
func (f *RandomFeed) Next(ctx context.Context, chatID int64, nextID int) ([]store.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := f.Max
	if limit < 1 {
		limit = 1
	}
	f.mu.Lock()
	n := 1 + f.rng.IntN(limit)
	f.mu.Unlock()
	return f.Generate(chatID, nextID, n), nil
}

// Generate returns n unread messages numbered from firstID.
func (f *RandomFeed) Generate(chatID int64, firstID, n int) []store.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	msgs := make([]store.Message, 0, n)
	sender := senders[f.rng.IntN(len(senders))]
	for i := 0; i < n; i++ {
		// Runs of the same sender are common.
		if f.rng.Float64() < 0.4 {
			sender = senders[f.rng.IntN(len(senders))]
		}
		m := store.Message{
			ChatID:      chatID,
			ID:          firstID + i,
			Sender:      sender,
			Body:        lines[f.rng.IntN(len(lines))],
			HasMention:  f.rng.Float64() < f.MentionRate,
			HasReaction: f.rng.Float64() < f.ReactionRate,
			HasMedia:    f.rng.Float64() < f.MediaRate,
			Created:     now.Add(time.Duration(i-n) * time.Second),
		}
		if m.HasMention {
			m.Body = fmt.Sprintf("@%s %s", f.Self, m.Body)
		}
		if m.HasMedia {
			m.Body = "[photo] " + m.Body
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// Backfill seeds an empty chat with n messages, the oldest readFraction of
// them already read. It returns the number of messages written; a chat that
// already has messages is left alone.
func Backfill(s *store.Store, f *RandomFeed, chatID int64, n int, readFraction float64) (int, error) {
	next, err := s.NextID(chatID)
	if err != nil {
		return 0, err
	}
	if next > 1 || n <= 0 {
		return 0, nil
	}

	msgs := f.Generate(chatID, 1, n)
	base := time.Now().Add(-time.Duration(n) * time.Minute)
	for i := range msgs {
		msgs[i].Created = base.Add(time.Duration(i) * time.Minute)
	}
	saved, err := s.SaveMessages(msgs)
	if err != nil {
		return 0, fmt.Errorf("save seed: %w", err)
	}

	if read := int(float64(n) * readFraction); read > 0 {
		if _, err := s.MarkReadUpTo(chatID, read); err != nil {
			return saved, fmt.Errorf("mark seed read: %w", err)
		}
		// Mentions and reactions on read messages were seen already.
		ids := make([]int, read)
		for i := range ids {
			ids[i] = i + 1
		}
		if _, err := s.MarkMentionsRead(chatID, ids); err != nil {
			return saved, err
		}
		if _, err := s.ClearReactions(chatID, ids); err != nil {
			return saved, err
		}
	}
	return saved, nil
}
