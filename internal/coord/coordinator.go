// Package coord provides background message traffic for readwatch.
package coord

import (
	"context"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/readwatch/internal/logging"
	"github.com/abelbrown/readwatch/internal/otel"
	"github.com/abelbrown/readwatch/internal/store"
	"github.com/abelbrown/readwatch/internal/ui"
)

// feedTimeout bounds each Feed.Next call.
const feedTimeout = 10 * time.Second

// maxConcurrentChats limits parallel feed calls per tick.
const maxConcurrentChats = 4

const comp = "coord"

// Feed produces the next messages of a chat, numbered from nextID.
type Feed interface {
	Next(ctx context.Context, chatID int64, nextID int) ([]store.Message, error)
}

// sender is satisfied by *tea.Program.
type sender interface {
	Send(msg tea.Msg)
}

// Coordinator appends feed messages to the store on an interval.
// Uses context cancellation as the ONLY stop mechanism.
type Coordinator struct {
	store    *store.Store
	feed     Feed
	chats    []int64 // IMMUTABLE: set at construction, never modified
	interval time.Duration
	events   *otel.Logger
	wg       sync.WaitGroup
}

// NewCoordinator creates a Coordinator. events may be nil.
func NewCoordinator(s *store.Store, f Feed, chats []int64, interval time.Duration, events *otel.Logger) *Coordinator {
	chatsCopy := make([]int64, len(chats))
	copy(chatsCopy, chats)

	return &Coordinator{
		store:    s,
		feed:     f,
		chats:    chatsCopy,
		interval: interval,
		events:   events,
	}
}

// Start begins background traffic. Call with a cancellable context.
// Does nothing when the interval is not positive.
func (c *Coordinator) Start(ctx context.Context, program sender) {
	if c.interval <= 0 {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.tick(ctx, program)
			}
		}
	}()
}

// Wait blocks until the background goroutine exits.
// Call after canceling the context passed to Start.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// tick pulls from the feed for every chat in parallel.
// Sends ui.MessagesArrived for each chat that gained messages.
func (c *Coordinator) tick(ctx context.Context, program sender) {
	var g errgroup.Group
	g.SetLimit(maxConcurrentChats)

	for _, chatID := range c.chats {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			c.pull(ctx, chatID, program)
			return nil // never fail the group - errors reported per chat
		})
	}

	_ = g.Wait()
}

// pull fetches and stores one chat's new messages.
func (c *Coordinator) pull(ctx context.Context, chatID int64, program sender) {
	nextID, err := c.store.NextID(chatID)
	if err != nil {
		c.fail(chatID, err)
		return
	}

	feedCtx, cancel := context.WithTimeout(ctx, feedTimeout)
	defer cancel()

	msgs, err := c.feed.Next(feedCtx, chatID, nextID)
	if err != nil {
		c.fail(chatID, fmt.Errorf("feed: %w", err))
		return
	}
	if len(msgs) == 0 {
		return
	}

	n, err := c.store.SaveMessages(msgs)
	if err != nil {
		c.fail(chatID, err)
		return
	}
	if n == 0 {
		return
	}

	logging.Debug("Messages arrived", "chat", chatID, "count", n)
	c.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindFeedArrived, Comp: comp, ChatID: chatID, Count: n})

	// Handle nil program gracefully for testing
	if program != nil {
		program.Send(ui.MessagesArrived{ChatID: chatID, Count: n})
	}
}

func (c *Coordinator) fail(chatID int64, err error) {
	logging.Warn("Feed pull failed", "chat", chatID, "error", err)
	c.events.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindStoreError, Comp: comp, ChatID: chatID, Err: err.Error()})
}
