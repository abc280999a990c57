package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/readwatch/internal/config"
	"github.com/abelbrown/readwatch/internal/coord"
	"github.com/abelbrown/readwatch/internal/logging"
	"github.com/abelbrown/readwatch/internal/otel"
	"github.com/abelbrown/readwatch/internal/readstate"
	"github.com/abelbrown/readwatch/internal/sink"
	"github.com/abelbrown/readwatch/internal/store"
	"github.com/abelbrown/readwatch/internal/ui"
	"github.com/abelbrown/readwatch/internal/visibility"
	"github.com/abelbrown/readwatch/internal/work"
)

const version = "0.1.0"

// seedReadFraction is the share of seeded messages that start out read.
const seedReadFraction = 0.7

func main() {
	app := &cli.App{
		Name:    "readwatch",
		Usage:   "terminal chat view that marks messages read as you scroll past them",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (default ~/.readwatch/config.toml if present)",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "SQLite database `PATH`, or :memory:",
			},
			&cli.Int64Flag{
				Name:  "chat",
				Value: 1,
				Usage: "chat `ID` to open",
			},
			&cli.StringFlag{
				Name:  "list",
				Value: string(readstate.ListThread),
				Usage: "list `TYPE`: thread, pinned or scheduled",
			},
			&cli.IntFlag{
				Name:  "seed",
				Value: 200,
				Usage: "seed an empty chat with `N` messages",
			},
			&cli.BoolFlag{
				Name:  "events",
				Usage: "write the JSONL event log",
			},
			&cli.DurationFlag{
				Name:  "feed-interval",
				Usage: "simulated incoming traffic every `DURATION` (0 disables)",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("db") {
		cfg.Store.Path = c.String("db")
	}
	if c.IsSet("events") {
		cfg.Log.Events = c.Bool("events")
	}
	if c.IsSet("feed-interval") {
		cfg.UI.FeedInterval = c.Duration("feed-interval")
	}

	listType, err := readstate.ParseListType(c.String("list"))
	if err != nil {
		return err
	}
	chatID := c.Int64("chat")

	dataDir := config.DataDir()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	if err := logging.Init(dataDir, logging.ParseLevel(cfg.Log.Level)); err != nil {
		return err
	}
	defer logging.Close()

	events, closeEvents, err := openEvents(dataDir, cfg.Log.Events)
	if err != nil {
		return err
	}
	defer closeEvents()
	ring := otel.NewRingBuffer(otel.DefaultRingSize)
	events.SetRingBuffer(ring)
	events.Info(otel.KindStartup, "main", "readwatch "+version)

	if cfg.Store.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	feed := coord.NewRandomFeed(uint64(time.Now().UnixNano()))
	if n, err := coord.Backfill(st, feed, chatID, c.Int("seed"), seedReadFraction); err != nil {
		return err
	} else if n > 0 {
		logging.Info("Seeded chat", "chat", chatID, "messages", n)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Writes get their own lifetime so Stop can drain them after the UI exits.
	queue := work.NewQueue(0)
	// Failed writes are reported by the sink; only panics are new here.
	queue.OnError = func(name string, err error) {
		if errors.Is(err, work.ErrPanic) {
			events.Error(otel.KindError, "work", fmt.Errorf("%s: %w", name, err))
		}
	}
	queue.Start(context.Background())
	defer queue.Stop()

	var program *tea.Program
	send := func(msg tea.Msg) { program.Send(msg) }

	app := ui.NewApp(ui.Options{
		ChatID:    chatID,
		ListType:  listType,
		Viewport:  visibility.NewViewport(),
		Boundary:  readstate.NewBoundary(0),
		Actions:   sink.New(chatID, st, queue, events, func(msg any) { send(msg) }),
		Timing:    cfg.Timing,
		Layout:    cfg.Layout,
		RowHeight: cfg.UI.RowHeight,
		Events:    events,
		Ring:      ring,
		Load: func() tea.Cmd {
			return func() tea.Msg {
				msgs, err := st.GetMessages(chatID, cfg.UI.MessageLimit)
				if err != nil {
					return ui.MessagesLoaded{Err: err}
				}
				first, err := st.FirstUnreadID(chatID)
				if err != nil {
					return ui.MessagesLoaded{Err: err}
				}
				counts, err := st.UnreadCounts(chatID)
				if err != nil {
					return ui.MessagesLoaded{Err: err}
				}
				return ui.MessagesLoaded{Messages: msgs, FirstUnreadID: first, Counts: counts}
			}
		},
		Send: send,
	})

	program = tea.NewProgram(app, tea.WithAltScreen(), tea.WithReportFocus(), tea.WithContext(ctx))
	coordinator := coord.NewCoordinator(st, feed, []int64{chatID}, cfg.UI.FeedInterval, events)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		final, err := program.Run()
		if m, ok := final.(ui.App); ok {
			m.Close()
		}
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil // interrupted
		}
		return err
	})
	g.Go(func() error {
		coordinator.Start(gctx, program)
		<-gctx.Done()
		coordinator.Wait()
		return nil
	})

	err = g.Wait()
	events.Info(otel.KindShutdown, "main", "readwatch stopped")
	return err
}

// openEvents returns the event logger and a func that flushes and closes it.
func openEvents(dataDir string, enabled bool) (*otel.Logger, func(), error) {
	if !enabled {
		l := otel.NewNullLogger()
		return l, l.Close, nil
	}

	path := filepath.Join(dataDir, "logs", fmt.Sprintf("events-%s.jsonl", time.Now().Format("2006-01-02")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open event log: %w", err)
	}
	l := otel.NewLogger(f)
	return l, func() {
		l.Close()
		f.Close()
	}, nil
}
