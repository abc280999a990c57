// Package work runs background writes off the UI goroutine.
//
// A Queue has a single worker, so jobs run one at a time in submission
// order. Read marks depend on that: a later, higher mark must never be
// overtaken by an earlier one.
package work

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abelbrown/readwatch/internal/logging"
)

// ErrPanic wraps the value of a job that panicked.
var ErrPanic = errors.New("work: job panicked")

// DefaultQueueSize is the buffer used when NewQueue gets size <= 0.
const DefaultQueueSize = 256

type job struct {
	name    string
	fn      func() error
	created time.Time
}

// Stats are lifetime counters for a Queue.
type Stats struct {
	Submitted int64
	Completed int64
	Failed    int64
	Dropped   int64
	Pending   int
}

// Queue is a serial job queue. Submit never blocks.
type Queue struct {
	mu      sync.RWMutex // guards stopped and the close of jobs
	stopped bool
	jobs    chan job

	// OnError, if set, is called from the worker for every failed job.
	OnError func(name string, err error)

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	wg sync.WaitGroup
}

// NewQueue creates a queue buffering up to size jobs.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{jobs: make(chan job, size)}
}

// Start launches the worker. Cancelling ctx stops it without draining.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go q.worker(ctx)
	logging.Debug("Work queue started", "size", cap(q.jobs))
}

// Submit enqueues fn. It returns false, and counts a drop, when the queue
// is full or stopped.
func (q *Queue) Submit(name string, fn func() error) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.stopped {
		q.dropped.Add(1)
		logging.Debug("Work dropped (queue stopped)", "job", name)
		return false
	}

	select {
	case q.jobs <- job{name: name, fn: fn, created: time.Now()}:
		q.submitted.Add(1)
		return true
	default:
		q.dropped.Add(1)
		logging.Warn("Work dropped (queue full)", "job", name, "size", cap(q.jobs))
		return false
	}
}

// Stop refuses new work, runs what is already queued and waits for the
// worker. Safe to call more than once.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		q.wg.Wait()
		return
	}
	q.stopped = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
	s := q.Stats()
	logging.Info("Work queue stopped",
		"submitted", s.Submitted,
		"completed", s.Completed,
		"failed", s.Failed,
		"dropped", s.Dropped)
}

// Stats returns current counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Submitted: q.submitted.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
		Pending:   len(q.jobs),
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q.jobs:
			if !ok {
				return
			}
			q.execute(j)
		}
	}
}

// execute runs a single job, turning a panic into a failure.
func (q *Queue) execute(j job) {
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				logging.Error("Work panicked", "job", j.name, "panic", r)
				err = fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()
		return j.fn()
	}()

	if err != nil {
		q.failed.Add(1)
		logging.Error("Work failed",
			"job", j.name,
			"error", err,
			"duration", time.Since(start),
			"waited", start.Sub(j.created))
		if q.OnError != nil {
			q.OnError(j.name, err)
		}
		return
	}
	q.completed.Add(1)
	logging.Debug("Work completed", "job", j.name, "duration", time.Since(start))
}
