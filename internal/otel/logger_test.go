package otel

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), "line %q", line)
		out = append(out, m)
	}
	return out
}

func TestEmitWritesJSONL(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Emit(Event{Kind: KindReadMark, Level: LevelInfo, Comp: "tracker", MaxID: 42, IDs: []int{5, 7}})
	l.Close()

	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, "read.mark", got[0]["kind"])
	assert.Equal(t, "info", got[0]["level"])
	assert.Equal(t, "tracker", got[0]["comp"])
	assert.EqualValues(t, 42, got[0]["max_id"])
	assert.Equal(t, []any{float64(5), float64(7)}, got[0]["ids"])
}

func TestEmitSetsTimeAndSessionID(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	before := time.Now()
	l.Emit(Event{Kind: KindStartup})
	l.Emit(Event{Kind: KindShutdown})
	l.Close()
	after := time.Now()

	var evs []Event
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		evs = append(evs, ev)
	}
	require.Len(t, evs, 2)
	assert.False(t, evs[0].Time.Before(before) || evs[0].Time.After(after))
	assert.Equal(t, l.SessionID(), evs[0].SessionID)
	assert.Equal(t, evs[0].SessionID, evs[1].SessionID)
	assert.Len(t, evs[0].SessionID, 36)
}

func TestDurToMs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Emit(Event{Kind: KindBatchFlush, Dur: 1500 * time.Millisecond})
	l.Close()

	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.EqualValues(t, 1500, got[0]["dur_ms"])
}

func TestOmitempty(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Emit(Event{Kind: KindStartup})
	l.Close()

	line := strings.TrimSpace(buf.String())
	for _, field := range []string{"dur_ms", "count", "max_id", "ids", "err", "msg", "extra", "observer", "chat"} {
		assert.NotContains(t, line, `"`+field+`"`)
	}
}

func TestConcurrentEmit(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Emit(Event{Kind: KindBatchFlush, Comp: "test"})
		}()
	}
	wg.Wait()
	l.Close()

	assert.Len(t, lines(t, &buf), 100)
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.Emit(Event{Kind: KindStartup})
		l.Info(KindStartup, "main", "x")
		l.Error(KindError, "main", errors.New("x"))
		l.SetRingBuffer(NewRingBuffer(4))
		l.Close()
	})
	assert.Zero(t, l.Dropped())
}

func TestCloseIsIdempotentAndDropsLateEvents(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Emit(Event{Kind: KindStartup})
	l.Close()
	l.Close()

	l.Emit(Event{Kind: KindShutdown})
	assert.Len(t, lines(t, &buf), 1)
	assert.EqualValues(t, 1, l.Dropped())
}

type blockingWriter struct {
	started chan struct{}
	block   chan struct{}
	once    sync.Once
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	w.once.Do(func() {
		close(w.started)
		<-w.block
	})
	return len(p), nil
}

func TestDropCounter(t *testing.T) {
	bw := &blockingWriter{started: make(chan struct{}), block: make(chan struct{})}
	l := NewLogger(bw)

	l.Emit(Event{Kind: KindBatchFlush})
	<-bw.started

	for i := 0; i < queueSize+10; i++ {
		l.Emit(Event{Kind: KindBatchFlush})
	}
	assert.NotZero(t, l.Dropped())

	close(bw.block)
	l.Close()
}

func TestConvenienceHelpers(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Info(KindStartup, "main", "starting")
	l.Warn(KindBatchSkipped, "tracker", "not a thread")
	l.Error(KindSinkError, "sink", errors.New("disk full"))
	l.Close()

	got := lines(t, &buf)
	require.Len(t, got, 3)

	want := []struct{ level, kind, comp string }{
		{"info", "sys.startup", "main"},
		{"warn", "batch.skipped", "tracker"},
		{"error", "sink.error", "sink"},
	}
	for i, w := range want {
		assert.Equal(t, w.level, got[i]["level"], "line %d", i)
		assert.Equal(t, w.kind, got[i]["kind"], "line %d", i)
		assert.Equal(t, w.comp, got[i]["comp"], "line %d", i)
	}
	assert.Equal(t, "disk full", got[2]["err"])
}

func TestRingBufferReceivesEvents(t *testing.T) {
	l := NewNullLogger()
	ring := NewRingBuffer(8)
	l.SetRingBuffer(ring)

	l.Emit(Event{Kind: KindGateSuspend})
	l.Emit(Event{Kind: KindGateResume})
	l.Close()

	snap := ring.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, KindGateSuspend, snap[0].Kind)
	assert.Equal(t, KindGateResume, snap[1].Kind)
}
