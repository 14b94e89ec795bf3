package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iuriaranda/signalk-mqtt-bridge/internal/signalk"
)

// memRepo is an in-memory Repository.
type memRepo struct {
	mu      sync.Mutex
	entries []Entry
	block   chan struct{}
	err     error
}

func (m *memRepo) Create(_ context.Context, e *Entry) error {
	if m.block != nil {
		<-m.block
	}
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memRepo) List(_ context.Context, _ Filter) (*ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &ListResult{Entries: append([]Entry(nil), m.entries...), Total: len(m.entries)}, nil
}

func (m *memRepo) snapshot() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

type testLogger struct {
	mu     sync.Mutex
	warns  int
	errors int
}

func (l *testLogger) Warn(string, ...any) {
	l.mu.Lock()
	l.warns++
	l.mu.Unlock()
}

func (l *testLogger) Error(string, ...any) {
	l.mu.Lock()
	l.errors++
	l.mu.Unlock()
}

func TestRecorder_WritesCommandsAndResults(t *testing.T) {
	repo := &memRepo{}
	fixed := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	rec := NewRecorder(repo, RecorderOptions{Now: func() time.Time { return fixed }})
	rec.Start()

	rec.RecordCommand("W", "vessels.urn:mrn:imo:mmsi:42", "environment.depth.belowKeel", 3.5)
	rec.RecordCommand("P", "vessels.urn:mrn:imo:mmsi:42", "steering.autopilot.state", "auto")
	rec.RecordPutResult("vessels.urn:mrn:imo:mmsi:42", "steering.autopilot.state", signalk.PutResult{
		RequestID:  "req-1",
		State:      signalk.StateCompleted,
		StatusCode: 200,
	})

	rec.Stop()

	entries := repo.snapshot()
	if len(entries) != 3 {
		t.Fatalf("stored %d entries, want 3", len(entries))
	}
	if rec.Written() != 3 {
		t.Errorf("Written() = %d, want 3", rec.Written())
	}

	if string(entries[0].Value) != "3.5" || entries[0].Kind != KindCommand {
		t.Errorf("write entry = %+v", entries[0])
	}
	if string(entries[1].Value) != `"auto"` {
		t.Errorf("put value = %s, want %q", entries[1].Value, `"auto"`)
	}
	if entries[2].Kind != KindPutResult || entries[2].RequestID != "req-1" || entries[2].StatusCode != 200 {
		t.Errorf("put result entry = %+v", entries[2])
	}
	if !entries[2].CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", entries[2].CreatedAt, fixed)
	}
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	repo := &memRepo{block: make(chan struct{})}
	logger := &testLogger{}
	rec := NewRecorder(repo, RecorderOptions{QueueSize: 1, Logger: logger})
	rec.Start()

	// The first entry is taken by the writer, which then blocks in Create.
	rec.RecordCommand("W", "vessels.self", "a", 1)
	deadline := time.Now().Add(2 * time.Second)
	for len(rec.queue) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	rec.RecordCommand("W", "vessels.self", "b", 2) // queued
	rec.RecordCommand("W", "vessels.self", "c", 3) // dropped
	rec.RecordCommand("W", "vessels.self", "d", 4) // dropped

	if got := rec.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}

	close(repo.block)
	rec.Stop()

	if got := len(repo.snapshot()); got != 2 {
		t.Errorf("stored %d entries, want 2", got)
	}
	logger.mu.Lock()
	defer logger.mu.Unlock()
	if logger.warns != 1 {
		t.Errorf("warnings = %d, want 1", logger.warns)
	}
}

func TestRecorder_AfterStopDrops(t *testing.T) {
	repo := &memRepo{}
	rec := NewRecorder(repo, RecorderOptions{})
	rec.Start()
	rec.Stop()
	rec.Stop()

	rec.RecordCommand("W", "vessels.self", "a", 1)

	if rec.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", rec.Dropped())
	}
	if len(repo.snapshot()) != 0 {
		t.Error("entry stored after Stop()")
	}
}

func TestRecorder_LogsWriteFailure(t *testing.T) {
	repo := &memRepo{err: errors.New("disk full")}
	logger := &testLogger{}
	rec := NewRecorder(repo, RecorderOptions{Logger: logger})
	rec.Start()

	rec.RecordCommand("P", "vessels.self", "a", "x")
	rec.Stop()

	if rec.Written() != 0 {
		t.Errorf("Written() = %d, want 0", rec.Written())
	}
	logger.mu.Lock()
	defer logger.mu.Unlock()
	if logger.errors != 1 {
		t.Errorf("errors logged = %d, want 1", logger.errors)
	}
}
