package journal

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iuriaranda/signalk-mqtt-bridge/internal/signalk"
)

const (
	// DefaultQueueSize bounds entries waiting to be written.
	DefaultQueueSize = 256

	// writeTimeout bounds a single insert.
	writeTimeout = 5 * time.Second
)

// Logger is the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// QueueSize bounds pending entries; 0 uses DefaultQueueSize.
	QueueSize int

	// Logger receives write failures. Optional.
	Logger Logger

	// Now overrides the clock. Optional.
	Now func() time.Time
}

// Recorder writes journal entries from a single background goroutine so
// the bridge's dispatch path never waits on SQLite. When the queue is
// full new entries are dropped and counted.
type Recorder struct {
	repo   Repository
	queue  chan Entry
	logger Logger
	now    func() time.Time

	written atomic.Uint64
	dropped atomic.Uint64

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRecorder creates a recorder writing to repo. Call Start before use.
func NewRecorder(repo Repository, opts RecorderOptions) *Recorder {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		repo:   repo,
		queue:  make(chan Entry, size),
		logger: opts.Logger,
		now:    now,
		done:   make(chan struct{}),
	}
}

// Start launches the writer goroutine.
func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop flushes queued entries and stops the writer. Safe to call twice.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}

// RecordCommand journals a write or put accepted from MQTT.
func (r *Recorder) RecordCommand(action, busContext, path string, value any) {
	raw, _ := json.Marshal(value) //nolint:errcheck // Unencodable values are journaled without a value
	r.enqueue(Entry{
		Kind:    KindCommand,
		Action:  action,
		Context: busContext,
		Path:    path,
		Value:   raw,
	})
}

// RecordPutResult journals the final state of a put.
func (r *Recorder) RecordPutResult(busContext, path string, result signalk.PutResult) {
	r.enqueue(Entry{
		Kind:       KindPutResult,
		Action:     "P",
		Context:    busContext,
		Path:       path,
		RequestID:  result.RequestID,
		State:      result.State,
		StatusCode: result.StatusCode,
		Message:    result.Message,
	})
}

// Written returns the number of entries stored.
func (r *Recorder) Written() uint64 {
	return r.written.Load()
}

// Dropped returns the number of entries discarded because the queue was
// full or the recorder had stopped.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

func (r *Recorder) enqueue(e Entry) {
	e.CreatedAt = r.now().UTC()

	select {
	case <-r.done:
		r.dropped.Add(1)
		return
	default:
	}

	select {
	case r.queue <- e:
	default:
		if r.dropped.Add(1) == 1 && r.logger != nil {
			r.logger.Warn("journal queue full, dropping entries", "capacity", cap(r.queue))
		}
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for {
		select {
		case e := <-r.queue:
			r.write(e)
		case <-r.done:
			for {
				select {
				case e := <-r.queue:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.repo.Create(ctx, &e); err != nil {
		if r.logger != nil {
			r.logger.Error("journal write failed", "path", e.Path, "error", err)
		}
		return
	}
	r.written.Add(1)
}
