// Package querylog records answered queries without slowing answers down.
// Records are queued on a bounded channel and written by one goroutine; when
// the queue is full the record is dropped and counted.
package querylog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/medrights/internal/model"
)

const writeTimeout = 5 * time.Second

// Recorder hands query records to a sink asynchronously
type Recorder struct {
	sink     Sink
	logger   *zap.Logger
	queue    chan model.QueryRecord
	done     chan struct{}
	mu       sync.RWMutex
	closed   bool
	once     sync.Once
	closeErr error
	dropped  atomic.Int64
	failed   atomic.Int64
	written  atomic.Int64
}

// NewRecorder starts the writer goroutine. A nil logger is replaced with a
// no-op logger.
func NewRecorder(sink Sink, buffer int, logger *zap.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Recorder{
		sink:   sink,
		logger: logger,
		queue:  make(chan model.QueryRecord, buffer),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Open builds the recorder selected by cfg.Driver: none, jsonl or postgres
func Open(ctx context.Context, cfg model.QueryLogConfig, logger *zap.Logger) (*Recorder, error) {
	var sink Sink
	switch cfg.Driver {
	case "", "none":
		sink = NopSink{}
	case "jsonl":
		s, err := OpenJSONL(cfg.Path)
		if err != nil {
			return nil, err
		}
		sink = s
	case "postgres":
		s, err := OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		sink = s
	default:
		return nil, fmt.Errorf("unknown query log driver %q", cfg.Driver)
	}
	return NewRecorder(sink, cfg.Buffer, logger), nil
}

// Record queues rec without blocking. Missing ids and timestamps are filled
// in. Records offered after Close are dropped.
func (r *Recorder) Record(rec model.QueryRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		return
	}

	select {
	case r.queue <- rec:
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	for rec := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := r.sink.Write(ctx, rec)
		cancel()

		if err != nil {
			r.failed.Add(1)
			r.logger.Warn("query log write failed", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		r.written.Add(1)
	}
}

// Close stops accepting records, drains the queue and closes the sink. It
// returns ctx.Err() if draining outlives ctx; the sink is then left open.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	r.once.Do(func() { r.closeErr = r.sink.Close() })
	return r.closeErr
}

// Dropped returns the number of records discarded because the queue was full
// or the recorder was closed
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Failed returns the number of records the sink rejected
func (r *Recorder) Failed() int64 { return r.failed.Load() }

// Written returns the number of records the sink accepted
func (r *Recorder) Written() int64 { return r.written.Load() }
