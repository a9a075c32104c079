package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer allows flushing and stopping the async handler.
type Closer interface {
	Close()
}

// nopCloser is a no-op Closer for synchronous mode.
type nopCloser struct{}

func (nopCloser) Close() {}

// job pairs a record with the handler it was logged against, so attrs and
// groups added via With survive the hop across goroutines.
type job struct {
	handler slog.Handler
	record  slog.Record
}

// AsyncHandler decouples log emission from formatting and IO with a
// buffered channel and a worker pool. Under backpressure it sheds records
// rather than blocking the caller.
type AsyncHandler struct {
	inner   slog.Handler
	ch      chan job
	wg      *sync.WaitGroup
	dropped *atomic.Int64
}

// NewAsyncHandler creates an AsyncHandler with the given channel capacity
// and worker count.
func NewAsyncHandler(inner slog.Handler, chanSize, workers int) *AsyncHandler {
	h := &AsyncHandler{
		inner:   inner,
		ch:      make(chan job, chanSize),
		wg:      &sync.WaitGroup{},
		dropped: &atomic.Int64{},
	}
	for range workers {
		h.wg.Add(1)
		go h.drain()
	}
	return h
}

func (h *AsyncHandler) drain() {
	defer h.wg.Done()
	for j := range h.ch {
		_ = j.handler.Handle(context.Background(), j.record)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle queues the record, shedding it when the buffer is full. Error
// records skip the queue and are written synchronously, even if that means
// they land out of order: backpressure must not eat the events that explain
// an incident.
func (h *AsyncHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // hugeParam: slog.Handler interface signature
	if rec.Level >= slog.LevelError {
		return h.inner.Handle(ctx, rec)
	}
	select {
	case h.ch <- job{h.inner, rec.Clone()}:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a handler sharing this one's queue whose records carry
// the extra attrs.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{
		inner:   h.inner.WithAttrs(attrs),
		ch:      h.ch,
		wg:      h.wg,
		dropped: h.dropped,
	}
}

// WithGroup returns a handler sharing this one's queue whose records are
// nested under the group.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{
		inner:   h.inner.WithGroup(name),
		ch:      h.ch,
		wg:      h.wg,
		dropped: h.dropped,
	}
}

// DroppedCount returns the number of records shed under backpressure.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.dropped.Load()
}

// Close closes the queue and waits for the workers to drain it.
func (h *AsyncHandler) Close() {
	close(h.ch)
	h.wg.Wait()
}
