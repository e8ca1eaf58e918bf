package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Closer flushes and stops an async logger.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// asyncState is shared by an AsyncHandler and every handler derived from it
// through WithAttrs or WithGroup.
type asyncState struct {
	queue   chan slog.Record
	workers sync.WaitGroup
	shed    atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// AsyncHandler writes records from a buffered queue on background workers.
// When the queue is full, records below shedBelow are shed and counted;
// records at or above it wait for room, so payment and provisioning
// warnings and errors are never lost.
type AsyncHandler struct {
	inner     slog.Handler
	shedBelow slog.Level
	st        *asyncState
}

// NewAsyncHandler creates an AsyncHandler with the given queue capacity and
// worker count. Debug and info records may be shed under back-pressure.
func NewAsyncHandler(inner slog.Handler, queueSize, workers int) *AsyncHandler {
	if workers < 1 {
		workers = 1
	}
	st := &asyncState{queue: make(chan slog.Record, queueSize)}
	h := &AsyncHandler{inner: inner, shedBelow: slog.LevelWarn, st: st}
	for range workers {
		st.workers.Add(1)
		go h.drain()
	}
	return h
}

func (h *AsyncHandler) drain() {
	defer h.st.workers.Done()
	for rec := range h.st.queue {
		_ = h.inner.Handle(context.Background(), rec)
	}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues rec. The inner handler receives a background context, so
// anything read from ctx must be stamped by a handler in front of this one.
func (h *AsyncHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	h.st.mu.RLock()
	defer h.st.mu.RUnlock()
	if h.st.closed {
		return h.inner.Handle(ctx, rec)
	}
	if rec.Level >= h.shedBelow {
		h.st.queue <- rec
		return nil
	}
	select {
	case h.st.queue <- rec:
	default:
		h.st.shed.Add(1)
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), shedBelow: h.shedBelow, st: h.st}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), shedBelow: h.shedBelow, st: h.st}
}

// DroppedCount returns how many records were shed.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.st.shed.Load()
}

// Close drains the queue and stops the workers. Shed records are reported
// once through the inner handler. Records handled after Close are written
// synchronously.
func (h *AsyncHandler) Close() {
	h.st.mu.Lock()
	if h.st.closed {
		h.st.mu.Unlock()
		return
	}
	h.st.closed = true
	close(h.st.queue)
	h.st.mu.Unlock()

	h.st.workers.Wait()
	if n := h.st.shed.Load(); n > 0 {
		rec := slog.NewRecord(time.Now(), slog.LevelWarn, "async logger dropped records", 0)
		rec.AddAttrs(slog.Int64("dropped", n))
		_ = h.inner.Handle(context.Background(), rec)
	}
}
