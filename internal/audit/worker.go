package audit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mmynk/groupledger/internal/models"
)

var _ Trail = (*Worker)(nil)

type pending struct {
	groupID string
	message string
}

// Worker moves appends off the request path. Entries are queued on a
// buffered channel and written to the underlying trail by a single goroutine,
// so per-group order is preserved. A full queue drops the entry.
type Worker struct {
	trail   Trail
	entryCh chan pending
	onError func(error)

	// mu orders Append against Shutdown: once closed is set no entry can be
	// queued, so every accepted entry is written before Shutdown returns.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewWorker wraps trail with a queue of bufferSize entries.
// onError, if non-nil, is called for every failed background write.
func NewWorker(trail Trail, bufferSize int, onError func(error)) *Worker {
	return &Worker{
		trail:   trail,
		entryCh: make(chan pending, bufferSize),
		onError: onError,
	}
}

// Start launches the writer goroutine. It exits once Shutdown has closed the
// queue and every queued entry is written.
func (w *Worker) Start() {
	w.wg.Go(func() {
		for e := range w.entryCh {
			w.write(e)
		}
	})
}

// write is detached from request and shutdown cancellation.
func (w *Worker) write(e pending) {
	if err := w.trail.Append(context.Background(), e.groupID, e.message); err != nil {
		slog.Error("failed to write audit entry", "error", err, "group_id", e.groupID)
		if w.onError != nil {
			w.onError(err)
		}
	}
}

// Append enqueues the entry without blocking.
func (w *Worker) Append(_ context.Context, groupID, message string) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.entryCh <- pending{groupID: groupID, message: message}:
		return nil
	default:
		slog.Warn("audit channel full, dropping entry", "group_id", groupID)
		return ErrBufferFull
	}
}

// Read reads through to the underlying trail. Entries still queued are not visible.
func (w *Worker) Read(ctx context.Context, groupID string) ([]models.AuditEntry, error) {
	return w.trail.Read(ctx, groupID)
}

// Shutdown stops accepting entries, flushes the queue and waits for the writer.
// It is safe to call more than once.
func (w *Worker) Shutdown() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		slog.Info("draining audit entries before shutdown", "remaining_entries", len(w.entryCh))
		close(w.entryCh)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
