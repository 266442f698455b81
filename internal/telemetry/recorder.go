package telemetry

import (
	"context"
	"log/slog"
)

// Recorder forwards events to a Store. Failures are logged and dropped so
// that telemetry never fails a request. A nil *Recorder is a no-op.
type Recorder struct {
	store *Store
}

// NewRecorder wraps store. A nil store yields a no-op recorder.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// RetrievalCompleted records a retrieval event.
func (r *Recorder) RetrievalCompleted(ctx context.Context, ev RetrievalEvent) {
	if r == nil || r.store == nil {
		return
	}
	if err := r.store.RecordRetrieval(context.WithoutCancel(ctx), ev); err != nil {
		slog.Warn("telemetry_record_failed",
			slog.String("event", "retrieval"),
			slog.String("error", err.Error()))
	}
}

// GenerationCompleted records a generation event.
func (r *Recorder) GenerationCompleted(ctx context.Context, ev GenerationEvent) {
	if r == nil || r.store == nil {
		return
	}
	if err := r.store.RecordGeneration(context.WithoutCancel(ctx), ev); err != nil {
		slog.Warn("telemetry_record_failed",
			slog.String("event", "generation"),
			slog.String("error", err.Error()))
	}
}
