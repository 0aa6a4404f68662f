package store

import (
	"log/slog"

	"github.com/btouchard/beacon/internal/event"
)

// Recorder appends published events to the audit trail. Recording is
// best-effort: delivery to subscribers never waits on, or fails with, the
// audit write.
type Recorder struct {
	store Store
}

// NewRecorder creates a Recorder over the given store.
func NewRecorder(s Store) *Recorder {
	return &Recorder{store: s}
}

// Record implements task.Auditor.
func (r *Recorder) Record(e event.Event) {
	payload, err := event.Encode(e)
	if err != nil {
		slog.Warn("skipping audit of unencodable event", "error", err)
		return
	}

	err = r.store.AddEvent(&EventRecord{
		Type:      string(e.Type),
		TaskID:    e.TaskID,
		StoryID:   e.StoryID,
		ActorID:   e.Actor(),
		Payload:   string(payload),
		CreatedAt: e.Timestamp,
	})
	if err != nil {
		slog.Warn("audit write failed", "task_id", e.TaskID, "error", err)
	}
}
