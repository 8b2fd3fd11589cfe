package feed

import (
	"context"
	"encoding/json"
	"time"
)

// Record is one row of the persisted update log.
type Record struct {
	ID        string          `json:"id"`
	JobID     string          `json:"job_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// UpdateStore persists published events for later playback in the timeline.
type UpdateStore interface {
	// Append stores one event and returns the stored record.
	Append(ctx context.Context, jobID, eventType string, payload []byte) (Record, error)

	// ListByJob returns up to limit records for a job, newest first.
	ListByJob(ctx context.Context, jobID string, limit int) ([]Record, error)
}
