package feed

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory UpdateStore for the simulator's no-database
// mode and for tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]Record // job id → records, oldest first
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]Record)}
}

// Append stores one event row.
func (s *MemoryStore) Append(_ context.Context, jobID, eventType string, payload []byte) (Record, error) {
	record := Record{
		ID:        uuid.New().String(),
		JobID:     jobID,
		EventType: eventType,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.records[jobID] = append(s.records[jobID], record)
	s.mu.Unlock()
	return record, nil
}

// ListByJob returns up to limit records for a job, newest first.
func (s *MemoryStore) ListByJob(_ context.Context, jobID string, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.records[jobID]
	out := make([]Record, 0, min(limit, len(stored)))
	for i := len(stored) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, stored[i])
	}
	return out, nil
}
