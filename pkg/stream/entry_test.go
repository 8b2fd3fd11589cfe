package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewEntry(t *testing.T) {
	t.Run("uses the stable id for persisted records", func(t *testing.T) {
		entry := NewEntry(map[string]any{
			"type":   EventTypeStatus,
			"status": "queued",
		}, EntryOptions{IDPrefix: "db", StableID: "rec-17"})

		assert.Equal(t, "db-matching.job.status-rec-17", entry.ID)
		assert.Equal(t, EventTypeStatus, entry.Type)
		assert.Equal(t, "Status updated to Queued", entry.Title)
	})

	t.Run("generates distinct ids for live messages", func(t *testing.T) {
		payload := map[string]any{"type": EventTypeStatus, "status": "running"}
		first := NewEntry(payload, EntryOptions{})
		second := NewEntry(payload, EntryOptions{})

		assert.NotEqual(t, first.ID, second.ID)
		assert.Contains(t, first.ID, "ws-matching.job.status-")
	})

	t.Run("prefers the payload timestamp over the fallback", func(t *testing.T) {
		entry := NewEntry(map[string]any{
			"type":      EventTypeStatus,
			"timestamp": "2024-01-01T00:05:00Z",
		}, EntryOptions{FallbackTimestamp: "2024-01-01T00:00:00Z"})

		assert.Equal(t, "2024-01-01T00:05:00Z", entry.Timestamp)
	})

	t.Run("falls back to the record timestamp when the payload has none", func(t *testing.T) {
		entry := NewEntry(map[string]any{
			"type": EventTypeStatus,
		}, EntryOptions{FallbackTimestamp: "2024-01-01T00:00:00Z"})

		assert.Equal(t, "2024-01-01T00:00:00Z", entry.Timestamp)
	})

	t.Run("retains the raw payload and defaults the type tag", func(t *testing.T) {
		payload := map[string]any{"status": "running"}
		entry := NewEntry(payload, EntryOptions{})

		assert.Equal(t, "event", entry.Type)
		assert.Contains(t, entry.ID, "ws-event-")
		assert.Equal(t, payload, entry.Raw)
	})
}
