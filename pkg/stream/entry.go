package stream

import (
	"fmt"

	"github.com/google/uuid"
)

// Entry is one normalized, display-ready unit of job activity. Entries are
// immutable after construction; the timeline only changes set membership.
type Entry struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Raw         map[string]any `json:"raw,omitempty"`
}

// EntryOptions controls id derivation and timestamp fallback for NewEntry.
type EntryOptions struct {
	// IDPrefix disambiguates the entry's origin ("ws" for live messages,
	// "db" for persisted records). Defaults to "ws".
	IDPrefix string

	// StableID is the originating record's id, used instead of a generated
	// token so persisted entries keep the same id across reloads.
	StableID string

	// FallbackTimestamp is used when the payload carries no timestamp field
	// (persisted records fall back to their created_at).
	FallbackTimestamp string
}

// NewEntry classifies a raw payload into an Entry. It never fails: unknown
// event kinds and missing fields produce a generic but valid entry.
func NewEntry(payload map[string]any, opts EntryOptions) Entry {
	title, description := Describe(payload)

	eventType := stringField(payload, "type")
	if eventType == "" {
		eventType = "event"
	}

	prefix := opts.IDPrefix
	if prefix == "" {
		prefix = "ws"
	}
	token := opts.StableID
	if token == "" {
		token = uuid.NewString()
	}

	timestamp := stringField(payload, "timestamp")
	if timestamp == "" {
		timestamp = opts.FallbackTimestamp
	}

	return Entry{
		ID:          fmt.Sprintf("%s-%s-%s", prefix, eventType, token),
		Type:        eventType,
		Timestamp:   timestamp,
		Title:       title,
		Description: description,
		Raw:         payload,
	}
}
