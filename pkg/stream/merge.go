package stream

import (
	"sort"
	"time"
)

// dedupKey identifies an entry across the persisted and live sources. Raw
// payload and id are deliberately excluded: the same event reconstructed from
// the update log and received live must collapse to one timeline row.
type dedupKey struct {
	eventType   string
	timestamp   string
	title       string
	description string
}

// Merge combines persisted and live entries into the single timeline shown to
// the user: duplicates collapse to their first occurrence in concatenation
// order, then the set is sorted by descending timestamp with entries lacking
// a parseable timestamp last. Merge is pure and yields the same output for
// the same two input sets regardless of how arrivals were interleaved.
func Merge(persisted, live []Entry) []Entry {
	combined := make([]Entry, 0, len(persisted)+len(live))
	combined = append(combined, persisted...)
	combined = append(combined, live...)

	seen := make(map[dedupKey]struct{}, len(combined))
	merged := combined[:0:0]
	for _, entry := range combined {
		key := dedupKey{entry.Type, entry.Timestamp, entry.Title, entry.Description}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, entry)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return parseTimestamp(merged[i].Timestamp) > parseTimestamp(merged[j].Timestamp)
	})
	return merged
}

// parseTimestamp returns the entry time in unix milliseconds, or zero for
// missing/unparseable timestamps so they sort as the oldest entries.
func parseTimestamp(value string) int64 {
	if value == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
