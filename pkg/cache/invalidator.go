package cache

import "log/slog"

// Invalidator translates stream-side signals into stale marks on the shared
// jobs and matches collections. Invalidation failures are logged and
// swallowed: a missed refresh never breaks the live timeline.
type Invalidator struct {
	store *Store
}

// NewInvalidator creates an Invalidator over the given store.
func NewInvalidator(store *Store) *Invalidator {
	return &Invalidator{store: store}
}

// InvalidateJobs marks the job collection stale.
func (i *Invalidator) InvalidateJobs() {
	i.invalidate(KeyJobs)
}

// InvalidateMatches marks the match collection stale.
func (i *Invalidator) InvalidateMatches() {
	i.invalidate(KeyMatches)
}

func (i *Invalidator) invalidate(key string) {
	if err := i.store.MarkStale(key); err != nil {
		slog.Warn("Cache invalidation failed", "key", key, "error", err)
	}
}
