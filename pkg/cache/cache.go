// Package cache holds the shared, named collection caches that REST-backed
// views read from, and the invalidator the stream session drives. The store
// never refetches on its own: invalidation only marks a collection stale so
// the next read triggers the registered fetcher.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Collection cache keys driven by stream invalidation.
const (
	KeyJobs    = "jobs"
	KeyMatches = "matches"
)

// ErrUnknownKey is returned for operations on an unregistered collection.
var ErrUnknownKey = errors.New("unknown cache key")

// Fetcher loads the current contents of a collection.
type Fetcher func(ctx context.Context) ([]byte, error)

type collection struct {
	fetch Fetcher
	data  []byte
	fresh bool
}

// Store is a keyed collection cache with stale-marking. All methods are safe
// for concurrent use.
type Store struct {
	mu          sync.Mutex
	collections map[string]*collection
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{collections: make(map[string]*collection)}
}

// Register binds a fetcher to a collection key. The collection starts stale.
func (s *Store) Register(key string, fetch Fetcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[key] = &collection{fetch: fetch}
}

// Get returns the cached collection contents, running the fetcher first when
// the collection is stale. A failed fetch leaves the collection stale and
// returns the error; previously cached data is not served in its place.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	col, ok := s.collections[key]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if col.fresh {
		data := col.data
		s.mu.Unlock()
		return data, nil
	}
	fetch := col.fetch
	s.mu.Unlock()

	data, err := fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh collection %s: %w", key, err)
	}

	s.mu.Lock()
	col.data = data
	col.fresh = true
	s.mu.Unlock()
	return data, nil
}

// MarkStale flags a collection so the next Get refetches it.
func (s *Store) MarkStale(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	col.fresh = false
	return nil
}
