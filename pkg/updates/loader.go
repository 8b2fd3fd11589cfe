// Package updates fetches the persisted update log of a matching job over
// REST and reconstructs it into timeline entries.
package updates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/matchable/matchstream/pkg/stream"
	"github.com/matchable/matchstream/pkg/version"
)

// defaultFetchLimit bounds how many historical records one load requests.
const defaultFetchLimit = 50

// Record is one persisted update row as returned by the REST API.
type Record struct {
	ID        string         `json:"id"`
	CreatedAt string         `json:"created_at"`
	Payload   map[string]any `json:"payload"`
}

// Loader fetches and caches the persisted update log per job id. Results are
// cached until Invalidate is called or the loader is asked about a different
// job; fetch failures surface to the caller and are not retried here.
type Loader struct {
	client  *http.Client
	baseURL string
	limit   int

	mu    sync.Mutex
	cache map[string][]stream.Entry
}

// NewLoader creates a Loader against the given REST API base URL. A limit of
// zero or less falls back to the default of 50 records.
func NewLoader(baseURL string, limit int) *Loader {
	if limit <= 0 {
		limit = defaultFetchLimit
	}
	return &Loader{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		limit:   limit,
		cache:   make(map[string][]stream.Entry),
	}
}

// Load returns the job's historical entries, fetching them on first use and
// serving the cached result afterwards. Each record is classified with the
// record's own id as stable entry id and its created_at as the fallback
// timestamp.
func (l *Loader) Load(ctx context.Context, jobID string) ([]stream.Entry, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job id is required")
	}

	l.mu.Lock()
	if cached, ok := l.cache[jobID]; ok {
		out := make([]stream.Entry, len(cached))
		copy(out, cached)
		l.mu.Unlock()
		return out, nil
	}
	l.mu.Unlock()

	records, err := l.fetch(ctx, jobID)
	if err != nil {
		return nil, err
	}

	entries := make([]stream.Entry, 0, len(records))
	for _, record := range records {
		entries = append(entries, stream.NewEntry(record.Payload, stream.EntryOptions{
			IDPrefix:          "db",
			StableID:          record.ID,
			FallbackTimestamp: record.CreatedAt,
		}))
	}

	l.mu.Lock()
	l.cache[jobID] = entries
	out := make([]stream.Entry, len(entries))
	copy(out, entries)
	l.mu.Unlock()
	return out, nil
}

// Invalidate drops the cached entries for a job so the next Load refetches.
func (l *Loader) Invalidate(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, jobID)
}

// fetch retrieves the raw update records for a job.
func (l *Loader) fetch(ctx context.Context, jobID string) ([]Record, error) {
	endpoint := fmt.Sprintf("%s/matching-jobs/%s/updates/?limit=%s",
		l.baseURL, url.PathEscape(jobID), strconv.Itoa(l.limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build updates request: %w", err)
	}
	req.Header.Set("User-Agent", version.Full())

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch updates for job %s: %w", jobID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch updates for job %s: status %d: %s",
			jobID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var records []Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode updates for job %s: %w", jobID, err)
	}
	return records, nil
}
