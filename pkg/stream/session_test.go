package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsTestServer accepts WebSocket connections and hands each one to the
// configured handler together with its 1-based attempt number.
type wsTestServer struct {
	srv   *httptest.Server
	dials atomic.Int32
}

func newWSServer(t *testing.T, handler func(attempt int, ctx context.Context, conn *websocket.Conn)) *wsTestServer {
	t.Helper()
	s := &wsTestServer{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			t.Logf("WebSocket accept error: %v", err)
			return
		}
		handler(int(s.dials.Add(1)), r.Context(), conn)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsTestServer) url() string {
	return "ws" + s.srv.URL[len("http"):]
}

func (s *wsTestServer) dialCount() int {
	return int(s.dials.Load())
}

func writeEvent(ctx context.Context, conn *websocket.Conn, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// recordingInvalidator counts invalidation signals for assertions.
type recordingInvalidator struct {
	mu      sync.Mutex
	jobs    int
	matches int
}

func (r *recordingInvalidator) InvalidateJobs() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs++
}

func (r *recordingInvalidator) InvalidateMatches() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches++
}

func (r *recordingInvalidator) counts() (jobs, matches int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs, r.matches
}

// waitFor polls a condition instead of sleeping, failing the test on timeout.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for condition: %s", msg)
		case <-tick.C:
			if cond() {
				return
			}
		}
	}
}

func startSession(t *testing.T, jobID, url string, cfg SessionConfig) *JobStreamSession {
	t.Helper()
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 20 * time.Millisecond
	}
	session := NewJobSession(jobID, url, cfg)
	require.NoError(t, session.Start(context.Background()))
	t.Cleanup(session.Stop)
	return session
}

func TestJobStreamSession_DeliversEntries(t *testing.T) {
	server := newWSServer(t, func(_ int, ctx context.Context, conn *websocket.Conn) {
		_ = writeEvent(ctx, conn, map[string]any{
			"type": EventTypeCriteria,
			"criteria": []any{
				map[string]any{"label": "Industry overlap"},
			},
		})
		_ = writeEvent(ctx, conn, map[string]any{
			"type":      EventTypeSourceSnippets,
			"snippets":  []any{},
			"timestamp": "2024-01-01T00:01:00Z",
		})
		<-ctx.Done()
	})

	session := startSession(t, "job-1", server.url(), SessionConfig{})

	waitFor(t, func() bool { return len(session.Entries()) == 2 }, "two entries buffered")

	entries := session.Entries()
	assert.Equal(t, "Collected source snippets", entries[0].Title, "newest entry first")
	assert.Equal(t, "Prepared 1 search criterion", entries[1].Title)

	state, _ := session.State()
	assert.Equal(t, StateOpen, state)
}

func TestJobStreamSession_BufferCap(t *testing.T) {
	server := newWSServer(t, func(_ int, ctx context.Context, conn *websocket.Conn) {
		for i := 1; i <= 60; i++ {
			if err := writeEvent(ctx, conn, map[string]any{
				"type": fmt.Sprintf("matching.job.progress.%d", i),
			}); err != nil {
				return
			}
		}
		<-ctx.Done()
	})

	session := startSession(t, "job-1", server.url(), SessionConfig{})

	waitFor(t, func() bool {
		entries := session.Entries()
		return len(entries) == 50 && entries[0].Type == "matching.job.progress.60"
	}, "buffer capped at the 50 most recent entries")

	entries := session.Entries()
	assert.Equal(t, "matching.job.progress.60", entries[0].Type)
	assert.Equal(t, "matching.job.progress.11", entries[49].Type)
}

func TestJobStreamSession_StatusDrivenInvalidation(t *testing.T) {
	events := make(chan map[string]any, 8)
	server := newWSServer(t, func(_ int, ctx context.Context, conn *websocket.Conn) {
		for {
			select {
			case <-ctx.Done():
				return
			case payload := <-events:
				if err := writeEvent(ctx, conn, payload); err != nil {
					return
				}
			}
		}
	})

	inv := &recordingInvalidator{}
	session := startSession(t, "job-1", server.url(), SessionConfig{Invalidator: inv})

	events <- map[string]any{"type": EventTypeStatus, "status": "running"}
	waitFor(t, func() bool {
		jobs, _ := inv.counts()
		return jobs == 1
	}, "running status invalidates jobs")
	_, matches := inv.counts()
	assert.Zero(t, matches, "non-terminal status must not touch the match cache")

	events <- map[string]any{"type": EventTypeStatus, "status": "complete"}
	waitFor(t, func() bool {
		jobs, matches := inv.counts()
		return jobs == 2 && matches == 1
	}, "terminal status invalidates jobs and matches once each")

	events <- map[string]any{"type": EventTypeMatchPersisted, "target_name": "Acme"}
	waitFor(t, func() bool {
		_, matches := inv.counts()
		return matches == 2
	}, "match persisted invalidates matches")

	require.NotNil(t, session.Status())
	assert.Equal(t, StatusComplete, session.Status().Status)
}

func TestJobStreamSession_StatusSnapshotOverwrite(t *testing.T) {
	server := newWSServer(t, func(_ int, ctx context.Context, conn *websocket.Conn) {
		_ = writeEvent(ctx, conn, map[string]any{"type": EventTypeStatus, "status": "queued"})
		_ = writeEvent(ctx, conn, map[string]any{
			"type": EventTypeStatus, "status": "failed",
			"error_message": "scoring provider unavailable",
			"timestamp":     "2024-01-01T00:05:00Z",
		})
		<-ctx.Done()
	})

	session := startSession(t, "job-1", server.url(), SessionConfig{})

	waitFor(t, func() bool {
		snapshot := session.Status()
		return snapshot != nil && snapshot.Status == StatusFailed
	}, "snapshot overwritten by the latest status event")

	snapshot := session.Status()
	assert.Equal(t, "scoring provider unavailable", snapshot.ErrorMessage)
	assert.Equal(t, "2024-01-01T00:05:00Z", snapshot.Timestamp)
}

func TestJobStreamSession_MalformedFramesDropped(t *testing.T) {
	server := newWSServer(t, func(_ int, ctx context.Context, conn *websocket.Conn) {
		_ = conn.Write(ctx, websocket.MessageText, []byte("not json at all"))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`"a bare string"`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`[1, 2, 3]`))
		_ = writeEvent(ctx, conn, map[string]any{"type": EventTypeStatus, "status": "running"})
		<-ctx.Done()
	})

	session := startSession(t, "job-1", server.url(), SessionConfig{})

	waitFor(t, func() bool { return len(session.Entries()) == 1 }, "only the valid frame becomes an entry")

	state, _ := session.State()
	assert.Equal(t, StateOpen, state, "malformed frames must not disturb the connection")
	assert.Equal(t, "Status updated to Running", session.Entries()[0].Title)
}

func TestJobStreamSession_ReconnectsOnUncleanClose(t *testing.T) {
	server := newWSServer(t, func(attempt int, ctx context.Context, conn *websocket.Conn) {
		if attempt == 1 {
			_ = conn.Close(websocket.StatusInternalError, "simulated failure")
			return
		}
		_ = writeEvent(ctx, conn, map[string]any{"type": EventTypeStatus, "status": "running"})
		<-ctx.Done()
	})

	session := startSession(t, "job-1", server.url(), SessionConfig{})

	waitFor(t, func() bool { return server.dialCount() == 2 }, "one reconnect attempt after unclean close")
	waitFor(t, func() bool {
		state, _ := session.State()
		return state == StateOpen
	}, "session reopens on the second attempt")

	// One close, one reconnect — no further attempts while the new
	// connection stays healthy.
	time.Sleep(5 * 20 * time.Millisecond)
	assert.Equal(t, 2, server.dialCount())
}

func TestJobStreamSession_NoReconnectOnCleanClose(t *testing.T) {
	server := newWSServer(t, func(_ int, _ context.Context, conn *websocket.Conn) {
		_ = conn.Close(websocket.StatusNormalClosure, "done")
	})

	session := startSession(t, "job-1", server.url(), SessionConfig{})

	waitFor(t, func() bool {
		state, _ := session.State()
		return state == StateClosed
	}, "clean close settles in closed state")

	time.Sleep(5 * 20 * time.Millisecond)
	assert.Equal(t, 1, server.dialCount(), "normal closure must not trigger a reconnect")
}

func TestJobStreamSession_StopBeforeCloseHaltsReconnection(t *testing.T) {
	server := newWSServer(t, func(_ int, ctx context.Context, conn *websocket.Conn) {
		<-ctx.Done()
	})

	session := startSession(t, "job-1", server.url(), SessionConfig{})
	waitFor(t, func() bool {
		state, _ := session.State()
		return state == StateOpen
	}, "session opens")

	session.Stop()

	state, errMsg := session.State()
	assert.Equal(t, StateIdle, state)
	assert.Empty(t, errMsg)
	assert.Empty(t, session.Entries())
	assert.Nil(t, session.Status())

	time.Sleep(5 * 20 * time.Millisecond)
	assert.Equal(t, 1, server.dialCount(), "no reconnect after intentional stop")
}

func TestJobStreamSession_StopCancelsPendingReconnect(t *testing.T) {
	server := newWSServer(t, func(_ int, _ context.Context, conn *websocket.Conn) {
		_ = conn.Close(websocket.StatusInternalError, "simulated failure")
	})

	session := startSession(t, "job-1", server.url(), SessionConfig{
		ReconnectDelay: 100 * time.Millisecond,
	})

	waitFor(t, func() bool {
		state, _ := session.State()
		return state == StateClosed || state == StateError
	}, "unclean close observed")
	session.Stop()

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, server.dialCount(), "pending reconnect timer must be cancelled by Stop")

	state, _ := session.State()
	assert.Equal(t, StateIdle, state)
}

func TestJobStreamSession_EstablishmentFailure(t *testing.T) {
	server := newWSServer(t, func(_ int, _ context.Context, _ *websocket.Conn) {})
	url := server.url()
	server.srv.Close()

	session := NewJobSession("job-1", url, SessionConfig{ReconnectDelay: 20 * time.Millisecond})
	require.NoError(t, session.Start(context.Background()))
	t.Cleanup(session.Stop)

	waitFor(t, func() bool {
		state, _ := session.State()
		return state == StateError
	}, "dial failure surfaces the error state")

	_, errMsg := session.State()
	assert.NotEmpty(t, errMsg)

	// Establishment failures do not self-retry.
	time.Sleep(5 * 20 * time.Millisecond)
	assert.Equal(t, 0, server.dialCount())
}

func TestJobStreamSession_EmptyJobIDStaysIdle(t *testing.T) {
	session := NewJobSession("", "ws://localhost:9/ws/matching-jobs//", SessionConfig{})
	require.NoError(t, session.Start(context.Background()))

	state, _ := session.State()
	assert.Equal(t, StateIdle, state)
	assert.Empty(t, session.Entries())
	session.Stop()
}

func TestJobStreamSession_DoubleStartRejected(t *testing.T) {
	server := newWSServer(t, func(_ int, ctx context.Context, _ *websocket.Conn) {
		<-ctx.Done()
	})

	session := startSession(t, "job-1", server.url(), SessionConfig{})
	assert.Error(t, session.Start(context.Background()))
}
