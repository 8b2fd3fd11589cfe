package updates

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchable/matchstream/pkg/stream"
)

// TestMergedTimelineScenario walks the full consumer path: the persisted log
// contributes a queued record over REST, the live stream delivers a running
// status, and the merged timeline presents both, newest first.
func TestMergedTimelineScenario(t *testing.T) {
	restServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/matching-jobs/job-42/updates/", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]Record{
			{
				ID:        "db-1",
				CreatedAt: "2024-01-01T00:00:00Z",
				Payload:   map[string]any{"type": "matching.job.status", "status": "queued"},
			},
		})
	}))
	t.Cleanup(restServer.Close)

	wsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		payload, _ := json.Marshal(map[string]any{
			"type":      "matching.job.status",
			"status":    "running",
			"timestamp": "2024-01-01T00:05:00Z",
		})
		_ = conn.Write(r.Context(), websocket.MessageText, payload)
		<-r.Context().Done()
	}))
	t.Cleanup(wsServer.Close)

	loader := NewLoader(restServer.URL, 0)
	persisted, err := loader.Load(context.Background(), "job-42")
	require.NoError(t, err)
	require.Len(t, persisted, 1)

	session := stream.NewJobSession("job-42", "ws"+wsServer.URL[len("http"):], stream.SessionConfig{})
	require.NoError(t, session.Start(context.Background()))
	t.Cleanup(session.Stop)

	deadline := time.After(3 * time.Second)
	for len(session.Entries()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for the live status entry")
		case <-time.After(5 * time.Millisecond):
		}
	}

	merged := stream.Merge(persisted, session.Entries())
	require.Len(t, merged, 2)
	assert.Equal(t, "Status updated to Running", merged[0].Title)
	assert.Equal(t, "Status updated to Queued", merged[1].Title)
	assert.Equal(t, "db-matching.job.status-db-1", merged[1].ID)
}
