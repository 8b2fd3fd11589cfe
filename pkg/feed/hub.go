package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Hub fans events out to the WebSocket subscribers of each job. Subscription
// is carried by the endpoint path, so a connection belongs to exactly one job
// for its whole lifetime — there is no subscribe/unsubscribe protocol.
type Hub struct {
	mu           sync.RWMutex
	jobs         map[string]map[string]*hubConn // job id → connection id → connection
	writeTimeout time.Duration
}

type hubConn struct {
	id   string
	conn *websocket.Conn
	ctx  context.Context
}

// NewHub creates a Hub with the given per-connection write timeout.
func NewHub(writeTimeout time.Duration) *Hub {
	return &Hub{
		jobs:         make(map[string]map[string]*hubConn),
		writeTimeout: writeTimeout,
	}
}

// HandleConnection registers the connection for a job and blocks until it
// closes. Inbound frames are read and discarded: the stream is receive-only
// from the client's point of view, but the read loop is still needed to
// notice disconnects and process control frames.
func (h *Hub) HandleConnection(ctx context.Context, jobID string, conn *websocket.Conn) {
	c := &hubConn{
		id:   uuid.New().String(),
		conn: conn,
		ctx:  ctx,
	}

	h.register(jobID, c)
	defer h.unregister(jobID, c)

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// Broadcast sends an encoded event to every subscriber of the job. Slow or
// broken connections only lose their own delivery.
func (h *Hub) Broadcast(jobID string, payload []byte) {
	h.mu.RLock()
	conns := make([]*hubConn, 0, len(h.jobs[jobID]))
	for _, c := range h.jobs[jobID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		writeCtx, cancel := context.WithTimeout(c.ctx, h.writeTimeout)
		err := c.conn.Write(writeCtx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			slog.Warn("Failed to deliver job event",
				"job_id", jobID, "connection_id", c.id, "error", err)
		}
	}
}

// SubscriberCount returns the number of live subscribers for a job.
func (h *Hub) SubscriberCount(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.jobs[jobID])
}

// Close disconnects all subscribers with a normal closure. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*hubConn, 0)
	for _, group := range h.jobs {
		for _, c := range group {
			conns = append(conns, c)
		}
	}
	h.jobs = make(map[string]map[string]*hubConn)
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.conn.Close(websocket.StatusNormalClosure, "server shutting down")
	}
}

func (h *Hub) register(jobID string, c *hubConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.jobs[jobID]
	if !ok {
		group = make(map[string]*hubConn)
		h.jobs[jobID] = group
	}
	group[c.id] = c
}

func (h *Hub) unregister(jobID string, c *hubConn) {
	h.mu.Lock()
	if group, ok := h.jobs[jobID]; ok {
		delete(group, c.id)
		if len(group) == 0 {
			delete(h.jobs, jobID)
		}
	}
	h.mu.Unlock()

	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}
