package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ConnectionState describes the live connection's lifecycle position.
type ConnectionState string

const (
	StateIdle       ConnectionState = "idle"
	StateConnecting ConnectionState = "connecting"
	StateOpen       ConnectionState = "open"
	StateClosed     ConnectionState = "closed"
	StateError      ConnectionState = "error"
)

// liveBufferCap bounds the live entry buffer. Older entries fall off;
// the persisted update log is the authoritative history.
const liveBufferCap = 50

// defaultReconnectDelay is the fixed delay before re-dialing after an unclean
// disconnect. Deliberately not exponential and not attempt-capped: the
// session lives only as long as its subscriber, which bounds the retry loop.
const defaultReconnectDelay = 1500 * time.Millisecond

// Invalidator receives cache-invalidation signals as terminal and
// match-persisted events arrive on the stream.
type Invalidator interface {
	InvalidateJobs()
	InvalidateMatches()
}

// DialFunc opens a WebSocket connection. Replaceable in tests.
type DialFunc func(ctx context.Context, url string) (*websocket.Conn, error)

func defaultDial(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	return conn, err
}

// SessionConfig carries the optional collaborators of a JobStreamSession.
type SessionConfig struct {
	// Invalidator receives jobs/matches refresh signals. May be nil.
	Invalidator Invalidator

	// ReconnectDelay overrides the fixed reconnect delay. Zero means the
	// default 1.5s.
	ReconnectDelay time.Duration

	// Dial overrides the WebSocket dialer. Zero value dials for real.
	Dial DialFunc
}

// JobStreamSession owns the single live connection for one job id: the
// connection handle, the reconnect timer, the live entry buffer and the
// status snapshot are all private to the session. It is created per job id
// and torn down synchronously by Stop — a session never outlives its
// subscriber.
type JobStreamSession struct {
	jobID          string
	url            string
	invalidator    Invalidator
	reconnectDelay time.Duration
	dial           DialFunc

	mu             sync.Mutex
	state          ConnectionState
	lastError      string
	entries        []Entry // most-recent-first, capped at liveBufferCap
	status         *StatusSnapshot
	conn           *websocket.Conn
	reconnectTimer *time.Timer
	started        bool
	stopped        bool
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
}

// NewJobSession creates a session for the given job id and stream endpoint.
// The session is idle until Start is called.
func NewJobSession(jobID, streamURL string, cfg SessionConfig) *JobStreamSession {
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	dial := cfg.Dial
	if dial == nil {
		dial = defaultDial
	}
	return &JobStreamSession{
		jobID:          jobID,
		url:            streamURL,
		invalidator:    cfg.Invalidator,
		reconnectDelay: delay,
		dial:           dial,
		state:          StateIdle,
	}
}

// Start opens the connection in the background. A session with an empty job
// id stays idle with cleared buffers. Starting an already started session is
// an error: only one connection may exist per session, and a new subscription
// requires a new session.
func (s *JobStreamSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("stream session for job %s already started", s.jobID)
	}
	if s.jobID == "" {
		s.state = StateIdle
		s.entries = nil
		s.status = nil
		s.lastError = ""
		return nil
	}

	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.state = StateConnecting
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.connect()
	}()
	return nil
}

// Stop tears the session down synchronously: the reconnect timer is
// cancelled, any live or in-progress connection is closed with a normal
// closure, and the read loop is joined before buffers and snapshot are
// cleared. After Stop returns no callback of this session can fire.
func (s *JobStreamSession) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.resetLocked()
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "subscriber stopped")
	}
	s.wg.Wait()

	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
}

func (s *JobStreamSession) resetLocked() {
	s.state = StateIdle
	s.entries = nil
	s.status = nil
	s.lastError = ""
}

// JobID returns the job this session subscribes to.
func (s *JobStreamSession) JobID() string {
	return s.jobID
}

// State returns the current connection state and, for the error state, the
// surfaced message.
func (s *JobStreamSession) State() (ConnectionState, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.lastError
}

// Entries returns a snapshot of the live buffer, most recent first.
func (s *JobStreamSession) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Status returns the latest status snapshot, or nil before the first status
// event.
func (s *JobStreamSession) Status() *StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == nil {
		return nil
	}
	snapshot := *s.status
	return &snapshot
}

// connect dials the endpoint and runs the read loop until disconnect. Called
// from Start's goroutine and from the reconnect timer.
func (s *JobStreamSession) connect() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	s.lastError = ""
	ctx := s.ctx
	s.mu.Unlock()

	conn, err := s.dial(ctx, s.url)
	if err != nil {
		s.mu.Lock()
		if !s.stopped && ctx.Err() == nil {
			// Establishment failure: surfaced, no automatic retry.
			s.state = StateError
			s.lastError = err.Error()
		}
		s.mu.Unlock()
		slog.Warn("Failed to open job stream", "job_id", s.jobID, "error", err)
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "subscriber stopped")
		return
	}
	s.conn = conn
	s.state = StateOpen
	s.mu.Unlock()

	for {
		_, data, readErr := conn.Read(ctx)
		if readErr != nil {
			s.handleDisconnect(readErr)
			return
		}
		s.handleFrame(data)
	}
}

// handleFrame parses one inbound frame. Unparseable frames are dropped
// silently; a bad frame never affects the connection.
func (s *JobStreamSession) handleFrame(data []byte) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil || payload == nil {
		slog.Debug("Dropping malformed stream frame", "job_id", s.jobID, "error", err)
		return
	}

	entry := NewEntry(payload, EntryOptions{})

	s.mu.Lock()
	s.entries = append([]Entry{entry}, s.entries...)
	if len(s.entries) > liveBufferCap {
		s.entries = s.entries[:liveBufferCap]
	}
	var snapshot *StatusSnapshot
	if entry.Type == EventTypeStatus {
		status := JobStatus(stringField(payload, "status"))
		if status == "" {
			status = StatusQueued
		}
		snapshot = &StatusSnapshot{
			Status:       status,
			ErrorMessage: stringField(payload, "error_message"),
			Timestamp:    stringField(payload, "timestamp"),
		}
		s.status = snapshot
	}
	s.mu.Unlock()

	if s.invalidator == nil {
		return
	}
	if snapshot != nil {
		s.invalidator.InvalidateJobs()
		if snapshot.Status.Terminal() {
			s.invalidator.InvalidateMatches()
		}
	}
	if entry.Type == EventTypeMatchPersisted {
		s.invalidator.InvalidateMatches()
	}
}

// handleDisconnect classifies the read failure and schedules a reconnect for
// everything except an intentional teardown or a clean peer close.
func (s *JobStreamSession) handleDisconnect(err error) {
	s.mu.Lock()
	s.conn = nil
	if s.stopped || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}

	closeStatus := websocket.CloseStatus(err)
	switch {
	case closeStatus == websocket.StatusNormalClosure:
		// Clean close by the peer: no reconnect.
		s.state = StateClosed
		s.mu.Unlock()
		return
	case closeStatus == -1:
		// No close frame at all: a transport failure mid-session.
		s.state = StateError
		s.lastError = "connection error"
	default:
		s.state = StateClosed
	}
	s.scheduleReconnectLocked()
	s.mu.Unlock()

	slog.Debug("Job stream disconnected, reconnect scheduled",
		"job_id", s.jobID, "close_status", closeStatus, "error", err)
}

// scheduleReconnectLocked arms the fixed-delay reconnect timer. Caller holds
// s.mu.
func (s *JobStreamSession) scheduleReconnectLocked() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	s.reconnectTimer = time.AfterFunc(s.reconnectDelay, func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()
		defer s.wg.Done()
		s.connect()
	})
}
