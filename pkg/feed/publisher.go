package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/matchable/matchstream/pkg/stream"
)

// UpdatePublisher publishes matching-job events for WebSocket delivery.
// Every event is first written to the persisted update log, then broadcast to
// the job's subscribers. Persistence is best effort: a store failure is logged
// and the broadcast still happens, so live viewers are never starved by a
// write problem.
//
// Each public method accepts a specific typed payload struct — see payloads.go.
type UpdatePublisher struct {
	store UpdateStore
	hub   *Hub
}

// NewUpdatePublisher creates an UpdatePublisher over the given store and hub.
func NewUpdatePublisher(store UpdateStore, hub *Hub) *UpdatePublisher {
	return &UpdatePublisher{store: store, hub: hub}
}

// --- Typed public methods ---

// PublishStatusChanged persists and broadcasts a matching.job.status event.
// Published on every job lifecycle transition.
func (p *UpdatePublisher) PublishStatusChanged(ctx context.Context, payload StatusChangedPayload) error {
	payload.Type = stream.EventTypeStatus
	if payload.Timestamp == "" {
		payload.Timestamp = eventTimestamp()
	}
	return p.publish(ctx, payload.JobID, payload.Type, payload)
}

// PublishCriteriaPrepared persists and broadcasts a matching.job.criteria event.
func (p *UpdatePublisher) PublishCriteriaPrepared(ctx context.Context, payload CriteriaPreparedPayload) error {
	payload.Type = stream.EventTypeCriteria
	if payload.Timestamp == "" {
		payload.Timestamp = eventTimestamp()
	}
	return p.publish(ctx, payload.JobID, payload.Type, payload)
}

// PublishSourceSnippets persists and broadcasts a matching.job.source_snippets event.
func (p *UpdatePublisher) PublishSourceSnippets(ctx context.Context, payload SourceSnippetsPayload) error {
	payload.Type = stream.EventTypeSourceSnippets
	if payload.Timestamp == "" {
		payload.Timestamp = eventTimestamp()
	}
	return p.publish(ctx, payload.JobID, payload.Type, payload)
}

// PublishTargetSearch persists and broadcasts a matching.job.target.search event.
func (p *UpdatePublisher) PublishTargetSearch(ctx context.Context, payload TargetSearchPayload) error {
	payload.Type = stream.EventTypeTargetSearch
	if payload.Timestamp == "" {
		payload.Timestamp = eventTimestamp()
	}
	return p.publish(ctx, payload.JobID, payload.Type, payload)
}

// PublishTargetEvaluated persists and broadcasts a matching.job.target.evaluation event.
func (p *UpdatePublisher) PublishTargetEvaluated(ctx context.Context, payload TargetEvaluatedPayload) error {
	payload.Type = stream.EventTypeTargetEval
	if payload.Timestamp == "" {
		payload.Timestamp = eventTimestamp()
	}
	return p.publish(ctx, payload.JobID, payload.Type, payload)
}

// PublishCandidateAggregated persists and broadcasts a matching.job.target.candidate event.
func (p *UpdatePublisher) PublishCandidateAggregated(ctx context.Context, payload CandidateAggregatedPayload) error {
	payload.Type = stream.EventTypeCandidate
	if payload.Timestamp == "" {
		payload.Timestamp = eventTimestamp()
	}
	return p.publish(ctx, payload.JobID, payload.Type, payload)
}

// PublishMatchPersisted persists and broadcasts a matching.job.match.persisted event.
func (p *UpdatePublisher) PublishMatchPersisted(ctx context.Context, payload MatchPersistedPayload) error {
	payload.Type = stream.EventTypeMatchPersisted
	if payload.Timestamp == "" {
		payload.Timestamp = eventTimestamp()
	}
	return p.publish(ctx, payload.JobID, payload.Type, payload)
}

// publish marshals the payload, appends it to the update log (best effort),
// then broadcasts it to the job's subscribers.
func (p *UpdatePublisher) publish(ctx context.Context, jobID, eventType string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	if _, err := p.store.Append(ctx, jobID, eventType, encoded); err != nil {
		slog.Error("Failed to persist job update",
			"job_id", jobID, "event_type", eventType, "error", err)
	}

	p.hub.Broadcast(jobID, encoded)
	return nil
}
