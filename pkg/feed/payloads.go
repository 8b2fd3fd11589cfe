// Package feed implements the producing side of the matching-job stream: the
// typed event payloads, the per-job WebSocket hub, the publisher that writes
// every event to the persisted update log before broadcasting, and the
// update-log stores.
package feed

import (
	"time"

	"github.com/matchable/matchstream/pkg/stream"
)

// StatusChangedPayload is the payload for matching.job.status events.
// Published on every job lifecycle transition.
type StatusChangedPayload struct {
	Type         string           `json:"type"`       // always stream.EventTypeStatus
	JobID        string           `json:"job_id"`     // matching job UUID
	Status       stream.JobStatus `json:"status"`     // queued, running, complete, failed
	ErrorMessage string           `json:"error_message,omitempty"`
	Timestamp    string           `json:"timestamp"` // RFC3339Nano
}

// CriterionSummary describes one prepared search criterion.
type CriterionSummary struct {
	ID     string  `json:"id"`
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
}

// CriteriaPreparedPayload is the payload for matching.job.criteria events.
// Published once the job's scoring template has been expanded into criteria.
type CriteriaPreparedPayload struct {
	Type      string             `json:"type"` // always stream.EventTypeCriteria
	JobID     string             `json:"job_id"`
	Criteria  []CriterionSummary `json:"criteria"`
	Timestamp string             `json:"timestamp"`
}

// CriterionSnippetCount pairs a criterion with its collected snippet count.
type CriterionSnippetCount struct {
	CriterionID  string `json:"criterion_id"`
	SnippetCount int    `json:"snippet_count"`
}

// SourceSnippetsPayload is the payload for matching.job.source_snippets
// events. Published after source-document snippets are gathered per criterion.
type SourceSnippetsPayload struct {
	Type      string                  `json:"type"` // always stream.EventTypeSourceSnippets
	JobID     string                  `json:"job_id"`
	Snippets  []CriterionSnippetCount `json:"snippets"`
	Timestamp string                  `json:"timestamp"`
}

// CriterionHitCount pairs a criterion with its search hit count for a target.
type CriterionHitCount struct {
	CriterionID string `json:"criterion_id"`
	HitCount    int    `json:"hit_count"`
}

// TargetSearchSnapshot summarizes one target's per-criterion search results.
type TargetSearchSnapshot struct {
	TargetID   string              `json:"target_id"`
	TargetName string              `json:"target_name"`
	TotalHits  int                 `json:"total_hits"`
	Hits       []CriterionHitCount `json:"hits"`
}

// TargetSearchPayload is the payload for matching.job.target.search events.
// Published once per target when its criterion searches complete.
type TargetSearchPayload struct {
	Type      string               `json:"type"` // always stream.EventTypeTargetSearch
	JobID     string               `json:"job_id"`
	Target    TargetSearchSnapshot `json:"target"`
	Timestamp string               `json:"timestamp"`
}

// TargetEvaluatedPayload is the payload for matching.job.target.evaluation
// events. Published after a target's criteria have been scored.
type TargetEvaluatedPayload struct {
	Type         string  `json:"type"` // always stream.EventTypeTargetEval
	JobID        string  `json:"job_id"`
	TargetID     string  `json:"target_id"`
	TargetName   string  `json:"target_name"`
	AverageScore float64 `json:"average_score"`
	Coverage     float64 `json:"coverage"` // ratio 0..1
	Timestamp    string  `json:"timestamp"`
}

// CandidateAggregatedPayload is the payload for matching.job.target.candidate
// events. Published when a target's evaluation and search signals are folded
// into one candidate score.
type CandidateAggregatedPayload struct {
	Type           string  `json:"type"` // always stream.EventTypeCandidate
	JobID          string  `json:"job_id"`
	TargetID       string  `json:"target_id"`
	TargetName     string  `json:"target_name"`
	Score          float64 `json:"score"`
	SearchHitRatio float64 `json:"search_hit_ratio"` // ratio 0..1
	SummaryReason  string  `json:"summary_reason,omitempty"`
	Timestamp      string  `json:"timestamp"`
}

// MatchPersistedPayload is the payload for matching.job.match.persisted
// events. Published after a scored pairing is written to the match table.
type MatchPersistedPayload struct {
	Type       string  `json:"type"` // always stream.EventTypeMatchPersisted
	JobID      string  `json:"job_id"`
	MatchID    string  `json:"match_id"`
	TargetID   string  `json:"target_id"`
	TargetName string  `json:"target_name"`
	Rank       int     `json:"rank"` // 1-based
	Score      float64 `json:"score"`
	Timestamp  string  `json:"timestamp"`
}

// eventTimestamp stamps outbound payloads. UTC RFC3339Nano, matching what the
// classifier and merger parse on the consuming side.
func eventTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
