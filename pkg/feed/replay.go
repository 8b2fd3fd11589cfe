package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/matchable/matchstream/pkg/stream"
)

// ReplayConfig controls the simulated matching run.
type ReplayConfig struct {
	JobID string
	// Delay between consecutive events. Zero publishes the whole run at once.
	Delay time.Duration
}

// scripted targets for the simulated run, best candidate first.
var replayTargets = []struct {
	id       string
	name     string
	avgScore float64
	coverage float64
	score    float64
	hitRatio float64
	reason   string
	hits     []CriterionHitCount
}{
	{
		id: "target-acme", name: "Acme Industries",
		avgScore: 0.91, coverage: 1.0, score: 0.8675, hitRatio: 0.75,
		reason: "strong overlap on all weighted criteria",
		hits: []CriterionHitCount{
			{CriterionID: "crit-sector", HitCount: 12},
			{CriterionID: "crit-region", HitCount: 7},
		},
	},
	{
		id: "target-globex", name: "Globex Corporation",
		avgScore: 0.64, coverage: 0.5, score: 0.52, hitRatio: 0.5,
		reason: "partial coverage, weak regional signal",
		hits: []CriterionHitCount{
			{CriterionID: "crit-sector", HitCount: 4},
			{CriterionID: "crit-region", HitCount: 0},
		},
	},
}

// Replay publishes a scripted matching run against the publisher: the job is
// queued, starts running, prepares criteria, collects source snippets, then
// searches, evaluates and aggregates each target before persisting ranked
// matches and completing. Stops early if the context is cancelled.
func Replay(ctx context.Context, publisher *UpdatePublisher, cfg ReplayConfig) error {
	steps := []func(context.Context) error{
		func(ctx context.Context) error {
			return publisher.PublishStatusChanged(ctx, StatusChangedPayload{
				JobID: cfg.JobID, Status: stream.StatusQueued,
			})
		},
		func(ctx context.Context) error {
			return publisher.PublishStatusChanged(ctx, StatusChangedPayload{
				JobID: cfg.JobID, Status: stream.StatusRunning,
			})
		},
		func(ctx context.Context) error {
			return publisher.PublishCriteriaPrepared(ctx, CriteriaPreparedPayload{
				JobID: cfg.JobID,
				Criteria: []CriterionSummary{
					{ID: "crit-sector", Label: "Sector alignment", Weight: 0.6},
					{ID: "crit-region", Label: "Region overlap", Weight: 0.4},
				},
			})
		},
		func(ctx context.Context) error {
			return publisher.PublishSourceSnippets(ctx, SourceSnippetsPayload{
				JobID: cfg.JobID,
				Snippets: []CriterionSnippetCount{
					{CriterionID: "crit-sector", SnippetCount: 5},
					{CriterionID: "crit-region", SnippetCount: 3},
				},
			})
		},
	}

	for _, target := range replayTargets {
		target := target
		totalHits := 0
		for _, h := range target.hits {
			totalHits += h.HitCount
		}
		steps = append(steps,
			func(ctx context.Context) error {
				return publisher.PublishTargetSearch(ctx, TargetSearchPayload{
					JobID: cfg.JobID,
					Target: TargetSearchSnapshot{
						TargetID:   target.id,
						TargetName: target.name,
						TotalHits:  totalHits,
						Hits:       target.hits,
					},
				})
			},
			func(ctx context.Context) error {
				return publisher.PublishTargetEvaluated(ctx, TargetEvaluatedPayload{
					JobID:        cfg.JobID,
					TargetID:     target.id,
					TargetName:   target.name,
					AverageScore: target.avgScore,
					Coverage:     target.coverage,
				})
			},
			func(ctx context.Context) error {
				return publisher.PublishCandidateAggregated(ctx, CandidateAggregatedPayload{
					JobID:          cfg.JobID,
					TargetID:       target.id,
					TargetName:     target.name,
					Score:          target.score,
					SearchHitRatio: target.hitRatio,
					SummaryReason:  target.reason,
				})
			},
		)
	}

	for rank, target := range replayTargets {
		rank, target := rank, target
		steps = append(steps, func(ctx context.Context) error {
			return publisher.PublishMatchPersisted(ctx, MatchPersistedPayload{
				JobID:      cfg.JobID,
				MatchID:    fmt.Sprintf("match-%d", rank+1),
				TargetID:   target.id,
				TargetName: target.name,
				Rank:       rank + 1,
				Score:      target.score,
			})
		})
	}

	steps = append(steps, func(ctx context.Context) error {
		return publisher.PublishStatusChanged(ctx, StatusChangedPayload{
			JobID: cfg.JobID, Status: stream.StatusComplete,
		})
	})

	slog.Info("Starting simulated matching run",
		"job_id", cfg.JobID, "steps", len(steps), "delay", cfg.Delay)

	for i, step := range steps {
		if i > 0 && cfg.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Delay):
			}
		}
		if err := step(ctx); err != nil {
			return fmt.Errorf("replay step %d failed: %w", i, err)
		}
	}

	slog.Info("Simulated matching run finished", "job_id", cfg.JobID)
	return nil
}
