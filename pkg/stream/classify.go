// Package stream implements the realtime update pipeline for matching jobs:
// classification of raw event payloads into display-ready entries, the
// per-job WebSocket session with reconnect handling, and the merge of live
// entries with the persisted update log.
//
// Event payloads are untyped JSON objects discriminated by a dotted "type"
// tag. Every field access in this package is defensive: a missing or
// mistyped field drops that fragment of the output, never the whole entry.
package stream

import (
	"fmt"
	"math"
	"strings"
)

// Event kinds published for a matching job.
const (
	EventTypeStatus         = "matching.job.status"
	EventTypeCriteria       = "matching.job.criteria"
	EventTypeSourceSnippets = "matching.job.source_snippets"
	EventTypeTargetSearch   = "matching.job.target.search"
	EventTypeTargetEval     = "matching.job.target.evaluation"
	EventTypeCandidate      = "matching.job.target.candidate"
	EventTypeMatchPersisted = "matching.job.match.persisted"
)

// Describe derives the display title and description for a raw event payload.
// It is total: any payload, including nil or one with an unknown type tag,
// yields a valid title. The description is empty when no fragment resolves.
func Describe(payload map[string]any) (title, description string) {
	eventType := stringField(payload, "type")
	if eventType == "" {
		eventType = "event"
	}

	switch eventType {
	case EventTypeStatus:
		status := JobStatus(stringField(payload, "status"))
		if status == "" {
			status = StatusQueued
		}
		title = "Status updated to " + status.Label()
		if msg := stringField(payload, "error_message"); msg != "" {
			description = "Error: " + msg
		}
		return title, description

	case EventTypeCriteria:
		criteria := listField(payload, "criteria")
		var labels []string
		for _, item := range criteria {
			if label := stringField(asObject(item), "label"); label != "" {
				labels = append(labels, label)
			}
		}
		if len(criteria) == 1 {
			title = "Prepared 1 search criterion"
		} else {
			title = fmt.Sprintf("Prepared %d search criteria", len(criteria))
		}
		return title, strings.Join(labels, ", ")

	case EventTypeSourceSnippets:
		var parts []string
		for _, item := range listField(payload, "snippets") {
			obj := asObject(item)
			id := stringField(obj, "criterion_id")
			if id == "" {
				id = "criterion"
			}
			parts = append(parts, fmt.Sprintf("%s: %d", id, intField(obj, "snippet_count")))
		}
		return "Collected source snippets", strings.Join(parts, ", ")

	case EventTypeTargetSearch:
		target := objectField(payload, "target")
		name := targetName(target)
		var details []string
		for _, item := range listField(target, "hits") {
			obj := asObject(item)
			id := stringField(obj, "criterion_id")
			if id == "" {
				id = "criterion"
			}
			details = append(details, fmt.Sprintf("%s: %d", id, intField(obj, "hit_count")))
		}
		title = fmt.Sprintf("Search completed for %s (%d hits)", name, intField(target, "total_hits"))
		return title, strings.Join(details, ", ")

	case EventTypeTargetEval:
		var parts []string
		if score, ok := formatScore(payload["average_score"]); ok {
			parts = append(parts, "Score "+score)
		}
		if coverage, ok := formatPercentage(payload["coverage"]); ok {
			parts = append(parts, "Coverage "+coverage)
		}
		title = "Evaluated " + targetName(payload)
		return title, strings.Join(parts, " · ")

	case EventTypeCandidate:
		var parts []string
		if score, ok := formatScore(payload["score"]); ok {
			parts = append(parts, "Score "+score)
		}
		if ratio, ok := formatPercentage(payload["search_hit_ratio"]); ok {
			parts = append(parts, "Hit ratio "+ratio)
		}
		description = strings.Join(parts, " · ")
		if summary := stringField(payload, "summary_reason"); summary != "" {
			if description != "" {
				description += " — " + summary
			} else {
				description = summary
			}
		}
		return "Aggregated candidate " + targetName(payload), description

	case EventTypeMatchPersisted:
		var parts []string
		if rank, ok := numberField(payload, "rank"); ok && rank != 0 {
			parts = append(parts, fmt.Sprintf("#%d", int(rank)))
		}
		if score, ok := formatScore(payload["score"]); ok {
			parts = append(parts, "Score "+score)
		}
		return "Match saved for " + targetName(payload), strings.Join(parts, " · ")

	default:
		return "Received " + eventType, ""
	}
}

// targetName resolves the target_name field with a generic fallback.
func targetName(obj map[string]any) string {
	if name := stringField(obj, "target_name"); name != "" {
		return name
	}
	return "Target"
}

// formatScore renders a finite numeric value with fixed two-decimal notation.
func formatScore(value any) (string, bool) {
	f, ok := asNumber(value)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%.2f", f), true
}

// formatPercentage renders a finite numeric ratio as a rounded percentage.
func formatPercentage(value any) (string, bool) {
	f, ok := asNumber(value)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%d%%", int(math.Round(f*100))), true
}

// --- untyped payload field access ---

func stringField(obj map[string]any, key string) string {
	if obj == nil {
		return ""
	}
	s, _ := obj[key].(string)
	return s
}

func numberField(obj map[string]any, key string) (float64, bool) {
	if obj == nil {
		return 0, false
	}
	return asNumber(obj[key])
}

// intField returns the field as an integer, defaulting to zero for missing
// or non-numeric values.
func intField(obj map[string]any, key string) int {
	f, ok := numberField(obj, key)
	if !ok {
		return 0
	}
	return int(f)
}

func listField(obj map[string]any, key string) []any {
	if obj == nil {
		return nil
	}
	list, _ := obj[key].([]any)
	return list
}

func objectField(obj map[string]any, key string) map[string]any {
	if obj == nil {
		return nil
	}
	return asObject(obj[key])
}

func asObject(value any) map[string]any {
	obj, _ := value.(map[string]any)
	return obj
}

// asNumber accepts the numeric types JSON decoding and literal Go values
// produce. Non-finite floats are rejected so formatting never prints NaN.
func asNumber(value any) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
