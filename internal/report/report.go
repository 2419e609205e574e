// Package report builds per-child usage reports and delivers them to a
// Presenter with last-trigger-wins semantics.
package report

import (
	"time"

	"github.com/goodtune/kreport/internal/limits"
	"github.com/goodtune/kreport/internal/storage"
	"github.com/goodtune/kreport/internal/usage"
)

// UsageReport is an immutable summary of one child's reporting window.
type UsageReport struct {
	ChildID          string          `json:"child_id"`
	WindowStart      time.Time       `json:"window_start"`
	TotalUsedSeconds int64           `json:"total_used_seconds"`
	LimitSeconds     int64           `json:"limit_seconds"`
	LimitTier        limits.Tier     `json:"limit_tier"`
	RemainingSeconds int64           `json:"remaining_seconds"`
	Rows             []usage.Row     `json:"rows"`
	AttemptCount     int             `json:"attempt_count"`
	Attempts         []usage.Attempt `json:"attempts"`
}

// UsedMinutes returns total usage rounded to the nearest minute.
func (r UsageReport) UsedMinutes() int64 {
	return usage.RoundMinutes(r.TotalUsedSeconds)
}

// LimitMinutes returns the daily limit rounded to the nearest minute.
func (r UsageReport) LimitMinutes() int64 {
	return usage.RoundMinutes(r.LimitSeconds)
}

// RemainingMinutes returns the headroom in displayed minutes, never negative.
func (r UsageReport) RemainingMinutes() int64 {
	if rem := r.LimitMinutes() - r.UsedMinutes(); rem > 0 {
		return rem
	}
	return 0
}

// Pipeline holds the stateless stages a report is composed from.
type Pipeline struct {
	Normalize  func(string) string
	Aggregator usage.Aggregator
	Clusterer  usage.Clusterer
}

// Compose builds a report from a snapshot. It has no side effects on its
// inputs and returns equal reports for equal snapshots.
func (p Pipeline) Compose(childID string, windowStart time.Time, limit limits.Limit, events []storage.ActivityEvent) UsageReport {
	agg := p.Aggregator.Aggregate(events)
	attempts := p.Clusterer.Cluster(usage.BlockedEvents(events, p.Normalize))

	remaining := limit.Seconds - agg.TotalUsedSeconds
	if remaining < 0 {
		remaining = 0
	}

	if attempts == nil {
		attempts = []usage.Attempt{}
	}

	return UsageReport{
		ChildID:          childID,
		WindowStart:      windowStart,
		TotalUsedSeconds: agg.TotalUsedSeconds,
		LimitSeconds:     limit.Seconds,
		LimitTier:        limit.Tier,
		RemainingSeconds: remaining,
		Rows:             agg.Rows,
		AttemptCount:     len(attempts),
		Attempts:         attempts,
	}
}
