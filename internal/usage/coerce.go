package usage

import (
	"math"
	"time"

	"github.com/goodtune/kreport/internal/metrics"
	"github.com/goodtune/kreport/internal/storage"
)

// DurationSeconds returns the event's duration in whole seconds. Missing,
// non-numeric and negative durations count as zero.
func DurationSeconds(e storage.ActivityEvent) int64 {
	if e.Duration == "" {
		return 0
	}
	f, ok := e.Duration.Float()
	if !ok || f < 0 {
		metrics.MalformedRecords.WithLabelValues("duration_seconds").Inc()
		return 0
	}
	return int64(math.Round(f))
}

// Timestamp returns the event's parsed timestamp, or nil when it is missing
// or unparseable.
func Timestamp(e storage.ActivityEvent) *time.Time {
	t, ok := e.Timestamp.Time()
	if !ok {
		metrics.MalformedRecords.WithLabelValues("timestamp").Inc()
		return nil
	}
	return &t
}
