package redis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/kreport/internal/storage"
)

// parseActivityEvent converts a Redis hash to ActivityEvent. Duration and
// timestamp are carried through verbatim; only recorded_at is ours to parse.
func parseActivityEvent(data map[string]string) (*storage.ActivityEvent, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	recordedAt, err := time.Parse(time.RFC3339Nano, data["recorded_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse recorded_at: %w", err)
	}

	return &storage.ActivityEvent{
		ID:         data["id"],
		ChildID:    data["child_id"],
		SiteOrApp:  data["site_or_app"],
		Action:     storage.ParseAction(data["action"]),
		Duration:   storage.RawValue(data["duration_seconds"]),
		Timestamp:  storage.RawValue(data["timestamp"]),
		RecordedAt: recordedAt,
	}, nil
}

// parseChildSetting converts a Redis hash to ChildSetting
func parseChildSetting(childID string, data map[string]string) (*storage.ChildSetting, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	return &storage.ChildSetting{
		ChildID:          childID,
		TimeLimitMinutes: storage.RawValue(data["time_limit_minutes"]),
	}, nil
}

// parseTimeLimitOverride converts a Redis hash to TimeLimitOverride
func parseTimeLimitOverride(childID string, data map[string]string) (*storage.TimeLimitOverride, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	override := &storage.TimeLimitOverride{
		ChildID:           childID,
		DailyLimitSeconds: storage.RawValue(data["daily_limit_seconds"]),
	}

	if raw, ok := data["updated_at"]; ok && raw != "" {
		updatedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
		override.UpdatedAt = updatedAt
	}

	return override, nil
}

// scoreFor returns the sorted-set score for an event: its own timestamp when
// parseable, otherwise the time it was ingested.
func scoreFor(event storage.ActivityEvent) int64 {
	if ts, ok := event.Timestamp.Time(); ok {
		return ts.UnixMilli()
	}
	return event.RecordedAt.UnixMilli()
}

func formatScore(ms int64) string {
	return strconv.FormatInt(ms, 10)
}
