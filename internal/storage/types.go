package storage

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Action represents the outcome recorded for an activity event.
type Action string

const (
	ActionAllowed      Action = "Allowed"
	ActionBlocked      Action = "Blocked"
	ActionTimeExceeded Action = "TimeExceeded"
	ActionOther        Action = "Other"
)

// ParseAction maps a recorded action name onto a known Action, case-insensitively.
// Unrecognised names become ActionOther.
func ParseAction(s string) Action {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allowed":
		return ActionAllowed
	case "blocked":
		return ActionBlocked
	case "timeexceeded", "time_exceeded":
		return ActionTimeExceeded
	default:
		return ActionOther
	}
}

// IsBlockWorthy reports whether the action counts towards blocked attempts.
func (a Action) IsBlockWorthy() bool {
	return a == ActionBlocked || a == ActionTimeExceeded
}

// UnmarshalJSON implements json.Unmarshaler to normalize the action name.
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*a = ParseAction(s)
	return nil
}

// RawValue keeps a field exactly as the producer sent it. Numbers and strings
// are both accepted so malformed values reach the pipeline instead of failing
// the whole batch at decode time.
type RawValue string

// UnmarshalJSON implements json.Unmarshaler.
func (r *RawValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RawValue(s)
		return nil
	}
	*r = RawValue(data)
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
}

// minEpochMillis is the smallest integer accepted as Unix milliseconds
// (1973-03-03). Smaller integers are almost certainly Unix seconds.
const minEpochMillis int64 = 100_000_000_000

// Time interprets the value as an instant. RFC 3339 (with or without a zone,
// zoneless values are UTC) and integer Unix milliseconds are accepted.
// Integers below minEpochMillis, such as Unix seconds, are rejected.
func (r RawValue) Time() (time.Time, bool) {
	s := strings.TrimSpace(string(r))
	if s == "" {
		return time.Time{}, false
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < minEpochMillis {
			return time.Time{}, false
		}
		return time.UnixMilli(ms).UTC(), true
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Float interprets the value as a finite number.
func (r RawValue) Float() (float64, bool) {
	s := strings.TrimSpace(string(r))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ActivityEvent is one raw activity log record. Duration and Timestamp are
// stored verbatim and only interpreted by the reporting pipeline.
type ActivityEvent struct {
	ID         string    `json:"id"`
	ChildID    string    `json:"child_id"`
	SiteOrApp  string    `json:"site_or_app"`
	Action     Action    `json:"action"`
	Duration   RawValue  `json:"duration_seconds"`
	Timestamp  RawValue  `json:"timestamp"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ChildSetting holds general per-child settings.
type ChildSetting struct {
	ChildID          string   `json:"child_id"`
	TimeLimitMinutes RawValue `json:"time_limit_minutes"`
}

// TimeLimitOverride is an explicit daily limit set for a child.
type TimeLimitOverride struct {
	ChildID           string    `json:"child_id"`
	DailyLimitSeconds RawValue  `json:"daily_limit_seconds"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ActiveChildChange is a notification that another process changed the active child.
type ActiveChildChange struct {
	ChildID string `json:"child_id"`
	Origin  string `json:"origin"`
}
