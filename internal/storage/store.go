package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Activity() ActivityStore
	Settings() SettingsStore
	Limits() LimitStore
	ActiveChild() ActiveChildStore
}

// ActivityStore manages raw activity event logs.
type ActivityStore interface {
	// AddActivity stores events, assigning IDs and RecordedAt where missing.
	AddActivity(ctx context.Context, events ...ActivityEvent) error
	// FetchActivityLogs returns a child's events recorded at or after since,
	// oldest first. With no actions every action is returned.
	FetchActivityLogs(ctx context.Context, childID string, since time.Time, actions ...Action) ([]ActivityEvent, error)
}

// SettingsStore manages general per-child settings.
type SettingsStore interface {
	FetchChildSetting(ctx context.Context, childID string) (*ChildSetting, error)
	UpsertChildSetting(ctx context.Context, setting ChildSetting) error
}

// LimitStore manages explicit daily limit overrides.
type LimitStore interface {
	FetchTimeLimitOverride(ctx context.Context, childID string) (*TimeLimitOverride, error)
	SaveTimeLimitOverride(ctx context.Context, childID string, dailyLimitSeconds int64) error
}

// ActiveChildStore holds the single "active child" selection shared by every
// process pointed at the same backend.
type ActiveChildStore interface {
	Get(ctx context.Context) (string, error)
	// Set stores the selection (empty clears it) and notifies other watchers.
	Set(ctx context.Context, childID string) error
	// Watch streams selections made by other processes until ctx is done.
	// Changes made through this store instance are not echoed back.
	Watch(ctx context.Context) (<-chan ActiveChildChange, error)
}
