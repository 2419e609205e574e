package redis

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/kreport/internal/config"
	"github.com/goodtune/kreport/internal/storage"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	// miniredis.Addr() returns "host:port", so Port stays zero
	cfg := config.RedisConfig{
		Host:         mr.Addr(),
		Port:         0,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}

	return store, mr
}

func TestOpen_InvalidTimeout(t *testing.T) {
	_, err := Open(config.RedisConfig{Host: "localhost", DialTimeout: "soon", ReadTimeout: "1s", WriteTimeout: "1s"})
	if err == nil {
		t.Fatal("expected error for invalid dial_timeout")
	}
}

func TestActivityStore_RoundTripMalformedFields(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	activity := store.Activity()

	now := time.Now().UTC()
	events := []storage.ActivityEvent{
		{ChildID: "child-1", SiteOrApp: "youtube.com", Action: storage.ActionAllowed, Duration: "120", Timestamp: storage.RawValue(now.Add(-time.Minute).Format(time.RFC3339))},
		{ChildID: "child-1", SiteOrApp: "roblox.com", Action: storage.ActionBlocked, Duration: "abc", Timestamp: "not-a-time"},
	}

	if err := activity.AddActivity(ctx, events...); err != nil {
		t.Fatalf("AddActivity failed: %v", err)
	}

	got, err := activity.FetchActivityLogs(ctx, "child-1", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("FetchActivityLogs failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(got))
	}

	// Parseable timestamp sorts before the ingest-time indexed one
	if got[0].SiteOrApp != "youtube.com" {
		t.Errorf("first event = %q, want youtube.com", got[0].SiteOrApp)
	}
	if got[1].Duration != "abc" || got[1].Timestamp != "not-a-time" {
		t.Errorf("malformed fields not preserved: %+v", got[1])
	}
	for _, e := range got {
		if e.ID == "" {
			t.Errorf("event has no ID assigned")
		}
		if e.RecordedAt.IsZero() {
			t.Errorf("event %s has no RecordedAt", e.ID)
		}
	}
}

func TestActivityStore_UnixSecondsIndexedByIngestTime(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	activity := store.Activity()

	now := time.Now().UTC()
	seconds := storage.RawValue(strconv.FormatInt(now.Add(-time.Minute).Unix(), 10))
	if err := activity.AddActivity(ctx, storage.ActivityEvent{
		ChildID: "child-1", SiteOrApp: "roblox.com", Action: storage.ActionBlocked, Timestamp: seconds,
	}); err != nil {
		t.Fatalf("AddActivity failed: %v", err)
	}

	got, err := activity.FetchActivityLogs(ctx, "child-1", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("FetchActivityLogs failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected the event inside today's window, got %d events", len(got))
	}
	if got[0].Timestamp != seconds {
		t.Errorf("timestamp = %q, want %q preserved", got[0].Timestamp, seconds)
	}
	if _, ok := got[0].Timestamp.Time(); ok {
		t.Error("Unix seconds timestamp should be treated as unparseable")
	}
}

func TestActivityStore_FetchFiltersByActionAndWindow(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	activity := store.Activity()

	now := time.Now().UTC()
	events := []storage.ActivityEvent{
		{ChildID: "child-1", SiteOrApp: "old.com", Action: storage.ActionAllowed, Duration: "10", Timestamp: storage.RawValue(now.Add(-48 * time.Hour).Format(time.RFC3339))},
		{ChildID: "child-1", SiteOrApp: "a.com", Action: storage.ActionAllowed, Duration: "10", Timestamp: storage.RawValue(now.Add(-2 * time.Minute).Format(time.RFC3339))},
		{ChildID: "child-1", SiteOrApp: "b.com", Action: storage.ActionBlocked, Timestamp: storage.RawValue(now.Add(-time.Minute).Format(time.RFC3339))},
		{ChildID: "child-1", SiteOrApp: "c.com", Action: storage.ActionTimeExceeded, Timestamp: storage.RawValue(now.Format(time.RFC3339))},
		{ChildID: "child-2", SiteOrApp: "d.com", Action: storage.ActionAllowed, Duration: "10", Timestamp: storage.RawValue(now.Format(time.RFC3339))},
	}
	if err := activity.AddActivity(ctx, events...); err != nil {
		t.Fatalf("AddActivity failed: %v", err)
	}

	tests := []struct {
		name    string
		actions []storage.Action
		want    []string
	}{
		{name: "all actions", want: []string{"a.com", "b.com", "c.com"}},
		{name: "allowed only", actions: []storage.Action{storage.ActionAllowed}, want: []string{"a.com"}},
		{name: "block worthy", actions: []storage.Action{storage.ActionBlocked, storage.ActionTimeExceeded}, want: []string{"b.com", "c.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := activity.FetchActivityLogs(ctx, "child-1", now.Add(-time.Hour), tt.actions...)
			if err != nil {
				t.Fatalf("FetchActivityLogs failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d events, want %d", len(got), len(tt.want))
			}
			for i, e := range got {
				if e.SiteOrApp != tt.want[i] {
					t.Errorf("event %d = %q, want %q", i, e.SiteOrApp, tt.want[i])
				}
			}
		})
	}
}

func TestActivityStore_RejectsMissingChild(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	if err := store.Activity().AddActivity(context.Background(), storage.ActivityEvent{SiteOrApp: "x.com"}); err == nil {
		t.Fatal("expected error for event without child_id")
	}
}

func TestSettingsStore(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	settings := store.Settings()

	_, err := settings.FetchChildSetting(ctx, "child-1")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	if err := settings.UpsertChildSetting(ctx, storage.ChildSetting{ChildID: "child-1", TimeLimitMinutes: "90"}); err != nil {
		t.Fatalf("UpsertChildSetting failed: %v", err)
	}

	got, err := settings.FetchChildSetting(ctx, "child-1")
	if err != nil {
		t.Fatalf("FetchChildSetting failed: %v", err)
	}
	if got.TimeLimitMinutes != "90" {
		t.Errorf("TimeLimitMinutes = %q, want 90", got.TimeLimitMinutes)
	}
}

func TestLimitStore(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	limits := store.Limits()

	_, err := limits.FetchTimeLimitOverride(ctx, "child-1")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	if err := limits.SaveTimeLimitOverride(ctx, "child-1", 0); err == nil {
		t.Error("expected error saving non-positive limit")
	}

	if err := limits.SaveTimeLimitOverride(ctx, "child-1", 3600); err != nil {
		t.Fatalf("SaveTimeLimitOverride failed: %v", err)
	}
	if err := limits.SaveTimeLimitOverride(ctx, "child-1", 5400); err != nil {
		t.Fatalf("SaveTimeLimitOverride failed: %v", err)
	}

	got, err := limits.FetchTimeLimitOverride(ctx, "child-1")
	if err != nil {
		t.Fatalf("FetchTimeLimitOverride failed: %v", err)
	}
	if got.DailyLimitSeconds != "5400" {
		t.Errorf("DailyLimitSeconds = %q, want 5400", got.DailyLimitSeconds)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
}

func TestActiveChildStore_GetSet(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	active := store.ActiveChild()

	id, err := active.Get(ctx)
	if err != nil || id != "" {
		t.Fatalf("Get() = (%q, %v), want empty", id, err)
	}

	if err := active.Set(ctx, "child-1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if id, _ := active.Get(ctx); id != "child-1" {
		t.Errorf("Get() = %q, want child-1", id)
	}

	if err := active.Set(ctx, ""); err != nil {
		t.Fatalf("Set empty failed: %v", err)
	}
	if id, _ := active.Get(ctx); id != "" {
		t.Errorf("Get() after clear = %q, want empty", id)
	}
}

func TestActiveChildStore_WatchIgnoresOwnChanges(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.RedisConfig{
		Host:         mr.Addr(),
		PoolSize:     10,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	watcher, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = watcher.Close() }()

	other, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = other.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := watcher.ActiveChild().Watch(ctx)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	// Own change must not be echoed back
	if err := watcher.ActiveChild().Set(ctx, "child-self"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := other.ActiveChild().Set(ctx, "child-other"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	select {
	case change := <-changes:
		if change.ChildID != "child-other" {
			t.Errorf("received change for %q, want child-other", change.ChildID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}

	cancel()
	select {
	case _, ok := <-changes:
		if ok {
			t.Error("expected channel to close after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
