package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/kreport/internal/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type activityStore struct {
	client *redis.Client
	now    func() time.Time
}

// AddActivity stores events and indexes them by child
func (s *activityStore) AddActivity(ctx context.Context, events ...storage.ActivityEvent) error {
	script := redis.NewScript(addEventScript)
	now := s.now()
	pruneBefore := now.Add(-eventRetentionSeconds * time.Second).UnixMilli()

	for _, event := range events {
		if event.ChildID == "" {
			return fmt.Errorf("event has no child_id")
		}
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		if event.RecordedAt.IsZero() {
			event.RecordedAt = now
		}

		keys := []string{eventKey(event.ID), activityIndexKey(event.ChildID)}
		args := []interface{}{
			event.ID,
			event.ChildID,
			event.SiteOrApp,
			string(event.Action),
			string(event.Duration),
			string(event.Timestamp),
			event.RecordedAt.UTC().Format(time.RFC3339Nano),
			scoreFor(event),
			eventRetentionSeconds,
			pruneBefore,
		}

		if err := script.Run(ctx, s.client, keys, args...).Err(); err != nil {
			return fmt.Errorf("failed to add event %s: %w", event.ID, err)
		}
	}

	return nil
}

// FetchActivityLogs returns a child's events indexed at or after since
func (s *activityStore) FetchActivityLogs(ctx context.Context, childID string, since time.Time, actions ...storage.Action) ([]storage.ActivityEvent, error) {
	ids, err := s.client.ZRangeByScore(ctx, activityIndexKey(childID), &redis.ZRangeBy{
		Min: formatScore(since.UnixMilli()),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query activity index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// Fetch all event hashes in one round trip
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, eventKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	wanted := make(map[storage.Action]bool, len(actions))
	for _, a := range actions {
		wanted[a] = true
	}

	events := make([]storage.ActivityEvent, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			continue
		}
		event, err := parseActivityEvent(data)
		if err != nil {
			// Expired between index read and fetch
			continue
		}
		if len(wanted) > 0 && !wanted[event.Action] {
			continue
		}
		events = append(events, *event)
	}

	return events, nil
}
