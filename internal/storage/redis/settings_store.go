package redis

import (
	"context"
	"fmt"

	"github.com/goodtune/kreport/internal/storage"
	"github.com/redis/go-redis/v9"
)

type settingsStore struct {
	client *redis.Client
}

// FetchChildSetting retrieves the general settings for a child
func (s *settingsStore) FetchChildSetting(ctx context.Context, childID string) (*storage.ChildSetting, error) {
	data, err := s.client.HGetAll(ctx, settingsKey(childID)).Result()
	if err != nil {
		return nil, err
	}

	return parseChildSetting(childID, data)
}

// UpsertChildSetting creates or updates the general settings for a child
func (s *settingsStore) UpsertChildSetting(ctx context.Context, setting storage.ChildSetting) error {
	if setting.ChildID == "" {
		return fmt.Errorf("setting has no child_id")
	}

	return s.client.HSet(ctx, settingsKey(setting.ChildID),
		"time_limit_minutes", string(setting.TimeLimitMinutes),
	).Err()
}
