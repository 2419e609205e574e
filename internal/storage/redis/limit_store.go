package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/kreport/internal/storage"
	"github.com/redis/go-redis/v9"
)

type limitStore struct {
	client *redis.Client
	now    func() time.Time
}

// FetchTimeLimitOverride retrieves the explicit daily limit for a child
func (s *limitStore) FetchTimeLimitOverride(ctx context.Context, childID string) (*storage.TimeLimitOverride, error) {
	data, err := s.client.HGetAll(ctx, limitsKey(childID)).Result()
	if err != nil {
		return nil, err
	}

	return parseTimeLimitOverride(childID, data)
}

// SaveTimeLimitOverride replaces the explicit daily limit for a child
func (s *limitStore) SaveTimeLimitOverride(ctx context.Context, childID string, dailyLimitSeconds int64) error {
	if childID == "" {
		return fmt.Errorf("child id is required")
	}
	if dailyLimitSeconds <= 0 {
		return fmt.Errorf("daily limit must be positive, got %d", dailyLimitSeconds)
	}

	script := redis.NewScript(saveLimitScript)
	keys := []string{limitsKey(childID)}
	args := []interface{}{
		childID,
		dailyLimitSeconds,
		s.now().UTC().Format(time.RFC3339Nano),
	}

	return script.Run(ctx, s.client, keys, args...).Err()
}
