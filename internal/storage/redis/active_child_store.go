package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/goodtune/kreport/internal/storage"
	"github.com/redis/go-redis/v9"
)

type activeChildStore struct {
	client *redis.Client
	origin string
}

// Get returns the active child, or an empty string when none is selected
func (s *activeChildStore) Get(ctx context.Context) (string, error) {
	id, err := s.client.Get(ctx, activeChildKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// Set stores the active child and publishes the change
func (s *activeChildStore) Set(ctx context.Context, childID string) error {
	var err error
	if childID == "" {
		err = s.client.Del(ctx, activeChildKey).Err()
	} else {
		err = s.client.Set(ctx, activeChildKey, childID, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to store active child: %w", err)
	}

	payload, err := json.Marshal(storage.ActiveChildChange{ChildID: childID, Origin: s.origin})
	if err != nil {
		return err
	}

	if err := s.client.Publish(ctx, activeChildChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish active child change: %w", err)
	}
	return nil
}

// Watch streams active child changes made by other store instances
func (s *activeChildStore) Watch(ctx context.Context) (<-chan storage.ActiveChildChange, error) {
	sub := s.client.Subscribe(ctx, activeChildChannel)

	// Wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", activeChildChannel, err)
	}

	out := make(chan storage.ActiveChildChange)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change storage.ActiveChildChange
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					continue
				}
				if change.Origin == s.origin {
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
