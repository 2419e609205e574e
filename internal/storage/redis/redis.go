package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/kreport/internal/config"
	"github.com/goodtune/kreport/internal/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store implements the storage.Store interface using Redis
type Store struct {
	client        *redis.Client
	activityStore *activityStore
	settingsStore *settingsStore
	limitStore    *limitStore
	activeChild   *activeChildStore
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	// Parse timeouts
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Determine address
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	// Create Redis client
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	// Ping to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newStore(client), nil
}

func newStore(client *redis.Client) *Store {
	return &Store{
		client:        client,
		activityStore: &activityStore{client: client, now: time.Now},
		settingsStore: &settingsStore{client: client},
		limitStore:    &limitStore{client: client, now: time.Now},
		activeChild:   &activeChildStore{client: client, origin: uuid.NewString()},
	}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Activity returns the ActivityStore implementation
func (s *Store) Activity() storage.ActivityStore {
	return s.activityStore
}

// Settings returns the SettingsStore implementation
func (s *Store) Settings() storage.SettingsStore {
	return s.settingsStore
}

// Limits returns the LimitStore implementation
func (s *Store) Limits() storage.LimitStore {
	return s.limitStore
}

// ActiveChild returns the ActiveChildStore implementation
func (s *Store) ActiveChild() storage.ActiveChildStore {
	return s.activeChild
}

func activityIndexKey(childID string) string {
	return fmt.Sprintf("kreport:activity:%s", childID)
}

func eventKey(id string) string {
	return fmt.Sprintf("kreport:event:%s", id)
}

func settingsKey(childID string) string {
	return fmt.Sprintf("kreport:settings:%s", childID)
}

func limitsKey(childID string) string {
	return fmt.Sprintf("kreport:limits:%s", childID)
}

const (
	activeChildKey     = "kreport:active_child"
	activeChildChannel = "kreport:active_child:changed"
)
