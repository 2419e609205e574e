package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/kreport/internal/config"
	"github.com/goodtune/kreport/internal/domain"
	"github.com/goodtune/kreport/internal/limits"
	"github.com/goodtune/kreport/internal/report"
	"github.com/goodtune/kreport/internal/storage/redis"
	"github.com/goodtune/kreport/internal/usage"
)

// components holds the reporting pipeline shared by serve and the CLI commands
type components struct {
	store      *redis.Store
	normalizer *domain.Normalizer
	ignore     *domain.IgnoreList
	resolver   *limits.Resolver
	builder    *report.Builder
	resetTime  usage.ResetTime
}

func buildComponents(cfg *config.Config, logger zerolog.Logger) (*components, error) {
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	normalizer, err := domain.NewNormalizer(cfg.Report.NormalizerCacheSize)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	resetTime, err := usage.ParseResetTime(cfg.Report.DailyResetTime)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	ignore := domain.NewIgnoreList(cfg.Report.IgnoreSuffixes)
	fetchTimeout := parseDuration(cfg.Report.FetchTimeout, 5*time.Second)

	resolver := limits.NewResolver(store.Settings(), store.Limits(), cfg.Report.DefaultLimitMinutes, fetchTimeout, logger)

	pipeline := report.Pipeline{
		Normalize: normalizer.Normalize,
		Aggregator: usage.Aggregator{
			Normalize:  normalizer.Normalize,
			IsIgnored:  ignore.IsIgnored,
			MinSeconds: cfg.Report.MinRowSeconds,
		},
		Clusterer: usage.Clusterer{
			Window: parseDuration(cfg.Report.DebounceWindow, usage.DefaultDebounceWindow),
		},
	}

	builder := report.NewBuilder(store.Activity(), resolver, pipeline, report.BuilderConfig{
		ResetTime:    resetTime,
		FetchTimeout: fetchTimeout,
	}, logger)

	return &components{
		store:      store,
		normalizer: normalizer,
		ignore:     ignore,
		resolver:   resolver,
		builder:    builder,
		resetTime:  resetTime,
	}, nil
}

func openStorage(cfg config.StorageConfig) (*redis.Store, error) {
	storageType := cfg.Type
	if storageType == "" {
		storageType = "redis"
	}

	switch storageType {
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (only 'redis' is supported)", storageType)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
