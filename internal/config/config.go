package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
	Report  ReportConfig  `mapstructure:"report"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	HTTPPort    int    `mapstructure:"http_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines the Redis connection used for activity logs, settings and limits
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ReportConfig defines how usage reports are computed
type ReportConfig struct {
	DefaultLimitMinutes int      `mapstructure:"default_limit_minutes"`
	DebounceWindow      string   `mapstructure:"debounce_window"`     // blocked events closer than this collapse into one attempt
	MinRowSeconds       int64    `mapstructure:"min_row_seconds"`     // per-domain rows below this are hidden
	FetchTimeout        string   `mapstructure:"fetch_timeout"`       // bound on each data-source lookup
	GenerationTimeout   string   `mapstructure:"generation_timeout"`  // bound on a whole report generation
	DailyResetTime      string   `mapstructure:"daily_reset_time"`    // "HH:MM" local time the reporting day starts
	IgnoreSuffixes      []string `mapstructure:"ignore_suffixes"`     // infrastructure domains hidden from per-site rows
	NormalizerCacheSize int      `mapstructure:"normalizer_cache_size"`
}

// DefaultIgnoreSuffixes lists CDN and cloud infrastructure domains excluded from per-site reporting.
var DefaultIgnoreSuffixes = []string{
	"supabase.co",
	"googleapis.com",
	"gstatic.com",
	"gvt2.com",
	"googleusercontent.com",
	"fbcdn.net",
	"doubleclick.net",
	"cloudflare.com",
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// A .env file is optional; real environment variables take precedence.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("KREPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9090)

	// Storage defaults
	v.SetDefault("storage.type", "redis")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Report defaults
	v.SetDefault("report.default_limit_minutes", 120)
	v.SetDefault("report.debounce_window", "60s")
	v.SetDefault("report.min_row_seconds", 5)
	v.SetDefault("report.fetch_timeout", "5s")
	v.SetDefault("report.generation_timeout", "30s")
	v.SetDefault("report.daily_reset_time", "00:00")
	v.SetDefault("report.ignore_suffixes", DefaultIgnoreSuffixes)
	v.SetDefault("report.normalizer_cache_size", 4096)
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "redis"
	}
	if cfg.Storage.Redis.Host == "" {
		return fmt.Errorf("storage.redis.host is required")
	}

	if cfg.Report.DefaultLimitMinutes <= 0 {
		return fmt.Errorf("report.default_limit_minutes must be positive, got %d", cfg.Report.DefaultLimitMinutes)
	}
	if cfg.Report.MinRowSeconds < 0 {
		return fmt.Errorf("report.min_row_seconds must not be negative, got %d", cfg.Report.MinRowSeconds)
	}
	if cfg.Report.NormalizerCacheSize <= 0 {
		return fmt.Errorf("report.normalizer_cache_size must be positive, got %d", cfg.Report.NormalizerCacheSize)
	}

	for key, value := range map[string]string{
		"report.debounce_window":    cfg.Report.DebounceWindow,
		"report.fetch_timeout":      cfg.Report.FetchTimeout,
		"report.generation_timeout": cfg.Report.GenerationTimeout,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, value)
		}
	}

	if _, err := time.Parse("15:04", cfg.Report.DailyResetTime); err != nil {
		return fmt.Errorf("invalid report.daily_reset_time %q (want HH:MM): %w", cfg.Report.DailyResetTime, err)
	}

	return nil
}
