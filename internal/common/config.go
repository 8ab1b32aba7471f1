package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Storage     StorageConfig   `toml:"storage"`
	Queue       QueuesConfig    `toml:"queue"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Fetch       FetchConfig     `toml:"fetch"`
	Sources     SourcesConfig   `toml:"sources"`
	Logging     LoggingConfig   `toml:"logging"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// QueueConfig holds the retry and concurrency settings for one queue.
// Retry and backoff are configuration, not code branches.
type QueueConfig struct {
	Concurrency       int    `toml:"concurrency"`        // Number of concurrent workers
	MaxAttempts       int    `toml:"max_attempts"`       // Delivery attempts before terminal failure
	BackoffBase       string `toml:"backoff_base"`       // Base delay for exponential backoff, e.g. "5s"
	PollInterval      string `toml:"poll_interval"`      // How often idle workers poll for messages
	VisibilityTimeout string `toml:"visibility_timeout"` // Redelivery window for in-flight messages
	KeepCompleted     int    `toml:"keep_completed"`     // Completed entries retained for inspection
	KeepFailed        int    `toml:"keep_failed"`        // Failed entries retained for inspection
}

// QueuesConfig holds per-queue configuration for the two work channels
type QueuesConfig struct {
	Scrape  QueueConfig `toml:"scrape"`
	Article QueueConfig `toml:"article"`
}

type SchedulerConfig struct {
	Enabled bool   `toml:"enabled"`
	Tick    string `toml:"tick"` // Interval between schedule evaluations, e.g. "60s"
	// FailureThreshold is the number of consecutive failed scrape jobs
	// after which a source is flipped to error status
	FailureThreshold int `toml:"failure_threshold"`
	// DefaultMaxPages bounds pagination when a recipe does not set its own
	DefaultMaxPages int `toml:"default_max_pages"`
}

// FetchConfig controls the article fetch HTTP client
type FetchConfig struct {
	UserAgent         string `toml:"user_agent"`
	Timeout           string `toml:"timeout"`             // Per-request timeout, e.g. "30s"
	RequestsPerSecond int    `toml:"requests_per_second"` // Rate limit across fetches
	MaxBodySize       int64  `toml:"max_body_size"`       // Response body cap in bytes
}

// SourcesConfig points at the directory of source/recipe definition files
type SourcesConfig struct {
	Dir string `toml:"dir"` // Directory containing source definition files (TOML)
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig returns the built-in defaults. Backoff bases mirror
// the queue defaults this service has always shipped with: 5s for
// scrape, 2s for article.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/scraper",
			},
		},
		Queue: QueuesConfig{
			Scrape: QueueConfig{
				Concurrency:       2,
				MaxAttempts:       3,
				BackoffBase:       "5s",
				PollInterval:      "1s",
				VisibilityTimeout: "5m",
				KeepCompleted:     100,
				KeepFailed:        500,
			},
			Article: QueueConfig{
				Concurrency:       5,
				MaxAttempts:       3,
				BackoffBase:       "2s",
				PollInterval:      "1s",
				VisibilityTimeout: "5m",
				KeepCompleted:     1000,
				KeepFailed:        500,
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			Tick:             "60s",
			FailureThreshold: 3,
			DefaultMaxPages:  10,
		},
		Fetch: FetchConfig{
			UserAgent:         "scraper/" + Version,
			Timeout:           "30s",
			RequestsPerSecond: 4,
			MaxBodySize:       10 * 1024 * 1024,
		},
		Sources: SourcesConfig{
			Dir: "./sources",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> files in
// order (later overrides earlier) -> environment variables.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SCRAPER_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if path := os.Getenv("SCRAPER_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}

	if tick := os.Getenv("SCRAPER_SCHEDULER_TICK"); tick != "" {
		if _, err := time.ParseDuration(tick); err == nil {
			config.Scheduler.Tick = tick
		}
	}
	if threshold := os.Getenv("SCRAPER_SCHEDULER_FAILURE_THRESHOLD"); threshold != "" {
		if n, err := strconv.Atoi(threshold); err == nil && n > 0 {
			config.Scheduler.FailureThreshold = n
		}
	}

	if c := os.Getenv("SCRAPER_QUEUE_SCRAPE_CONCURRENCY"); c != "" {
		if n, err := strconv.Atoi(c); err == nil && n > 0 {
			config.Queue.Scrape.Concurrency = n
		}
	}
	if c := os.Getenv("SCRAPER_QUEUE_ARTICLE_CONCURRENCY"); c != "" {
		if n, err := strconv.Atoi(c); err == nil && n > 0 {
			config.Queue.Article.Concurrency = n
		}
	}

	if dir := os.Getenv("SCRAPER_SOURCES_DIR"); dir != "" {
		config.Sources.Dir = dir
	}

	if level := os.Getenv("SCRAPER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// Duration parses a duration string with a fallback for empty or invalid values
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
