package queue

import (
	"time"

	"github.com/NickHafner/scraper/internal/common"
)

// Config holds configuration for one queue manager
type Config struct {
	// QueueName namespaces all keys in Badger
	QueueName string

	// Concurrency is the number of concurrent workers
	Concurrency int

	// MaxAttempts is the number of deliveries before a message is moved
	// to the failed retention ring
	MaxAttempts int

	// BackoffBase is the base delay for exponential retry backoff:
	// base * 2^(attempt-1)
	BackoffBase time.Duration

	// PollInterval is how often idle workers poll for messages
	PollInterval time.Duration

	// VisibilityTimeout is the redelivery window for in-flight messages
	VisibilityTimeout time.Duration

	// KeepCompleted / KeepFailed bound the retention rings so finished
	// entries cannot grow without limit
	KeepCompleted int
	KeepFailed    int
}

// NewDefaultConfig creates a queue configuration with sensible defaults
func NewDefaultConfig(name string) Config {
	return Config{
		QueueName:         name,
		Concurrency:       2,
		MaxAttempts:       3,
		BackoffBase:       5 * time.Second,
		PollInterval:      time.Second,
		VisibilityTimeout: 5 * time.Minute,
		KeepCompleted:     100,
		KeepFailed:        500,
	}
}

// ConfigFrom builds a queue Config from the application configuration
func ConfigFrom(name string, qc common.QueueConfig) Config {
	cfg := NewDefaultConfig(name)
	if qc.Concurrency > 0 {
		cfg.Concurrency = qc.Concurrency
	}
	if qc.MaxAttempts > 0 {
		cfg.MaxAttempts = qc.MaxAttempts
	}
	cfg.BackoffBase = common.Duration(qc.BackoffBase, cfg.BackoffBase)
	cfg.PollInterval = common.Duration(qc.PollInterval, cfg.PollInterval)
	cfg.VisibilityTimeout = common.Duration(qc.VisibilityTimeout, cfg.VisibilityTimeout)
	if qc.KeepCompleted > 0 {
		cfg.KeepCompleted = qc.KeepCompleted
	}
	if qc.KeepFailed > 0 {
		cfg.KeepFailed = qc.KeepFailed
	}
	return cfg
}
