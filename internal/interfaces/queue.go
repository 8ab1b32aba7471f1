package interfaces

import (
	"context"
	"time"
)

// EnqueueOptions tunes delivery for a single message
type EnqueueOptions struct {
	// Delay postpones first visibility
	Delay time.Duration
}

// QueueStats reports operational health for one queue
type QueueStats struct {
	Name      string `json:"name"`
	Ready     int    `json:"ready"`
	InFlight  int    `json:"in_flight"`
	Delayed   int    `json:"delayed"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}

// Queue is a durable, ordered work channel with retry/backoff and
// visibility semantics. Delivery is at-least-once: handlers must be
// idempotent because a message consumed by a crashed worker reappears
// after its visibility window.
type Queue interface {
	// Enqueue adds a message and returns its queue-native identifier
	Enqueue(ctx context.Context, body []byte, opts *EnqueueOptions) (string, error)
	// Cancel removes a not-yet-consumed message, best-effort. Cancelling
	// an in-flight or already-finished message is a no-op.
	Cancel(ctx context.Context, messageID string) error
	// Depth returns the number of ready messages
	Depth(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*QueueStats, error)
	Close() error
}
