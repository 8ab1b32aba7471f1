package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/NickHafner/scraper/internal/models"
)

// Handler processes one delivery. Returning nil acks the message.
// A returned error is classified through the models error taxonomy:
// validation errors fail the message terminally, everything else is
// rescheduled with backoff until the attempt budget runs out.
type Handler func(ctx context.Context, delivery *Delivery) error

// TerminalFunc is invoked once when a message will never be delivered
// again, so the owner can record the final failure in the ledger.
type TerminalFunc func(ctx context.Context, delivery *Delivery, failure error)

// WorkerPool runs a fixed number of workers against one queue manager.
// Workers poll independently; the dispatch loop never blocks on worker
// completion.
type WorkerPool struct {
	mgr        *Manager
	handler    Handler
	onTerminal TerminalFunc
	logger     arbor.ILogger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewWorkerPool creates a worker pool for the manager's queue
func NewWorkerPool(mgr *Manager, handler Handler, onTerminal TerminalFunc, logger arbor.ILogger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		mgr:        mgr,
		handler:    handler,
		onTerminal: onTerminal,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the worker goroutines
func (wp *WorkerPool) Start() {
	concurrency := wp.mgr.config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	wp.logger.Info().
		Str("queue", wp.mgr.Name()).
		Int("concurrency", concurrency).
		Msg("Starting worker pool")

	for i := 0; i < concurrency; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop stops accepting new deliveries and waits for in-flight work to
// finish, up to the grace period. Unfinished messages reappear after
// their visibility timeout, so nothing is lost on a hard deadline.
func (wp *WorkerPool) Stop(grace time.Duration) {
	wp.logger.Info().Str("queue", wp.mgr.Name()).Msg("Stopping worker pool")
	wp.cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.logger.Info().Str("queue", wp.mgr.Name()).Msg("Worker pool stopped")
	case <-time.After(grace):
		wp.logger.Warn().
			Str("queue", wp.mgr.Name()).
			Str("grace", grace.String()).
			Msg("Worker pool stop timed out, in-flight messages will be redelivered")
	}
}

// worker is the main worker loop
func (wp *WorkerPool) worker(workerID int) {
	defer wp.wg.Done()

	// Stagger worker starts to reduce contention on the shared DB
	stagger := (wp.mgr.config.PollInterval / time.Duration(wp.mgr.config.Concurrency)) * time.Duration(workerID)
	select {
	case <-wp.ctx.Done():
		return
	case <-time.After(stagger):
	}

	wp.logger.Debug().
		Str("queue", wp.mgr.Name()).
		Int("worker_id", workerID).
		Msg("Worker started")

	ticker := time.NewTicker(wp.mgr.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Str("queue", wp.mgr.Name()).
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return
		case <-ticker.C:
			// Drain ready messages before going back to sleep
			for wp.processOne(workerID) {
				if wp.ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// processOne receives and processes a single message. Returns true if a
// message was handled, false when the queue was empty.
func (wp *WorkerPool) processOne(workerID int) bool {
	delivery, err := wp.mgr.Receive(wp.ctx)
	if err != nil {
		if !errors.Is(err, ErrNoMessage) {
			wp.logger.Warn().
				Err(err).
				Str("queue", wp.mgr.Name()).
				Int("worker_id", workerID).
				Msg("Error receiving message")
		}
		return false
	}

	start := time.Now()
	handlerErr := wp.handler(wp.ctx, delivery)
	duration := time.Since(start)

	if handlerErr == nil {
		if err := delivery.Ack(wp.ctx); err != nil {
			wp.logger.Warn().
				Err(err).
				Str("message_id", delivery.ID).
				Msg("Failed to ack message")
		}
		wp.logger.Debug().
			Str("queue", wp.mgr.Name()).
			Str("message_id", delivery.ID).
			Int("worker_id", workerID).
			Int64("duration_ms", duration.Milliseconds()).
			Msg("Message processed")
		return true
	}

	retryable := models.IsRetryable(handlerErr)
	terminal, failErr := delivery.Fail(wp.ctx, handlerErr, retryable)
	if failErr != nil {
		wp.logger.Error().
			Err(failErr).
			Str("message_id", delivery.ID).
			Msg("Failed to record message failure")
		return true
	}

	wp.logger.Warn().
		Err(handlerErr).
		Str("queue", wp.mgr.Name()).
		Str("message_id", delivery.ID).
		Int("attempt", delivery.Attempt).
		Bool("terminal", terminal).
		Int64("duration_ms", duration.Milliseconds()).
		Msg("Message handler failed")

	if terminal && wp.onTerminal != nil {
		wp.onTerminal(wp.ctx, delivery, handlerErr)
	}
	return true
}
