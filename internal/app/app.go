package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/NickHafner/scraper/internal/common"
	"github.com/NickHafner/scraper/internal/interfaces"
	"github.com/NickHafner/scraper/internal/models"
	"github.com/NickHafner/scraper/internal/queue"
	"github.com/NickHafner/scraper/internal/services/articles"
	"github.com/NickHafner/scraper/internal/services/evaluator"
	"github.com/NickHafner/scraper/internal/services/scheduler"
	"github.com/NickHafner/scraper/internal/services/scraper"
	"github.com/NickHafner/scraper/internal/services/sources"
	badgerstore "github.com/NickHafner/scraper/internal/storage/badger"
)

// stopGrace bounds how long Stop waits for in-flight work. Unfinished
// messages reappear after their visibility timeout.
const stopGrace = 30 * time.Second

// App wires the pipeline together: storage, the two queues, their
// worker pools, and the scheduler.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager *badgerstore.Manager

	ScrapeQueue  *queue.Manager
	ArticleQueue *queue.Manager

	Evaluator     interfaces.RecipeEvaluator
	SourceService *sources.Service
	Library       *articles.Library
	Scheduler     *scheduler.Service

	scrapePool  *queue.WorkerPool
	articlePool *queue.WorkerPool
}

// New builds the application from configuration. Nothing starts
// running until Start.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	storageManager, err := badgerstore.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db := storageManager.Badger()
	scrapeQueue, err := queue.NewManager(db, queue.ConfigFrom(models.QueueScrape, config.Queue.Scrape))
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("init scrape queue: %w", err)
	}
	articleQueue, err := queue.NewManager(db, queue.ConfigFrom(models.QueueArticle, config.Queue.Article))
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("init article queue: %w", err)
	}

	fetcher := evaluator.NewFetcher(config.Fetch, logger)
	eval := evaluator.NewService(fetcher, logger)

	scrapeWorker := scraper.NewWorker(
		storageManager,
		eval,
		articleQueue,
		config.Scheduler.DefaultMaxPages,
		config.Scheduler.FailureThreshold,
		logger,
	)
	articleWorker := articles.NewWorker(storageManager, eval, logger)

	app := &App{
		Config:         config,
		Logger:         logger,
		StorageManager: storageManager,
		ScrapeQueue:    scrapeQueue,
		ArticleQueue:   articleQueue,
		Evaluator:      eval,
		SourceService:  sources.NewService(storageManager, logger),
		Library:        articles.NewLibrary(storageManager, logger),
		Scheduler: scheduler.NewService(
			storageManager,
			scrapeQueue,
			common.Duration(config.Scheduler.Tick, 60*time.Second),
			config.Scheduler.DefaultMaxPages,
			logger,
		),
		scrapePool:  queue.NewWorkerPool(scrapeQueue, scrapeWorker.Handle, scrapeWorker.OnTerminal, logger),
		articlePool: queue.NewWorkerPool(articleQueue, articleWorker.Handle, articleWorker.OnTerminal, logger),
	}
	return app, nil
}

// Start loads source definitions and brings the pipeline up: article
// workers first so fan-out from scrape workers always has a consumer,
// scheduler last so no job is created before its workers exist.
func (a *App) Start(ctx context.Context) error {
	if a.Config.Sources.Dir != "" {
		if _, err := a.SourceService.LoadDirectory(ctx, a.Config.Sources.Dir); err != nil {
			return fmt.Errorf("load source definitions: %w", err)
		}
	}

	a.articlePool.Start()
	a.scrapePool.Start()

	if a.Config.Scheduler.Enabled {
		if err := a.Scheduler.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	} else {
		a.Logger.Info().Msg("Scheduler disabled by configuration")
	}

	a.Logger.Info().
		Str("environment", a.Config.Environment).
		Msg("Application started")
	return nil
}

// Stop shuts down in reverse order: scheduler first so no new jobs
// enter, then the pools, then storage.
func (a *App) Stop() {
	a.Scheduler.Stop()
	a.scrapePool.Stop(stopGrace)
	a.articlePool.Stop(stopGrace)

	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Error closing storage")
	}

	a.Logger.Info().Msg("Application stopped")
}

// CancelJob cancels a run. The ledger transition is the authoritative
// cancel: workers notice it at their next checkpoint. The queue cancel
// is a best-effort fast path for messages not yet picked up.
func (a *App) CancelJob(ctx context.Context, jobID string) error {
	job, err := a.StorageManager.JobStorage().Transition(ctx, jobID, models.JobStatusCancelled, nil)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			return fmt.Errorf("job %s is already finished: %w", jobID, err)
		}
		return err
	}

	if job.QueueID != "" {
		if err := a.ScrapeQueue.Cancel(ctx, job.QueueID); err != nil {
			a.Logger.Debug().
				Err(err).
				Str("job_id", jobID).
				Str("queue_id", job.QueueID).
				Msg("Queue cancel was a no-op, worker will notice the ledger")
		}
	}

	a.Logger.Info().Str("job_id", jobID).Msg("Job cancelled")
	return nil
}

// QueueStats reports operational counters for both queues
func (a *App) QueueStats(ctx context.Context) ([]*interfaces.QueueStats, error) {
	scrapeStats, err := a.ScrapeQueue.Stats(ctx)
	if err != nil {
		return nil, err
	}
	articleStats, err := a.ArticleQueue.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return []*interfaces.QueueStats{scrapeStats, articleStats}, nil
}
