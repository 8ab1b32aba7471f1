package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/NickHafner/scraper/internal/interfaces"
	"github.com/NickHafner/scraper/internal/models"
)

// Service owns job creation: every scrape run enters the system here.
// On each tick it collects active sources whose cron schedule has
// fired, skips those with a run still in flight, and enqueues one
// scrape message per remaining source. Dispatch failures are isolated
// per source so one broken source never starves the rest of a tick.
type Service struct {
	storage         interfaces.StorageManager
	scrapeQueue     interfaces.Queue
	tick            time.Duration
	defaultMaxPages int
	logger          arbor.ILogger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewService creates the scheduler
func NewService(storage interfaces.StorageManager, scrapeQueue interfaces.Queue, tick time.Duration, defaultMaxPages int, logger arbor.ILogger) *Service {
	if tick <= 0 {
		tick = 60 * time.Second
	}
	if defaultMaxPages <= 0 {
		defaultMaxPages = 10
	}
	return &Service{
		storage:         storage,
		scrapeQueue:     scrapeQueue,
		tick:            tick,
		defaultMaxPages: defaultMaxPages,
		logger:          logger,
	}
}

// Start launches the tick loop
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx)

	s.logger.Info().
		Str("tick", s.tick.String()).
		Msg("Scheduler started")
	return nil
}

// Stop halts the tick loop and waits for an in-progress tick to finish
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Service) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.RunTick(ctx, now)
		}
	}
}

// RunTick evaluates schedules once. Exposed so tests and the management
// layer can force an evaluation without waiting for the ticker.
func (s *Service) RunTick(ctx context.Context, now time.Time) {
	due, err := s.storage.SourceStorage().FindDueActiveSources(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to find due sources")
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.Debug().Int("due", len(due)).Msg("Schedule tick")

	dispatched := 0
	for _, source := range due {
		if ctx.Err() != nil {
			return
		}
		if err := s.dispatch(ctx, source, now); err != nil {
			s.logger.Warn().
				Err(err).
				Str("source_id", source.ID).
				Str("source_name", source.Name).
				Msg("Failed to dispatch source")
			continue
		}
		dispatched++
	}

	if dispatched > 0 {
		s.logger.Info().
			Int("dispatched", dispatched).
			Int("due", len(due)).
			Msg("Scheduled scrape jobs")
	}
}

// dispatch creates and enqueues one scrape run for a due source
func (s *Service) dispatch(ctx context.Context, source *models.Source, now time.Time) error {
	// Overlap guard: one run per source at a time
	active, err := s.storage.JobStorage().HasActiveJob(ctx, source.ID)
	if err != nil {
		return fmt.Errorf("check active job: %w", err)
	}
	if active {
		s.logger.Debug().
			Str("source_id", source.ID).
			Msg("Skipping source with run already in flight")
		return nil
	}

	recipe, err := s.loadRecipe(ctx, source)
	if err != nil {
		return err
	}

	job, err := s.storage.JobStorage().CreateJob(ctx, source.ID)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	payload := &models.ScrapePayload{
		JobID:    job.ID,
		SourceID: source.ID,
		RecipeID: source.RecipeID,
		MaxPages: s.defaultMaxPages,
		Recipe:   recipe,
	}
	if recipe != nil {
		payload.MaxPages = recipe.EffectiveMaxPages(s.defaultMaxPages)
	}

	body, err := payload.ToJSON()
	if err != nil {
		return fmt.Errorf("encode scrape payload: %w", err)
	}

	queueID, err := s.scrapeQueue.Enqueue(ctx, body, nil)
	if err != nil {
		// Cancel the orphan so the overlap guard does not block the
		// source until someone notices the stuck pending job
		if _, cErr := s.storage.JobStorage().Transition(ctx, job.ID, models.JobStatusCancelled, nil); cErr != nil {
			s.logger.Warn().Err(cErr).Str("job_id", job.ID).Msg("Failed to cancel undispatched job")
		}
		return fmt.Errorf("enqueue scrape: %w", err)
	}
	if err := s.storage.JobStorage().SetQueueID(ctx, job.ID, queueID); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record queue id")
	}

	if err := s.storage.SourceStorage().UpdateLastRun(ctx, source.ID, now); err != nil {
		return fmt.Errorf("update last run: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("source_id", source.ID).
		Str("source_name", source.Name).
		Msg("Dispatched scrape job")

	return nil
}

// loadRecipe snapshots the source's recipe for the payload. A dangling
// recipe reference degrades to heuristics-only extraction rather than
// blocking the run.
func (s *Service) loadRecipe(ctx context.Context, source *models.Source) (*models.Recipe, error) {
	if source.RecipeID == "" {
		return nil, nil
	}
	recipe, err := s.storage.RecipeStorage().GetRecipe(ctx, source.RecipeID)
	if err != nil {
		if models.KindOf(err) == models.ErrorKindPersistence {
			return nil, fmt.Errorf("load recipe %s: %w", source.RecipeID, err)
		}
		s.logger.Warn().
			Str("source_id", source.ID).
			Str("recipe_id", source.RecipeID).
			Msg("Source references missing recipe, using heuristics")
		return nil, nil
	}
	return recipe, nil
}
