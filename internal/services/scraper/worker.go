package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/NickHafner/scraper/internal/interfaces"
	"github.com/NickHafner/scraper/internal/models"
	"github.com/NickHafner/scraper/internal/queue"
)

// Worker processes scrape queue messages: it walks a source's listing
// pages, filters discovered links, and fans out one article message per
// surviving link. Job status lives in the ledger; the worker moves the
// run pending -> running -> completed/failed and re-reads the ledger
// between pages so a cancellation lands at the next page boundary.
type Worker struct {
	storage         interfaces.StorageManager
	evaluator       interfaces.RecipeEvaluator
	articleQueue    interfaces.Queue
	defaultMaxPages int
	// failureThreshold is the consecutive-failure count at which a
	// source is flipped to error status
	failureThreshold int
	logger           arbor.ILogger
}

// NewWorker creates a scrape worker
func NewWorker(storage interfaces.StorageManager, evaluator interfaces.RecipeEvaluator, articleQueue interfaces.Queue, defaultMaxPages, failureThreshold int, logger arbor.ILogger) *Worker {
	if defaultMaxPages <= 0 {
		defaultMaxPages = 10
	}
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	return &Worker{
		storage:          storage,
		evaluator:        evaluator,
		articleQueue:     articleQueue,
		defaultMaxPages:  defaultMaxPages,
		failureThreshold: failureThreshold,
		logger:           logger,
	}
}

// Handle processes one scrape queue delivery
func (w *Worker) Handle(ctx context.Context, delivery *queue.Delivery) error {
	payload, err := models.ScrapePayloadFromJSON(delivery.Body)
	if err != nil {
		return models.NewValidationError(fmt.Errorf("decode scrape payload: %w", err))
	}
	if payload.JobID == "" || payload.SourceID == "" {
		return models.NewValidationError(fmt.Errorf("scrape payload missing job or source id"))
	}

	job, err := w.storage.JobStorage().GetJob(ctx, payload.JobID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.NewValidationError(fmt.Errorf("scrape references unknown job %s", payload.JobID))
		}
		return err
	}
	if job.Status.IsTerminal() {
		// Cancelled before pickup, or a redelivery of a finished run
		w.logger.Debug().
			Str("job_id", job.ID).
			Str("status", string(job.Status)).
			Msg("Skipping scrape for terminal job")
		return nil
	}

	if job.Status == models.JobStatusPending {
		if _, err := w.storage.JobStorage().Transition(ctx, job.ID, models.JobStatusRunning, nil); err != nil {
			if errors.Is(err, models.ErrInvalidTransition) {
				// Lost the race with a cancellation
				return nil
			}
			return err
		}
	}

	source, err := w.storage.SourceStorage().GetSource(ctx, payload.SourceID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.NewValidationError(fmt.Errorf("scrape references unknown source %s", payload.SourceID))
		}
		return err
	}

	recipe, err := w.resolveRecipe(ctx, payload)
	if err != nil {
		return err
	}

	filter, err := NewLinkFilter(recipe.Filters)
	if err != nil {
		return err
	}

	maxPages := recipe.EffectiveMaxPages(w.defaultMaxPages)
	if payload.MaxPages > 0 {
		maxPages = payload.MaxPages
	}

	found, err := w.walkPages(ctx, job.ID, source, recipe, filter, maxPages, payload)
	if err != nil {
		return err
	}
	if found < 0 {
		// Cancelled mid-walk
		return nil
	}

	if _, err := w.storage.JobStorage().Transition(ctx, job.ID, models.JobStatusCompleted, func(j *models.Job) {
		j.ArticlesFound = found
	}); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			return nil
		}
		return err
	}

	if _, err := w.storage.SourceStorage().RecordJobOutcome(ctx, source.ID, false); err != nil {
		w.logger.Warn().Err(err).Str("source_id", source.ID).Msg("Failed to reset failure counter")
	}

	w.logger.Info().
		Str("job_id", job.ID).
		Str("source_id", source.ID).
		Int("articles_found", found).
		Msg("Scrape completed")

	return nil
}

// walkPages iterates listing pages and fans out article messages.
// Returns the number of articles enqueued, or -1 when the run was
// cancelled between pages.
func (w *Worker) walkPages(ctx context.Context, jobID string, source *models.Source, recipe *models.Recipe, filter *LinkFilter, maxPages int, payload *models.ScrapePayload) (int, error) {
	pageURL := source.URL
	seen := make(map[string]bool)
	found := 0

	for page := 1; page <= maxPages; page++ {
		current, err := w.storage.JobStorage().GetJob(ctx, jobID)
		if err != nil {
			return 0, err
		}
		if current.Status == models.JobStatusCancelled {
			w.logger.Info().
				Str("job_id", jobID).
				Int("page", page).
				Msg("Scrape cancelled mid-run")
			return -1, nil
		}

		links, discoveredNext, err := w.evaluator.ListArticleLinks(ctx, pageURL, recipe, page)
		if err != nil {
			return 0, err
		}
		if len(links) == 0 {
			break
		}

		for _, link := range links {
			if seen[link] || !filter.Allow(link) {
				continue
			}
			seen[link] = true

			articlePayload := &models.ArticlePayload{
				URL:      link,
				SourceID: source.ID,
				RecipeID: payload.RecipeID,
				JobID:    jobID,
				Recipe:   recipe,
			}
			body, err := articlePayload.ToJSON()
			if err != nil {
				return 0, models.NewValidationError(fmt.Errorf("encode article payload: %w", err))
			}
			if _, err := w.articleQueue.Enqueue(ctx, body, nil); err != nil {
				return 0, models.NewPersistenceError(fmt.Errorf("enqueue article %s: %w", link, err))
			}
			found++
		}

		next := NextPageURL(recipe, discoveredNext, page+1)
		if next == "" || next == pageURL {
			break
		}
		pageURL = next
	}

	return found, nil
}

// resolveRecipe prefers the snapshot embedded in the payload, falls
// back to a stored recipe reference, and defaults to heuristics-only
// extraction when the source has no recipe at all.
func (w *Worker) resolveRecipe(ctx context.Context, payload *models.ScrapePayload) (*models.Recipe, error) {
	if payload.Recipe != nil {
		return payload.Recipe, nil
	}
	if payload.RecipeID != "" {
		recipe, err := w.storage.RecipeStorage().GetRecipe(ctx, payload.RecipeID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, models.NewValidationError(fmt.Errorf("scrape references unknown recipe %s", payload.RecipeID))
			}
			return nil, err
		}
		return recipe, nil
	}
	return &models.Recipe{}, nil
}

// OnTerminal marks a run failed once its message will never be
// delivered again, and escalates the source to error status when
// consecutive failures cross the threshold.
func (w *Worker) OnTerminal(ctx context.Context, delivery *queue.Delivery, failure error) {
	payload, err := models.ScrapePayloadFromJSON(delivery.Body)
	if err != nil || payload.JobID == "" {
		w.logger.Warn().
			Err(failure).
			Str("message_id", delivery.ID).
			Msg("Scrape failed terminally with undecodable payload")
		return
	}

	job, err := w.storage.JobStorage().GetJob(ctx, payload.JobID)
	if err != nil {
		w.logger.Warn().Err(err).Str("job_id", payload.JobID).Msg("Failed to load job for terminal failure")
		return
	}
	if job.Status.IsTerminal() {
		return
	}

	// A delivery can die before the handler ever moved the job out of
	// pending; route through running so the state machine stays honest.
	if job.Status == models.JobStatusPending {
		if _, err := w.storage.JobStorage().Transition(ctx, job.ID, models.JobStatusRunning, nil); err != nil {
			w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to move job to running for terminal failure")
			return
		}
	}
	if _, err := w.storage.JobStorage().Transition(ctx, job.ID, models.JobStatusFailed, func(j *models.Job) {
		j.Error = failure.Error()
	}); err != nil {
		w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to mark job failed")
		return
	}

	failures, err := w.storage.SourceStorage().RecordJobOutcome(ctx, payload.SourceID, true)
	if err != nil {
		w.logger.Warn().Err(err).Str("source_id", payload.SourceID).Msg("Failed to record job failure")
		return
	}

	w.logger.Warn().
		Err(failure).
		Str("job_id", job.ID).
		Str("source_id", payload.SourceID).
		Int("consecutive_failures", failures).
		Msg("Scrape failed terminally")

	if failures >= w.failureThreshold {
		if err := w.storage.SourceStorage().SetStatus(ctx, payload.SourceID, models.SourceStatusError); err != nil {
			w.logger.Warn().Err(err).Str("source_id", payload.SourceID).Msg("Failed to set source error status")
			return
		}
		w.logger.Error().
			Str("source_id", payload.SourceID).
			Int("consecutive_failures", failures).
			Int("threshold", w.failureThreshold).
			Msg("Source disabled after repeated failures")
	}
}
