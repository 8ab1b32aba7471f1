package articles

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
)

// Worker processes article queue messages: fetch, extract, fingerprint,
// dedup, persist. The handler is idempotent because deliveries are
// at-least-once: a redelivered message re-derives the same fingerprint
// and the dedup decision converges on the same ledger state.
type Worker struct {
	storage   interfaces.StorageManager
	evaluator interfaces.RecipeEvaluator
	logger    arbor.ILogger
}

// NewWorker creates an article worker
func NewWorker(storage interfaces.StorageManager, evaluator interfaces.RecipeEvaluator, logger arbor.ILogger) *Worker {
	return &Worker{
		storage:   storage,
		evaluator: evaluator,
		logger:    logger,
	}
}

// Handle processes one article queue delivery
func (w *Worker) Handle(ctx context.Context, delivery *queue.Delivery) error {
	payload, err := models.ArticlePayloadFromJSON(delivery.Body)
	if err != nil {
		return models.NewValidationError(fmt.Errorf("decode article payload: %w", err))
	}
	if payload.URL == "" || payload.JobID == "" {
		return models.NewValidationError(fmt.Errorf("article payload missing url or job id"))
	}

	// Cancellation checkpoint: a run cancelled after fan-out leaves its
	// article messages behind; drop them instead of archiving for a
	// dead run.
	job, err := w.storage.JobStorage().GetJob(ctx, payload.JobID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.NewValidationError(fmt.Errorf("article references unknown job %s", payload.JobID))
		}
		return err
	}
	if job.Status == models.JobStatusCancelled {
		w.logger.Debug().
			Str("job_id", payload.JobID).
			Str("url", payload.URL).
			Msg("Skipping article for cancelled job")
		return nil
	}

	recipe := payload.Recipe
	if recipe == nil {
		recipe = &models.Recipe{}
	}

	extracted, err := w.evaluator.ExtractArticle(ctx, payload.URL, recipe)
	if err != nil {
		return err
	}

	fingerprint := Fingerprint(extracted.Content)

	existing, err := w.storage.ArticleStorage().FindArticleByURL(ctx, payload.URL)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}

	outcome := Decide(existing, fingerprint)
	now := time.Now()

	switch outcome {
	case OutcomeUnchanged:
		existing.ArchivedAt = now
		if err := w.storage.ArticleStorage().SaveArticle(ctx, existing); err != nil {
			return err
		}

	case OutcomeNew, OutcomeUpdated:
		// Blob before ledger row: a crash in between leaves an orphan
		// blob, never a ledger hash with no content behind it.
		if err := w.storage.BlobStorage().Put(ctx, fingerprint, []byte(extracted.Content)); err != nil {
			return err
		}

		article := existing
		if article == nil {
			article = &models.Article{
				ID:       common.NewArticleID(),
				SourceID: payload.SourceID,
				URL:      payload.URL,
				Version:  0,
			}
		}
		article.Title = extracted.Title
		article.Content = extracted.Content
		article.Author = extracted.Author
		article.PublishedAt = extracted.PublishedAt
		article.Metadata = extracted.Metadata
		article.ContentHash = fingerprint
		article.Version++
		article.ArchivedAt = now

		if err := w.storage.ArticleStorage().SaveArticle(ctx, article); err != nil {
			return err
		}

		if outcome == OutcomeNew {
			if err := w.storage.JobStorage().AddArticlesNew(ctx, payload.JobID, 1); err != nil {
				return err
			}
		}
	}

	w.logger.Info().
		Str("job_id", payload.JobID).
		Str("url", payload.URL).
		Str("outcome", string(outcome)).
		Str("fingerprint", fingerprint[:12]).
		Msg("Article processed")

	return nil
}

// OnTerminal records a permanently failed article against its owning
// run. Article failures never change the run's status: a run that
// fanned out successfully completes even when some articles are lost.
func (w *Worker) OnTerminal(ctx context.Context, delivery *queue.Delivery, failure error) {
	payload, err := models.ArticlePayloadFromJSON(delivery.Body)
	if err != nil || payload.JobID == "" {
		w.logger.Warn().
			Err(failure).
			Str("message_id", delivery.ID).
			Msg("Article failed terminally with undecodable payload")
		return
	}

	msg := fmt.Sprintf("article %s: %v", payload.URL, failure)
	if err := w.storage.JobStorage().AppendError(ctx, payload.JobID, msg); err != nil {
		w.logger.Warn().
			Err(err).
			Str("job_id", payload.JobID).
			Msg("Failed to record article failure on job")
	}

	w.logger.Warn().
		Err(failure).
		Str("job_id", payload.JobID).
		Str("url", payload.URL).
		Str("kind", string(models.KindOf(failure))).
		Msg("Article failed terminally")
}
