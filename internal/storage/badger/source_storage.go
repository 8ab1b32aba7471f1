package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/NickHafner/scraper/internal/interfaces"
	"github.com/NickHafner/scraper/internal/models"
)

// SourceStorage implements the SourceStorage interface for Badger
type SourceStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	// mu serializes read-modify-write cycles on source rows so
	// concurrent workers cannot interleave counter updates
	mu sync.Mutex
}

// NewSourceStorage creates a new SourceStorage instance
func NewSourceStorage(db *BadgerDB, logger arbor.ILogger) *SourceStorage {
	return &SourceStorage{db: db, logger: logger}
}

func (s *SourceStorage) SaveSource(ctx context.Context, source *models.Source) error {
	if source.ID == "" {
		return fmt.Errorf("source ID is required")
	}
	if err := source.Validate(); err != nil {
		return models.NewValidationError(err)
	}
	source.UpdatedAt = time.Now()
	if source.CreatedAt.IsZero() {
		source.CreatedAt = source.UpdatedAt
	}
	if source.Status == "" {
		source.Status = models.SourceStatusActive
	}
	if err := s.db.Store().Upsert(source.ID, source); err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to save source: %w", err))
	}
	return nil
}

func (s *SourceStorage) GetSource(ctx context.Context, id string) (*models.Source, error) {
	var source models.Source
	if err := s.db.Store().Get(id, &source); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("source %s: %w", id, models.ErrNotFound)
		}
		return nil, models.NewPersistenceError(fmt.Errorf("failed to get source: %w", err))
	}
	return &source, nil
}

func (s *SourceStorage) ListSources(ctx context.Context) ([]*models.Source, error) {
	var sources []models.Source
	if err := s.db.Store().Find(&sources, badgerhold.Where("ID").Ne("").SortBy("CreatedAt")); err != nil {
		return nil, models.NewPersistenceError(fmt.Errorf("failed to list sources: %w", err))
	}
	result := make([]*models.Source, len(sources))
	for i := range sources {
		result[i] = &sources[i]
	}
	return result, nil
}

// FindDueActiveSources returns active sources whose cron schedule has
// fired since their last run. A source with an unparsable schedule is
// logged and skipped; one bad expression never aborts the sweep.
func (s *SourceStorage) FindDueActiveSources(ctx context.Context, now time.Time) ([]*models.Source, error) {
	var sources []models.Source
	query := badgerhold.Where("Status").Eq(models.SourceStatusActive).And("Schedule").Ne("")
	if err := s.db.Store().Find(&sources, query); err != nil {
		return nil, models.NewPersistenceError(fmt.Errorf("failed to query active sources: %w", err))
	}

	due := make([]*models.Source, 0, len(sources))
	for i := range sources {
		src := &sources[i]
		isDue, err := src.IsDue(now)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("source_id", src.ID).
				Str("schedule", src.Schedule).
				Msg("Skipping source with invalid schedule")
			continue
		}
		if isDue {
			due = append(due, src)
		}
	}
	return due, nil
}

func (s *SourceStorage) UpdateLastRun(ctx context.Context, id string, lastRun time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	source, err := s.GetSource(ctx, id)
	if err != nil {
		return err
	}
	source.LastRun = lastRun
	source.UpdatedAt = time.Now()
	if err := s.db.Store().Update(id, source); err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to update last run: %w", err))
	}
	return nil
}

func (s *SourceStorage) SetStatus(ctx context.Context, id string, status models.SourceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	source, err := s.GetSource(ctx, id)
	if err != nil {
		return err
	}
	source.Status = status
	source.UpdatedAt = time.Now()
	if err := s.db.Store().Update(id, source); err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to set source status: %w", err))
	}
	return nil
}

// RecordJobOutcome bumps the consecutive failure counter on failure and
// resets it on success. Returns the updated count.
func (s *SourceStorage) RecordJobOutcome(ctx context.Context, id string, failed bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	source, err := s.GetSource(ctx, id)
	if err != nil {
		return 0, err
	}
	if failed {
		source.ConsecutiveFailures++
	} else {
		source.ConsecutiveFailures = 0
	}
	source.UpdatedAt = time.Now()
	if err := s.db.Store().Update(id, source); err != nil {
		return 0, models.NewPersistenceError(fmt.Errorf("failed to record job outcome: %w", err))
	}
	return source.ConsecutiveFailures, nil
}

// DeleteSource removes the source and cascades to its jobs and articles
func (s *SourceStorage) DeleteSource(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Store().Delete(id, &models.Source{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return models.NewPersistenceError(fmt.Errorf("failed to delete source: %w", err))
	}
	if err := s.db.Store().DeleteMatching(&models.Job{}, badgerhold.Where("SourceID").Eq(id)); err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to cascade jobs: %w", err))
	}
	if err := s.db.Store().DeleteMatching(&models.Article{}, badgerhold.Where("SourceID").Eq(id)); err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to cascade articles: %w", err))
	}
	return nil
}

var _ interfaces.SourceStorage = (*SourceStorage)(nil)
