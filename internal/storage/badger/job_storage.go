package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/NickHafner/scraper/internal/common"
	"github.com/NickHafner/scraper/internal/interfaces"
	"github.com/NickHafner/scraper/internal/models"
)

// JobStorage implements the job ledger for Badger. It is the single
// source of truth for job status: all transitions go through Transition,
// which validates against the lifecycle state machine while the row is
// held under the storage lock.
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) *JobStorage {
	return &JobStorage{db: db, logger: logger}
}

func (s *JobStorage) CreateJob(ctx context.Context, sourceID string) (*models.Job, error) {
	now := time.Now()
	job := &models.Job{
		ID:        common.NewJobID(),
		SourceID:  sourceID,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.Store().Insert(job.ID, job); err != nil {
		return nil, models.NewPersistenceError(fmt.Errorf("failed to create job: %w", err))
	}
	return job, nil
}

func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(id, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
		}
		return nil, models.NewPersistenceError(fmt.Errorf("failed to get job: %w", err))
	}
	return &job, nil
}

// Transition atomically moves the job to the new status. The optional
// mutate callback runs after the status change, while the row is still
// held, so counter snapshots land in the same write. An invalid
// transition is reported to the caller, never silently ignored.
func (s *JobStorage) Transition(ctx context.Context, id string, next models.JobStatus, mutate func(*models.Job)) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := job.Transition(next, time.Now()); err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(job)
	}
	if err := s.db.Store().Update(id, job); err != nil {
		return nil, models.NewPersistenceError(fmt.Errorf("failed to persist job transition: %w", err))
	}
	return job, nil
}

func (s *JobStorage) SetQueueID(ctx context.Context, id, queueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	job.QueueID = queueID
	job.UpdatedAt = time.Now()
	if err := s.db.Store().Update(id, job); err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to set queue id: %w", err))
	}
	return nil
}

// HasActiveJob reports whether the source already has a pending or
// running job. The scheduler uses this to prevent overlap pile-up under
// slow crawls.
func (s *JobStorage) HasActiveJob(ctx context.Context, sourceID string) (bool, error) {
	query := badgerhold.Where("SourceID").Eq(sourceID).
		And("Status").In(models.JobStatusPending, models.JobStatusRunning)
	count, err := s.db.Store().Count(&models.Job{}, query)
	if err != nil {
		return false, models.NewPersistenceError(fmt.Errorf("failed to count active jobs: %w", err))
	}
	return count > 0, nil
}

func (s *JobStorage) AddArticlesNew(ctx context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	job.ArticlesNew += delta
	job.UpdatedAt = time.Now()
	if err := s.db.Store().Update(id, job); err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to update articles_new: %w", err))
	}
	return nil
}

// AppendError attaches an article-level failure message to the owning
// run without changing its status. Messages accumulate newline-separated.
func (s *JobStorage) AppendError(ctx context.Context, id string, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Error == "" {
		job.Error = msg
	} else {
		job.Error = job.Error + "\n" + msg
	}
	job.UpdatedAt = time.Now()
	if err := s.db.Store().Update(id, job); err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to append job error: %w", err))
	}
	return nil
}

func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	query := badgerhold.Where("ID").Ne("")
	if opts != nil {
		if opts.SourceID != "" {
			query = query.And("SourceID").Eq(opts.SourceID)
		}
		if opts.Status != "" {
			query = query.And("Status").Eq(opts.Status)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
	}
	query = query.SortBy("CreatedAt").Reverse()

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, models.NewPersistenceError(fmt.Errorf("failed to list jobs: %w", err))
	}
	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

var _ interfaces.JobStorage = (*JobStorage)(nil)
