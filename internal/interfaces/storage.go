package interfaces

import (
	"context"
	"time"

	"github.com/NickHafner/scraper/internal/models"
)

// SourceStorage persists crawl targets. Sources are owned by the
// management layer; the core reads them and advances run bookkeeping.
type SourceStorage interface {
	SaveSource(ctx context.Context, source *models.Source) error
	GetSource(ctx context.Context, id string) (*models.Source, error)
	ListSources(ctx context.Context) ([]*models.Source, error)
	// FindDueActiveSources returns active sources whose schedule has
	// fired since their last run. Sources with unparsable schedules are
	// skipped, not fatal.
	FindDueActiveSources(ctx context.Context, now time.Time) ([]*models.Source, error)
	UpdateLastRun(ctx context.Context, id string, lastRun time.Time) error
	SetStatus(ctx context.Context, id string, status models.SourceStatus) error
	// RecordJobOutcome bumps or resets the consecutive failure counter
	// and returns the updated count.
	RecordJobOutcome(ctx context.Context, id string, failed bool) (int, error)
	// DeleteSource removes the source and cascades to its jobs and articles.
	DeleteSource(ctx context.Context, id string) error
}

// RecipeStorage persists extraction recipes
type RecipeStorage interface {
	SaveRecipe(ctx context.Context, recipe *models.Recipe) error
	GetRecipe(ctx context.Context, id string) (*models.Recipe, error)
	// DeleteRecipe removes the recipe and nulls the reference on any
	// source that pointed at it.
	DeleteRecipe(ctx context.Context, id string) error
}

// JobStorage is the job ledger: the single source of truth for job
// status. Transitions are validated against the lifecycle state machine.
type JobStorage interface {
	// CreateJob inserts a new pending job for the source and returns it.
	CreateJob(ctx context.Context, sourceID string) (*models.Job, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	// Transition atomically moves the job to the new status, applying
	// the optional mutation while the row is held. Invalid transitions
	// return models.ErrInvalidTransition.
	Transition(ctx context.Context, id string, next models.JobStatus, mutate func(*models.Job)) (*models.Job, error)
	// SetQueueID records the queue-native message identifier
	SetQueueID(ctx context.Context, id, queueID string) error
	// HasActiveJob reports whether the source already has a pending or
	// running job (the scheduler's overlap guard).
	HasActiveJob(ctx context.Context, sourceID string) (bool, error)
	// AddArticlesNew increments the aggregate new-article counter
	AddArticlesNew(ctx context.Context, id string, delta int) error
	// AppendError attaches an article-level failure to the owning run
	// without changing the run's status.
	AppendError(ctx context.Context, id string, msg string) error
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.Job, error)
}

// JobListOptions filters and pages job listings
type JobListOptions struct {
	SourceID string
	Status   models.JobStatus
	Limit    int
	Offset   int
}

// ArticleStorage persists archived articles keyed by canonical URL
type ArticleStorage interface {
	SaveArticle(ctx context.Context, article *models.Article) error
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	// FindArticleByURL returns nil, models.ErrNotFound when no article
	// exists for the URL.
	FindArticleByURL(ctx context.Context, url string) (*models.Article, error)
	ListArticlesBySource(ctx context.Context, sourceID string, limit, offset int) ([]*models.Article, error)
	CountArticles(ctx context.Context, sourceID string) (int, error)
}

// TagStorage persists tags and article-tag membership
type TagStorage interface {
	SaveTag(ctx context.Context, tag *models.Tag) error
	GetTag(ctx context.Context, id string) (*models.Tag, error)
	ListTags(ctx context.Context) ([]*models.Tag, error)
	// DeleteTag removes the tag and all article memberships referencing it.
	DeleteTag(ctx context.Context, id string) error
	// TagArticle is idempotent: tagging an already-tagged article is a no-op.
	TagArticle(ctx context.Context, articleID, tagID string) error
	UntagArticle(ctx context.Context, articleID, tagID string) error
	ListArticleTags(ctx context.Context, articleID string) ([]*models.Tag, error)
}

// CollectionStorage persists ordered article collections
type CollectionStorage interface {
	SaveCollection(ctx context.Context, collection *models.Collection) error
	GetCollection(ctx context.Context, id string) (*models.Collection, error)
	ListCollections(ctx context.Context) ([]*models.Collection, error)
	// DeleteCollection removes the collection and its memberships; the
	// articles themselves are untouched.
	DeleteCollection(ctx context.Context, id string) error
	// AddArticle places the article at the given position; members at or
	// after that slot shift up. Position <= 0 appends after the current
	// maximum. Re-adding moves the article instead of duplicating it.
	AddArticle(ctx context.Context, collectionID, articleID string, position int) error
	RemoveArticle(ctx context.Context, collectionID, articleID string) error
	// ListArticleIDs returns member article ids ordered by position.
	ListArticleIDs(ctx context.Context, collectionID string) ([]string, error)
}

// BlobStorage is content-addressable storage for article content,
// keyed by content fingerprint. Put is idempotent: at most one entry
// exists per distinct fingerprint, and entries are never overwritten,
// so every historical version stays retrievable by its own hash.
type BlobStorage interface {
	Put(ctx context.Context, fingerprint string, content []byte) error
	Get(ctx context.Context, fingerprint string) ([]byte, error)
	Has(ctx context.Context, fingerprint string) (bool, error)
}

// StorageManager bundles the storage interfaces behind one lifecycle
type StorageManager interface {
	SourceStorage() SourceStorage
	RecipeStorage() RecipeStorage
	JobStorage() JobStorage
	ArticleStorage() ArticleStorage
	TagStorage() TagStorage
	CollectionStorage() CollectionStorage
	BlobStorage() BlobStorage
	Close() error
}
