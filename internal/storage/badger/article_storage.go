package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/NickHafner/scraper/internal/interfaces"
	"github.com/NickHafner/scraper/internal/models"
)

// ArticleStorage implements the ArticleStorage interface for Badger.
// The URL unique index enforces the one-row-per-URL invariant.
type ArticleStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewArticleStorage creates a new ArticleStorage instance
func NewArticleStorage(db *BadgerDB, logger arbor.ILogger) *ArticleStorage {
	return &ArticleStorage{db: db, logger: logger}
}

func (s *ArticleStorage) SaveArticle(ctx context.Context, article *models.Article) error {
	if article.ID == "" {
		return fmt.Errorf("article ID is required")
	}
	if article.URL == "" {
		return fmt.Errorf("article URL is required")
	}
	article.UpdatedAt = time.Now()
	if article.CreatedAt.IsZero() {
		article.CreatedAt = article.UpdatedAt
	}
	if err := s.db.Store().Upsert(article.ID, article); err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to save article: %w", err))
	}
	return nil
}

func (s *ArticleStorage) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	var article models.Article
	if err := s.db.Store().Get(id, &article); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("article %s: %w", id, models.ErrNotFound)
		}
		return nil, models.NewPersistenceError(fmt.Errorf("failed to get article: %w", err))
	}
	return &article, nil
}

func (s *ArticleStorage) FindArticleByURL(ctx context.Context, url string) (*models.Article, error) {
	var articles []models.Article
	if err := s.db.Store().Find(&articles, badgerhold.Where("URL").Eq(url).Index("URL")); err != nil {
		return nil, models.NewPersistenceError(fmt.Errorf("failed to find article by url: %w", err))
	}
	if len(articles) == 0 {
		return nil, fmt.Errorf("article url %s: %w", url, models.ErrNotFound)
	}
	return &articles[0], nil
}

func (s *ArticleStorage) ListArticlesBySource(ctx context.Context, sourceID string, limit, offset int) ([]*models.Article, error) {
	query := badgerhold.Where("SourceID").Eq(sourceID).SortBy("ArchivedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Skip(offset)
	}
	var articles []models.Article
	if err := s.db.Store().Find(&articles, query); err != nil {
		return nil, models.NewPersistenceError(fmt.Errorf("failed to list articles: %w", err))
	}
	result := make([]*models.Article, len(articles))
	for i := range articles {
		result[i] = &articles[i]
	}
	return result, nil
}

func (s *ArticleStorage) CountArticles(ctx context.Context, sourceID string) (int, error) {
	count, err := s.db.Store().Count(&models.Article{}, badgerhold.Where("SourceID").Eq(sourceID))
	if err != nil {
		return 0, models.NewPersistenceError(fmt.Errorf("failed to count articles: %w", err))
	}
	return int(count), nil
}

var _ interfaces.ArticleStorage = (*ArticleStorage)(nil)
