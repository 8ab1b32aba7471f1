package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/NickHafner/scraper/internal/interfaces"
	"github.com/NickHafner/scraper/internal/models"
)

// TagStorage implements tags and article-tag membership for Badger
type TagStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewTagStorage creates a new TagStorage instance
func NewTagStorage(db *BadgerDB, logger arbor.ILogger) *TagStorage {
	return &TagStorage{db: db, logger: logger}
}

func (s *TagStorage) SaveTag(ctx context.Context, tag *models.Tag) error {
	if tag.ID == "" {
		return fmt.Errorf("tag ID is required")
	}
	if strings.TrimSpace(tag.Name) == "" {
		return models.NewValidationError(fmt.Errorf("tag name is required"))
	}
	tag.UpdatedAt = time.Now()
	if tag.CreatedAt.IsZero() {
		tag.CreatedAt = tag.UpdatedAt
	}
	if err := s.db.Store().Upsert(tag.ID, tag); err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to save tag: %w", err))
	}
	return nil
}

func (s *TagStorage) GetTag(ctx context.Context, id string) (*models.Tag, error) {
	var tag models.Tag
	if err := s.db.Store().Get(id, &tag); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("tag %s: %w", id, models.ErrNotFound)
		}
		return nil, models.NewPersistenceError(fmt.Errorf("failed to get tag: %w", err))
	}
	return &tag, nil
}

func (s *TagStorage) ListTags(ctx context.Context) ([]*models.Tag, error) {
	var tags []models.Tag
	if err := s.db.Store().Find(&tags, badgerhold.Where("ID").Ne("").SortBy("Name")); err != nil {
		return nil, models.NewPersistenceError(fmt.Errorf("failed to list tags: %w", err))
	}
	result := make([]*models.Tag, len(tags))
	for i := range tags {
		result[i] = &tags[i]
	}
	return result, nil
}

// DeleteTag removes the tag and all memberships referencing it
func (s *TagStorage) DeleteTag(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Store().Delete(id, &models.Tag{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return models.NewPersistenceError(fmt.Errorf("failed to delete tag: %w", err))
	}
	if err := s.db.Store().DeleteMatching(&models.ArticleTag{}, badgerhold.Where("TagID").Eq(id)); err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to cascade tag memberships: %w", err))
	}
	return nil
}

// TagArticle records membership. Tagging twice is a no-op.
func (s *TagStorage) TagArticle(ctx context.Context, articleID, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.GetTag(ctx, tagID); err != nil {
		return err
	}
	count, err := s.db.Store().Count(&models.ArticleTag{},
		badgerhold.Where("ArticleID").Eq(articleID).And("TagID").Eq(tagID))
	if err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to check tag membership: %w", err))
	}
	if count > 0 {
		return nil
	}
	rec := models.ArticleTag{ArticleID: articleID, TagID: tagID}
	if err := s.db.Store().Insert(badgerhold.NextSequence(), &rec); err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to tag article: %w", err))
	}
	return nil
}

func (s *TagStorage) UntagArticle(ctx context.Context, articleID, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := badgerhold.Where("ArticleID").Eq(articleID).And("TagID").Eq(tagID)
	if err := s.db.Store().DeleteMatching(&models.ArticleTag{}, query); err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to untag article: %w", err))
	}
	return nil
}

func (s *TagStorage) ListArticleTags(ctx context.Context, articleID string) ([]*models.Tag, error) {
	var memberships []models.ArticleTag
	if err := s.db.Store().Find(&memberships, badgerhold.Where("ArticleID").Eq(articleID)); err != nil {
		return nil, models.NewPersistenceError(fmt.Errorf("failed to list tag memberships: %w", err))
	}

	tags := make([]*models.Tag, 0, len(memberships))
	for _, m := range memberships {
		tag, err := s.GetTag(ctx, m.TagID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

var _ interfaces.TagStorage = (*TagStorage)(nil)
