package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/NickHafner/scraper/internal/interfaces"
	"github.com/NickHafner/scraper/internal/models"
)

// CollectionStorage implements ordered article collections for Badger
type CollectionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	// mu serializes membership updates so positions stay consistent
	mu sync.Mutex
}

// NewCollectionStorage creates a new CollectionStorage instance
func NewCollectionStorage(db *BadgerDB, logger arbor.ILogger) *CollectionStorage {
	return &CollectionStorage{db: db, logger: logger}
}

func (s *CollectionStorage) SaveCollection(ctx context.Context, collection *models.Collection) error {
	if collection.ID == "" {
		return fmt.Errorf("collection ID is required")
	}
	if strings.TrimSpace(collection.Name) == "" {
		return models.NewValidationError(fmt.Errorf("collection name is required"))
	}
	collection.UpdatedAt = time.Now()
	if collection.CreatedAt.IsZero() {
		collection.CreatedAt = collection.UpdatedAt
	}
	if err := s.db.Store().Upsert(collection.ID, collection); err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to save collection: %w", err))
	}
	return nil
}

func (s *CollectionStorage) GetCollection(ctx context.Context, id string) (*models.Collection, error) {
	var collection models.Collection
	if err := s.db.Store().Get(id, &collection); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("collection %s: %w", id, models.ErrNotFound)
		}
		return nil, models.NewPersistenceError(fmt.Errorf("failed to get collection: %w", err))
	}
	return &collection, nil
}

func (s *CollectionStorage) ListCollections(ctx context.Context) ([]*models.Collection, error) {
	var collections []models.Collection
	if err := s.db.Store().Find(&collections, badgerhold.Where("ID").Ne("").SortBy("Name")); err != nil {
		return nil, models.NewPersistenceError(fmt.Errorf("failed to list collections: %w", err))
	}
	result := make([]*models.Collection, len(collections))
	for i := range collections {
		result[i] = &collections[i]
	}
	return result, nil
}

// DeleteCollection removes the collection and its memberships
func (s *CollectionStorage) DeleteCollection(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Store().Delete(id, &models.Collection{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return models.NewPersistenceError(fmt.Errorf("failed to delete collection: %w", err))
	}
	if err := s.db.Store().DeleteMatching(&models.CollectionArticle{}, badgerhold.Where("CollectionID").Eq(id)); err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to cascade collection memberships: %w", err))
	}
	return nil
}

// AddArticle appends or repositions the article. Position <= 0 appends
// after the current maximum.
func (s *CollectionStorage) AddArticle(ctx context.Context, collectionID, articleID string, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.GetCollection(ctx, collectionID); err != nil {
		return err
	}

	var memberships []models.CollectionArticle
	if err := s.db.Store().Find(&memberships, badgerhold.Where("CollectionID").Eq(collectionID)); err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to read collection memberships: %w", err))
	}

	if position <= 0 {
		max := 0
		for _, m := range memberships {
			if m.Position > max {
				max = m.Position
			}
		}
		position = max + 1
	} else {
		// Insert semantics: members at or after the slot shift up
		for i := range memberships {
			m := &memberships[i]
			if m.ArticleID != articleID && m.Position >= position {
				m.Position++
				if err := s.db.Store().Update(m.ID, m); err != nil {
					return models.NewPersistenceError(fmt.Errorf("failed to shift collection member: %w", err))
				}
			}
		}
	}

	for i := range memberships {
		m := &memberships[i]
		if m.ArticleID == articleID {
			m.Position = position
			if err := s.db.Store().Update(m.ID, m); err != nil {
				return models.NewPersistenceError(fmt.Errorf("failed to reposition article: %w", err))
			}
			return nil
		}
	}

	rec := models.CollectionArticle{CollectionID: collectionID, ArticleID: articleID, Position: position}
	if err := s.db.Store().Insert(badgerhold.NextSequence(), &rec); err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to add article to collection: %w", err))
	}
	return nil
}

func (s *CollectionStorage) RemoveArticle(ctx context.Context, collectionID, articleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := badgerhold.Where("CollectionID").Eq(collectionID).And("ArticleID").Eq(articleID)
	if err := s.db.Store().DeleteMatching(&models.CollectionArticle{}, query); err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to remove article from collection: %w", err))
	}
	return nil
}

// ListArticleIDs returns member article ids ordered by position
func (s *CollectionStorage) ListArticleIDs(ctx context.Context, collectionID string) ([]string, error) {
	var memberships []models.CollectionArticle
	if err := s.db.Store().Find(&memberships, badgerhold.Where("CollectionID").Eq(collectionID)); err != nil {
		return nil, models.NewPersistenceError(fmt.Errorf("failed to list collection memberships: %w", err))
	}
	sort.SliceStable(memberships, func(i, j int) bool {
		return memberships[i].Position < memberships[j].Position
	})
	ids := make([]string, len(memberships))
	for i, m := range memberships {
		ids[i] = m.ArticleID
	}
	return ids, nil
}

var _ interfaces.CollectionStorage = (*CollectionStorage)(nil)
