package articles

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/NickHafner/scraper/internal/common"
	"github.com/NickHafner/scraper/internal/interfaces"
	"github.com/NickHafner/scraper/internal/models"
)

// Library is the management surface over archived articles: tagging and
// ordered collections. It never touches the crawl pipeline; workers
// write articles, the library organizes them.
type Library struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewLibrary creates an article library service
func NewLibrary(storage interfaces.StorageManager, logger arbor.ILogger) *Library {
	return &Library{
		storage: storage,
		logger:  logger,
	}
}

// CreateTag validates and persists a new tag
func (l *Library) CreateTag(ctx context.Context, tag *models.Tag) error {
	if tag.ID == "" {
		tag.ID = common.NewTagID()
	}
	if err := l.storage.TagStorage().SaveTag(ctx, tag); err != nil {
		return err
	}
	l.logger.Info().Str("tag_id", tag.ID).Str("tag_name", tag.Name).Msg("Tag created")
	return nil
}

// DeleteTag removes the tag and every membership referencing it
func (l *Library) DeleteTag(ctx context.Context, id string) error {
	return l.storage.TagStorage().DeleteTag(ctx, id)
}

// ListTags returns all tags sorted by name
func (l *Library) ListTags(ctx context.Context) ([]*models.Tag, error) {
	return l.storage.TagStorage().ListTags(ctx)
}

// TagArticle attaches a tag to an archived article. Both sides must
// exist; tagging twice is a no-op.
func (l *Library) TagArticle(ctx context.Context, articleID, tagID string) error {
	if _, err := l.storage.ArticleStorage().GetArticle(ctx, articleID); err != nil {
		return err
	}
	return l.storage.TagStorage().TagArticle(ctx, articleID, tagID)
}

// UntagArticle removes a tag from an article
func (l *Library) UntagArticle(ctx context.Context, articleID, tagID string) error {
	return l.storage.TagStorage().UntagArticle(ctx, articleID, tagID)
}

// ArticleTags lists the tags attached to an article
func (l *Library) ArticleTags(ctx context.Context, articleID string) ([]*models.Tag, error) {
	return l.storage.TagStorage().ListArticleTags(ctx, articleID)
}

// CreateCollection validates and persists a new collection
func (l *Library) CreateCollection(ctx context.Context, collection *models.Collection) error {
	if collection.ID == "" {
		collection.ID = common.NewCollectionID()
	}
	if err := l.storage.CollectionStorage().SaveCollection(ctx, collection); err != nil {
		return err
	}
	l.logger.Info().
		Str("collection_id", collection.ID).
		Str("collection_name", collection.Name).
		Msg("Collection created")
	return nil
}

// DeleteCollection removes the collection; member articles are untouched
func (l *Library) DeleteCollection(ctx context.Context, id string) error {
	return l.storage.CollectionStorage().DeleteCollection(ctx, id)
}

// ListCollections returns all collections sorted by name
func (l *Library) ListCollections(ctx context.Context) ([]*models.Collection, error) {
	return l.storage.CollectionStorage().ListCollections(ctx)
}

// AddToCollection places an article at the given position, appending
// when position <= 0. Re-adding moves the article instead of
// duplicating it.
func (l *Library) AddToCollection(ctx context.Context, collectionID, articleID string, position int) error {
	if _, err := l.storage.ArticleStorage().GetArticle(ctx, articleID); err != nil {
		return err
	}
	return l.storage.CollectionStorage().AddArticle(ctx, collectionID, articleID, position)
}

// RemoveFromCollection drops an article from the collection
func (l *Library) RemoveFromCollection(ctx context.Context, collectionID, articleID string) error {
	return l.storage.CollectionStorage().RemoveArticle(ctx, collectionID, articleID)
}

// CollectionArticles resolves the collection's members in position
// order. An article deleted since it was added is skipped.
func (l *Library) CollectionArticles(ctx context.Context, collectionID string) ([]*models.Article, error) {
	ids, err := l.storage.CollectionStorage().ListArticleIDs(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Article, 0, len(ids))
	for _, id := range ids {
		article, err := l.storage.ArticleStorage().GetArticle(ctx, id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("resolve collection member %s: %w", id, err)
		}
		out = append(out, article)
	}
	return out, nil
}
