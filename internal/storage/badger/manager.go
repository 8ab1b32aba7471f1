package badger

import (
	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/NickHafner/scraper/internal/common"
	"github.com/NickHafner/scraper/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db         *BadgerDB
	source     *SourceStorage
	recipe     *RecipeStorage
	job        *JobStorage
	article    *ArticleStorage
	tag        *TagStorage
	collection *CollectionStorage
	blob       *BlobStorage
	logger     arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:         db,
		source:     NewSourceStorage(db, logger),
		recipe:     NewRecipeStorage(db, logger),
		job:        NewJobStorage(db, logger),
		article:    NewArticleStorage(db, logger),
		tag:        NewTagStorage(db, logger),
		collection: NewCollectionStorage(db, logger),
		blob:       NewBlobStorage(db.Badger(), logger),
		logger:     logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// SourceStorage returns the Source storage interface
func (m *Manager) SourceStorage() interfaces.SourceStorage {
	return m.source
}

// RecipeStorage returns the Recipe storage interface
func (m *Manager) RecipeStorage() interfaces.RecipeStorage {
	return m.recipe
}

// JobStorage returns the Job ledger interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// ArticleStorage returns the Article storage interface
func (m *Manager) ArticleStorage() interfaces.ArticleStorage {
	return m.article
}

// TagStorage returns the tag storage interface
func (m *Manager) TagStorage() interfaces.TagStorage {
	return m.tag
}

// CollectionStorage returns the collection storage interface
func (m *Manager) CollectionStorage() interfaces.CollectionStorage {
	return m.collection
}

// BlobStorage returns the content-addressable blob store interface
func (m *Manager) BlobStorage() interfaces.BlobStorage {
	return m.blob
}

// Badger exposes the raw DB for the queue managers, which share the
// storage connection
func (m *Manager) Badger() *badgerdb.DB {
	return m.db.Badger()
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}

var _ interfaces.StorageManager = (*Manager)(nil)
