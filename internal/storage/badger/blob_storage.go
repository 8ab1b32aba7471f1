package badger

import (
	"context"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/NickHafner/scraper/internal/interfaces"
	"github.com/NickHafner/scraper/internal/models"
)

// blobKeyPrefix namespaces content blobs in the shared Badger keyspace
const blobKeyPrefix = "blob:"

// BlobStorage is content-addressable storage for article content, keyed
// by content fingerprint. Writes are idempotent and entries are never
// overwritten, so every historical version of an article stays
// retrievable by its own hash.
type BlobStorage struct {
	db     *badgerdb.DB
	logger arbor.ILogger
}

// NewBlobStorage creates a new BlobStorage on the shared Badger DB
func NewBlobStorage(db *badgerdb.DB, logger arbor.ILogger) *BlobStorage {
	return &BlobStorage{db: db, logger: logger}
}

func blobKey(fingerprint string) []byte {
	return []byte(blobKeyPrefix + fingerprint)
}

// Put stores content under its fingerprint. Storing the same
// fingerprint again is a no-op: content addressing makes the value
// identical by construction.
func (s *BlobStorage) Put(ctx context.Context, fingerprint string, content []byte) error {
	if fingerprint == "" {
		return fmt.Errorf("fingerprint is required")
	}
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(blobKey(fingerprint))
		if err == nil {
			return nil // already stored
		}
		if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}
		return txn.Set(blobKey(fingerprint), content)
	})
	if err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to put blob %s: %w", fingerprint, err))
	}
	return nil
}

func (s *BlobStorage) Get(ctx context.Context, fingerprint string) ([]byte, error) {
	var content []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(blobKey(fingerprint))
		if err != nil {
			return err
		}
		content, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil, fmt.Errorf("blob %s: %w", fingerprint, models.ErrNotFound)
		}
		return nil, models.NewPersistenceError(fmt.Errorf("failed to get blob %s: %w", fingerprint, err))
	}
	return content, nil
}

func (s *BlobStorage) Has(ctx context.Context, fingerprint string) (bool, error) {
	err := s.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(blobKey(fingerprint))
		return err
	})
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return false, nil
		}
		return false, models.NewPersistenceError(fmt.Errorf("failed to check blob %s: %w", fingerprint, err))
	}
	return true, nil
}

var _ interfaces.BlobStorage = (*BlobStorage)(nil)
