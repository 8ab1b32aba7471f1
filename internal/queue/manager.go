// -----------------------------------------------------------------------
// Queue Manager - persistent work queue on BadgerDB with visibility
// timeout redelivery, bounded retries and retention rings
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/NickHafner/scraper/internal/interfaces"
	"github.com/NickHafner/scraper/internal/models"
)

// ErrNoMessage is returned when no message is ready for delivery
var ErrNoMessage = models.ErrNoMessage

// queueMessage is the internal structure stored in Badger
type queueMessage struct {
	ID         string    `json:"id"`
	Body       []byte    `json:"body"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	VisibleAt  time.Time `json:"visible_at"`
	Attempts   int       `json:"attempts"`
	InFlight   bool      `json:"in_flight"`
	LastError  string    `json:"last_error,omitempty"`
}

// Manager implements a persistent queue using BadgerDB. Multiple
// managers share one DB, namespaced by queue name. Messages become
// invisible for the visibility window once received; a worker that
// crashes without acking gets its message redelivered, so delivery is
// at-least-once and handlers must be idempotent.
type Manager struct {
	db     *badger.DB
	config Config
}

// NewManager creates a new Badger-backed queue manager
func NewManager(db *badger.DB, config Config) (*Manager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if config.QueueName == "" {
		return nil, errors.New("queue name is required")
	}
	if config.VisibilityTimeout <= 0 {
		config.VisibilityTimeout = 5 * time.Minute
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = time.Second
	}
	return &Manager{db: db, config: config}, nil
}

// Name returns the queue name
func (m *Manager) Name() string {
	return m.config.QueueName
}

// Enqueue adds a message to the queue and returns its ID
func (m *Manager) Enqueue(ctx context.Context, body []byte, opts *interfaces.EnqueueOptions) (string, error) {
	id := uuid.New().String()

	visibleAt := time.Now()
	if opts != nil && opts.Delay > 0 {
		visibleAt = visibleAt.Add(opts.Delay)
	}

	qMsg := queueMessage{
		ID:         id,
		Body:       body,
		EnqueuedAt: time.Now(),
		VisibleAt:  visibleAt,
	}

	data, err := json.Marshal(qMsg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal queue message: %w", err)
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(m.msgKey(id), data); err != nil {
			return err
		}
		return txn.Set(m.indexKey(qMsg.VisibleAt, id), []byte{})
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue message: %w", err)
	}
	return id, nil
}

// Delivery is one claimed message. The worker must finish it with
// exactly one of Ack or Fail.
type Delivery struct {
	ID      string
	Body    []byte
	Attempt int

	mgr *Manager
}

// Receive claims the next visible message. Returns ErrNoMessage when
// nothing is ready. The claimed message is invisible to other workers
// until the visibility timeout elapses.
func (m *Manager) Receive(ctx context.Context) (*Delivery, error) {
	var claimed queueMessage

	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", m.config.QueueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)

			ts, id, err := m.parseIndexKey(key)
			if err != nil {
				continue
			}
			if ts.After(now) {
				// Index keys sort by timestamp: nothing later is ready.
				break
			}

			item, err := txn.Get(m.msgKey(id))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					// Orphaned index entry, clean it up and keep looking.
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}

			var qMsg queueMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &qMsg)
			}); err != nil {
				return err
			}

			// Claim: bump the attempt count and push visibility out.
			qMsg.Attempts++
			qMsg.InFlight = true
			qMsg.VisibleAt = now.Add(m.config.VisibilityTimeout)

			data, err := json.Marshal(qMsg)
			if err != nil {
				return err
			}
			if err := txn.Set(m.msgKey(id), data); err != nil {
				return err
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Set(m.indexKey(qMsg.VisibleAt, id), []byte{}); err != nil {
				return err
			}

			claimed = qMsg
			return nil
		}

		return ErrNoMessage
	})
	if err != nil {
		return nil, err
	}

	return &Delivery{
		ID:      claimed.ID,
		Body:    claimed.Body,
		Attempt: claimed.Attempts,
		mgr:     m,
	}, nil
}

// Ack marks the delivery processed and moves it to the completed ring
func (d *Delivery) Ack(ctx context.Context) error {
	return d.mgr.finish(d.ID, "", d.mgr.doneKeyPrefix(), d.mgr.config.KeepCompleted)
}

// Fail records a handler failure. Retryable failures are rescheduled
// with exponential backoff (base * 2^(attempt-1)) until the attempt
// budget is exhausted; terminal or exhausted failures move to the failed
// ring. Returns true when the message will not be delivered again.
func (d *Delivery) Fail(ctx context.Context, failure error, retryable bool) (bool, error) {
	exhausted := !retryable || d.Attempt >= d.mgr.config.MaxAttempts

	msg := ""
	if failure != nil {
		msg = failure.Error()
	}

	if exhausted {
		return true, d.mgr.finish(d.ID, msg, d.mgr.deadKeyPrefix(), d.mgr.config.KeepFailed)
	}

	backoff := d.mgr.config.BackoffBase << (d.Attempt - 1)
	return false, d.mgr.reschedule(d.ID, msg, time.Now().Add(backoff))
}

// reschedule makes a failed message visible again at the given time
func (m *Manager) reschedule(id, lastError string, visibleAt time.Time) error {
	return m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(m.msgKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil // already gone
			}
			return err
		}

		var qMsg queueMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &qMsg)
		}); err != nil {
			return err
		}

		oldIndex := m.indexKey(qMsg.VisibleAt, id)
		qMsg.VisibleAt = visibleAt
		qMsg.InFlight = false
		qMsg.LastError = lastError

		data, err := json.Marshal(qMsg)
		if err != nil {
			return err
		}
		if err := txn.Set(m.msgKey(id), data); err != nil {
			return err
		}
		if err := txn.Delete(oldIndex); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(m.indexKey(qMsg.VisibleAt, id), []byte{})
	})
}

// finish removes a message from the live keyspace and records it in the
// given retention ring, trimming the ring to its bound.
func (m *Manager) finish(id, lastError string, ringPrefix string, keep int) error {
	return m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(m.msgKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil // already finished
			}
			return err
		}

		var qMsg queueMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &qMsg)
		}); err != nil {
			return err
		}

		if err := txn.Delete(m.indexKey(qMsg.VisibleAt, id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Delete(m.msgKey(id)); err != nil {
			return err
		}

		qMsg.InFlight = false
		if lastError != "" {
			qMsg.LastError = lastError
		}
		data, err := json.Marshal(qMsg)
		if err != nil {
			return err
		}
		ringKey := []byte(fmt.Sprintf("%s%020d:%s", ringPrefix, time.Now().UnixNano(), id))
		if err := txn.Set(ringKey, data); err != nil {
			return err
		}

		return m.trimRing(txn, ringPrefix, keep)
	})
}

// trimRing deletes the oldest ring entries beyond the retention bound
func (m *Manager) trimRing(txn *badger.Txn, ringPrefix string, keep int) error {
	if keep <= 0 {
		return nil
	}
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	prefix := []byte(ringPrefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	for len(keys) > keep {
		if err := txn.Delete(keys[0]); err != nil {
			return err
		}
		keys = keys[1:]
	}
	return nil
}

// Cancel removes a not-yet-consumed message, best-effort. A message
// already claimed by a worker or already finished is left alone.
func (m *Manager) Cancel(ctx context.Context, messageID string) error {
	return m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(m.msgKey(messageID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		var qMsg queueMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &qMsg)
		}); err != nil {
			return err
		}
		if qMsg.InFlight {
			// Advisory only: in-flight work stops at its next checkpoint.
			return nil
		}

		if err := txn.Delete(m.indexKey(qMsg.VisibleAt, messageID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Delete(m.msgKey(messageID))
	})
}

// Depth returns the number of messages ready for delivery now
func (m *Manager) Depth(ctx context.Context) (int, error) {
	stats, err := m.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return stats.Ready, nil
}

// Stats reports queue health counters
func (m *Manager) Stats(ctx context.Context) (*interfaces.QueueStats, error) {
	stats := &interfaces.QueueStats{Name: m.config.QueueName}

	err := m.db.View(func(txn *badger.Txn) error {
		now := time.Now()

		opts := badger.DefaultIteratorOptions
		prefix := []byte(fmt.Sprintf("queue:%s:msg:", m.config.QueueName))
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var qMsg queueMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &qMsg)
			}); err != nil {
				return err
			}
			switch {
			case qMsg.InFlight:
				stats.InFlight++
			case qMsg.VisibleAt.After(now):
				stats.Delayed++
			default:
				stats.Ready++
			}
		}

		stats.Completed = m.countPrefix(txn, m.doneKeyPrefix())
		stats.Failed = m.countPrefix(txn, m.deadKeyPrefix())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (m *Manager) countPrefix(txn *badger.Txn, prefix string) int {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()
	count := 0
	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		count++
	}
	return count
}

// Close closes the queue manager (the DB is managed externally)
func (m *Manager) Close() error {
	return nil
}

// Key helpers

func (m *Manager) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", m.config.QueueName, id))
}

func (m *Manager) indexKey(visibleAt time.Time, id string) []byte {
	// Zero-padded nanosecond timestamp so byte order matches time order
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", m.config.QueueName, visibleAt.UnixNano(), id))
}

func (m *Manager) doneKeyPrefix() string {
	return fmt.Sprintf("queue:%s:done:", m.config.QueueName)
}

func (m *Manager) deadKeyPrefix() string {
	return fmt.Sprintf("queue:%s:dead:", m.config.QueueName)
}

func (m *Manager) parseIndexKey(key []byte) (time.Time, string, error) {
	prefixStr := fmt.Sprintf("queue:%s:index:", m.config.QueueName)
	if len(key) <= len(prefixStr) {
		return time.Time{}, "", fmt.Errorf("invalid key length")
	}

	suffix := string(key[len(prefixStr):])
	parts := strings.SplitN(suffix, ":", 2)
	if len(parts) != 2 || len(parts[0]) != 20 {
		return time.Time{}, "", fmt.Errorf("invalid index key %q", key)
	}

	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, ts), parts[1], nil
}

var _ interfaces.Queue = (*Manager)(nil)
