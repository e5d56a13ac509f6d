// internal/app/store/notifications/boltstore.go
package notifications

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dalemusser/campushub/internal/domain/models"
	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

// BucketNotifications holds {id} -> msgpack(NotificationRecord).
const BucketNotifications = "notifications"

// BoltStore is the embedded primary store.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens or creates the notification database at path.
func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create notification store directory: %w", err)
	}
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open notification store: %w", err)
	}
	s, err := NewBolt(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewBolt wraps an open database, creating the notifications bucket.
func NewBolt(db *bolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketNotifications))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket %s: %w", BucketNotifications, err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying bbolt handle.
func (s *BoltStore) DB() *bolt.DB {
	return s.db
}

// Put upserts rec by id.
func (s *BoltStore) Put(_ context.Context, rec models.NotificationRecord) error {
	data, err := msgpack.Marshal(&rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketNotifications)).Put([]byte(rec.ID), data)
	})
}

// Get returns the record with the given id.
func (s *BoltStore) Get(_ context.Context, id string) (models.NotificationRecord, error) {
	var rec models.NotificationRecord
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(BucketNotifications)).Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		return msgpack.Unmarshal(v, &rec)
	})
	if err != nil {
		return models.NotificationRecord{}, err
	}
	if !found {
		return models.NotificationRecord{}, ErrNotFound
	}
	return rec, nil
}

// All returns every record in key order.
func (s *BoltStore) All(_ context.Context) ([]models.NotificationRecord, error) {
	var out []models.NotificationRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketNotifications)).ForEach(func(_, v []byte) error {
			var rec models.NotificationRecord
			if err := msgpack.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

// MarkRead sets the read flag on one record.
func (s *BoltStore) MarkRead(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketNotifications))
		v := b.Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		var rec models.NotificationRecord
		if err := msgpack.Unmarshal(v, &rec); err != nil {
			return err
		}
		rec.Read = true
		data, err := msgpack.Marshal(&rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
}

// Clear removes every record.
func (s *BoltStore) Clear(_ context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(BucketNotifications)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(BucketNotifications))
		return err
	})
}

// DeleteOlderThan removes records received before cutoff. Records without a
// parseable timestamp are kept.
func (s *BoltStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketNotifications))
		var doomed [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec models.NotificationRecord
			if err := msgpack.Unmarshal(v, &rec); err != nil {
				return nil
			}
			if at := rec.ReceivedAt(); !at.IsZero() && at.Before(cutoff) {
				doomed = append(doomed, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(doomed)
		return nil
	})
	return removed, err
}
