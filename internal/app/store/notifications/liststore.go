// internal/app/store/notifications/liststore.go
package notifications

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dalemusser/campushub/internal/app/store/localkv"
	"github.com/dalemusser/campushub/internal/domain/models"
)

const (
	// FallbackKey is the single key the fallback list lives under.
	FallbackKey = "offline-notifications"
	// MaxFallbackRecords caps the fallback list; older entries are dropped.
	MaxFallbackRecords = 50
)

// ListStore is the fallback tier: an ordered JSON array under one key of a
// flat key/value store. Put appends without de-duplicating by id and keeps
// only the most recent MaxFallbackRecords entries.
type ListStore struct {
	kv *localkv.Store
}

// NewList creates a ListStore on kv.
func NewList(kv *localkv.Store) *ListStore {
	return &ListStore{kv: kv}
}

// Put appends rec.
func (s *ListStore) Put(_ context.Context, rec models.NotificationRecord) error {
	return s.kv.Update(FallbackKey, func(cur []byte) ([]byte, error) {
		list, err := decodeList(cur)
		if err != nil {
			// A corrupt list is replaced rather than blocking new records.
			list = nil
		}
		list = append(list, rec)
		if len(list) > MaxFallbackRecords {
			list = list[len(list)-MaxFallbackRecords:]
		}
		return json.Marshal(list)
	})
}

// Get returns the most recently appended record with id.
func (s *ListStore) Get(ctx context.Context, id string) (models.NotificationRecord, error) {
	list, err := s.All(ctx)
	if err != nil {
		return models.NotificationRecord{}, err
	}
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].ID == id {
			return list[i], nil
		}
	}
	return models.NotificationRecord{}, ErrNotFound
}

// All returns the list in append order.
func (s *ListStore) All(_ context.Context) ([]models.NotificationRecord, error) {
	data, err := s.kv.Get(FallbackKey)
	if errors.Is(err, localkv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeList(data)
}

// MarkRead flags every entry with id as read.
func (s *ListStore) MarkRead(_ context.Context, id string) error {
	found := false
	err := s.kv.Update(FallbackKey, func(cur []byte) ([]byte, error) {
		list, err := decodeList(cur)
		if err != nil {
			return nil, err
		}
		for i := range list {
			if list[i].ID == id {
				list[i].Read = true
				found = true
			}
		}
		return json.Marshal(list)
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// Clear removes the list.
func (s *ListStore) Clear(_ context.Context) error {
	return s.kv.Delete(FallbackKey)
}

func decodeList(data []byte) ([]models.NotificationRecord, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var list []models.NotificationRecord
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}
