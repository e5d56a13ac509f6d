package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dalemusser/campushub/internal/app/store/cachegen"
	"github.com/dalemusser/campushub/internal/app/store/localkv"
	"github.com/dalemusser/campushub/internal/app/store/notifications"
	"github.com/dalemusser/campushub/internal/domain/models"
	"github.com/spf13/afero"
)

// FixedTime is the clock reading used by fixtures and fake clocks.
var FixedTime = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

// Notification returns a record with the given id and title.
func Notification(id, title string) models.NotificationRecord {
	return models.NotificationRecord{
		ID:        id,
		Title:     title,
		Body:      title + " body",
		URL:       "/dashboard/student/events",
		Timestamp: models.FormatTimestamp(FixedTime),
	}
}

// OpenCacheStorage opens cache storage in a temporary directory.
func OpenCacheStorage(t *testing.T) *cachegen.Storage {
	t.Helper()
	s, err := cachegen.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("failed to open cache storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// OpenBoltNotifications opens a notification store in a temporary directory.
func OpenBoltNotifications(t *testing.T) *notifications.BoltStore {
	t.Helper()
	s, err := notifications.OpenBolt(filepath.Join(t.TempDir(), "notifications.db"))
	if err != nil {
		t.Fatalf("failed to open notification store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// NewLocalKV returns a key/value store on an in-memory filesystem.
func NewLocalKV(t *testing.T) *localkv.Store {
	t.Helper()
	kv, err := localkv.New(afero.NewMemMapFs(), "/localstore")
	if err != nil {
		t.Fatalf("failed to create local store: %v", err)
	}
	return kv
}
