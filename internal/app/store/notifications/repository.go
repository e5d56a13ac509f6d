// internal/app/store/notifications/repository.go
package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/campushub/internal/domain/models"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("notifications: record not found")

// Repository is a keyed store of notification records. Put is an upsert on
// the record id.
type Repository interface {
	Put(ctx context.Context, rec models.NotificationRecord) error
	Get(ctx context.Context, id string) (models.NotificationRecord, error)
	All(ctx context.Context) ([]models.NotificationRecord, error)
	MarkRead(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// Pruner is implemented by repositories that support age-based retention.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
