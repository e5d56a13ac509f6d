// internal/app/store/notifications/chain.go
package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/campushub/internal/domain/models"
	"go.uber.org/zap"
)

// Chain puts a fallback repository behind a primary one. The two tiers are
// never synchronised; a record written to one is invisible to the other.
//
// Per operation:
//   - Put: primary; on error, fallback.
//   - Get: primary; on an error other than ErrNotFound, fallback.
//   - All: primary; if it fails or is empty, fallback. Results are never merged.
//   - MarkRead: primary only.
//   - Clear: primary; on error, fallback.
type Chain struct {
	Primary  Repository
	Fallback Repository
	Log      *zap.Logger
}

// NewChain builds a Chain.
func NewChain(primary, fallback Repository, logger *zap.Logger) *Chain {
	return &Chain{Primary: primary, Fallback: fallback, Log: logger}
}

// Put stores rec in the primary tier, or in the fallback tier when the
// primary fails.
func (c *Chain) Put(ctx context.Context, rec models.NotificationRecord) error {
	err := c.Primary.Put(ctx, rec)
	if err == nil {
		return nil
	}
	c.Log.Warn("primary notification store failed, using fallback list",
		zap.String("op", "put"), zap.String("id", rec.ID), zap.Error(err))
	if ferr := c.Fallback.Put(ctx, rec); ferr != nil {
		return fmt.Errorf("primary: %v; fallback: %w", err, ferr)
	}
	return nil
}

// Get reads from the primary tier, falling back on storage errors.
func (c *Chain) Get(ctx context.Context, id string) (models.NotificationRecord, error) {
	rec, err := c.Primary.Get(ctx, id)
	if err == nil || errors.Is(err, ErrNotFound) {
		return rec, err
	}
	c.Log.Warn("primary notification store failed, using fallback list",
		zap.String("op", "get"), zap.String("id", id), zap.Error(err))
	return c.Fallback.Get(ctx, id)
}

// All returns the primary records, or the fallback list when the primary
// has none or cannot be read.
func (c *Chain) All(ctx context.Context) ([]models.NotificationRecord, error) {
	recs, err := c.Primary.All(ctx)
	if err == nil && len(recs) > 0 {
		return recs, nil
	}
	if err != nil {
		c.Log.Warn("primary notification store failed, using fallback list",
			zap.String("op", "all"), zap.Error(err))
	}
	fb, ferr := c.Fallback.All(ctx)
	if ferr != nil {
		if err != nil {
			return nil, fmt.Errorf("primary: %v; fallback: %w", err, ferr)
		}
		return nil, ferr
	}
	return fb, nil
}

// MarkRead flags the record in the primary tier only.
func (c *Chain) MarkRead(ctx context.Context, id string) error {
	return c.Primary.MarkRead(ctx, id)
}

// Clear empties the primary tier, or the fallback tier when the primary fails.
func (c *Chain) Clear(ctx context.Context) error {
	err := c.Primary.Clear(ctx)
	if err == nil {
		return nil
	}
	c.Log.Warn("primary notification store failed, clearing fallback list",
		zap.String("op", "clear"), zap.Error(err))
	return c.Fallback.Clear(ctx)
}
