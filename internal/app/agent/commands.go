// internal/app/agent/commands.go
package agent

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dalemusser/campushub/internal/app/control"
	"github.com/dalemusser/campushub/internal/app/store/cachegen"
	"github.com/dalemusser/campushub/internal/app/system/tasks"
	"go.uber.org/zap"
)

// handleMessage decodes a page message and runs the command. Commands are
// one-way: nothing is sent back to the page.
func (a *Agent) handleMessage(g *tasks.Group, e MessageEvent) {
	cmd, err := control.Parse(e.Data)
	if err != nil {
		a.log.Debug("ignoring page message", zap.String("client_id", e.ClientID), zap.Error(err))
		return
	}
	a.log.Debug("control command", zap.String("client_id", e.ClientID), zap.String("type", cmd.Type()))

	switch c := cmd.(type) {
	case control.InitNotificationChannel:
		if err := a.clients.Subscribe(e.ClientID, NotificationsChannel); err != nil {
			a.log.Debug("failed to subscribe page", zap.String("client_id", e.ClientID), zap.Error(err))
		}
	case control.InvalidateCache:
		g.Go(c.Type(), tasks.MustComplete, func(context.Context) error {
			return a.invalidate(c)
		})
	case control.ForceNetworkFetch:
		g.Go(c.Type(), tasks.MustComplete, func(ctx context.Context) error {
			return a.forceNetworkFetch(ctx, c.URLs)
		})
	case control.SkipWaitingOnAPIRoutes:
		g.Go(c.Type(), tasks.MustComplete, func(context.Context) error {
			return a.dropAPIEntries()
		})
	case control.ClearNotifications:
		g.Go(c.Type(), tasks.MustComplete, func(ctx context.Context) error {
			sctx, cancel := a.storageContext(ctx, "clear notifications")
			defer cancel()
			return a.store.Clear(sctx)
		})
	case control.MarkNotificationRead:
		g.Go(c.Type(), tasks.BestEffort, func(ctx context.Context) error {
			sctx, cancel := a.storageContext(ctx, "mark notification read")
			defer cancel()
			return a.store.MarkRead(sctx, c.ID)
		})
	case control.RequestNotificationSync:
		g.Go(c.Type(), tasks.MustComplete, func(ctx context.Context) error {
			a.syncNotifications(ctx, e.ClientID)
			return nil
		})
	default:
		a.log.Error("unhandled control command", zap.String("type", fmt.Sprintf("%T", cmd)))
	}
}

func (a *Agent) invalidate(c control.InvalidateCache) error {
	gen := a.generation()
	if c.Pattern != nil {
		n, err := gen.DeleteMatching(c.Pattern.MatchString)
		if err != nil {
			return fmt.Errorf("invalidate %s: %w", c.Pattern, err)
		}
		a.log.Info("cache invalidated by pattern", zap.String("pattern", c.Pattern.String()), zap.Int("removed", n))
		return nil
	}
	for _, raw := range c.URLs {
		u, err := a.resolve(raw)
		if err != nil {
			a.log.Debug("skipping bad url", zap.String("url", raw), zap.Error(err))
			continue
		}
		if _, err := gen.Delete(cachegen.Key(u)); err != nil {
			return fmt.Errorf("invalidate %s: %w", raw, err)
		}
	}
	a.log.Info("cache invalidated", zap.Int("urls", len(c.URLs)))
	return nil
}

// forceNetworkFetch replaces each URL's entry with a fresh copy fetched past
// every cache. A URL whose refetch fails is left uncached.
func (a *Agent) forceNetworkFetch(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return a.dropAPIEntries()
	}
	gen := a.generation()
	for _, raw := range urls {
		u, err := a.resolve(raw)
		if err != nil {
			a.log.Debug("skipping bad url", zap.String("url", raw), zap.Error(err))
			continue
		}
		key := cachegen.Key(u)
		if _, err := gen.Delete(key); err != nil {
			return fmt.Errorf("force fetch %s: %w", raw, err)
		}

		busted := *u
		q := busted.Query()
		q.Set(cachegen.BustParam, strconv.FormatInt(a.now().UnixMilli(), 10))
		busted.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, busted.String(), nil)
		if err != nil {
			return fmt.Errorf("force fetch %s: %w", raw, err)
		}
		req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		req.Header.Set("Pragma", "no-cache")
		req.Header.Set("Expires", "0")

		resp, err := a.net.Fetch(ctx, req)
		if err != nil {
			a.log.Warn("force fetch failed", zap.String("url", raw), zap.Error(err))
			continue
		}
		if !resp.OK() {
			a.log.Debug("force fetch not stored", zap.String("url", raw), zap.Int("status", resp.Status))
			continue
		}
		if err := gen.Put(key, resp); err != nil {
			return fmt.Errorf("force fetch store %s: %w", raw, err)
		}
	}
	return nil
}

func (a *Agent) dropAPIEntries() error {
	n, err := a.generation().DeleteMatching(func(key string) bool {
		return strings.Contains(key, APIPrefix)
	})
	if err != nil {
		return fmt.Errorf("drop api entries: %w", err)
	}
	a.log.Info("cached api responses dropped", zap.Int("removed", n))
	return nil
}
