// internal/app/agent/lifecycle.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dalemusser/campushub/internal/app/store/cachegen"
	"github.com/dalemusser/campushub/internal/app/system/tasks"
	"github.com/dalemusser/campushub/internal/app/system/timeouts"
	"github.com/dalemusser/campushub/internal/domain/models"
	"go.uber.org/zap"
)

// install precaches PrecachePaths into the current generation. Either every
// path is stored or none is; a generation created by a failed install is
// removed again.
func (a *Agent) install(ctx context.Context) error {
	a.setState(StateInstalling)
	name := a.cfg.CacheName()

	existed, err := a.cache.Has(name)
	if err != nil {
		a.setState(StateRedundant)
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}
	gen, err := a.cache.Open(name)
	if err != nil {
		a.setState(StateRedundant)
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}

	if err := a.precache(ctx, gen); err != nil {
		if !existed {
			if _, derr := a.cache.Delete(name); derr != nil {
				a.log.Warn("failed to remove partial cache generation",
					zap.String("cache", name), zap.Error(derr))
			}
		}
		a.setState(StateRedundant)
		a.log.Error("install failed", zap.String("cache", name), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}

	a.log.Info("install complete",
		zap.String("cache", name),
		zap.Int("precached", len(PrecachePaths)))
	// Ready to activate at once; open pages are not waited for.
	a.setState(StateInstalled)
	return nil
}

// precache fetches every path concurrently and stores the results only after
// all of them succeeded.
func (a *Agent) precache(ctx context.Context, gen *cachegen.Generation) error {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Install(), a.log, "precache")
	defer cancel()

	keys := make([]string, len(PrecachePaths))
	fetched := make([]*models.Response, len(PrecachePaths))

	g := a.tracker.NewGroup(ctx)
	for i, p := range PrecachePaths {
		g.Go("precache "+p, tasks.MustComplete, func(ctx context.Context) error {
			u, err := a.resolve(p)
			if err != nil {
				return fmt.Errorf("precache %s: %w", p, err)
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
			if err != nil {
				return fmt.Errorf("precache %s: %w", p, err)
			}
			resp, err := a.net.Fetch(ctx, req)
			if err != nil {
				return fmt.Errorf("precache %s: %w", p, err)
			}
			if !resp.OK() {
				return fmt.Errorf("precache %s: status %d", p, resp.Status)
			}
			keys[i] = cachegen.Key(u)
			fetched[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, key := range keys {
		if err := gen.Put(key, fetched[i]); err != nil {
			return fmt.Errorf("precache store %s: %w", key, err)
		}
	}
	return nil
}

// activate deletes every generation except the current one, then starts
// controlling fetches.
func (a *Agent) activate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.setState(StateActivating)
	current := a.cfg.CacheName()

	names, err := a.cache.Names()
	if err != nil {
		a.log.Warn("failed to list cache generations", zap.Error(err))
	}

	var errs []error
	for _, name := range names {
		if name == current {
			continue
		}
		if _, err := a.cache.Delete(name); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", name, err))
			continue
		}
		a.log.Info("deleted stale cache generation", zap.String("cache", name))
	}

	a.setState(StateActivated)
	return errors.Join(errs...)
}
