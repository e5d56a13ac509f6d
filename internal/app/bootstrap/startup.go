// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/campushub/internal/app/agent"
	"github.com/dalemusser/campushub/internal/app/store/notifications"
	"github.com/dalemusser/campushub/internal/app/system/clients"
	"github.com/dalemusser/campushub/internal/app/system/fetcher"
	"github.com/dalemusser/campushub/internal/app/system/ratelimit"
	"github.com/dalemusser/campushub/internal/app/system/tasks"
	"github.com/dalemusser/campushub/internal/app/system/timeouts"
	"github.com/dalemusser/campushub/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Runtime is the running agent and the pieces the HTTP layer and the
// workers share with it.
type Runtime struct {
	Agent     *agent.Agent
	Hub       *clients.Hub
	Fetcher   *fetcher.HTTPFetcher
	Sync      *workers.SyncScheduler
	Retention *workers.RetentionSweeper
	Limiter   *ratelimit.Limiter
}

// Startup builds the agent over the opened stores, installs and activates
// it, and starts the background workers.
//
// A failed install is logged rather than returned: the agent stays
// redundant and the gateway proxies everything to the origin until the next
// start succeeds.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Fetch:      appCfg.FetchTimeout,
		Storage:    appCfg.StorageTimeout,
		Background: appCfg.BackgroundTimeout,
	})
	logger.Info("timeouts configured", zap.Any("timeouts", timeouts.Current()))

	rt, err := buildRuntime(appCfg, deps, logger)
	if err != nil {
		return err
	}
	*deps.Runtime = *rt

	if _, err := rt.Agent.Dispatch(ctx, agent.InstallEvent{}); err != nil {
		logger.Error("agent install failed; serving as passthrough", zap.Error(err))
	} else if _, err := rt.Agent.Dispatch(ctx, agent.ActivateEvent{}); err != nil {
		logger.Warn("agent activated with errors", zap.Error(err))
	}

	rt.Sync.Start()
	if rt.Retention != nil {
		rt.Retention.Start()
	}
	return nil
}

func buildRuntime(appCfg AppConfig, deps DBDeps, logger *zap.Logger) (*Runtime, error) {
	origin, err := parseOrigin(appCfg.OriginURL)
	if err != nil {
		return nil, err
	}
	if deps.Primary() == nil {
		return nil, errors.New("no primary notification store")
	}

	hub := clients.NewHub(logger.Named("clients"))
	upstream := fetcher.New(nil, origin, appCfg.MaxBodyBytes, logger.Named("fetcher"))
	chain := notifications.NewChain(deps.Primary(), notifications.NewList(deps.LocalStore), logger.Named("notifications"))

	a := agent.New(agent.Config{Origin: origin, CacheVersion: appCfg.CacheVersion}, agent.Deps{
		Cache:         deps.Cache,
		Notifications: chain,
		Fetcher:       upstream,
		Clients:       hub,
		Channel:       hub,
		Notifier:      hub,
		Tracker:       tasks.NewTracker(logger.Named("tasks"), timeouts.Background()),
		Now:           time.Now,
		Log:           logger.Named("agent"),
	})

	rt := &Runtime{
		Agent:   a,
		Hub:     hub,
		Fetcher: upstream,
		Sync:    workers.NewSyncScheduler(a, logger.Named("sync"), appCfg.SyncInterval),
	}
	if appCfg.NotificationRetention > 0 {
		rt.Retention = workers.NewRetentionSweeper(deps.Pruner(), logger.Named("retention"),
			appCfg.RetentionInterval, appCfg.NotificationRetention)
	}
	if appCfg.EventRateLimit > 0 {
		rt.Limiter = ratelimit.New(appCfg.EventRateLimit, time.Minute)
	}
	return rt, nil
}
