// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"
	"errors"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops the workers, lets in-flight best-effort tasks finish and
// then closes the stores.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if rt := deps.Runtime; rt != nil {
		if rt.Sync != nil {
			rt.Sync.Stop()
		}
		if rt.Retention != nil {
			rt.Retention.Stop()
		}
		if rt.Limiter != nil {
			rt.Limiter.Stop()
		}
		if rt.Agent != nil {
			if err := rt.Agent.Shutdown(ctx); err != nil {
				logger.Warn("agent did not drain before shutdown", zap.Error(err))
			}
		}
	}
	return closeDeps(ctx, deps, logger)
}

func closeDeps(ctx context.Context, deps DBDeps, logger *zap.Logger) error {
	var errs []error
	if deps.Cache != nil {
		if err := deps.Cache.Close(); err != nil {
			logger.Error("cache storage close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if deps.BoltNotifications != nil {
		if err := deps.BoltNotifications.Close(); err != nil {
			logger.Error("notification store close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
