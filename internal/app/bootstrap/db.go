// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dalemusser/campushub/internal/app/store/cachegen"
	"github.com/dalemusser/campushub/internal/app/store/localkv"
	"github.com/dalemusser/campushub/internal/app/store/notifications"
	"github.com/dalemusser/campushub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"github.com/spf13/afero"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectDB opens every storage backend the agent uses: the cache file, the
// primary notification store (bbolt or Mongo) and the fallback list
// directory. Anything opened before a failure is closed again.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	deps := DBDeps{Runtime: &Runtime{}}

	cachePath := filepath.Join(appCfg.DataDir, "cache.db")
	cache, err := cachegen.Open(cachePath)
	if err != nil {
		return DBDeps{}, err
	}
	deps.Cache = cache
	logger.Info("cache storage opened", zap.String("path", cachePath))

	kv, err := localkv.New(afero.NewOsFs(), filepath.Join(appCfg.DataDir, "localstore"))
	if err != nil {
		closeDeps(ctx, deps, logger)
		return DBDeps{}, err
	}
	deps.LocalStore = kv

	switch appCfg.NotificationStore {
	case StoreMongo:
		client, err := connectMongo(ctx, appCfg.MongoURI)
		if err != nil {
			closeDeps(ctx, deps, logger)
			return DBDeps{}, err
		}
		deps.MongoClient = client
		deps.MongoDatabase = client.Database(appCfg.MongoDatabase)
		deps.MongoNotifications = notifications.NewMongo(deps.MongoDatabase)
		logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))
	default:
		path := filepath.Join(appCfg.DataDir, "notifications.db")
		store, err := notifications.OpenBolt(path)
		if err != nil {
			closeDeps(ctx, deps, logger)
			return DBDeps{}, err
		}
		deps.BoltNotifications = store
		logger.Info("notification store opened", zap.String("path", path))
	}

	return deps, nil
}

func connectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Storage())
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}
	return client, nil
}

// EnsureSchema creates the Mongo indexes when Mongo is the notification
// store. The bbolt buckets are created when the stores are opened.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.MongoNotifications == nil {
		return nil
	}
	if err := deps.MongoNotifications.EnsureIndexes(ctx); err != nil {
		logger.Error("failed to ensure notification indexes", zap.Error(err))
		return err
	}
	return nil
}
