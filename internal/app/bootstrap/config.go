// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"net/url"
	"time"

	"github.com/dalemusser/campushub/internal/app/agent"
	"github.com/dalemusser/campushub/internal/app/system/fetcher"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for the campushub agent.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: origin_url, data_dir, etc.
//   - Environment variables: CAMPUSHUB_ORIGIN_URL, CAMPUSHUB_DATA_DIR, etc.
//   - Command-line flags: --origin_url, --data_dir, etc.
var appConfigKeys = []config.AppKey{
	{Name: "origin_url", Default: "http://localhost:3000", Desc: "Campus app origin the agent fronts"},
	{Name: "cache_version", Default: agent.DefaultCacheVersion, Desc: "Cache generation version; bump to retire old caches"},
	{Name: "data_dir", Default: "./data", Desc: "Directory for the cache, notification store and fallback list"},

	// Notification store
	{Name: "notification_store", Default: StoreBolt, Desc: "Primary notification store: 'bolt' or 'mongo'"},
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI (notification_store=mongo)"},
	{Name: "mongo_database", Default: "campushub", Desc: "MongoDB database name"},

	// Timeouts
	{Name: "fetch_timeout", Default: "15s", Desc: "Deadline for one upstream request"},
	{Name: "storage_timeout", Default: "5s", Desc: "Deadline for one store operation"},
	{Name: "background_timeout", Default: "30s", Desc: "Bound on one best-effort task"},

	// Workers
	{Name: "sync_interval", Default: "30s", Desc: "How often registered background sync tags fire"},
	{Name: "notification_retention", Default: "0s", Desc: "Delete stored notifications older than this (0 disables)"},
	{Name: "retention_interval", Default: "1h", Desc: "How often the retention sweep runs"},

	{Name: "max_body_bytes", Default: int(fetcher.DefaultMaxBodyBytes), Desc: "Largest upstream body the agent buffers"},
	{Name: "event_rate_limit", Default: 120, Desc: "Event posts allowed per page per minute (0 disables)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, CAMPUSHUB_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "CAMPUSHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		OriginURL:    appValues.String("origin_url"),
		CacheVersion: appValues.Int("cache_version"),
		DataDir:      appValues.String("data_dir"),

		NotificationStore: appValues.String("notification_store"),
		MongoURI:          appValues.String("mongo_uri"),
		MongoDatabase:     appValues.String("mongo_database"),

		FetchTimeout:      appValues.Duration("fetch_timeout", 15*time.Second),
		StorageTimeout:    appValues.Duration("storage_timeout", 5*time.Second),
		BackgroundTimeout: appValues.Duration("background_timeout", 30*time.Second),

		SyncInterval:          appValues.Duration("sync_interval", 30*time.Second),
		NotificationRetention: appValues.Duration("notification_retention", 0),
		RetentionInterval:     appValues.Duration("retention_interval", time.Hour),

		MaxBodyBytes:   int64(appValues.Int("max_body_bytes")),
		EventRateLimit: appValues.Int("event_rate_limit"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// The origin must be an absolute http(s) URL since every cache key and
// same-origin check is derived from it. The Mongo URI is only checked when
// Mongo is the notification store.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if _, err := parseOrigin(appCfg.OriginURL); err != nil {
		logger.Error("invalid origin URL", zap.String("origin_url", appCfg.OriginURL), zap.Error(err))
		return err
	}

	if appCfg.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}

	switch appCfg.NotificationStore {
	case StoreBolt:
	case StoreMongo:
		if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
			logger.Error("invalid MongoDB URI", zap.Error(err))
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
		if appCfg.MongoDatabase == "" {
			return fmt.Errorf("mongo_database must be set when notification_store is mongo")
		}
	default:
		return fmt.Errorf("notification_store must be %q or %q, got %q", StoreBolt, StoreMongo, appCfg.NotificationStore)
	}

	if appCfg.SyncInterval <= 0 {
		return fmt.Errorf("sync_interval must be positive")
	}
	if appCfg.EventRateLimit < 0 {
		return fmt.Errorf("event_rate_limit must not be negative")
	}
	if appCfg.NotificationRetention > 0 && appCfg.RetentionInterval <= 0 {
		return fmt.Errorf("retention_interval must be positive when notification_retention is set")
	}

	return nil
}

func parseOrigin(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid origin URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid origin URL %q: want an absolute http(s) URL", raw)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}
