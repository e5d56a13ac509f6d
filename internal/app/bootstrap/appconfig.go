// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// Notification store backends.
const (
	StoreBolt  = "bolt"
	StoreMongo = "mongo"
)

// AppConfig holds service-specific configuration for the campushub agent.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They are *app-level*
// configuration; WAFFLE's CoreConfig covers ports, TLS, logging and the
// other framework settings.
type AppConfig struct {
	// Campus app the agent fronts
	OriginURL    string // e.g. https://campus.example.edu
	CacheVersion int    // cache generation version (campushub-cache-v<N>)

	// Local state
	DataDir string // holds cache.db, notifications.db and localstore/

	// Primary notification store
	NotificationStore string // "bolt" or "mongo"
	MongoURI          string // used when NotificationStore is "mongo"
	MongoDatabase     string

	// Timeouts (zero keeps the defaults in system/timeouts)
	FetchTimeout      time.Duration
	StorageTimeout    time.Duration
	BackgroundTimeout time.Duration

	// Workers
	SyncInterval          time.Duration // how often background sync tags are redeemed
	NotificationRetention time.Duration // zero keeps notifications forever
	RetentionInterval     time.Duration

	// Upstream responses larger than this are refused
	MaxBodyBytes int64

	// Event posts allowed per page per minute (0 disables the limit)
	EventRateLimit int
}
