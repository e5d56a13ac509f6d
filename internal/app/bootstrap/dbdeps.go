// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/campushub/internal/app/store/cachegen"
	"github.com/dalemusser/campushub/internal/app/store/localkv"
	"github.com/dalemusser/campushub/internal/app/store/notifications"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds the storage backends and the running agent.
//
// Exactly one of BoltNotifications and MongoNotifications is set, matching
// the notification_store setting. Runtime is filled in by Startup; it is a
// pointer so the value WAFFLE hands to later hooks sees it.
type DBDeps struct {
	Cache              *cachegen.Storage
	BoltNotifications  *notifications.BoltStore
	MongoNotifications *notifications.MongoStore
	LocalStore         *localkv.Store

	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	Runtime *Runtime
}

// Primary returns the configured primary notification store, or nil when
// none was opened.
func (d DBDeps) Primary() notifications.Repository {
	switch {
	case d.MongoNotifications != nil:
		return d.MongoNotifications
	case d.BoltNotifications != nil:
		return d.BoltNotifications
	}
	return nil
}

// Pruner returns the primary store's retention interface.
func (d DBDeps) Pruner() notifications.Pruner {
	switch {
	case d.MongoNotifications != nil:
		return d.MongoNotifications
	case d.BoltNotifications != nil:
		return d.BoltNotifications
	}
	return nil
}
