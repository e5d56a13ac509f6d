// internal/app/agent/agent.go
//
// Package agent is the offline agent that sits between campus pages and the
// campus app origin. It reacts to lifecycle, fetch, push, notification click,
// page message and background sync events delivered through Dispatch.
//
// The agent keeps no per-event state of its own. Everything that outlives an
// event lives in the cache storage or the notification repository, whose
// transactions provide the atomicity concurrent events rely on.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dalemusser/campushub/internal/app/store/cachegen"
	"github.com/dalemusser/campushub/internal/app/store/notifications"
	"github.com/dalemusser/campushub/internal/app/system/clients"
	"github.com/dalemusser/campushub/internal/app/system/tasks"
	"github.com/dalemusser/campushub/internal/app/system/timeouts"
	"github.com/dalemusser/campushub/internal/domain/models"
	"go.uber.org/zap"
)

const (
	// CacheNamePrefix is followed by the cache version in a generation name.
	CacheNamePrefix = "campushub-cache-v"
	// DefaultCacheVersion is the cache version compiled into this build.
	DefaultCacheVersion = 1

	// NotificationsChannel is the broadcast channel for live notifications.
	NotificationsChannel = "notifications-channel"
	// SyncTagNotifications is the background sync tag that replays the backlog.
	SyncTagNotifications = "sync-notifications"

	// OfflinePath is the page served when a navigation cannot reach the network.
	OfflinePath = "/offline"
	// APIPrefix marks API routes.
	APIPrefix = "/api/"
)

// PrecachePaths are fetched and stored at install. All of them must succeed.
var PrecachePaths = []string{
	OfflinePath,
	"/login",
	"/manifest.json",
	"/icons/icon-192x192.png",
	"/icons/icon-512x512.png",
}

// CacheableAPIPaths are API routes cheap enough to serve from cache.
var CacheableAPIPaths = []string{"/api/config"}

// ErrInstallFailed wraps the precache failure that aborted an install.
var ErrInstallFailed = errors.New("agent: install failed")

// Fetcher performs network requests.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*models.Response, error)
}

// Clients reaches the open pages.
type Clients interface {
	MatchAll() []clients.Info
	PostMessage(id string, msg any) error
	Subscribe(id, channel string) error
	Focus(id string) error
	OpenWindow(url string) error
}

// Broadcaster publishes on named broadcast channels.
type Broadcaster interface {
	Broadcast(channel string, msg any) int
}

// Notifier shows and dismisses platform notifications.
type Notifier interface {
	ShowNotification(ctx context.Context, n clients.Notification) error
	CloseNotification(tag string)
}

// Config is the agent's static configuration.
type Config struct {
	Origin       *url.URL
	CacheVersion int
}

// CacheName is the current cache generation name.
func (c Config) CacheName() string {
	v := c.CacheVersion
	if v <= 0 {
		v = DefaultCacheVersion
	}
	return fmt.Sprintf("%s%d", CacheNamePrefix, v)
}

// Deps are the collaborators the agent is given. Notifications is usually a
// notifications.Chain so storage failures fall back to the flat list.
type Deps struct {
	Cache         *cachegen.Storage
	Notifications notifications.Repository
	Fetcher       Fetcher
	Clients       Clients
	Channel       Broadcaster
	Notifier      Notifier
	Tracker       *tasks.Tracker
	Now           func() time.Time
	Log           *zap.Logger
}

// Agent handles events. It is safe for concurrent use.
type Agent struct {
	cfg      Config
	cache    *cachegen.Storage
	store    notifications.Repository
	net      Fetcher
	clients  Clients
	channel  Broadcaster
	notifier Notifier
	tracker  *tasks.Tracker
	now      func() time.Time
	log      *zap.Logger

	mu    sync.RWMutex
	state State
}

// New creates an agent in the parsed state.
func New(cfg Config, deps Deps) *Agent {
	a := &Agent{
		cfg:      cfg,
		cache:    deps.Cache,
		store:    deps.Notifications,
		net:      deps.Fetcher,
		clients:  deps.Clients,
		channel:  deps.Channel,
		notifier: deps.Notifier,
		tracker:  deps.Tracker,
		now:      deps.Now,
		log:      deps.Log,
	}
	if a.log == nil {
		a.log = zap.NewNop()
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.tracker == nil {
		a.tracker = tasks.NewTracker(a.log, timeouts.Background())
	}
	return a
}

// CacheName is the current cache generation name.
func (a *Agent) CacheName() string {
	return a.cfg.CacheName()
}

// Origin is the origin whose requests the agent controls.
func (a *Agent) Origin() *url.URL {
	return a.cfg.Origin
}

// State returns the lifecycle state.
func (a *Agent) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	prev := a.state
	a.state = s
	a.mu.Unlock()
	if prev != s {
		a.log.Info("agent state changed",
			zap.String("from", prev.String()),
			zap.String("to", s.String()))
	}
}

// Dispatch delivers one event. It returns once the event's must-complete
// work has finished; best-effort work may still be running. Only install and
// activate report errors. Failures while handling other events are logged and
// never reach the event source.
func (a *Agent) Dispatch(ctx context.Context, ev Event) (Result, error) {
	switch ev.(type) {
	case InstallEvent:
		return Result{}, a.install(ctx)
	case ActivateEvent:
		return Result{}, a.activate(ctx)
	}

	g := a.tracker.NewGroup(ctx)
	var res Result

	switch e := ev.(type) {
	case FetchEvent:
		res = a.handleFetch(ctx, g, e)
	case PushEvent:
		a.handlePush(g, e)
	case NotificationClickEvent:
		a.handleNotificationClick(g, e)
	case MessageEvent:
		a.handleMessage(g, e)
	case SyncEvent:
		a.handleSync(g, e)
	default:
		return Result{}, fmt.Errorf("agent: unsupported event %T", ev)
	}

	if err := g.Wait(); err != nil {
		a.log.Warn("event task failed",
			zap.String("event", ev.eventName()),
			zap.Error(err))
	}
	return res, nil
}

// Idle blocks until every best-effort task has finished or ctx is done. It
// reports whether the agent went idle.
func (a *Agent) Idle(ctx context.Context) bool {
	return a.tracker.WaitContext(ctx)
}

// Shutdown waits for best-effort work to drain.
func (a *Agent) Shutdown(ctx context.Context) error {
	if !a.tracker.WaitContext(ctx) {
		return fmt.Errorf("agent: background tasks still running: %w", ctx.Err())
	}
	return nil
}

func (a *Agent) generation() *cachegen.Generation {
	return a.cache.Generation(a.cfg.CacheName())
}

// resolve turns a page-supplied URL into an absolute URL on the origin.
func (a *Agent) resolve(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	return a.cfg.Origin.ResolveReference(u), nil
}

func (a *Agent) storageContext(ctx context.Context, op string) (context.Context, context.CancelFunc) {
	return timeouts.WithTimeout(ctx, timeouts.Storage(), a.log, op)
}
