// Package timeouts provides centralized timeout values for agent operations.
//
// These timeouts are used with context.WithTimeout for network fetches,
// storage calls and detached background work. Timeouts can be configured at
// startup using Configure(). If not configured, defaults are used.
//
// Guidelines for choosing a timeout:
//   - Ping: health checks against storage backends
//   - Fetch: one upstream request made on behalf of a page or a command
//   - Storage: a single cache or notification store operation
//   - Background: one best-effort task (cache write, broadcast, persist)
//   - Install: the whole precache step of an install event
package timeouts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing       = 2 * time.Second
	DefaultFetch      = 15 * time.Second
	DefaultStorage    = 5 * time.Second
	DefaultBackground = 30 * time.Second
	DefaultInstall    = 60 * time.Second
)

// mu protects all timeout values from concurrent access.
var mu sync.RWMutex

var (
	ping       = DefaultPing
	fetch      = DefaultFetch
	storage    = DefaultStorage
	background = DefaultBackground
	install    = DefaultInstall
)

// Ping returns the timeout for health checks.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

// Fetch returns the deadline applied to each upstream request.
func Fetch() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return fetch
}

// Storage returns the timeout for a single store operation.
func Storage() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return storage
}

// Background returns the bound on one best-effort task.
func Background() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return background
}

// Install returns the bound on precaching during install.
func Install() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return install
}

// Config holds timeout configuration values.
// Zero values are ignored (defaults are kept).
type Config struct {
	Ping       time.Duration
	Fetch      time.Duration
	Storage    time.Duration
	Background time.Duration
	Install    time.Duration
}

// Configure sets custom timeout values. Zero values in the config are ignored,
// keeping the current (or default) values. Call it during startup before the
// agent handles events.
//
// Example:
//
//	timeouts.Configure(timeouts.Config{
//	    Fetch:   5 * time.Second,
//	    Storage: 2 * time.Second,
//	})
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Fetch > 0 {
		fetch = cfg.Fetch
	}
	if cfg.Storage > 0 {
		storage = cfg.Storage
	}
	if cfg.Background > 0 {
		background = cfg.Background
	}
	if cfg.Install > 0 {
		install = cfg.Install
	}
}

// Reset restores all timeouts to their default values.
// Useful for testing.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping = DefaultPing
	fetch = DefaultFetch
	storage = DefaultStorage
	background = DefaultBackground
	install = DefaultInstall
}

// Current returns the current timeout configuration as a Config struct.
// Useful for logging.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{
		Ping:       ping,
		Fetch:      fetch,
		Storage:    storage,
		Background: background,
		Install:    install,
	}
}

// WithTimeout creates a context with timeout and returns a cancel function that
// logs a warning if the context was canceled due to deadline exceeded.
//
// Example:
//
//	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Fetch(), a.log, "precache /offline")
//	defer cancel()
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
