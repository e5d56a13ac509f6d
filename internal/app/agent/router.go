// internal/app/agent/router.go
package agent

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/dalemusser/campushub/internal/app/store/cachegen"
	"github.com/dalemusser/campushub/internal/app/system/fetcher"
	"github.com/dalemusser/campushub/internal/app/system/tasks"
	"github.com/dalemusser/campushub/internal/domain/models"
	"go.uber.org/zap"
)

// Route is the strategy chosen for a request.
type Route int

const (
	// RoutePassthrough leaves the request to the host.
	RoutePassthrough Route = iota
	// RouteNetworkOnly sends mutations straight to the network.
	RouteNetworkOnly
	// RouteNetworkFirst fetches fresh data and falls back to the cache.
	RouteNetworkFirst
	// RouteCacheFirst serves stored copies and fills the cache on a miss.
	RouteCacheFirst
)

func (r Route) String() string {
	switch r {
	case RoutePassthrough:
		return "passthrough"
	case RouteNetworkOnly:
		return "network-only"
	case RouteNetworkFirst:
		return "network-first"
	case RouteCacheFirst:
		return "cache-first"
	default:
		return "unknown"
	}
}

// Headers set on responses served from the cache in place of the network.
const (
	HeaderFromCache   = "X-From-Cache"
	HeaderCacheStatus = "X-Cache-Status"
)

// Classify picks the route for a request to origin. The first matching rule
// wins.
func Classify(origin *url.URL, method string, u *url.URL, navigate bool) Route {
	switch {
	case !fetcher.SameOrigin(origin, u):
		return RoutePassthrough
	case isFrameworkInternal(u), navigate && !isAPI(u.Path):
		return RoutePassthrough
	case method != http.MethodGet:
		return RouteNetworkOnly
	case bypassesCache(u):
		return RouteNetworkFirst
	default:
		return RouteCacheFirst
	}
}

func isFrameworkInternal(u *url.URL) bool {
	if strings.HasPrefix(u.Path, "/_next/") || strings.HasPrefix(u.Path, "/__nextjs") {
		return true
	}
	_, rsc := u.Query()["_rsc"]
	return rsc
}

func isAPI(path string) bool {
	return strings.HasPrefix(path, APIPrefix)
}

func bypassesCache(u *url.URL) bool {
	if _, busted := u.Query()[cachegen.BustParam]; busted {
		return true
	}
	if isAPI(u.Path) && !slices.Contains(CacheableAPIPaths, u.Path) {
		return true
	}
	return strings.Contains(u.RawQuery, "no-cache")
}

func (a *Agent) handleFetch(ctx context.Context, g *tasks.Group, e FetchEvent) Result {
	if a.State() != StateActivated {
		return Result{}
	}
	req := e.Request
	route := Classify(a.cfg.Origin, req.Method, req.URL, e.Navigate)
	a.log.Debug("fetch routed",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Bool("navigate", e.Navigate),
		zap.String("route", route.String()))

	var resp *models.Response
	switch route {
	case RouteNetworkOnly:
		resp = a.networkOnly(ctx, req)
	case RouteNetworkFirst:
		resp = a.networkFirst(ctx, req, e.Navigate)
	case RouteCacheFirst:
		resp = a.cacheFirst(ctx, g, req, e.Navigate)
	default:
		return Result{}
	}
	return Result{Handled: true, Response: resp}
}

func (a *Agent) networkOnly(ctx context.Context, req *http.Request) *models.Response {
	resp, err := a.net.Fetch(ctx, req)
	if err != nil {
		a.log.Debug("network-only fetch failed", zap.String("url", req.URL.String()), zap.Error(err))
		return jsonError(http.StatusServiceUnavailable, "Network request failed")
	}
	return resp
}

func (a *Agent) networkFirst(ctx context.Context, req *http.Request, navigate bool) *models.Response {
	resp, err := a.net.Fetch(ctx, req)
	if err == nil {
		return resp
	}
	a.log.Debug("network-first fetch failed, trying cache",
		zap.String("url", req.URL.String()), zap.Error(err))

	if cached := a.match(req.URL); cached != nil {
		cached.Header.Set(HeaderFromCache, "true")
		if !navigate {
			cached.Header.Set(HeaderCacheStatus, "stale")
		}
		return cached
	}
	if navigate {
		return a.offlinePage()
	}
	return jsonError(http.StatusServiceUnavailable, "Offline and no cached data available")
}

func (a *Agent) cacheFirst(ctx context.Context, g *tasks.Group, req *http.Request, navigate bool) *models.Response {
	if cached := a.match(req.URL); cached != nil {
		return cached
	}

	resp, err := a.net.Fetch(ctx, req)
	if err != nil {
		a.log.Debug("cache-first fetch failed", zap.String("url", req.URL.String()), zap.Error(err))
		if navigate {
			return a.offlinePage()
		}
		return textResponse(http.StatusServiceUnavailable, "Service Unavailable")
	}

	if resp.OK() && resp.Type == models.ResponseBasic {
		key := cachegen.Key(req.URL)
		stored := resp.Clone()
		gen := a.generation()
		g.Go("cache "+key, tasks.BestEffort, func(context.Context) error {
			return gen.Put(key, stored)
		})
	}
	return resp
}

// match returns a copy of the stored response for u, or nil.
func (a *Agent) match(u *url.URL) *models.Response {
	cached, err := a.generation().Match(cachegen.Key(u))
	if err != nil {
		if !errors.Is(err, cachegen.ErrNotFound) {
			a.log.Warn("cache lookup failed", zap.String("url", u.String()), zap.Error(err))
		}
		return nil
	}
	return cached.Response.Clone()
}

// offlinePage serves the precached offline page, or a plain 503 when even
// that is missing.
func (a *Agent) offlinePage() *models.Response {
	u, err := a.resolve(OfflinePath)
	if err == nil {
		if page := a.match(u); page != nil {
			return page
		}
	}
	return textResponse(http.StatusServiceUnavailable, "Offline")
}
