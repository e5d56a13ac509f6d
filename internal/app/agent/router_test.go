package agent_test

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/dalemusser/campushub/internal/app/agent"
)

func TestClassify(t *testing.T) {
	o, _ := url.Parse(origin)
	tests := []struct {
		name     string
		method   string
		target   string
		navigate bool
		want     agent.Route
	}{
		{"cross origin", "GET", "https://cdn.example/lib.js", false, agent.RoutePassthrough},
		{"framework chunk", "GET", origin + "/_next/static/chunk.js", false, agent.RoutePassthrough},
		{"framework dev", "GET", origin + "/__nextjs_original-stack-frame", false, agent.RoutePassthrough},
		{"server component payload", "GET", origin + "/dashboard?_rsc=abc", false, agent.RoutePassthrough},
		{"page navigation", "GET", origin + "/dashboard/student", true, agent.RoutePassthrough},
		{"api navigation", "GET", origin + "/api/user/profile", true, agent.RouteNetworkFirst},
		{"mutation", "POST", origin + "/api/bookings", false, agent.RouteNetworkOnly},
		{"mutation on asset path", "PUT", origin + "/icons/icon-192x192.png", false, agent.RouteNetworkOnly},
		{"busted", "GET", origin + "/manifest.json?_=1700000000000", false, agent.RouteNetworkFirst},
		{"api", "GET", origin + "/api/rooms", false, agent.RouteNetworkFirst},
		{"cacheable api", "GET", origin + "/api/config", false, agent.RouteCacheFirst},
		{"no-cache marker", "GET", origin + "/data.json?mode=no-cache", false, agent.RouteNetworkFirst},
		{"asset", "GET", origin + "/icons/icon-192x192.png", false, agent.RouteCacheFirst},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.target)
			if err != nil {
				t.Fatal(err)
			}
			if got := agent.Classify(o, tt.method, u, tt.navigate); got != tt.want {
				t.Errorf("Classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFetch_PassthroughNotHandled(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	req, _ := http.NewRequest(http.MethodGet, "https://cdn.example/lib.js", nil)
	if res := h.dispatch(t, agent.FetchEvent{Request: req}); res.Handled || res.Response != nil {
		t.Error("cross-origin request should not be handled")
	}
	if res := h.fetch(t, http.MethodGet, "/dashboard/student", true); res.Handled {
		t.Error("page navigation should be left to the host")
	}
}

func TestFetch_APIResponsesNeverStored(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.net.serve("/api/user/profile", http.StatusOK, `{"name":"Asha"}`)
	h.net.serve("/api/rooms", http.StatusOK, `[]`)

	for _, p := range []string{"/api/user/profile", "/api/rooms?building=b2", "/api/user/profile?_=1"} {
		res := h.fetch(t, http.MethodGet, p, false)
		if !res.Handled || res.Response.Status != http.StatusOK {
			t.Fatalf("%s: unexpected result %+v", p, res)
		}
	}
	h.idle(t)

	for _, k := range h.keys(t) {
		if strings.Contains(k, "/api/") {
			t.Errorf("api response was cached under %s", k)
		}
	}
}

func TestFetch_NonGETNetworkOnly(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	before := len(h.keys(t))
	h.net.serve("/api/bookings", http.StatusCreated, `{"id":"b1"}`)

	res := h.fetch(t, http.MethodPost, "/api/bookings", false)
	if res.Response.Status != http.StatusCreated {
		t.Errorf("status = %d, want 201", res.Response.Status)
	}

	h.net.setDown(true)
	for _, p := range []string{"/api/bookings", "/icons/icon-192x192.png"} {
		res = h.fetch(t, http.MethodPost, p, false)
		if res.Response.Status != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", p, res.Response.Status)
		}
		var body map[string]string
		if err := json.Unmarshal(res.Response.Body, &body); err != nil {
			t.Fatalf("%s: body is not JSON: %v", p, err)
		}
		if body["error"] == "" {
			t.Errorf("%s: missing error field in %s", p, res.Response.Body)
		}
	}
	h.idle(t)

	if after := len(h.keys(t)); after != before {
		t.Errorf("non-GET requests changed the cache: %d -> %d entries", before, after)
	}
}

func TestFetch_CacheBustedNavigationFallsBackToCache(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.store(t, "/api/user/profile", `{"name":"cached"}`)
	h.net.setDown(true)

	res := h.fetch(t, http.MethodGet, "/api/user/profile?_=1739000000000", true)
	if !res.Handled {
		t.Fatal("expected the request to be handled")
	}
	if got := res.Response.Header.Get(agent.HeaderFromCache); got != "true" {
		t.Errorf("%s = %q, want true", agent.HeaderFromCache, got)
	}
	if got := res.Response.Header.Get(agent.HeaderCacheStatus); got != "" {
		t.Errorf("navigation fallback should not be marked stale, got %q", got)
	}
	if string(res.Response.Body) != `{"name":"cached"}` {
		t.Errorf("body = %s", res.Response.Body)
	}
}

func TestFetch_BypassNonNavigationServesStale(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.store(t, "/api/rooms", `["r1"]`)
	h.net.setDown(true)

	res := h.fetch(t, http.MethodGet, "/api/rooms", false)
	if res.Response.Header.Get(agent.HeaderFromCache) != "true" {
		t.Error("missing X-From-Cache")
	}
	if res.Response.Header.Get(agent.HeaderCacheStatus) != "stale" {
		t.Error("missing X-Cache-Status: stale")
	}
}

func TestFetch_BypassWithoutCacheFails(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.net.setDown(true)

	res := h.fetch(t, http.MethodGet, "/api/attendance", false)
	if res.Response.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", res.Response.Status)
	}
	if ct := res.Response.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	res = h.fetch(t, http.MethodGet, "/api/attendance", true)
	if string(res.Response.Body) != "precached /offline" {
		t.Errorf("navigation should get the offline page, got %q", res.Response.Body)
	}
}

func TestFetch_IconCacheFirst(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	const icon = "/icons/icon-192x192.png"
	if _, err := h.gen().Delete(origin + icon); err != nil {
		t.Fatal(err)
	}
	h.net.serve(icon, http.StatusOK, "PNG-BYTES")

	res := h.fetch(t, http.MethodGet, icon, false)
	if string(res.Response.Body) != "PNG-BYTES" {
		t.Fatalf("body = %q", res.Response.Body)
	}
	if res.Response.Header.Get(agent.HeaderFromCache) != "" {
		t.Error("network response should be returned unmodified")
	}
	h.idle(t)
	if !h.hasKey(t, icon) {
		t.Fatal("icon was not stored")
	}

	h.net.setDown(true)
	res = h.fetch(t, http.MethodGet, icon, false)
	if res.Response.Status != http.StatusOK || string(res.Response.Body) != "PNG-BYTES" {
		t.Errorf("offline fetch = %d %q", res.Response.Status, res.Response.Body)
	}
}

func TestFetch_CacheFirstSkipsErrorsAndAllowsConfigAPI(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.net.serve("/api/config", http.StatusOK, `{"theme":"light"}`)

	h.fetch(t, http.MethodGet, "/assets/missing.js", false)
	h.fetch(t, http.MethodGet, "/api/config", false)
	h.idle(t)

	if h.hasKey(t, "/assets/missing.js") {
		t.Error("404 responses must not be cached")
	}
	if !h.hasKey(t, "/api/config") {
		t.Error("allowlisted api route should be cached")
	}
}

func TestFetch_CacheFirstOffline(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.net.setDown(true)

	res := h.fetch(t, http.MethodGet, "/assets/app.js", false)
	if res.Response.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", res.Response.Status)
	}
	if ct := res.Response.Header.Get("Content-Type"); ct != "text/plain" {
		t.Errorf("content type = %q, want text/plain", ct)
	}

	res = h.fetch(t, http.MethodGet, "/api/config", true)
	if string(res.Response.Body) != "precached /offline" {
		t.Errorf("navigation miss should get the offline page, got %q", res.Response.Body)
	}
}
