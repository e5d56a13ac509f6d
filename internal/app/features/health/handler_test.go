package health_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/campushub/internal/app/agent"
	"github.com/dalemusser/campushub/internal/app/features/health"
	"github.com/dalemusser/campushub/internal/testutil"
	"go.uber.org/zap"
)

type fixedState agent.State

func (s fixedState) State() agent.State { return agent.State(s) }

type response struct {
	Status        string `json:"status"`
	Agent         string `json:"agent"`
	Cache         string `json:"cache"`
	Notifications string `json:"notifications"`
	Error         string `json:"error"`
}

func serve(t *testing.T, h *health.Handler) (*httptest.ResponseRecorder, response) {
	t.Helper()
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	h.Serve(rec, req)

	var body response
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return rec, body
}

func TestServe_BoltStoresHealthy(t *testing.T) {
	cache := testutil.OpenCacheStorage(t)
	store := testutil.OpenBoltNotifications(t)
	handler := health.NewHandler(fixedState(agent.StateActivated), cache.DB(), store.DB(), nil, zap.NewNop())

	rec, body := serve(t, handler)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want %q", ct, "application/json")
	}
	if body.Status != "ok" || body.Agent != "activated" || body.Cache != "ok" || body.Notifications != "ok" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestServe_ClosedStoreUnavailable(t *testing.T) {
	cache := testutil.OpenCacheStorage(t)
	store := testutil.OpenBoltNotifications(t)
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	handler := health.NewHandler(fixedState(agent.StateRedundant), cache.DB(), store.DB(), nil, zap.NewNop())

	rec, body := serve(t, handler)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
	if body.Status != "error" || body.Notifications != "unavailable" || body.Error == "" {
		t.Errorf("unexpected body %+v", body)
	}
	if body.Agent != "redundant" {
		t.Errorf("agent: got %q", body.Agent)
	}
}

func TestServe_MongoConnected(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cache := testutil.OpenCacheStorage(t)
	handler := health.NewHandler(fixedState(agent.StateActivated), cache.DB(), nil, db.Client(), zap.NewNop())

	rec, body := serve(t, handler)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if body.Notifications != "connected" {
		t.Errorf("notifications: got %q, want connected", body.Notifications)
	}
}
