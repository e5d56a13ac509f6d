// internal/app/features/health/handler.go
package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dalemusser/campushub/internal/app/agent"
	"github.com/dalemusser/campushub/internal/app/system/timeouts"
	bolt "go.etcd.io/bbolt"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// StateReporter exposes the agent lifecycle state.
type StateReporter interface {
	State() agent.State
}

// Handler holds dependencies needed for health checks. Notifications is nil
// when the primary notification store is Mongo; Client is nil when it is not.
type Handler struct {
	Agent         StateReporter
	Cache         *bolt.DB
	Notifications *bolt.DB
	Client        *mongo.Client
	Log           *zap.Logger
}

// NewHandler constructs a health Handler.
func NewHandler(a StateReporter, cache, notifications *bolt.DB, client *mongo.Client, logger *zap.Logger) *Handler {
	return &Handler{
		Agent:         a,
		Cache:         cache,
		Notifications: notifications,
		Client:        client,
		Log:           logger,
	}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status        string `json:"status"`
	Agent         string `json:"agent"`
	Cache         string `json:"cache"`
	Notifications string `json:"notifications"`
	Message       string `json:"message,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "agent":"activated", "cache":"ok", "notifications":"ok" }
//
// On storage failure: 503 and
//
//	{ "status":"error", "cache":"unavailable", "message":"Storage unavailable", "error":"…" }
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{
		Status:        "ok",
		Agent:         h.Agent.State().String(),
		Cache:         "ok",
		Notifications: "ok",
	}

	var failure error
	if err := checkBolt(h.Cache); err != nil {
		h.Log.Error("health-check: cache storage unavailable", zap.Error(err))
		resp.Cache = "unavailable"
		failure = err
	}

	switch {
	case h.Client != nil:
		if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
			h.Log.Error("health-check: mongo ping failed", zap.Error(err))
			resp.Notifications = "disconnected"
			failure = err
		} else {
			resp.Notifications = "connected"
		}
	case h.Notifications != nil:
		if err := checkBolt(h.Notifications); err != nil {
			h.Log.Error("health-check: notification store unavailable", zap.Error(err))
			resp.Notifications = "unavailable"
			failure = err
		}
	}

	if failure != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Message = "Storage unavailable"
		resp.Error = failure.Error()
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func checkBolt(db *bolt.DB) error {
	return db.View(func(*bolt.Tx) error { return nil })
}
