// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	gatewayfeature "github.com/dalemusser/campushub/internal/app/features/gateway"
	healthfeature "github.com/dalemusser/campushub/internal/app/features/health"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler for the agent host.
//
// WAFFLE calls this after configuration, storage, schema setup and Startup
// have completed, so deps.Runtime holds the running agent.
//
// /health reports storage and agent state. Everything else goes to the
// gateway, which feeds the agent and proxies whatever it does not handle.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	rt := deps.Runtime
	if rt == nil || rt.Agent == nil {
		return nil, errors.New("agent runtime not started")
	}

	r := chi.NewRouter()

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(rt.Agent, deps.Cache.DB(), nil, deps.MongoClient, logger)
	if deps.BoltNotifications != nil {
		healthHandler.Notifications = deps.BoltNotifications.DB()
	}
	r.Mount("/health", healthfeature.Routes(healthHandler))

	gatewayHandler := gatewayfeature.NewHandler(rt.Agent, rt.Hub, rt.Fetcher, rt.Sync, rt.Agent.Origin(), logger)
	gatewayHandler.Limit = rt.Limiter
	r.Mount("/", gatewayfeature.Routes(gatewayHandler))

	return r, nil
}
