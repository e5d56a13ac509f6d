// internal/app/features/gateway/handler.go
package gateway

import (
	"context"
	"net/url"

	"github.com/dalemusser/campushub/internal/app/agent"
	"github.com/dalemusser/campushub/internal/app/system/clients"
	"github.com/dalemusser/campushub/internal/app/system/ratelimit"
	"go.uber.org/zap"
)

// maxEventBody bounds the body of a push, message or click delivered to the
// agent.
const maxEventBody = 64 << 10

// Dispatcher delivers events to the agent.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev agent.Event) (agent.Result, error)
}

// SyncRegistrar queues background sync tags.
type SyncRegistrar interface {
	Register(tag string)
}

// Handler is the host side of the agent: it turns HTTP traffic into agent
// events and relays the agent's page traffic back out.
type Handler struct {
	Agent  Dispatcher
	Hub    *clients.Hub
	Net    agent.Fetcher
	Sync   SyncRegistrar
	Origin *url.URL
	Log    *zap.Logger

	// Limit throttles the POST event endpoints per page; nil disables it.
	Limit *ratelimit.Limiter
}

// NewHandler constructs a gateway Handler.
func NewHandler(a Dispatcher, hub *clients.Hub, net agent.Fetcher, sync SyncRegistrar, origin *url.URL, logger *zap.Logger) *Handler {
	return &Handler{
		Agent:  a,
		Hub:    hub,
		Net:    net,
		Sync:   sync,
		Origin: origin,
		Log:    logger,
	}
}

// pageURL places a page's own location on the origin. Pages report the
// address they were loaded from, which is usually the gateway, so only the
// path and query are kept.
func (h *Handler) pageURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	rel := &url.URL{Path: u.Path, RawPath: u.RawPath, RawQuery: u.RawQuery}
	if rel.Path == "" {
		rel.Path = "/"
	}
	return h.Origin.ResolveReference(rel), nil
}

// resolve maps a request target onto the origin. Absolute-form targets (the
// gateway used as a forward proxy) are kept as they are.
func (h *Handler) resolve(u *url.URL) *url.URL {
	if u.IsAbs() {
		c := *u
		return &c
	}
	return h.Origin.ResolveReference(&url.URL{
		Path:     u.Path,
		RawPath:  u.RawPath,
		RawQuery: u.RawQuery,
	})
}
