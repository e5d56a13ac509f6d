// internal/app/features/gateway/fetch.go
package gateway

import (
	"net/http"
	"strings"

	"github.com/dalemusser/campushub/internal/app/agent"
	"github.com/dalemusser/campushub/internal/domain/models"
	"go.uber.org/zap"
)

// Fetch handles every request not addressed to the gateway itself. The agent
// answers it when it intercepts the request; otherwise it is proxied to the
// origin unchanged.
func (h *Handler) Fetch(w http.ResponseWriter, r *http.Request) {
	target := h.resolve(r.URL)

	out, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	out.Header = r.Header.Clone()
	out.ContentLength = r.ContentLength

	res, err := h.Agent.Dispatch(r.Context(), agent.FetchEvent{Request: out, Navigate: isNavigation(r)})
	if err != nil {
		h.Log.Error("fetch dispatch failed", zap.String("url", target.String()), zap.Error(err))
	}
	if res.Handled && res.Response != nil {
		writeResponse(w, res.Response)
		return
	}

	resp, err := h.Net.Fetch(r.Context(), out)
	if err != nil {
		h.Log.Warn("passthrough fetch failed", zap.String("url", target.String()), zap.Error(err))
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	writeResponse(w, resp)
}

// isNavigation reports whether r is a top-level page load. Fetch metadata is
// trusted when present; older clients are judged by method and Accept.
func isNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}

func writeResponse(w http.ResponseWriter, resp *models.Response) {
	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}
