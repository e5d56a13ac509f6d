// internal/app/features/gateway/client.go
package gateway

import (
	"embed"
	"net/http"
)

//go:embed static/agent-client.js
var clientFS embed.FS

// ServeClient serves the page-side bridge script. Pages load it to open
// their event stream and post control messages.
func (h *Handler) ServeClient(w http.ResponseWriter, r *http.Request) {
	js, err := clientFS.ReadFile("static/agent-client.js")
	if err != nil {
		h.Log.Error("failed to read agent client script")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(js)
}
