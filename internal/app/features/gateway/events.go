// internal/app/features/gateway/events.go
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dalemusser/campushub/internal/app/agent"
	"github.com/dalemusser/campushub/internal/app/system/clients"
	"go.uber.org/zap"
)

// ClientHeader names the page that sent a message.
const ClientHeader = "X-Agent-Client"

// Connect handles GET /__agent/connect?url=<page url>.
//
// It holds a Server-Sent Events stream open for one page. The first event is
// "hello" carrying the page's client id; later events are the page's
// messages, broadcasts and notifications.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	page, err := h.pageURL(r.URL.Query().Get("url"))
	if err != nil {
		http.Error(w, "invalid url", http.StatusBadRequest)
		return
	}

	c := h.Hub.Connect(page.String())
	defer h.Hub.Disconnect(c.ID())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if err := writeEvent(w, "hello", map[string]string{"clientId": c.ID()}); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-c.Events():
			if !ok {
				return
			}
			if err := writeEvent(w, ev.Name, ev.Data); err != nil {
				h.Log.Debug("page stream write failed", zap.String("client_id", c.ID()), zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}

// Message handles POST /__agent/message. The body is the page's message;
// the sender is named by the X-Agent-Client header. Nothing is sent back
// beyond 202 Accepted.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	h.dispatch(r, agent.MessageEvent{ClientID: r.Header.Get(ClientHeader), Data: body})
	w.WriteHeader(http.StatusAccepted)
}

// Push handles POST /__agent/push. The raw body is the push payload. The
// push service always sees success.
func (h *Handler) Push(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	h.dispatch(r, agent.PushEvent{Data: body})
	w.WriteHeader(http.StatusCreated)
}

type clickRequest struct {
	Tag  string                   `json:"tag"`
	Data clients.NotificationData `json:"data"`
}

// NotificationClick handles POST /__agent/notificationclick.
func (h *Handler) NotificationClick(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req clickRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	h.dispatch(r, agent.NotificationClickEvent{Tag: req.Tag, URL: req.Data.URL, ID: req.Data.ID})
	w.WriteHeader(http.StatusNoContent)
}

type navigatedRequest struct {
	URL string `json:"url"`
}

// Navigated handles POST /__agent/navigated. A page named by the
// X-Agent-Client header reports that it now shows url.
func (h *Handler) Navigated(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req navigatedRequest
	if err := json.Unmarshal(body, &req); err != nil || req.URL == "" {
		http.Error(w, "url required", http.StatusBadRequest)
		return
	}
	page, err := h.pageURL(req.URL)
	if err != nil {
		http.Error(w, "invalid url", http.StatusBadRequest)
		return
	}
	if err := h.Hub.Navigated(r.Header.Get(ClientHeader), page.String()); err != nil {
		if errors.Is(err, clients.ErrNoClient) {
			http.Error(w, "unknown client", http.StatusNotFound)
			return
		}
		h.Log.Warn("page navigation not recorded", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type syncRequest struct {
	Tag string `json:"tag"`
}

// RegisterSync handles POST /__agent/sync. The tag fires on the next run of
// the sync scheduler.
func (h *Handler) RegisterSync(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req syncRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Tag == "" {
		http.Error(w, "tag required", http.StatusBadRequest)
		return
	}
	h.Sync.Register(req.Tag)
	h.Log.Debug("background sync registered", zap.String("tag", req.Tag))
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) dispatch(r *http.Request, ev agent.Event) {
	if _, err := h.Agent.Dispatch(r.Context(), ev); err != nil {
		h.Log.Error("event dispatch failed", zap.Error(err))
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBody))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return nil, false
	}
	return body, true
}
