// internal/app/system/clients/hub.go
//
// Package clients tracks the pages connected to the agent and delivers
// messages, broadcast-channel traffic and platform notifications to them.
// Each page holds one event stream; the gateway writes those events out as
// Server-Sent Events.
package clients

import (
	"errors"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// Event names delivered to a page's stream.
const (
	EventMessage           = "message"
	EventBroadcast         = "broadcast"
	EventNotification      = "notification"
	EventNotificationClose = "notificationclose"
	EventFocus             = "focus"
	EventNavigate          = "navigate"
)

// streamBuffer is how many undelivered events a page may hold before new ones
// are dropped.
const streamBuffer = 32

var (
	// ErrNoClient is returned when a client id is not connected.
	ErrNoClient = errors.New("clients: no such client")
	// ErrNoWindowOpener is returned when no connected page can open a window.
	ErrNoWindowOpener = errors.New("clients: no page can open a window")
)

// Event is one item on a page's stream.
type Event struct {
	Name string
	Data any
}

// Info describes a connected page.
type Info struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Client is one connected page.
type Client struct {
	id     string
	url    string
	events chan Event
	subs   map[string]struct{}
}

// ID returns the client's identifier.
func (c *Client) ID() string { return c.id }

// Events returns the stream of events for this page. It is closed when the
// client disconnects.
func (c *Client) Events() <-chan Event { return c.events }

// Hub is the registry of connected pages. Its zero value is not usable; use
// NewHub.
type Hub struct {
	log      *zap.Logger
	sanitize *bluemonday.Policy

	mu        sync.Mutex
	clients   []*Client
	displayed map[string]Notification
	order     []string
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		log:       logger,
		sanitize:  bluemonday.StrictPolicy(),
		displayed: make(map[string]Notification),
	}
}

// Connect registers a page showing pageURL and returns its client.
func (h *Hub) Connect(pageURL string) *Client {
	c := &Client{
		id:     uuid.NewString(),
		url:    pageURL,
		events: make(chan Event, streamBuffer),
		subs:   make(map[string]struct{}),
	}
	h.mu.Lock()
	h.clients = append(h.clients, c)
	h.mu.Unlock()

	h.log.Debug("page connected", zap.String("client_id", c.id), zap.String("url", pageURL))
	return c
}

// Disconnect removes a page and closes its stream. Unknown ids are ignored.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, c := range h.clients {
		if c.id == id {
			h.clients = append(h.clients[:i], h.clients[i+1:]...)
			close(c.events)
			h.log.Debug("page disconnected", zap.String("client_id", id))
			return
		}
	}
}

// Navigated records that a page now shows pageURL.
func (h *Hub) Navigated(id, pageURL string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.find(id)
	if c == nil {
		return ErrNoClient
	}
	c.url = pageURL
	h.log.Debug("page navigated", zap.String("client_id", id), zap.String("url", pageURL))
	return nil
}

// MatchAll returns every connected page in connection order.
func (h *Hub) MatchAll() []Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Info, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, Info{ID: c.id, URL: c.url})
	}
	return out
}

// PostMessage delivers msg to one page.
func (h *Hub) PostMessage(id string, msg any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.find(id)
	if c == nil {
		return ErrNoClient
	}
	h.deliver(c, Event{Name: EventMessage, Data: msg})
	return nil
}

// Subscribe joins a page to a named broadcast channel. Subscribing twice is a
// no-op.
func (h *Hub) Subscribe(id, channel string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.find(id)
	if c == nil {
		return ErrNoClient
	}
	c.subs[channel] = struct{}{}
	return nil
}

// Broadcast delivers msg to every page subscribed to channel and reports how
// many pages it reached.
func (h *Hub) Broadcast(channel string, msg any) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.clients {
		if _, ok := c.subs[channel]; !ok {
			continue
		}
		if h.deliver(c, Event{Name: EventBroadcast, Data: BroadcastMessage{Channel: channel, Message: msg}}) {
			n++
		}
	}
	return n
}

// Focus asks a page to bring itself to the front.
func (h *Hub) Focus(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.find(id)
	if c == nil {
		return ErrNoClient
	}
	h.deliver(c, Event{Name: EventFocus, Data: Info{ID: c.id, URL: pagePath(c.url)}})
	return nil
}

// OpenWindow asks the first connected page to open target in a new window.
// Pages receive only the path and query, so the window opens on whatever
// host the page itself was served from.
func (h *Hub) OpenWindow(target string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return ErrNoWindowOpener
	}
	h.deliver(h.clients[0], Event{Name: EventNavigate, Data: navigatePayload{URL: pagePath(target), NewWindow: true}})
	return nil
}

// BroadcastMessage is the payload of a broadcast event.
type BroadcastMessage struct {
	Channel string `json:"channel"`
	Message any    `json:"message"`
}

type navigatePayload struct {
	URL       string `json:"url"`
	NewWindow bool   `json:"newWindow"`
}

// pagePath reduces an absolute URL to its path, query and fragment.
func pagePath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	rel := url.URL{Path: u.Path, RawPath: u.RawPath, RawQuery: u.RawQuery, Fragment: u.Fragment}
	if rel.Path == "" {
		rel.Path = "/"
	}
	return rel.String()
}

func (h *Hub) find(id string) *Client {
	for _, c := range h.clients {
		if c.id == id {
			return c
		}
	}
	return nil
}

// deliver never blocks; a page that stops reading loses events.
func (h *Hub) deliver(c *Client, ev Event) bool {
	select {
	case c.events <- ev:
		return true
	default:
		h.log.Warn("page stream full, dropping event",
			zap.String("client_id", c.id),
			zap.String("event", ev.Name))
		return false
	}
}
