package agent_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/campushub/internal/app/agent"
	"github.com/dalemusser/campushub/internal/app/store/cachegen"
	"github.com/dalemusser/campushub/internal/app/store/notifications"
	"github.com/dalemusser/campushub/internal/app/system/clients"
	"github.com/dalemusser/campushub/internal/app/system/tasks"
	"github.com/dalemusser/campushub/internal/domain/models"
	"github.com/dalemusser/campushub/internal/testutil"
	"go.uber.org/zap"
)

const origin = "https://campus.test"

var errNetworkDown = errors.New("network down")

// fakeNet answers requests for the campus origin from a route table.
type fakeNet struct {
	mu     sync.Mutex
	down   bool
	routes map[string]*models.Response
	calls  []*http.Request
}

func newFakeNet() *fakeNet {
	n := &fakeNet{routes: make(map[string]*models.Response)}
	for _, p := range agent.PrecachePaths {
		n.serve(p, http.StatusOK, "precached "+p)
	}
	return n
}

func (n *fakeNet) serve(path string, status int, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	h := http.Header{}
	h.Set("Content-Type", "text/plain")
	n.routes[path] = &models.Response{Status: status, Header: h, Body: []byte(body)}
}

func (n *fakeNet) setDown(down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down = down
}

func (n *fakeNet) lastRequest() *http.Request {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.calls) == 0 {
		return nil
	}
	return n.calls[len(n.calls)-1]
}

func (n *fakeNet) Fetch(_ context.Context, req *http.Request) (*models.Response, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, req)
	if n.down {
		return nil, errNetworkDown
	}
	resp := &models.Response{Status: http.StatusNotFound, Header: http.Header{}, Body: []byte("not found")}
	if r, ok := n.routes[req.URL.Path]; ok {
		resp = r.Clone()
	}
	resp.URL = req.URL.String()
	resp.Type = models.ResponseBasic
	if req.URL.Host != "campus.test" {
		resp.Type = models.ResponseCORS
	}
	return resp, nil
}

var errUnavailable = errors.New("store unavailable")

// brokenRepo fails every operation.
type brokenRepo struct{}

func (brokenRepo) Put(context.Context, models.NotificationRecord) error { return errUnavailable }
func (brokenRepo) Get(context.Context, string) (models.NotificationRecord, error) {
	return models.NotificationRecord{}, errUnavailable
}
func (brokenRepo) All(context.Context) ([]models.NotificationRecord, error) {
	return nil, errUnavailable
}
func (brokenRepo) MarkRead(context.Context, string) error { return errUnavailable }
func (brokenRepo) Clear(context.Context) error           { return errUnavailable }

type harness struct {
	agent    *agent.Agent
	net      *fakeNet
	cache    *cachegen.Storage
	primary  *notifications.BoltStore
	fallback *notifications.ListStore
	hub      *clients.Hub
}

// newHarness builds an agent over temporary stores. A nil primary uses a
// bbolt store.
func newHarness(t *testing.T, primary notifications.Repository) *harness {
	t.Helper()
	h := &harness{
		net:      newFakeNet(),
		cache:    testutil.OpenCacheStorage(t),
		primary:  testutil.OpenBoltNotifications(t),
		fallback: notifications.NewList(testutil.NewLocalKV(t)),
		hub:      clients.NewHub(zap.NewNop()),
	}
	if primary == nil {
		primary = h.primary
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		t.Fatal(err)
	}
	h.agent = agent.New(agent.Config{Origin: originURL}, agent.Deps{
		Cache:         h.cache,
		Notifications: notifications.NewChain(primary, h.fallback, zap.NewNop()),
		Fetcher:       h.net,
		Clients:       h.hub,
		Channel:       h.hub,
		Notifier:      h.hub,
		Tracker:       tasks.NewTracker(zap.NewNop(), time.Second),
		Now:           func() time.Time { return testutil.FixedTime },
		Log:           zap.NewNop(),
	})
	return h
}

// start installs and activates the agent.
func (h *harness) start(t *testing.T) {
	t.Helper()
	h.dispatch(t, agent.InstallEvent{})
	h.dispatch(t, agent.ActivateEvent{})
}

func (h *harness) dispatch(t *testing.T, ev agent.Event) agent.Result {
	t.Helper()
	res, err := h.agent.Dispatch(context.Background(), ev)
	if err != nil {
		t.Fatalf("Dispatch(%T): %v", ev, err)
	}
	return res
}

// idle waits for best-effort work.
func (h *harness) idle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !h.agent.Idle(ctx) {
		t.Fatal("agent did not go idle")
	}
}

func (h *harness) fetch(t *testing.T, method, path string, navigate bool) agent.Result {
	t.Helper()
	req, err := http.NewRequest(method, origin+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	return h.dispatch(t, agent.FetchEvent{Request: req, Navigate: navigate})
}

func (h *harness) message(t *testing.T, clientID, data string) {
	t.Helper()
	h.dispatch(t, agent.MessageEvent{ClientID: clientID, Data: []byte(data)})
}

func (h *harness) gen() *cachegen.Generation {
	return h.cache.Generation(h.agent.CacheName())
}

func (h *harness) keys(t *testing.T) []string {
	t.Helper()
	keys, err := h.gen().Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	return keys
}

func (h *harness) hasKey(t *testing.T, path string) bool {
	t.Helper()
	return slices.Contains(h.keys(t), origin+path)
}

func (h *harness) store(t *testing.T, path, body string) {
	t.Helper()
	hdr := http.Header{}
	hdr.Set("Content-Type", "text/plain")
	err := h.gen().Put(origin+path, &models.Response{
		Status: http.StatusOK,
		Header: hdr,
		Body:   []byte(body),
		Type:   models.ResponseBasic,
		URL:    origin + path,
	})
	if err != nil {
		t.Fatalf("Put %s: %v", path, err)
	}
}

// drain returns the events currently queued for a page.
func drain(c *clients.Client) []clients.Event {
	var out []clients.Event
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

// syncMessage finds the SYNC_NOTIFICATIONS message in events.
func syncMessage(t *testing.T, events []clients.Event) agent.SyncNotifications {
	t.Helper()
	for _, ev := range events {
		if msg, ok := ev.Data.(agent.SyncNotifications); ok && ev.Name == clients.EventMessage {
			return msg
		}
	}
	t.Fatalf("no %s message among %d events", agent.MessageSyncNotifications, len(events))
	return agent.SyncNotifications{}
}

const examAlert = `{"notification":{"title":"Exam Alert","body":"Hall changed"},"data":{"url":"/dashboard/student/events","id":"evt-1"}}`
