package gateway_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/campushub/internal/app/agent"
	"github.com/dalemusser/campushub/internal/app/features/gateway"
	"github.com/dalemusser/campushub/internal/app/store/notifications"
	"github.com/dalemusser/campushub/internal/app/system/clients"
	"github.com/dalemusser/campushub/internal/app/system/fetcher"
	"github.com/dalemusser/campushub/internal/app/system/ratelimit"
	"github.com/dalemusser/campushub/internal/app/system/tasks"
	"github.com/dalemusser/campushub/internal/testutil"
	"go.uber.org/zap"
)

type recordingSync struct {
	mu   sync.Mutex
	tags []string
}

func (s *recordingSync) Register(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = append(s.tags, tag)
}

type env struct {
	gateway *httptest.Server
	handler *gateway.Handler
	down    *atomic.Bool
	sync    *recordingSync
}

// newEnv starts a campus origin, an activated agent in front of it and the
// gateway serving both.
func newEnv(t *testing.T) *env {
	t.Helper()
	down := &atomic.Bool{}
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			panic(http.ErrAbortHandler)
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/bookings":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"id":"b1"}`)
		case r.URL.Path == "/dashboard/student":
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, "<h1>Student dashboard</h1>")
		default:
			_, _ = io.WriteString(w, "origin "+r.URL.Path)
		}
	}))
	t.Cleanup(origin.Close)

	originURL, err := url.Parse(origin.URL)
	if err != nil {
		t.Fatal(err)
	}
	logger := zap.NewNop()
	hub := clients.NewHub(logger)
	net := fetcher.New(origin.Client(), originURL, 0, logger)
	chain := notifications.NewChain(
		testutil.OpenBoltNotifications(t),
		notifications.NewList(testutil.NewLocalKV(t)),
		logger,
	)
	a := agent.New(agent.Config{Origin: originURL}, agent.Deps{
		Cache:         testutil.OpenCacheStorage(t),
		Notifications: chain,
		Fetcher:       net,
		Clients:       hub,
		Channel:       hub,
		Notifier:      hub,
		Tracker:       tasks.NewTracker(logger, time.Second),
		Log:           logger,
	})
	ctx := context.Background()
	if _, err := a.Dispatch(ctx, agent.InstallEvent{}); err != nil {
		t.Fatalf("install: %v", err)
	}
	if _, err := a.Dispatch(ctx, agent.ActivateEvent{}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	rs := &recordingSync{}
	h := gateway.NewHandler(a, hub, net, rs, originURL, logger)
	gw := httptest.NewServer(gateway.Routes(h))
	t.Cleanup(gw.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})

	return &env{gateway: gw, handler: h, down: down, sync: rs}
}

func (e *env) do(t *testing.T, method, path, body string, header map[string]string) (*http.Response, string) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.gateway.URL+path, rdr)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := e.gateway.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func TestFetch_PrecachedAssetServedOffline(t *testing.T) {
	e := newEnv(t)
	e.down.Store(true)

	resp, body := e.do(t, http.MethodGet, "/manifest.json", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body != "origin /manifest.json" {
		t.Errorf("body = %q", body)
	}
}

func TestFetch_PageNavigationProxied(t *testing.T) {
	e := newEnv(t)

	resp, body := e.do(t, http.MethodGet, "/dashboard/student", "", map[string]string{"Sec-Fetch-Mode": "navigate"})
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Student dashboard") {
		t.Errorf("got %d %q", resp.StatusCode, body)
	}
}

func TestFetch_MutationOnlineAndOffline(t *testing.T) {
	e := newEnv(t)

	resp, body := e.do(t, http.MethodPost, "/api/bookings", `{"room":"r1"}`, nil)
	if resp.StatusCode != http.StatusCreated || body != `{"id":"b1"}` {
		t.Fatalf("online: %d %q", resp.StatusCode, body)
	}

	e.down.Store(true)
	resp, body = e.do(t, http.MethodPost, "/api/bookings", `{"room":"r1"}`, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("offline status = %d", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(body), &payload); err != nil || payload["error"] == "" {
		t.Errorf("offline body = %q", body)
	}
}

type sseEvent struct {
	name string
	data string
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading event stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestPushAndSyncOverEventStream(t *testing.T) {
	e := newEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, e.gateway.URL+"/__agent/connect?url=/dashboard/student", nil)
	stream, err := e.gateway.Client().Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer stream.Body.Close()
	if ct := stream.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	events := bufio.NewReader(stream.Body)

	hello := readEvent(t, events)
	var id struct {
		ClientID string `json:"clientId"`
	}
	if hello.name != "hello" || json.Unmarshal([]byte(hello.data), &id) != nil || id.ClientID == "" {
		t.Fatalf("hello = %+v", hello)
	}

	resp, _ := e.do(t, http.MethodPost, "/__agent/push",
		`{"notification":{"title":"Exam Alert","body":"Hall changed"},"data":{"url":"/dashboard/student/events","id":"evt-1"}}`, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("push status = %d", resp.StatusCode)
	}
	if ev := readEvent(t, events); ev.name != clients.EventNotification || !strings.Contains(ev.data, "Exam Alert") {
		t.Fatalf("expected notification event, got %+v", ev)
	}

	// The record is stored by a best-effort task; poll the backlog until it lands.
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, _ = e.do(t, http.MethodPost, "/__agent/message", `{"type":"REQUEST_NOTIFICATION_SYNC"}`,
			map[string]string{gateway.ClientHeader: id.ClientID})
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("message status = %d", resp.StatusCode)
		}
		ev := readEvent(t, events)
		if ev.name != clients.EventMessage {
			t.Fatalf("expected message event, got %+v", ev)
		}
		var msg agent.SyncNotifications
		if err := json.Unmarshal([]byte(ev.data), &msg); err != nil {
			t.Fatalf("sync payload: %v", err)
		}
		if msg.Type != agent.MessageSyncNotifications {
			t.Fatalf("type = %q", msg.Type)
		}
		if len(msg.Notifications) == 1 {
			if msg.Notifications[0].ID != "evt-1" {
				t.Errorf("synced = %+v", msg.Notifications)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("notification never reached the store")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRegisterSync(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.do(t, http.MethodPost, "/__agent/sync", `{"tag":"sync-notifications"}`, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodPost, "/__agent/sync", `{}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing tag status = %d", resp.StatusCode)
	}

	e.sync.mu.Lock()
	defer e.sync.mu.Unlock()
	if len(e.sync.tags) != 1 || e.sync.tags[0] != agent.SyncTagNotifications {
		t.Errorf("registered = %v", e.sync.tags)
	}
}

func TestNotificationClick_BadJSON(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.do(t, http.MethodPost, "/__agent/notificationclick", `{`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodPost, "/__agent/notificationclick", `{"tag":"evt-1","data":{"url":"/","id":"evt-1"}}`, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestServeClient(t *testing.T) {
	e := newEnv(t)

	resp, body := e.do(t, http.MethodGet, "/__agent/client.js", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/javascript" {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(body, "CampusAgent") {
		t.Error("script body missing")
	}
}

func TestEventEndpoints_RateLimitedPerPage(t *testing.T) {
	e := newEnv(t)
	e.handler.Limit = ratelimit.New(1, time.Minute)
	t.Cleanup(e.handler.Limit.Stop)
	limited := httptest.NewServer(gateway.Routes(e.handler))
	t.Cleanup(limited.Close)
	e.gateway = limited

	page1 := map[string]string{gateway.ClientHeader: "page-1"}
	page2 := map[string]string{gateway.ClientHeader: "page-2"}

	resp, _ := e.do(t, http.MethodPost, "/__agent/sync", `{"tag":"sync-notifications"}`, page1)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first status = %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodPost, "/__agent/sync", `{"tag":"sync-notifications"}`, page1)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodPost, "/__agent/sync", `{"tag":"sync-notifications"}`, page2)
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("other page status = %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodGet, "/__agent/client.js", "", page1)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("client.js is not limited, status = %d", resp.StatusCode)
	}
}

// connect opens a page stream registered under pageURL and returns its
// reader and client id.
func (e *env) connect(t *testing.T, pageURL string) (*bufio.Reader, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		e.gateway.URL+"/__agent/connect?url="+url.QueryEscape(pageURL), nil)
	stream, err := e.gateway.Client().Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = stream.Body.Close() })
	events := bufio.NewReader(stream.Body)

	hello := readEvent(t, events)
	var id struct {
		ClientID string `json:"clientId"`
	}
	if hello.name != "hello" || json.Unmarshal([]byte(hello.data), &id) != nil || id.ClientID == "" {
		t.Fatalf("hello = %+v", hello)
	}
	return events, id.ClientID
}

func TestNotificationClick_FocusesPageLoadedThroughGateway(t *testing.T) {
	e := newEnv(t)
	events, _ := e.connect(t, e.gateway.URL+"/dashboard/student/events")

	resp, _ := e.do(t, http.MethodPost, "/__agent/notificationclick",
		`{"tag":"evt-1","data":{"url":"/dashboard/student/events","id":"evt-1"}}`, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	ev := readEvent(t, events)
	if ev.name != clients.EventFocus {
		t.Fatalf("expected focus, got %+v", ev)
	}
	var info clients.Info
	if err := json.Unmarshal([]byte(ev.data), &info); err != nil {
		t.Fatal(err)
	}
	if info.URL != "/dashboard/student/events" {
		t.Errorf("focus url = %q", info.URL)
	}
}

func TestNotificationClick_OpensGatewayRelativeWindow(t *testing.T) {
	e := newEnv(t)
	events, _ := e.connect(t, e.gateway.URL+"/")

	e.do(t, http.MethodPost, "/__agent/notificationclick", `{"tag":"n","data":{"url":"/library?shelf=2"}}`, nil)

	ev := readEvent(t, events)
	if ev.name != clients.EventNavigate {
		t.Fatalf("expected navigate, got %+v", ev)
	}
	var nav struct {
		URL       string `json:"url"`
		NewWindow bool   `json:"newWindow"`
	}
	if err := json.Unmarshal([]byte(ev.data), &nav); err != nil {
		t.Fatal(err)
	}
	if nav.URL != "/library?shelf=2" || !nav.NewWindow {
		t.Errorf("navigate = %+v", nav)
	}
}

func TestNavigated_ThenClickFocuses(t *testing.T) {
	e := newEnv(t)
	events, id := e.connect(t, e.gateway.URL+"/")
	page := map[string]string{gateway.ClientHeader: id}

	resp, _ := e.do(t, http.MethodPost, "/__agent/navigated", `{"url":"`+e.gateway.URL+`/library"}`, page)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("navigated status = %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodPost, "/__agent/navigated", `{}`, page)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing url status = %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodPost, "/__agent/navigated", `{"url":"/x"}`,
		map[string]string{gateway.ClientHeader: "missing"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown client status = %d", resp.StatusCode)
	}

	e.do(t, http.MethodPost, "/__agent/notificationclick", `{"tag":"n","data":{"url":"/library"}}`, nil)
	if ev := readEvent(t, events); ev.name != clients.EventFocus {
		t.Fatalf("expected focus after navigation, got %+v", ev)
	}
}
