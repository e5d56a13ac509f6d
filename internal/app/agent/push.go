// internal/app/agent/push.go
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/dalemusser/campushub/internal/app/system/clients"
	"github.com/dalemusser/campushub/internal/app/system/tasks"
	"github.com/dalemusser/campushub/internal/domain/models"
	"go.uber.org/zap"
)

// Message types sent to pages.
const (
	MessageNotificationReceived = "NOTIFICATION_RECEIVED"
	MessageSyncNotifications    = "SYNC_NOTIFICATIONS"
)

// Display defaults for platform notifications.
const (
	DefaultNotificationTitle = "CampusHub"
	DefaultNotificationIcon  = "/icons/icon-192x192.png"
	DefaultNotificationBadge = "/icons/icon-192x192.png"
)

// VibratePattern is the vibration pattern of every displayed notification.
var VibratePattern = []int{200, 100, 200}

// NotificationReceived is broadcast when a push arrives.
type NotificationReceived struct {
	Type         string                    `json:"type"`
	Notification models.NotificationRecord `json:"notification"`
}

// SyncNotifications carries the stored backlog to one page.
type SyncNotifications struct {
	Type          string                      `json:"type"`
	Notifications []models.NotificationRecord `json:"notifications"`
}

// pushPayload accepts both the nested and the flat payload shapes.
type pushPayload struct {
	Notification *struct {
		Title string `json:"title"`
		Body  string `json:"body"`
		Icon  string `json:"icon"`
	} `json:"notification"`
	Data *struct {
		URL string   `json:"url"`
		ID  stringID `json:"id"`
	} `json:"data"`
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// stringID accepts a JSON string or number.
type stringID string

func (s *stringID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = stringID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = stringID(n.String())
	return nil
}

// parsePush builds a record from a push payload. ok is false when the
// payload is absent or not a JSON object.
func (a *Agent) parsePush(data []byte) (rec models.NotificationRecord, icon string, ok bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return rec, "", false
	}
	var p pushPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return rec, "", false
	}

	now := a.now()
	rec = models.NotificationRecord{
		ID:        strconv.FormatInt(now.UnixMilli(), 10),
		Title:     p.Title,
		Body:      p.Body,
		URL:       p.URL,
		Timestamp: models.FormatTimestamp(now),
	}
	if n := p.Notification; n != nil {
		rec.Title = firstNonEmpty(n.Title, rec.Title)
		rec.Body = firstNonEmpty(n.Body, rec.Body)
		icon = n.Icon
	}
	if d := p.Data; d != nil {
		rec.URL = firstNonEmpty(d.URL, rec.URL)
		rec.ID = firstNonEmpty(string(d.ID), rec.ID)
	}
	rec.Title = firstNonEmpty(rec.Title, DefaultNotificationTitle)
	rec.URL = firstNonEmpty(rec.URL, models.DefaultNotificationURL)
	return rec, firstNonEmpty(icon, DefaultNotificationIcon), true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// handlePush shows the notification (must complete) and, independently,
// broadcasts it to subscribed pages and stores it (best effort).
func (a *Agent) handlePush(g *tasks.Group, e PushEvent) {
	rec, icon, ok := a.parsePush(e.Data)
	if !ok {
		a.log.Debug("dropping push with missing or invalid payload", zap.Int("bytes", len(e.Data)))
		return
	}

	g.Go("show notification "+rec.ID, tasks.MustComplete, func(ctx context.Context) error {
		return a.notifier.ShowNotification(ctx, clients.Notification{
			Title:   rec.Title,
			Body:    rec.Body,
			Icon:    icon,
			Badge:   DefaultNotificationBadge,
			Vibrate: VibratePattern,
			Tag:     rec.ID,
			Data:    clients.NotificationData{URL: rec.URL, ID: rec.ID},
		})
	})

	g.Go("record notification "+rec.ID, tasks.BestEffort, func(ctx context.Context) error {
		n := a.channel.Broadcast(NotificationsChannel, NotificationReceived{
			Type:         MessageNotificationReceived,
			Notification: rec,
		})
		a.log.Debug("notification broadcast", zap.String("id", rec.ID), zap.Int("pages", n))

		sctx, cancel := a.storageContext(ctx, "store notification")
		defer cancel()
		if err := a.store.Put(sctx, rec); err != nil {
			a.log.Warn("failed to store notification", zap.String("id", rec.ID), zap.Error(err))
			return err
		}
		return nil
	})
}

// handleNotificationClick dismisses the notification, marks it read and
// brings the target page forward.
func (a *Agent) handleNotificationClick(g *tasks.Group, e NotificationClickEvent) {
	a.notifier.CloseNotification(e.Tag)

	if e.ID != "" {
		g.Go("mark read "+e.ID, tasks.BestEffort, func(ctx context.Context) error {
			sctx, cancel := a.storageContext(ctx, "mark notification read")
			defer cancel()
			return a.store.MarkRead(sctx, e.ID)
		})
	}

	g.Go("open "+e.URL, tasks.MustComplete, func(ctx context.Context) error {
		target, err := a.resolve(firstNonEmpty(e.URL, models.DefaultNotificationURL))
		if err != nil {
			a.log.Debug("ignoring click with bad url", zap.String("url", e.URL), zap.Error(err))
			return nil
		}
		want := target.String()
		for _, c := range a.clients.MatchAll() {
			if c.URL == want {
				return a.clients.Focus(c.ID)
			}
		}
		if err := a.clients.OpenWindow(want); err != nil && !errors.Is(err, clients.ErrNoWindowOpener) {
			return err
		}
		return nil
	})
}

// handleSync redeems background sync registrations.
func (a *Agent) handleSync(g *tasks.Group, e SyncEvent) {
	if e.Tag != SyncTagNotifications {
		a.log.Debug("ignoring unknown sync tag", zap.String("tag", e.Tag))
		return
	}
	g.Go("sync notifications", tasks.MustComplete, func(ctx context.Context) error {
		a.syncNotifications(ctx, "")
		return nil
	})
}

// syncNotifications sends the stored backlog to one page: the requester when
// it is still connected, otherwise the first open page. The primary store is
// read first and the fallback list only when the primary has nothing; the two
// are never merged.
func (a *Agent) syncNotifications(ctx context.Context, requester string) {
	sctx, cancel := a.storageContext(ctx, "read notifications")
	recs, err := a.store.All(sctx)
	cancel()
	if err != nil {
		a.log.Warn("failed to read notifications for sync", zap.Error(err))
		return
	}
	if recs == nil {
		recs = []models.NotificationRecord{}
	}
	msg := SyncNotifications{Type: MessageSyncNotifications, Notifications: recs}

	if requester != "" {
		err := a.clients.PostMessage(requester, msg)
		if err == nil {
			a.log.Debug("notifications synced", zap.String("client_id", requester), zap.Int("count", len(recs)))
			return
		}
		if !errors.Is(err, clients.ErrNoClient) {
			a.log.Warn("failed to send notification sync", zap.String("client_id", requester), zap.Error(err))
			return
		}
	}

	pages := a.clients.MatchAll()
	if len(pages) == 0 {
		a.log.Debug("no open page for notification sync")
		return
	}
	if err := a.clients.PostMessage(pages[0].ID, msg); err != nil {
		a.log.Warn("failed to send notification sync", zap.String("client_id", pages[0].ID), zap.Error(err))
		return
	}
	a.log.Debug("notifications synced", zap.String("client_id", pages[0].ID), zap.Int("count", len(recs)))
}
