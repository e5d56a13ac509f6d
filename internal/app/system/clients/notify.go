// internal/app/system/clients/notify.go
package clients

import (
	"context"
	"errors"
	"html"
)

// ErrEmptyTitle is returned when a notification has nothing to show.
var ErrEmptyTitle = errors.New("clients: notification title is empty")

// MaxDisplayed bounds the notifications kept on screen. Showing one more
// closes the oldest.
const MaxDisplayed = 50

// Notification is a platform notification as shown to the user.
type Notification struct {
	Title   string           `json:"title"`
	Body    string           `json:"body"`
	Icon    string           `json:"icon,omitempty"`
	Badge   string           `json:"badge,omitempty"`
	Vibrate []int            `json:"vibrate,omitempty"`
	Tag     string           `json:"tag"`
	Data    NotificationData `json:"data"`
}

// NotificationData travels with a notification and comes back on click.
type NotificationData struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

// ShowNotification displays n on every connected page. A notification with
// the same tag replaces the one already shown. Title and body are reduced to
// plain text before display.
func (h *Hub) ShowNotification(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.Title = h.plainText(n.Title)
	n.Body = h.plainText(n.Body)
	if n.Title == "" {
		return ErrEmptyTitle
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.displayed[n.Tag]; !exists {
		h.order = append(h.order, n.Tag)
	}
	h.displayed[n.Tag] = n
	for _, c := range h.clients {
		h.deliver(c, Event{Name: EventNotification, Data: n})
	}
	for len(h.order) > MaxDisplayed {
		h.close(h.order[0])
	}
	return nil
}

// CloseNotification dismisses the notification with tag. Unknown tags are
// ignored.
func (h *Hub) CloseNotification(tag string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.close(tag)
}

func (h *Hub) close(tag string) {
	if _, ok := h.displayed[tag]; !ok {
		return
	}
	delete(h.displayed, tag)
	for i, t := range h.order {
		if t == tag {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	for _, c := range h.clients {
		h.deliver(c, Event{Name: EventNotificationClose, Data: map[string]string{"tag": tag}})
	}
}

// Displayed returns the notifications currently shown, oldest first.
func (h *Hub) Displayed() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Notification, 0, len(h.order))
	for _, t := range h.order {
		out = append(out, h.displayed[t])
	}
	return out
}

// plainText strips markup; the policy escapes entities, which a platform
// notification renders literally, so they are decoded again.
func (h *Hub) plainText(s string) string {
	return html.UnescapeString(h.sanitize.Sanitize(s))
}
