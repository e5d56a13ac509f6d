// internal/app/agent/events.go
package agent

import (
	"net/http"

	"github.com/dalemusser/campushub/internal/domain/models"
)

// Event is one event delivered to the agent. The set is closed.
type Event interface {
	eventName() string
}

// InstallEvent asks the agent to populate its cache generation.
type InstallEvent struct{}

// ActivateEvent asks the agent to retire old generations and take control.
type ActivateEvent struct{}

// FetchEvent is a request made by a page. Request.URL must be absolute.
// Navigate is set for top-level page navigations.
type FetchEvent struct {
	Request  *http.Request
	Navigate bool
}

// PushEvent carries a push message payload as received.
type PushEvent struct {
	Data []byte
}

// NotificationClickEvent reports a click on a displayed notification.
type NotificationClickEvent struct {
	Tag string
	URL string
	ID  string
}

// MessageEvent is a message from the page identified by ClientID.
type MessageEvent struct {
	ClientID string
	Data     []byte
}

// SyncEvent is a background sync firing for Tag.
type SyncEvent struct {
	Tag string
}

func (InstallEvent) eventName() string           { return "install" }
func (ActivateEvent) eventName() string          { return "activate" }
func (FetchEvent) eventName() string             { return "fetch" }
func (PushEvent) eventName() string              { return "push" }
func (NotificationClickEvent) eventName() string { return "notificationclick" }
func (MessageEvent) eventName() string           { return "message" }
func (SyncEvent) eventName() string              { return "sync" }

// Result is the outcome of a dispatched event. For fetch events Handled says
// whether the agent answered the request; when it is false the host handles
// the request itself and Response is nil.
type Result struct {
	Handled  bool
	Response *models.Response
}
