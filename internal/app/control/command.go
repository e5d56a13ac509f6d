// internal/app/control/command.go
//
// Package control decodes the commands open pages send to the agent.
// Command is a closed set: only the types in this package implement it, so a
// type switch over Command in the agent is exhaustive.
package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// Message types accepted from pages.
const (
	TypeInitNotificationChannel = "INIT_NOTIFICATION_CHANNEL"
	TypeInvalidateCache         = "INVALIDATE_CACHE"
	TypeForceNetworkFetch       = "FORCE_NETWORK_FETCH"
	TypeSkipWaitingOnAPIRoutes  = "SKIP_WAITING_ON_API_ROUTES"
	TypeClearNotifications      = "CLEAR_NOTIFICATIONS"
	TypeMarkNotificationRead    = "MARK_NOTIFICATION_READ"
	TypeRequestNotificationSync = "REQUEST_NOTIFICATION_SYNC"
)

// MaxPatternLength bounds an INVALIDATE_CACHE pattern.
const MaxPatternLength = 512

var (
	// ErrUnknownCommand is returned for a message whose type is not a command.
	ErrUnknownCommand = errors.New("control: unknown command")
	// ErrInvalidCommand is returned for a known command with unusable fields.
	ErrInvalidCommand = errors.New("control: invalid command")
)

// Command is one decoded control message.
type Command interface {
	Type() string
	command()
}

// InitNotificationChannel subscribes the sender to live notification broadcasts.
type InitNotificationChannel struct{}

// InvalidateCache removes entries by exact URL or by key pattern. Pattern is
// nil when URLs are given.
type InvalidateCache struct {
	URLs    []string
	Pattern *regexp.Regexp
}

// ForceNetworkFetch refetches URLs and stores the fresh copies. With no URLs it
// drops every cached API response instead.
type ForceNetworkFetch struct {
	URLs []string
}

// SkipWaitingOnAPIRoutes drops every cached API response.
type SkipWaitingOnAPIRoutes struct{}

// ClearNotifications deletes all stored notifications.
type ClearNotifications struct{}

// MarkNotificationRead sets the read flag on one stored notification.
type MarkNotificationRead struct {
	ID string
}

// RequestNotificationSync sends the stored backlog to the sender.
type RequestNotificationSync struct{}

func (InitNotificationChannel) Type() string { return TypeInitNotificationChannel }
func (InvalidateCache) Type() string         { return TypeInvalidateCache }
func (ForceNetworkFetch) Type() string       { return TypeForceNetworkFetch }
func (SkipWaitingOnAPIRoutes) Type() string  { return TypeSkipWaitingOnAPIRoutes }
func (ClearNotifications) Type() string      { return TypeClearNotifications }
func (MarkNotificationRead) Type() string    { return TypeMarkNotificationRead }
func (RequestNotificationSync) Type() string { return TypeRequestNotificationSync }

func (InitNotificationChannel) command() {}
func (InvalidateCache) command()         {}
func (ForceNetworkFetch) command()       {}
func (SkipWaitingOnAPIRoutes) command()  {}
func (ClearNotifications) command()      {}
func (MarkNotificationRead) command()    {}
func (RequestNotificationSync) command() {}

// message is the wire shape of every page message.
type message struct {
	Type    string   `json:"type"`
	URLs    []string `json:"urls,omitempty"`
	Pattern *string  `json:"pattern,omitempty"`
	ID      string   `json:"id,omitempty"`
}

// Parse decodes a page message.
func Parse(data []byte) (Command, error) {
	var m message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	switch m.Type {
	case TypeInitNotificationChannel:
		return InitNotificationChannel{}, nil
	case TypeInvalidateCache:
		return parseInvalidate(m)
	case TypeForceNetworkFetch:
		return ForceNetworkFetch{URLs: m.URLs}, nil
	case TypeSkipWaitingOnAPIRoutes:
		return SkipWaitingOnAPIRoutes{}, nil
	case TypeClearNotifications:
		return ClearNotifications{}, nil
	case TypeMarkNotificationRead:
		if m.ID == "" {
			return nil, fmt.Errorf("%w: %s requires id", ErrInvalidCommand, m.Type)
		}
		return MarkNotificationRead{ID: m.ID}, nil
	case TypeRequestNotificationSync:
		return RequestNotificationSync{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, m.Type)
	}
}

// parseInvalidate prefers urls over pattern when both are present.
func parseInvalidate(m message) (Command, error) {
	if len(m.URLs) > 0 {
		return InvalidateCache{URLs: m.URLs}, nil
	}
	if m.Pattern == nil {
		return nil, fmt.Errorf("%w: %s requires urls or pattern", ErrInvalidCommand, m.Type)
	}
	if len(*m.Pattern) > MaxPatternLength {
		return nil, fmt.Errorf("%w: pattern longer than %d bytes", ErrInvalidCommand, MaxPatternLength)
	}
	re, err := regexp.Compile(*m.Pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: pattern: %v", ErrInvalidCommand, err)
	}
	return InvalidateCache{Pattern: re}, nil
}
