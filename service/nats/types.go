package nats

import (
	"time"

	"github.com/brojonat/walletscope/service/wallet"
)

// EventKind identifies what a published session event carries.
type EventKind string

const (
	// EventSessionUpdated carries a new session snapshot.
	EventSessionUpdated EventKind = "updated"
	// EventNavigateLogin asks dashboards to show the login screen.
	EventNavigateLogin EventKind = "login"
	// EventReload asks dashboards to reload after a chain change.
	EventReload EventKind = "reload"
)

// SessionEvent is published to the subject "sessions.{kind}" in JetStream.
type SessionEvent struct {
	Kind    EventKind       `json:"kind"`
	Session *wallet.Session `json:"session,omitempty"`

	PublishedAt time.Time `json:"published_at"`
}

// NewSessionEvent builds an event stamped with the current time.
// sess may be nil for navigation signals.
func NewSessionEvent(kind EventKind, sess *wallet.Session) *SessionEvent {
	return &SessionEvent{
		Kind:        kind,
		Session:     sess,
		PublishedAt: time.Now().UTC(),
	}
}

// Subject returns the JetStream subject an event kind is published to.
func Subject(kind EventKind) string {
	return subjectPrefix + string(kind)
}
