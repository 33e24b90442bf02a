package webhook

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies what happened in the business domain.
type EventType string

// Wildcard matches every event type when present in an endpoint's
// subscription set.
const Wildcard EventType = "*"

// Known event types. The set is closed but extensible: dispatch accepts any
// EventType value, these constants just name the ones Menucast emits today.
const (
	EventMenuCreated   EventType = "menu.created"
	EventMenuUpdated   EventType = "menu.updated"
	EventMenuDeleted   EventType = "menu.deleted"
	EventMenuPublished EventType = "menu.published"

	EventVenueCreated EventType = "venue.created"
	EventVenueUpdated EventType = "venue.updated"
	EventVenueDeleted EventType = "venue.deleted"

	EventQRCreated EventType = "qr.created"
	EventQRDeleted EventType = "qr.deleted"
	EventQRScanned EventType = "qr.scanned"

	EventSubscriptionCreated  EventType = "subscription.created"
	EventSubscriptionRenewed  EventType = "subscription.renewed"
	EventSubscriptionCanceled EventType = "subscription.canceled"

	EventTeamMemberAdded   EventType = "team.member_added"
	EventTeamMemberRemoved EventType = "team.member_removed"
)

// Event is an immutable fact about a business occurrence. It is created once
// per occurrence and embedded into each delivery's payload; it is never
// persisted on its own.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// NewEvent builds an event with a fresh identifier and the current time.
func NewEvent(eventType EventType, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}
