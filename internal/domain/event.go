package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Logical publisher identities, one per owning service.
const (
	PublisherUser    = "Service.User"
	PublisherProject = "Service.Project"
	PublisherIssue   = "Service.Issue"
)

// Event actions.
const (
	ActionCreated = "Created"
	ActionUpdated = "Updated"
)

// Event is the in-process notification of a completed state change. Events
// are immutable once constructed and are shared by reference across all
// broker subscribers; the payload must be treated as read-only.
type Event struct {
	EventID    string    `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
	EventName  string    `json:"event_name"`
	Publisher  string    `json:"publisher"`
	RequestID  string    `json:"request_id"`
	Payload    any       `json:"payload"`
}

// EventName composes the canonical event name from its parts, e.g.
// "Service.Project#Project#Created".
func EventName(publisher, aggregate, action string) string {
	return fmt.Sprintf("%s#%s#%s", publisher, aggregate, action)
}

// NewEvent constructs an immutable event with a fresh id and the supplied
// occurrence time. The payload is the persisted aggregate snapshot.
func NewEvent(publisher, aggregate, action, requestID string, occurredAt time.Time, payload any) Event {
	return Event{
		EventID:    uuid.NewString(),
		OccurredAt: occurredAt,
		EventName:  EventName(publisher, aggregate, action),
		Publisher:  publisher,
		RequestID:  requestID,
		Payload:    payload,
	}
}
