package integration

import "github.com/example/issue-tracker/internal/domain"

// Record is the external wire-format projection of a domain event. Its ID
// is the event id, which downstream consumers use as an idempotency key to
// deduplicate under at-least-once delivery.
type Record struct {
	ID        string `json:"id"`
	RequestID string `json:"request_id"`
	CreatedAt int64  `json:"created_at"`
	Name      string `json:"name"`
	Publisher string `json:"publisher"`
	Payload   any    `json:"payload"`
}

// FromEvent projects a domain event into its wire-format record. CreatedAt
// carries epoch seconds.
func FromEvent(ev domain.Event) Record {
	return Record{
		ID:        ev.EventID,
		RequestID: ev.RequestID,
		CreatedAt: ev.OccurredAt.Unix(),
		Name:      ev.EventName,
		Publisher: ev.Publisher,
		Payload:   ev.Payload,
	}
}
