package events

import "time"

// ContextInvalidated tells downstream consumers that the user's assembled
// context changed or was discarded.
type ContextInvalidated struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
