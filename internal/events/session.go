// Package events defines the payloads exchanged over Kafka.
package events

import "time"

// Event types carried in the event_type header.
const (
	TypeSessionStarted     = "session.started"
	TypeSessionEnded       = "session.ended"
	TypeProfileUpdated     = "profile.updated"
	TypeContextInvalidated = "context.invalidated"
)

// ProfileAttributes are the profile-shaped values the identity provider
// pushes alongside session transitions.
type ProfileAttributes struct {
	DisplayName     string  `json:"display_name,omitempty"`
	Units           string  `json:"units,omitempty"`
	HeightCm        float64 `json:"height_cm,omitempty"`
	GoalWeightKg    float64 `json:"goal_weight_kg,omitempty"`
	ExperienceLevel string  `json:"experience_level,omitempty"`
}

// SessionStarted is emitted when a user signs in on a client.
type SessionStarted struct {
	EventID    string             `json:"event_id"`
	ClientID   string             `json:"client_id"`
	UserID     string             `json:"user_id"`
	Profile    *ProfileAttributes `json:"profile,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// SessionEnded is emitted when a client signs out.
type SessionEnded struct {
	EventID    string    `json:"event_id"`
	ClientID   string    `json:"client_id"`
	UserID     string    `json:"user_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ProfileUpdated carries changed profile attributes for an active session.
type ProfileUpdated struct {
	EventID    string            `json:"event_id"`
	ClientID   string            `json:"client_id"`
	UserID     string            `json:"user_id,omitempty"`
	Profile    ProfileAttributes `json:"profile"`
	OccurredAt time.Time         `json:"occurred_at"`
}
