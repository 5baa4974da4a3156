package api

import (
	"example.com/coachcontext/internal/cache"
	"example.com/coachcontext/internal/domain"
)

// ProfileRequest is the payload for POST /v1/sessions and PUT /v1/sessions/profile.
type ProfileRequest struct {
	DisplayName     string  `json:"display_name,omitempty"`
	Units           string  `json:"units,omitempty"`
	HeightCm        float64 `json:"height_cm,omitempty"`
	GoalWeightKg    float64 `json:"goal_weight_kg,omitempty"`
	ExperienceLevel string  `json:"experience_level,omitempty"`
}

func (r ProfileRequest) toDomain() domain.ProfileAttributes {
	return domain.ProfileAttributes{
		DisplayName:     r.DisplayName,
		Units:           r.Units,
		HeightCm:        r.HeightCm,
		GoalWeightKg:    r.GoalWeightKg,
		ExperienceLevel: r.ExperienceLevel,
	}
}

// SessionResponse describes the session opened by POST /v1/sessions.
type SessionResponse struct {
	ClientID  string `json:"client_id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	RequestID string `json:"request_id,omitempty"`
}

// StateView exposes the cache state of one client without triggering a load.
type StateView struct {
	ClientID  string           `json:"client_id"`
	Status    string           `json:"status"`
	UserID    string           `json:"user_id,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
	Snapshot  *domain.Snapshot `json:"snapshot,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// SourceFailureView names one failed source of an aggregation.
type SourceFailureView struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// AggregationErrorResponse is returned with 502 when an aggregation fails.
type AggregationErrorResponse struct {
	Type     string              `json:"type"`
	Detail   string              `json:"detail"`
	Failures []SourceFailureView `json:"failures"`
}

func toStateView(clientID string, state cache.State) StateView {
	view := StateView{
		ClientID:  clientID,
		Status:    string(state.Status),
		UserID:    state.UserID,
		RequestID: state.RequestID,
		Snapshot:  state.Snapshot,
	}
	if state.Err != nil {
		view.Error = state.Err.Error()
	}
	return view
}
