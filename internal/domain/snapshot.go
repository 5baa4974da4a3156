// Package domain defines the context snapshot assembled for the coaching assistant.
package domain

import "time"

// Source names one of the independent data sources feeding a Snapshot.
type Source string

const (
	SourceProfile        Source = "profile"
	SourceDashboard      Source = "dashboard"
	SourceCatalog        Source = "exercise-catalog"
	SourceWeightTrend    Source = "weight-trend"
	SourceWorkoutHistory Source = "workout-history"
)

// AllSources lists every source in merge order.
var AllSources = []Source{
	SourceProfile,
	SourceDashboard,
	SourceCatalog,
	SourceWeightTrend,
	SourceWorkoutHistory,
}

// Profile holds the owner's display attributes.
type Profile struct {
	UserID          string  `json:"user_id"`
	DisplayName     string  `json:"display_name"`
	Units           string  `json:"units"`
	HeightCm        float64 `json:"height_cm,omitempty"`
	GoalWeightKg    float64 `json:"goal_weight_kg,omitempty"`
	ExperienceLevel string  `json:"experience_level,omitempty"`
}

// Plan references the user's active training plan.
type Plan struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Goal        string    `json:"goal,omitempty"`
	DaysPerWeek int       `json:"days_per_week,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

// ProfileBundle is returned by the profile/plan lookup.
type ProfileBundle struct {
	Profile    Profile
	ActivePlan *Plan
}

// WorkoutSummary is a dashboard entry for a recently completed workout.
type WorkoutSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMin int       `json:"duration_min"`
	VolumeKg    float64   `json:"volume_kg,omitempty"`
}

// Exercise is a full catalog entry as stored by the catalog source.
type Exercise struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	MuscleGroups []string `json:"muscle_groups,omitempty"`
	Equipment    []string `json:"equipment_needed,omitempty"`
	Difficulty   string   `json:"difficulty,omitempty"`
	IsCompound   bool     `json:"is_compound"`
}

// ExerciseRef is the reduced catalog entry carried by a Snapshot.
type ExerciseRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Ref reduces the exercise to its snapshot representation.
func (e Exercise) Ref() ExerciseRef {
	return ExerciseRef{ID: e.ID, Name: e.Name, Category: e.Category}
}

// WeightSample is one time-stamped body weight measurement.
type WeightSample struct {
	RecordedAt time.Time `json:"recorded_at"`
	WeightKg   float64   `json:"weight_kg"`
}

// SetDetail is a single logged set inside a workout.
type SetDetail struct {
	ExerciseID string  `json:"exercise_id"`
	Reps       int     `json:"reps"`
	WeightKg   float64 `json:"weight_kg"`
}

// WorkoutDetail is a detailed workout history record.
type WorkoutDetail struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	StartedAt   time.Time   `json:"started_at"`
	DurationMin int         `json:"duration_min"`
	Notes       string      `json:"notes,omitempty"`
	Sets        []SetDetail `json:"sets"`
}

// Snapshot is the consolidated, read-only view of a user's data. It is built by
// one aggregation and replaced wholesale; callers must not modify it.
type Snapshot struct {
	UserID          string           `json:"user_id"`
	RequestID       string           `json:"request_id"`
	AssembledAt     time.Time        `json:"assembled_at"`
	Profile         Profile          `json:"profile"`
	ActivePlan      *Plan            `json:"active_plan"`
	RecentActivity  []WorkoutSummary `json:"recent_activity"`
	Exercises       []ExerciseRef    `json:"exercises"`
	WeightHistory   []WeightSample   `json:"weight_history"`
	DetailedHistory []WorkoutDetail  `json:"detailed_history"`
	// Missing lists sources substituted with empty defaults. Only the partial
	// fan-in policy populates it.
	Missing []Source `json:"missing,omitempty"`
}

// Complete reports whether every source contributed to the snapshot.
func (s *Snapshot) Complete() bool {
	return s != nil && len(s.Missing) == 0
}

// ProfileAttributes carries profile values pushed by the session bridge. Empty
// fields leave the fetched value untouched.
type ProfileAttributes struct {
	DisplayName     string  `json:"display_name,omitempty"`
	Units           string  `json:"units,omitempty"`
	HeightCm        float64 `json:"height_cm,omitempty"`
	GoalWeightKg    float64 `json:"goal_weight_kg,omitempty"`
	ExperienceLevel string  `json:"experience_level,omitempty"`
}

// IsZero reports whether no attribute is set.
func (a ProfileAttributes) IsZero() bool {
	return a == ProfileAttributes{}
}

// Merge returns attrs layered over a, with non-empty values in attrs winning.
func (a ProfileAttributes) Merge(attrs ProfileAttributes) ProfileAttributes {
	out := a
	if attrs.DisplayName != "" {
		out.DisplayName = attrs.DisplayName
	}
	if attrs.Units != "" {
		out.Units = attrs.Units
	}
	if attrs.HeightCm > 0 {
		out.HeightCm = attrs.HeightCm
	}
	if attrs.GoalWeightKg > 0 {
		out.GoalWeightKg = attrs.GoalWeightKg
	}
	if attrs.ExperienceLevel != "" {
		out.ExperienceLevel = attrs.ExperienceLevel
	}
	return out
}

// Apply overlays the attributes onto a profile.
func (a ProfileAttributes) Apply(p Profile) Profile {
	merged := ProfileAttributes{
		DisplayName:     p.DisplayName,
		Units:           p.Units,
		HeightCm:        p.HeightCm,
		GoalWeightKg:    p.GoalWeightKg,
		ExperienceLevel: p.ExperienceLevel,
	}.Merge(a)
	p.DisplayName = merged.DisplayName
	p.Units = merged.Units
	p.HeightCm = merged.HeightCm
	p.GoalWeightKg = merged.GoalWeightKg
	p.ExperienceLevel = merged.ExperienceLevel
	return p
}

// WithProfile returns a copy of the snapshot whose profile carries the overlay.
// The receiver is left untouched.
func (s *Snapshot) WithProfile(attrs ProfileAttributes) *Snapshot {
	if s == nil || attrs.IsZero() {
		return s
	}
	clone := *s
	clone.Profile = attrs.Apply(s.Profile)
	return &clone
}
