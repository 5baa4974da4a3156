// Package memory serves every context source from process memory for local
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"example.com/coachcontext/internal/domain"
)

// DemoUserID owns the seeded records.
const DemoUserID = "demo-user"

// Limits bound the size of the list-shaped sources.
type Limits struct {
	Dashboard    int
	History      int
	WeightWindow time.Duration
}

// DefaultLimits mirror the Postgres repository.
var DefaultLimits = Limits{Dashboard: 10, History: 20, WeightWindow: 90 * 24 * time.Hour}

// Option configures the repository.
type Option func(*Repository)

// WithLimits overrides DefaultLimits.
func WithLimits(limits Limits) Option {
	return func(r *Repository) { r.limits = limits }
}

// WithClock overrides the clock used for the weight window.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithoutSeed starts the repository empty.
func WithoutSeed() Option {
	return func(r *Repository) { r.skipSeed = true }
}

// Repository implements every domain source in memory.
type Repository struct {
	mu        sync.RWMutex
	profiles  map[string]domain.Profile
	plans     map[string]domain.Plan
	workouts  map[string][]domain.WorkoutDetail
	weights   map[string][]domain.WeightSample
	exercises map[string]domain.Exercise

	limits   Limits
	now      func() time.Time
	skipSeed bool
}

// NewRepository constructs a repository populated with a demo user and a
// starter catalog.
func NewRepository(opts ...Option) *Repository {
	repo := &Repository{
		profiles:  make(map[string]domain.Profile),
		plans:     make(map[string]domain.Plan),
		workouts:  make(map[string][]domain.WorkoutDetail),
		weights:   make(map[string][]domain.WeightSample),
		exercises: make(map[string]domain.Exercise),
		limits:    DefaultLimits,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(repo)
	}
	if !repo.skipSeed {
		repo.seed()
	}
	return repo
}

func (r *Repository) seed() {
	now := r.now()
	catalog := []struct {
		name, region, difficulty string
		muscles, equipment       []string
		compound                 bool
	}{
		{"Back Squat", "Lower Body", "Intermediate", []string{"Quadriceps", "Glutes"}, []string{"Barbell", "Squat Rack"}, true},
		{"Bench Press", "Upper Body", "Intermediate", []string{"Pectoralis Major", "Triceps Brachii"}, []string{"Barbell", "Bench"}, true},
		{"Bent Over Row", "Upper Body", "Intermediate", []string{"Latissimus Dorsi", "Rhomboids"}, []string{"Barbell"}, true},
		{"Overhead Press", "Upper Body", "Beginner", []string{"Anterior Deltoids", "Triceps Brachii"}, []string{"Barbell"}, true},
		{"Hammer Curl", "Upper Body", "Novice", []string{"Biceps Brachii", "Brachioradialis"}, []string{"Dumbbell"}, false},
		{"Plank", "Core", "Novice", []string{"Rectus Abdominis"}, nil, false},
		{"Kettlebell Swing", "Full Body", "Expert", []string{"Glutes", "Hamstrings", "glutes"}, []string{"Kettlebell"}, true},
	}
	for _, c := range catalog {
		ex := domain.Exercise{
			ID:           domain.StableExerciseID(strings.ToLower(c.name)),
			Name:         c.name,
			Category:     domain.InferCategory(c.region, c.muscles...),
			MuscleGroups: domain.DedupeFold(c.muscles),
			Equipment:    domain.DedupeFold(c.equipment),
			Difficulty:   domain.NormalizeDifficulty(c.difficulty),
			IsCompound:   c.compound,
		}
		r.exercises[ex.ID] = ex
	}

	r.profiles[DemoUserID] = domain.Profile{
		UserID:          DemoUserID,
		DisplayName:     "Demo Athlete",
		Units:           "metric",
		HeightCm:        176,
		GoalWeightKg:    78,
		ExperienceLevel: "intermediate",
	}
	r.plans[DemoUserID] = domain.Plan{
		ID:          "plan-demo",
		Name:        "Upper/Lower Split",
		Goal:        "strength",
		DaysPerWeek: 4,
		StartedAt:   now.AddDate(0, 0, -21),
	}

	squat := domain.StableExerciseID("back squat")
	bench := domain.StableExerciseID("bench press")
	r.workouts[DemoUserID] = []domain.WorkoutDetail{
		{
			ID: "w-demo-1", Name: "Lower A", StartedAt: now.AddDate(0, 0, -3), DurationMin: 58,
			Sets: []domain.SetDetail{{ExerciseID: squat, Reps: 5, WeightKg: 100}, {ExerciseID: squat, Reps: 5, WeightKg: 100}},
		},
		{
			ID: "w-demo-2", Name: "Upper A", StartedAt: now.AddDate(0, 0, -1), DurationMin: 52, Notes: "bench felt strong",
			Sets: []domain.SetDetail{{ExerciseID: bench, Reps: 5, WeightKg: 80}, {ExerciseID: bench, Reps: 5, WeightKg: 80}},
		},
	}
	for i := 0; i < 6; i++ {
		r.weights[DemoUserID] = append(r.weights[DemoUserID], domain.WeightSample{
			RecordedAt: now.AddDate(0, 0, -7*(5-i)),
			WeightKg:   82.5 - 0.4*float64(i),
		})
	}
}

// PutProfile stores the profile keyed by its user id.
func (r *Repository) PutProfile(profile domain.Profile) error {
	if strings.TrimSpace(profile.UserID) == "" {
		return domain.ErrMissingUserID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.UserID] = profile
	return nil
}

// SetActivePlan records the user's active plan. A nil plan clears it.
func (r *Repository) SetActivePlan(userID string, plan *domain.Plan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if plan == nil {
		delete(r.plans, userID)
		return
	}
	r.plans[userID] = *plan
}

// RecordWorkout appends a completed workout for the user.
func (r *Repository) RecordWorkout(userID string, workout domain.WorkoutDetail) {
	r.mu.Lock()
	defer r.mu.Unlock()
	workout.Sets = append([]domain.SetDetail(nil), workout.Sets...)
	r.workouts[userID] = append(r.workouts[userID], workout)
}

// RecordWeight appends a weight sample for the user.
func (r *Repository) RecordWeight(userID string, sample domain.WeightSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.weights[userID] = append(r.weights[userID], sample)
}

// PutExercise adds or replaces a catalog entry.
func (r *Repository) PutExercise(ex domain.Exercise) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exercises[ex.ID] = ex
}

// FetchProfile implements domain.ProfileSource.
func (r *Repository) FetchProfile(ctx context.Context, userID string) (domain.ProfileBundle, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProfileBundle{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[userID]
	if !ok {
		return domain.ProfileBundle{}, fmt.Errorf("user %s: %w", userID, domain.ErrProfileNotFound)
	}
	bundle := domain.ProfileBundle{Profile: profile}
	if plan, ok := r.plans[userID]; ok {
		bundle.ActivePlan = &plan
	}
	return bundle, nil
}

// FetchDashboard implements domain.DashboardSource.
func (r *Repository) FetchDashboard(ctx context.Context, userID string) ([]domain.WorkoutSummary, error) {
	recent, err := r.recentWorkouts(ctx, userID, r.limits.Dashboard)
	if err != nil {
		return nil, err
	}
	out := make([]domain.WorkoutSummary, 0, len(recent))
	for _, w := range recent {
		out = append(out, domain.WorkoutSummary{
			ID:          w.ID,
			Name:        w.Name,
			CompletedAt: w.StartedAt.Add(time.Duration(w.DurationMin) * time.Minute),
			DurationMin: w.DurationMin,
			VolumeKg:    volume(w.Sets),
		})
	}
	return out, nil
}

// FetchCatalog implements domain.CatalogSource. Entries are ordered by name.
func (r *Repository) FetchCatalog(ctx context.Context, _ string) ([]domain.Exercise, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Exercise, 0, len(r.exercises))
	for _, ex := range r.exercises {
		ex.MuscleGroups = append([]string(nil), ex.MuscleGroups...)
		ex.Equipment = append([]string(nil), ex.Equipment...)
		out = append(out, ex)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FetchWeightTrend implements domain.WeightTrendSource.
func (r *Repository) FetchWeightTrend(ctx context.Context, userID string) ([]domain.WeightSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	since := r.now().Add(-r.limits.WeightWindow)

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.WeightSample, 0, len(r.weights[userID]))
	for _, s := range r.weights[userID] {
		if !s.RecordedAt.Before(since) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

// FetchHistory implements domain.HistorySource.
func (r *Repository) FetchHistory(ctx context.Context, userID string) ([]domain.WorkoutDetail, error) {
	return r.recentWorkouts(ctx, userID, r.limits.History)
}

func (r *Repository) recentWorkouts(ctx context.Context, userID string, limit int) ([]domain.WorkoutDetail, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.WorkoutDetail, 0, len(r.workouts[userID]))
	for _, w := range r.workouts[userID] {
		w.Sets = append([]domain.SetDetail(nil), w.Sets...)
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func volume(sets []domain.SetDetail) float64 {
	var total float64
	for _, s := range sets {
		total += float64(s.Reps) * s.WeightKg
	}
	return total
}
