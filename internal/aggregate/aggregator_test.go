package aggregate

import (
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"example.com/coachcontext/internal/domain"
)

var fixedNow = time.Date(2025, time.November, 3, 7, 30, 0, 0, time.UTC)

func TestAggregateMergesEverySource(t *testing.T) {
	stub := newStubSources()
	agg := New(domain.AllSourcesFrom(stub), WithLogger(log.New(testWriter{t}, "", 0)), WithClock(func() time.Time { return fixedNow }))

	snap, err := agg.Aggregate(context.Background(), "u1")
	require.NoError(t, err)

	require.Equal(t, "u1", snap.UserID)
	require.NotEmpty(t, snap.RequestID)
	require.Equal(t, fixedNow, snap.AssembledAt)
	require.Equal(t, stub.bundle.Profile, snap.Profile)
	require.Equal(t, stub.bundle.ActivePlan, snap.ActivePlan)
	require.Equal(t, stub.dashboard, snap.RecentActivity)
	require.Equal(t, []domain.ExerciseRef{
		{ID: "ex-1", Name: "Back Squat", Category: "legs"},
		{ID: "ex-2", Name: "Plank", Category: "core"},
	}, snap.Exercises)
	require.Equal(t, stub.weight, snap.WeightHistory)
	require.Equal(t, stub.history, snap.DetailedHistory)
	require.Empty(t, snap.Missing)
	require.True(t, snap.Complete())
}

func TestAggregateCopiesAdapterSlices(t *testing.T) {
	stub := newStubSources()
	agg := New(domain.AllSourcesFrom(stub), WithLogger(log.New(testWriter{t}, "", 0)))

	snap, err := agg.Aggregate(context.Background(), "u1")
	require.NoError(t, err)

	stub.dashboard[0].Name = "mutated"
	stub.history[0].Sets[0].Reps = 99
	stub.bundle.ActivePlan.Name = "mutated"

	require.Equal(t, "Push Day", snap.RecentActivity[0].Name)
	require.Equal(t, 5, snap.DetailedHistory[0].Sets[0].Reps)
	require.Equal(t, "Strength Block", snap.ActivePlan.Name)
}

func TestAggregateRunsSourcesConcurrently(t *testing.T) {
	stub := newStubSources()
	var started sync.WaitGroup
	started.Add(len(domain.AllSources))
	release := make(chan struct{})
	stub.hook = func(ctx context.Context) error {
		started.Done()
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	agg := New(domain.AllSourcesFrom(stub), WithLogger(log.New(testWriter{t}, "", 0)))

	go func() {
		// Every adapter must be in flight at once before any is released.
		started.Wait()
		close(release)
	}()

	_, err := agg.Aggregate(context.Background(), "u1")
	require.NoError(t, err)
}

func TestAggregateAllOrNothingReportsEveryFailure(t *testing.T) {
	stub := newStubSources()
	stub.errs[domain.SourceWeightTrend] = errors.New("backend unavailable")
	stub.errs[domain.SourceCatalog] = errors.New("permission denied")
	agg := New(domain.AllSourcesFrom(stub), WithLogger(log.New(testWriter{t}, "", 0)))

	before := testutil.ToFloat64(adapterFailureCounter.WithLabelValues(string(domain.SourceWeightTrend)))

	snap, err := agg.Aggregate(context.Background(), "u1")
	require.Nil(t, snap)

	var aggErr *domain.AggregationError
	require.ErrorAs(t, err, &aggErr)
	require.Equal(t, "u1", aggErr.UserID)
	require.Len(t, aggErr.Failures, 2)
	require.True(t, aggErr.Failed(domain.SourceWeightTrend))
	require.True(t, aggErr.Failed(domain.SourceCatalog))
	require.False(t, aggErr.Failed(domain.SourceProfile))

	var adapterErr *domain.AdapterError
	require.ErrorAs(t, err, &adapterErr)
	require.ErrorIs(t, err, stub.errs[domain.SourceWeightTrend])

	after := testutil.ToFloat64(adapterFailureCounter.WithLabelValues(string(domain.SourceWeightTrend)))
	require.InDelta(t, before+1, after, 0.0001)
}

func TestAggregatePartialSubstitutesDefaults(t *testing.T) {
	stub := newStubSources()
	stub.errs[domain.SourceWeightTrend] = errors.New("backend unavailable")
	stub.errs[domain.SourceProfile] = errors.New("timeout")
	agg := New(domain.AllSourcesFrom(stub), WithPolicy(PolicyPartial), WithLogger(log.New(testWriter{t}, "", 0)))

	snap, err := agg.Aggregate(context.Background(), "u1")
	require.NoError(t, err)

	require.ElementsMatch(t, []domain.Source{domain.SourceProfile, domain.SourceWeightTrend}, snap.Missing)
	require.False(t, snap.Complete())
	require.Nil(t, snap.ActivePlan)
	require.Equal(t, domain.Profile{}, snap.Profile)
	require.NotNil(t, snap.WeightHistory)
	require.Empty(t, snap.WeightHistory)
	require.Equal(t, stub.dashboard, snap.RecentActivity)
	require.Len(t, snap.Exercises, 2)
}

func TestAggregatePartialFailsWhenEverySourceFails(t *testing.T) {
	stub := newStubSources()
	for _, source := range domain.AllSources {
		stub.errs[source] = errors.New("offline")
	}
	agg := New(domain.AllSourcesFrom(stub), WithPolicy(PolicyPartial), WithLogger(log.New(testWriter{t}, "", 0)))

	_, err := agg.Aggregate(context.Background(), "u1")
	var aggErr *domain.AggregationError
	require.ErrorAs(t, err, &aggErr)
	require.Len(t, aggErr.Failures, len(domain.AllSources))
}

func TestAggregateTimesOutHungAdapter(t *testing.T) {
	stub := newStubSources()
	stub.hangHistory = make(chan struct{})
	defer close(stub.hangHistory)
	agg := New(domain.AllSourcesFrom(stub), WithAdapterTimeout(20*time.Millisecond), WithLogger(log.New(testWriter{t}, "", 0)))

	start := time.Now()
	_, err := agg.Aggregate(context.Background(), "u1")
	require.Less(t, time.Since(start), 2*time.Second)

	var aggErr *domain.AggregationError
	require.ErrorAs(t, err, &aggErr)
	require.Len(t, aggErr.Failures, 1)
	require.Equal(t, domain.SourceWorkoutHistory, aggErr.Failures[0].Source)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAggregateReportsUnconfiguredSource(t *testing.T) {
	stub := newStubSources()
	sources := domain.AllSourcesFrom(stub)
	sources.Catalog = nil
	agg := New(sources, WithLogger(log.New(testWriter{t}, "", 0)))

	_, err := agg.Aggregate(context.Background(), "u1")
	require.ErrorIs(t, err, domain.ErrMissingSource)
}

func TestAggregateRequiresUserID(t *testing.T) {
	agg := New(domain.AllSourcesFrom(newStubSources()))
	_, err := agg.Aggregate(context.Background(), "  ")
	require.ErrorIs(t, err, domain.ErrMissingUserID)
}

func TestParsePolicy(t *testing.T) {
	policy, err := ParsePolicy("")
	require.NoError(t, err)
	require.Equal(t, PolicyAllOrNothing, policy)

	policy, err = ParsePolicy(" Partial ")
	require.NoError(t, err)
	require.Equal(t, PolicyPartial, policy)

	_, err = ParsePolicy("best_effort")
	require.Error(t, err)
}

type stubSources struct {
	bundle      domain.ProfileBundle
	dashboard   []domain.WorkoutSummary
	catalog     []domain.Exercise
	weight      []domain.WeightSample
	history     []domain.WorkoutDetail
	errs        map[domain.Source]error
	hook        func(context.Context) error
	hangHistory chan struct{}
}

func newStubSources() *stubSources {
	return &stubSources{
		bundle: domain.ProfileBundle{
			Profile: domain.Profile{UserID: "u1", DisplayName: "Sam", Units: "metric", HeightCm: 178},
			ActivePlan: &domain.Plan{
				ID:          "plan-1",
				Name:        "Strength Block",
				DaysPerWeek: 4,
				StartedAt:   fixedNow.AddDate(0, 0, -14),
			},
		},
		dashboard: []domain.WorkoutSummary{
			{ID: "w-2", Name: "Push Day", CompletedAt: fixedNow.Add(-24 * time.Hour), DurationMin: 55},
			{ID: "w-1", Name: "Leg Day", CompletedAt: fixedNow.Add(-72 * time.Hour), DurationMin: 62},
		},
		catalog: []domain.Exercise{
			{ID: "ex-1", Name: "Back Squat", Category: "legs", MuscleGroups: []string{"quadriceps"}, IsCompound: true},
			{ID: "ex-2", Name: "Plank", Category: "core", Difficulty: "beginner"},
		},
		weight: []domain.WeightSample{
			{RecordedAt: fixedNow.AddDate(0, 0, -7), WeightKg: 81.2},
			{RecordedAt: fixedNow, WeightKg: 80.4},
		},
		history: []domain.WorkoutDetail{
			{ID: "w-2", Name: "Push Day", StartedAt: fixedNow.Add(-25 * time.Hour), DurationMin: 55, Sets: []domain.SetDetail{{ExerciseID: "ex-1", Reps: 5, WeightKg: 100}}},
		},
		errs: make(map[domain.Source]error),
	}
}

func (s *stubSources) before(ctx context.Context, source domain.Source) error {
	if s.hook != nil {
		if err := s.hook(ctx); err != nil {
			return err
		}
	}
	return s.errs[source]
}

func (s *stubSources) FetchProfile(ctx context.Context, _ string) (domain.ProfileBundle, error) {
	if err := s.before(ctx, domain.SourceProfile); err != nil {
		return domain.ProfileBundle{}, err
	}
	return s.bundle, nil
}

func (s *stubSources) FetchDashboard(ctx context.Context, _ string) ([]domain.WorkoutSummary, error) {
	if err := s.before(ctx, domain.SourceDashboard); err != nil {
		return nil, err
	}
	return s.dashboard, nil
}

func (s *stubSources) FetchCatalog(ctx context.Context, _ string) ([]domain.Exercise, error) {
	if err := s.before(ctx, domain.SourceCatalog); err != nil {
		return nil, err
	}
	return s.catalog, nil
}

func (s *stubSources) FetchWeightTrend(ctx context.Context, _ string) ([]domain.WeightSample, error) {
	if err := s.before(ctx, domain.SourceWeightTrend); err != nil {
		return nil, err
	}
	return s.weight, nil
}

func (s *stubSources) FetchHistory(ctx context.Context, _ string) ([]domain.WorkoutDetail, error) {
	if s.hangHistory != nil {
		// Ignores ctx on purpose to exercise the aggregator's own bound.
		<-s.hangHistory
	}
	if err := s.before(ctx, domain.SourceWorkoutHistory); err != nil {
		return nil, err
	}
	return s.history, nil
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
