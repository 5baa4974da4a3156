// Package aggregate fans out to the context data sources and merges their
// results into a single snapshot.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/coachcontext/internal/domain"
)

// Policy selects how adapter failures are folded into the aggregation result.
type Policy string

const (
	// PolicyAllOrNothing fails the aggregation when any source fails.
	PolicyAllOrNothing Policy = "all_or_nothing"
	// PolicyPartial substitutes empty defaults for failed sources and lists
	// them in Snapshot.Missing. The aggregation fails only if every source fails.
	PolicyPartial Policy = "partial"
)

// ParsePolicy maps a configuration value onto a Policy.
func ParsePolicy(value string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(value))) {
	case "", PolicyAllOrNothing:
		return PolicyAllOrNothing, nil
	case PolicyPartial:
		return PolicyPartial, nil
	default:
		return "", fmt.Errorf("unknown aggregation policy %q", value)
	}
}

const defaultAdapterTimeout = 10 * time.Second

// Option configures optional behaviour for the Aggregator.
type Option func(*Aggregator)

// WithPolicy overrides the fan-in policy.
func WithPolicy(policy Policy) Option {
	return func(a *Aggregator) { a.policy = policy }
}

// WithAdapterTimeout bounds every individual adapter call.
func WithAdapterTimeout(timeout time.Duration) Option {
	return func(a *Aggregator) {
		if timeout > 0 {
			a.adapterTimeout = timeout
		}
	}
}

// WithLogger overrides the logger used to report adapter failures.
func WithLogger(logger *log.Logger) Option {
	return func(a *Aggregator) { a.logger = logger }
}

// WithClock overrides the time source used to stamp snapshots.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// Aggregator builds snapshots. It holds no per-call state and is safe for
// concurrent use.
type Aggregator struct {
	sources        domain.Sources
	policy         Policy
	adapterTimeout time.Duration
	logger         *log.Logger
	now            func() time.Time
}

// New constructs an Aggregator over the provided sources.
func New(sources domain.Sources, opts ...Option) *Aggregator {
	a := &Aggregator{
		sources:        sources,
		policy:         PolicyAllOrNothing,
		adapterTimeout: defaultAdapterTimeout,
		logger:         log.New(log.Writer(), "[aggregate] ", log.LstdFlags|log.Lshortfile),
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Policy returns the fan-in policy in effect.
func (a *Aggregator) Policy() Policy {
	return a.policy
}

// results holds one slot per source. Each goroutine writes only its own slot;
// the merge reads them after the group has settled.
type results struct {
	bundle    domain.ProfileBundle
	dashboard []domain.WorkoutSummary
	catalog   []domain.Exercise
	weight    []domain.WeightSample
	history   []domain.WorkoutDetail
	errs      [5]*domain.AdapterError
}

// Aggregate fetches every source for userID concurrently and merges the
// results. No retries are attempted.
func (a *Aggregator) Aggregate(ctx context.Context, userID string) (*domain.Snapshot, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrMissingUserID
	}
	start := time.Now()

	var res results
	var wg sync.WaitGroup
	wg.Go(fetchInto(a, ctx, 0, domain.SourceProfile, &res, &res.bundle, func(ctx context.Context) (domain.ProfileBundle, error) {
		if a.sources.Profile == nil {
			return domain.ProfileBundle{}, domain.ErrMissingSource
		}
		return a.sources.Profile.FetchProfile(ctx, userID)
	}))
	wg.Go(fetchInto(a, ctx, 1, domain.SourceDashboard, &res, &res.dashboard, func(ctx context.Context) ([]domain.WorkoutSummary, error) {
		if a.sources.Dashboard == nil {
			return nil, domain.ErrMissingSource
		}
		return a.sources.Dashboard.FetchDashboard(ctx, userID)
	}))
	wg.Go(fetchInto(a, ctx, 2, domain.SourceCatalog, &res, &res.catalog, func(ctx context.Context) ([]domain.Exercise, error) {
		if a.sources.Catalog == nil {
			return nil, domain.ErrMissingSource
		}
		return a.sources.Catalog.FetchCatalog(ctx, userID)
	}))
	wg.Go(fetchInto(a, ctx, 3, domain.SourceWeightTrend, &res, &res.weight, func(ctx context.Context) ([]domain.WeightSample, error) {
		if a.sources.WeightTrend == nil {
			return nil, domain.ErrMissingSource
		}
		return a.sources.WeightTrend.FetchWeightTrend(ctx, userID)
	}))
	wg.Go(fetchInto(a, ctx, 4, domain.SourceWorkoutHistory, &res, &res.history, func(ctx context.Context) ([]domain.WorkoutDetail, error) {
		if a.sources.History == nil {
			return nil, domain.ErrMissingSource
		}
		return a.sources.History.FetchHistory(ctx, userID)
	}))
	wg.Wait()

	snapshot, err := a.merge(userID, &res)
	observeAggregation(time.Since(start), snapshot, err)
	return snapshot, err
}

// fetchInto wraps one adapter invocation with its timeout and failure
// bookkeeping. Failures land in their own slot of res.errs. The value is
// written to dst only from the fan-out goroutine, so an abandoned adapter
// never touches the shared results.
func fetchInto[T any](a *Aggregator, ctx context.Context, slot int, source domain.Source, res *results, dst *T, fetch func(context.Context) (T, error)) func() {
	return func() {
		callCtx, cancel := context.WithTimeout(ctx, a.adapterTimeout)
		defer cancel()

		value, err := runFetch(callCtx, fetch)
		if err == nil {
			*dst = value
			return
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("timed out after %s: %w", a.adapterTimeout, err)
		}
		res.errs[slot] = &domain.AdapterError{Source: source, Err: err}
		recordAdapterFailure(source)
		a.logger.Printf("source %s failed: %v", source, err)
	}
}

type outcome[T any] struct {
	value T
	err   error
}

// runFetch returns when the fetch completes or ctx expires, whichever is
// first. An adapter that ignores ctx is abandoned rather than awaited.
func runFetch[T any](ctx context.Context, fetch func(context.Context) (T, error)) (T, error) {
	done := make(chan outcome[T], 1)
	go func() {
		value, err := fetch(ctx)
		done <- outcome[T]{value: value, err: err}
	}()
	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (a *Aggregator) merge(userID string, res *results) (*domain.Snapshot, error) {
	failures := make([]*domain.AdapterError, 0, len(res.errs))
	for _, e := range res.errs {
		if e != nil {
			failures = append(failures, e)
		}
	}

	if len(failures) > 0 && (a.policy != PolicyPartial || len(failures) == len(res.errs)) {
		return nil, &domain.AggregationError{UserID: userID, Failures: failures}
	}

	snapshot := &domain.Snapshot{
		UserID:      userID,
		RequestID:   uuid.NewString(),
		AssembledAt: a.now(),
	}
	for _, f := range failures {
		snapshot.Missing = append(snapshot.Missing, f.Source)
	}

	if res.errs[0] == nil {
		snapshot.Profile = res.bundle.Profile
		if res.bundle.ActivePlan != nil {
			plan := *res.bundle.ActivePlan
			snapshot.ActivePlan = &plan
		}
	}
	if res.errs[1] == nil {
		snapshot.RecentActivity = cloneSlice(res.dashboard)
	}
	if res.errs[2] == nil {
		snapshot.Exercises = make([]domain.ExerciseRef, 0, len(res.catalog))
		for _, ex := range res.catalog {
			snapshot.Exercises = append(snapshot.Exercises, ex.Ref())
		}
	}
	if res.errs[3] == nil {
		snapshot.WeightHistory = cloneSlice(res.weight)
	}
	if res.errs[4] == nil {
		snapshot.DetailedHistory = make([]domain.WorkoutDetail, 0, len(res.history))
		for _, d := range res.history {
			d.Sets = cloneSlice(d.Sets)
			snapshot.DetailedHistory = append(snapshot.DetailedHistory, d)
		}
	}

	// Empty defaults for failed sources are non-nil so they serialise as [].
	if snapshot.RecentActivity == nil {
		snapshot.RecentActivity = []domain.WorkoutSummary{}
	}
	if snapshot.Exercises == nil {
		snapshot.Exercises = []domain.ExerciseRef{}
	}
	if snapshot.WeightHistory == nil {
		snapshot.WeightHistory = []domain.WeightSample{}
	}
	if snapshot.DetailedHistory == nil {
		snapshot.DetailedHistory = []domain.WorkoutDetail{}
	}
	return snapshot, nil
}

func cloneSlice[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}
