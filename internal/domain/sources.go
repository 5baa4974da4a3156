package domain

import "context"

// ProfileSource looks up the user's profile and active plan.
type ProfileSource interface {
	FetchProfile(ctx context.Context, userID string) (ProfileBundle, error)
}

// DashboardSource returns recently completed workouts, most recent first.
type DashboardSource interface {
	FetchDashboard(ctx context.Context, userID string) ([]WorkoutSummary, error)
}

// CatalogSource returns the exercise catalog visible to the user.
type CatalogSource interface {
	FetchCatalog(ctx context.Context, userID string) ([]Exercise, error)
}

// WeightTrendSource returns weight samples in chronological order.
type WeightTrendSource interface {
	FetchWeightTrend(ctx context.Context, userID string) ([]WeightSample, error)
}

// HistorySource returns detailed workout records, most recent first.
type HistorySource interface {
	FetchHistory(ctx context.Context, userID string) ([]WorkoutDetail, error)
}

// Sources bundles one implementation of every adapter.
type Sources struct {
	Profile     ProfileSource
	Dashboard   DashboardSource
	Catalog     CatalogSource
	WeightTrend WeightTrendSource
	History     HistorySource
}

// AllSourcesFrom builds a Sources value from a type serving every adapter.
func AllSourcesFrom(s interface {
	ProfileSource
	DashboardSource
	CatalogSource
	WeightTrendSource
	HistorySource
}) Sources {
	return Sources{
		Profile:     s,
		Dashboard:   s,
		Catalog:     s,
		WeightTrend: s,
		History:     s,
	}
}
