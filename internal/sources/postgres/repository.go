// Package postgres serves the context sources from the fitness read tables.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/coachcontext/internal/domain"
)

// Option configures the repository.
type Option func(*Repository)

// WithDashboardLimit bounds the number of dashboard entries.
func WithDashboardLimit(limit int) Option {
	return func(r *Repository) {
		if limit > 0 {
			r.dashboardLimit = limit
		}
	}
}

// WithHistoryLimit bounds the number of detailed workouts.
func WithHistoryLimit(limit int) Option {
	return func(r *Repository) {
		if limit > 0 {
			r.historyLimit = limit
		}
	}
}

// WithWeightWindow bounds how far back weight samples are read.
func WithWeightWindow(window time.Duration) Option {
	return func(r *Repository) {
		if window > 0 {
			r.weightWindow = window
		}
	}
}

// Repository reads every context source inside tenant-scoped transactions so
// row level security applies.
type Repository struct {
	pool           *pgxpool.Pool
	tenantID       string
	dashboardLimit int
	historyLimit   int
	weightWindow   time.Duration
}

// NewRepository constructs a Repository for one tenant.
func NewRepository(pool *pgxpool.Pool, tenantID string, opts ...Option) *Repository {
	r := &Repository{
		pool:           pool,
		tenantID:       tenantID,
		dashboardLimit: 10,
		historyLimit:   20,
		weightWindow:   90 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// readTx runs fn in a read-only transaction scoped to the repository tenant.
func (r *Repository) readTx(ctx context.Context, fn func(pgx.Tx) error) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", r.tenantID); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FetchProfile implements domain.ProfileSource.
func (r *Repository) FetchProfile(ctx context.Context, userID string) (domain.ProfileBundle, error) {
	const profileQuery = `SELECT user_id, display_name, units, height_cm, goal_weight_kg, experience_level
        FROM profiles WHERE tenant_id=$1 AND user_id=$2`
	const planQuery = `SELECT plan_id, name, goal, days_per_week, started_at
        FROM workout_plans WHERE tenant_id=$1 AND user_id=$2 AND active
        ORDER BY started_at DESC LIMIT 1`

	var bundle domain.ProfileBundle
	err := r.readTx(ctx, func(tx pgx.Tx) error {
		p := &bundle.Profile
		if err := tx.QueryRow(ctx, profileQuery, r.tenantID, userID).
			Scan(&p.UserID, &p.DisplayName, &p.Units, &p.HeightCm, &p.GoalWeightKg, &p.ExperienceLevel); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("user %s: %w", userID, domain.ErrProfileNotFound)
			}
			return err
		}

		var plan domain.Plan
		if err := tx.QueryRow(ctx, planQuery, r.tenantID, userID).
			Scan(&plan.ID, &plan.Name, &plan.Goal, &plan.DaysPerWeek, &plan.StartedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		bundle.ActivePlan = &plan
		return nil
	})
	if err != nil {
		return domain.ProfileBundle{}, err
	}
	return bundle, nil
}

// FetchDashboard implements domain.DashboardSource.
func (r *Repository) FetchDashboard(ctx context.Context, userID string) ([]domain.WorkoutSummary, error) {
	const query = `SELECT s.session_id, s.name, s.completed_at, s.duration_min,
            COALESCE(SUM(ws.reps * ws.weight_kg), 0)
        FROM workout_sessions s
        LEFT JOIN workout_sets ws ON ws.tenant_id = s.tenant_id AND ws.session_id = s.session_id
        WHERE s.tenant_id=$1 AND s.user_id=$2 AND s.completed_at IS NOT NULL
        GROUP BY s.session_id, s.name, s.completed_at, s.duration_min
        ORDER BY s.completed_at DESC, s.session_id DESC LIMIT $3`

	results := make([]domain.WorkoutSummary, 0, r.dashboardLimit)
	err := r.readTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, r.tenantID, userID, r.dashboardLimit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var w domain.WorkoutSummary
			if err := rows.Scan(&w.ID, &w.Name, &w.CompletedAt, &w.DurationMin, &w.VolumeKg); err != nil {
				return err
			}
			results = append(results, w)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// FetchCatalog implements domain.CatalogSource.
func (r *Repository) FetchCatalog(ctx context.Context, _ string) ([]domain.Exercise, error) {
	const query = `SELECT exercise_id, name, category, muscle_groups, equipment_needed, difficulty, is_compound
        FROM exercises WHERE tenant_id=$1 ORDER BY name, exercise_id`

	results := make([]domain.Exercise, 0)
	err := r.readTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, r.tenantID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var ex domain.Exercise
			if err := rows.Scan(&ex.ID, &ex.Name, &ex.Category, &ex.MuscleGroups, &ex.Equipment, &ex.Difficulty, &ex.IsCompound); err != nil {
				return err
			}
			results = append(results, ex)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// FetchWeightTrend implements domain.WeightTrendSource.
func (r *Repository) FetchWeightTrend(ctx context.Context, userID string) ([]domain.WeightSample, error) {
	const query = `SELECT recorded_at, weight_kg FROM weight_entries
        WHERE tenant_id=$1 AND user_id=$2 AND recorded_at >= $3
        ORDER BY recorded_at ASC`

	since := time.Now().UTC().Add(-r.weightWindow)
	results := make([]domain.WeightSample, 0)
	err := r.readTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, r.tenantID, userID, since)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var s domain.WeightSample
			if err := rows.Scan(&s.RecordedAt, &s.WeightKg); err != nil {
				return err
			}
			results = append(results, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// FetchHistory implements domain.HistorySource.
func (r *Repository) FetchHistory(ctx context.Context, userID string) ([]domain.WorkoutDetail, error) {
	const sessionsQuery = `SELECT session_id, name, started_at, duration_min, notes
        FROM workout_sessions WHERE tenant_id=$1 AND user_id=$2
        ORDER BY started_at DESC, session_id DESC LIMIT $3`
	const setsQuery = `SELECT session_id, exercise_id, reps, weight_kg
        FROM workout_sets WHERE tenant_id=$1 AND session_id = ANY($2)
        ORDER BY session_id, set_index`

	results := make([]domain.WorkoutDetail, 0, r.historyLimit)
	err := r.readTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sessionsQuery, r.tenantID, userID, r.historyLimit)
		if err != nil {
			return err
		}
		index := make(map[string]int)
		ids := make([]string, 0, r.historyLimit)
		for rows.Next() {
			var d domain.WorkoutDetail
			if err := rows.Scan(&d.ID, &d.Name, &d.StartedAt, &d.DurationMin, &d.Notes); err != nil {
				rows.Close()
				return err
			}
			d.Sets = []domain.SetDetail{}
			index[d.ID] = len(results)
			ids = append(ids, d.ID)
			results = append(results, d)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		setRows, err := tx.Query(ctx, setsQuery, r.tenantID, ids)
		if err != nil {
			return err
		}
		defer setRows.Close()
		for setRows.Next() {
			var sessionID string
			var set domain.SetDetail
			if err := setRows.Scan(&sessionID, &set.ExerciseID, &set.Reps, &set.WeightKg); err != nil {
				return err
			}
			if i, ok := index[sessionID]; ok {
				results[i].Sets = append(results[i].Sets, set)
			}
		}
		return setRows.Err()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
