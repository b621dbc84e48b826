package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/geniusdynamics/alumate-sub022/internal/domain"
	"github.com/geniusdynamics/alumate-sub022/internal/repository"
)

// AssignmentRepo implements repository.AssignmentRepository.
type AssignmentRepo struct {
	client *Client
	log    *zap.Logger
}

// NewAssignmentRepo creates the assignment repository.
func NewAssignmentRepo(client *Client, log *zap.Logger) *AssignmentRepo {
	return &AssignmentRepo{client: client, log: log}
}

// InsertIfAbsent relies on the (test_id, subject_id) primary key with
// ON CONFLICT DO NOTHING, so concurrent duplicate attempts converge on the
// first writer's row without error.
func (r *AssignmentRepo) InsertIfAbsent(ctx context.Context, a *domain.Assignment) (bool, error) {
	result, err := r.client.DB().ExecContext(ctx, `
		INSERT INTO ab_assignments
			(test_id, variant_id, subject_id, audience, user_agent, ip_address, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (test_id, subject_id) DO NOTHING`,
		a.TestID, a.VariantID, a.SubjectID, string(a.Audience),
		a.UserAgent, a.IPAddress, a.AssignedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert assignment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// Get returns the stored assignment for a subject in a test.
func (r *AssignmentRepo) Get(ctx context.Context, testID, subjectID string) (*domain.Assignment, error) {
	var (
		a        domain.Assignment
		audience string
	)
	err := r.client.DB().QueryRowContext(ctx, `
		SELECT test_id, variant_id, subject_id, audience, user_agent, ip_address, assigned_at
		FROM ab_assignments
		WHERE test_id = $1 AND subject_id = $2`, testID, subjectID,
	).Scan(&a.TestID, &a.VariantID, &a.SubjectID, &audience, &a.UserAgent, &a.IPAddress, &a.AssignedAt)

	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Resource: "assignment", ID: testID + "/" + subjectID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	a.Audience = domain.Audience(audience)
	return &a, nil
}

// CountByVariant returns assignment counts per variant for a test.
func (r *AssignmentRepo) CountByVariant(ctx context.Context, testID string) (map[string]int64, error) {
	rows, err := r.client.DB().QueryContext(ctx, `
		SELECT variant_id, COUNT(*)
		FROM ab_assignments
		WHERE test_id = $1
		GROUP BY variant_id`, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to count assignments by variant: %w", err)
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var variantID string
		var count int64
		if err := rows.Scan(&variantID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan assignment count row: %w", err)
		}
		counts[variantID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignment count rows: %w", err)
	}
	return counts, nil
}

// CountByDay returns assignment counts per UTC day for a test.
func (r *AssignmentRepo) CountByDay(ctx context.Context, testID string) ([]repository.DayCount, error) {
	rows, err := r.client.DB().QueryContext(ctx, `
		SELECT TO_CHAR(assigned_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM ab_assignments
		WHERE test_id = $1
		GROUP BY day
		ORDER BY day`, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to count assignments by day: %w", err)
	}
	defer rows.Close()

	return collectDayCounts(rows)
}

// ExistsForTest reports whether the test has any assignments.
func (r *AssignmentRepo) ExistsForTest(ctx context.Context, testID string) (bool, error) {
	var exists bool
	err := r.client.DB().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ab_assignments WHERE test_id = $1)`, testID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check assignment existence: %w", err)
	}
	return exists, nil
}

// VariantsInUse returns the distinct variant ids referenced by assignments.
func (r *AssignmentRepo) VariantsInUse(ctx context.Context, testID string) ([]string, error) {
	rows, err := r.client.DB().QueryContext(ctx,
		`SELECT DISTINCT variant_id FROM ab_assignments WHERE test_id = $1`, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to query variants in use: %w", err)
	}
	defer rows.Close()

	return collectStrings(rows)
}

// AggregateSince returns per-day assignment rollups for rows assigned at or
// after since.
func (r *AssignmentRepo) AggregateSince(ctx context.Context, since time.Time) ([]repository.AssignmentAggregate, error) {
	rows, err := r.client.DB().QueryContext(ctx, `
		SELECT test_id, variant_id, audience,
			TO_CHAR(assigned_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM ab_assignments
		WHERE assigned_at >= $1
		GROUP BY test_id, variant_id, audience, day
		ORDER BY test_id, variant_id, day`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate assignments: %w", err)
	}
	defer rows.Close()

	aggs := []repository.AssignmentAggregate{}
	for rows.Next() {
		var (
			agg      repository.AssignmentAggregate
			audience string
		)
		if err := rows.Scan(&agg.TestID, &agg.VariantID, &audience, &agg.Date, &agg.Count); err != nil {
			return nil, fmt.Errorf("failed to scan assignment aggregate row: %w", err)
		}
		agg.Audience = domain.Audience(audience)
		aggs = append(aggs, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignment aggregate rows: %w", err)
	}
	return aggs, nil
}

func collectDayCounts(rows *sql.Rows) ([]repository.DayCount, error) {
	counts := []repository.DayCount{}
	for rows.Next() {
		var dc repository.DayCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan day count row: %w", err)
		}
		counts = append(counts, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating day count rows: %w", err)
	}
	return counts, nil
}

func collectStrings(rows *sql.Rows) ([]string, error) {
	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return values, nil
}
