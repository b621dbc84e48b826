package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/geniusdynamics/alumate-sub022/internal/domain"
	"github.com/geniusdynamics/alumate-sub022/internal/repository"
)

// ConversionRepo implements repository.ConversionRepository.
type ConversionRepo struct {
	client *Client
	log    *zap.Logger
}

// NewConversionRepo creates the conversion repository.
func NewConversionRepo(client *Client, log *zap.Logger) *ConversionRepo {
	return &ConversionRepo{client: client, log: log}
}

// Insert appends a conversion row. Conversions are never deduplicated.
func (r *ConversionRepo) Insert(ctx context.Context, c *domain.Conversion) error {
	_, err := r.client.DB().ExecContext(ctx, `
		INSERT INTO ab_conversions
			(id, test_id, variant_id, goal_id, subject_id, audience, value, converted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.TestID, c.VariantID, c.GoalID, c.SubjectID,
		string(c.Audience), c.Value, c.ConvertedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversion: %w", err)
	}
	return nil
}

// StatsByVariantForGoal returns conversion counts and value sums per variant
// for one goal.
func (r *ConversionRepo) StatsByVariantForGoal(ctx context.Context, testID, goalID string) (map[string]repository.ConversionStats, error) {
	rows, err := r.client.DB().QueryContext(ctx, `
		SELECT variant_id, COUNT(*), COALESCE(SUM(value), 0)
		FROM ab_conversions
		WHERE test_id = $1 AND goal_id = $2
		GROUP BY variant_id`, testID, goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to count conversions by variant: %w", err)
	}
	defer rows.Close()

	stats := map[string]repository.ConversionStats{}
	for rows.Next() {
		var variantID string
		var s repository.ConversionStats
		if err := rows.Scan(&variantID, &s.Count, &s.TotalValue); err != nil {
			return nil, fmt.Errorf("failed to scan conversion count row: %w", err)
		}
		stats[variantID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversion count rows: %w", err)
	}
	return stats, nil
}

// StatsByVariant returns counts and value sums per variant across all goals.
func (r *ConversionRepo) StatsByVariant(ctx context.Context, testID string) (map[string]repository.ConversionStats, error) {
	rows, err := r.client.DB().QueryContext(ctx, `
		SELECT variant_id, COUNT(*), COALESCE(SUM(value), 0)
		FROM ab_conversions
		WHERE test_id = $1
		GROUP BY variant_id`, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate conversions: %w", err)
	}
	defer rows.Close()

	stats := map[string]repository.ConversionStats{}
	for rows.Next() {
		var variantID string
		var s repository.ConversionStats
		if err := rows.Scan(&variantID, &s.Count, &s.TotalValue); err != nil {
			return nil, fmt.Errorf("failed to scan conversion stats row: %w", err)
		}
		stats[variantID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversion stats rows: %w", err)
	}
	return stats, nil
}

// CountByDay returns conversion counts per UTC day for a test.
func (r *ConversionRepo) CountByDay(ctx context.Context, testID string) ([]repository.DayCount, error) {
	rows, err := r.client.DB().QueryContext(ctx, `
		SELECT TO_CHAR(converted_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM ab_conversions
		WHERE test_id = $1
		GROUP BY day
		ORDER BY day`, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to count conversions by day: %w", err)
	}
	defer rows.Close()

	return collectDayCounts(rows)
}

// ExistsForTest reports whether the test has any conversions.
func (r *ConversionRepo) ExistsForTest(ctx context.Context, testID string) (bool, error) {
	var exists bool
	err := r.client.DB().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ab_conversions WHERE test_id = $1)`, testID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check conversion existence: %w", err)
	}
	return exists, nil
}

// VariantsInUse returns the distinct variant ids referenced by conversions.
func (r *ConversionRepo) VariantsInUse(ctx context.Context, testID string) ([]string, error) {
	rows, err := r.client.DB().QueryContext(ctx,
		`SELECT DISTINCT variant_id FROM ab_conversions WHERE test_id = $1`, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to query variants in use: %w", err)
	}
	defer rows.Close()

	return collectStrings(rows)
}

// AggregateSince returns per-day conversion rollups for rows converted at or
// after since.
func (r *ConversionRepo) AggregateSince(ctx context.Context, since time.Time) ([]repository.ConversionAggregate, error) {
	rows, err := r.client.DB().QueryContext(ctx, `
		SELECT test_id, variant_id, goal_id,
			TO_CHAR(converted_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
			COUNT(*), COALESCE(SUM(value), 0)
		FROM ab_conversions
		WHERE converted_at >= $1
		GROUP BY test_id, variant_id, goal_id, day
		ORDER BY test_id, variant_id, goal_id, day`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate conversions by day: %w", err)
	}
	defer rows.Close()

	aggs := []repository.ConversionAggregate{}
	for rows.Next() {
		var agg repository.ConversionAggregate
		if err := rows.Scan(&agg.TestID, &agg.VariantID, &agg.GoalID, &agg.Date, &agg.Count, &agg.TotalValue); err != nil {
			return nil, fmt.Errorf("failed to scan conversion aggregate row: %w", err)
		}
		aggs = append(aggs, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversion aggregate rows: %w", err)
	}
	return aggs, nil
}

// GoalsInUse returns the distinct goal ids referenced by conversions.
func (r *ConversionRepo) GoalsInUse(ctx context.Context, testID string) ([]string, error) {
	rows, err := r.client.DB().QueryContext(ctx,
		`SELECT DISTINCT goal_id FROM ab_conversions WHERE test_id = $1`, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals in use: %w", err)
	}
	defer rows.Close()

	return collectStrings(rows)
}
