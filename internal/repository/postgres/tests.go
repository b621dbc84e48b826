package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/geniusdynamics/alumate-sub022/internal/domain"
	"github.com/geniusdynamics/alumate-sub022/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS ab_tests (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	audience TEXT NOT NULL CHECK (audience IN ('individual', 'institutional', 'both')),
	variants JSONB NOT NULL,
	traffic_allocation INT NOT NULL CHECK (traffic_allocation BETWEEN 1 AND 100),
	conversion_goals JSONB NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('draft', 'running', 'paused', 'completed')),
	start_date TIMESTAMPTZ NOT NULL,
	end_date TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_ab_tests_status_audience ON ab_tests(status, audience);

CREATE TABLE IF NOT EXISTS ab_assignments (
	test_id UUID NOT NULL REFERENCES ab_tests(id),
	variant_id TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	audience TEXT NOT NULL,
	user_agent TEXT NOT NULL DEFAULT '',
	ip_address TEXT NOT NULL DEFAULT '',
	assigned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (test_id, subject_id)
);

CREATE INDEX IF NOT EXISTS idx_ab_assignments_variant ON ab_assignments(test_id, variant_id);
CREATE INDEX IF NOT EXISTS idx_ab_assignments_day ON ab_assignments(test_id, assigned_at);

CREATE TABLE IF NOT EXISTS ab_conversions (
	id UUID PRIMARY KEY,
	test_id UUID NOT NULL REFERENCES ab_tests(id),
	variant_id TEXT NOT NULL,
	goal_id TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	audience TEXT NOT NULL,
	value NUMERIC(12,2) NOT NULL CHECK (value >= 0),
	converted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_ab_conversions_variant_goal ON ab_conversions(test_id, goal_id, variant_id);
CREATE INDEX IF NOT EXISTS idx_ab_conversions_day ON ab_conversions(test_id, converted_at);
`

// TestRepo implements repository.TestRepository.
type TestRepo struct {
	client *Client
	log    *zap.Logger
}

// NewTestRepo creates the test repository.
func NewTestRepo(client *Client, log *zap.Logger) *TestRepo {
	return &TestRepo{client: client, log: log}
}

// InitSchema creates the three durable tables if they do not exist.
func (r *TestRepo) InitSchema(ctx context.Context) error {
	if _, err := r.client.DB().ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	r.log.Info("Postgres schema initialized")
	return nil
}

// Create persists a new test definition.
func (r *TestRepo) Create(ctx context.Context, test *domain.Test) error {
	variantsJSON, err := json.Marshal(test.Variants)
	if err != nil {
		return fmt.Errorf("failed to marshal variants: %w", err)
	}
	goalsJSON, err := json.Marshal(test.ConversionGoals)
	if err != nil {
		return fmt.Errorf("failed to marshal conversion goals: %w", err)
	}

	_, err = r.client.DB().ExecContext(ctx, `
		INSERT INTO ab_tests
			(id, name, description, audience, variants, traffic_allocation,
			 conversion_goals, status, start_date, end_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		test.ID, test.Name, test.Description, string(test.Audience),
		variantsJSON, test.TrafficAllocation, goalsJSON, string(test.Status),
		test.StartDate, nullableTime(test.EndDate), test.CreatedAt, test.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert test: %w", err)
	}
	return nil
}

// GetByID returns the test or a domain.NotFoundError.
func (r *TestRepo) GetByID(ctx context.Context, id string) (*domain.Test, error) {
	row := r.client.DB().QueryRowContext(ctx, `
		SELECT id, name, description, audience, variants, traffic_allocation,
		       conversion_goals, status, start_date, end_date, created_at, updated_at
		FROM ab_tests WHERE id = $1`, id)

	test, err := scanTest(row)
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Resource: "test", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	return test, nil
}

// Update overwrites the mutable fields of an existing test.
func (r *TestRepo) Update(ctx context.Context, test *domain.Test) error {
	variantsJSON, err := json.Marshal(test.Variants)
	if err != nil {
		return fmt.Errorf("failed to marshal variants: %w", err)
	}
	goalsJSON, err := json.Marshal(test.ConversionGoals)
	if err != nil {
		return fmt.Errorf("failed to marshal conversion goals: %w", err)
	}

	result, err := r.client.DB().ExecContext(ctx, `
		UPDATE ab_tests
		SET name = $2, description = $3, audience = $4, variants = $5,
		    traffic_allocation = $6, conversion_goals = $7, status = $8,
		    start_date = $9, end_date = $10, updated_at = $11
		WHERE id = $1`,
		test.ID, test.Name, test.Description, string(test.Audience),
		variantsJSON, test.TrafficAllocation, goalsJSON, string(test.Status),
		test.StartDate, nullableTime(test.EndDate), test.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update test: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return &domain.NotFoundError{Resource: "test", ID: test.ID}
	}
	return nil
}

// Delete removes a test definition.
func (r *TestRepo) Delete(ctx context.Context, id string) error {
	result, err := r.client.DB().ExecContext(ctx, `DELETE FROM ab_tests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete test: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return &domain.NotFoundError{Resource: "test", ID: id}
	}
	return nil
}

// ListActive returns running tests for the audience whose window contains now.
func (r *TestRepo) ListActive(ctx context.Context, audience domain.Audience, now time.Time) ([]domain.Test, error) {
	rows, err := r.client.DB().QueryContext(ctx, `
		SELECT id, name, description, audience, variants, traffic_allocation,
		       conversion_goals, status, start_date, end_date, created_at, updated_at
		FROM ab_tests
		WHERE status = 'running'
		  AND (audience = $1 OR audience = 'both')
		  AND start_date <= $2
		  AND (end_date IS NULL OR end_date > $2)
		ORDER BY created_at`, string(audience), now)
	if err != nil {
		return nil, fmt.Errorf("failed to query active tests: %w", err)
	}
	defer rows.Close()

	return collectTests(rows)
}

// List returns a page of tests plus the unpaged total.
func (r *TestRepo) List(ctx context.Context, filter repository.TestFilter, page repository.Page) ([]domain.Test, int64, error) {
	where := "WHERE 1=1"
	args := []any{}
	if filter.Audience != "" {
		args = append(args, string(filter.Audience))
		where += fmt.Sprintf(" AND audience = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM ab_tests " + where
	if err := r.client.DB().QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tests: %w", err)
	}

	args = append(args, page.Size, page.Offset())
	listQuery := fmt.Sprintf(`
		SELECT id, name, description, audience, variants, traffic_allocation,
		       conversion_goals, status, start_date, end_date, created_at, updated_at
		FROM ab_tests %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.client.DB().QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query tests: %w", err)
	}
	defer rows.Close()

	tests, err := collectTests(rows)
	if err != nil {
		return nil, 0, err
	}
	return tests, total, nil
}

// Ping checks the backing connection.
func (r *TestRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}

// Close closes the shared pool.
func (r *TestRepo) Close() error {
	return r.client.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTest(row rowScanner) (*domain.Test, error) {
	var (
		test         domain.Test
		audience     string
		status       string
		variantsJSON []byte
		goalsJSON    []byte
		endDate      sql.NullTime
	)

	err := row.Scan(&test.ID, &test.Name, &test.Description, &audience,
		&variantsJSON, &test.TrafficAllocation, &goalsJSON, &status,
		&test.StartDate, &endDate, &test.CreatedAt, &test.UpdatedAt)
	if err != nil {
		return nil, err
	}

	test.Audience = domain.Audience(audience)
	test.Status = domain.TestStatus(status)
	if endDate.Valid {
		t := endDate.Time
		test.EndDate = &t
	}

	if err := json.Unmarshal(variantsJSON, &test.Variants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
	}
	if err := json.Unmarshal(goalsJSON, &test.ConversionGoals); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversion goals: %w", err)
	}

	return &test, nil
}

func collectTests(rows *sql.Rows) ([]domain.Test, error) {
	tests := []domain.Test{}
	for rows.Next() {
		test, err := scanTest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan test row: %w", err)
		}
		tests = append(tests, *test)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating test rows: %w", err)
	}
	return tests, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
