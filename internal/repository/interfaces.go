package repository

import (
	"context"
	"time"

	"github.com/geniusdynamics/alumate-sub022/internal/domain"
)

// TestFilter narrows admin listings. Zero values match everything.
type TestFilter struct {
	Audience domain.Audience
	Status   domain.TestStatus
}

// Page is a 1-based pagination request.
type Page struct {
	Number int
	Size   int
}

// Offset returns the SQL offset for the page.
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// DayCount is one row of a per-day aggregate.
type DayCount struct {
	Date  string
	Count int64
}

// ConversionStats aggregates conversions for one variant across all goals.
type ConversionStats struct {
	Count      int64
	TotalValue float64
}

// AssignmentAggregate is a per-day rollup of assignments for one variant.
type AssignmentAggregate struct {
	TestID    string
	VariantID string
	Audience  domain.Audience
	Date      string
	Count     int64
}

// ConversionAggregate is a per-day rollup of conversions for one goal.
type ConversionAggregate struct {
	TestID     string
	VariantID  string
	GoalID     string
	Date       string
	Count      int64
	TotalValue float64
}

// TestRepository stores experiment definitions.
type TestRepository interface {
	// Create persists a new test definition.
	Create(ctx context.Context, test *domain.Test) error

	// GetByID returns the test or a domain.NotFoundError.
	GetByID(ctx context.Context, id string) (*domain.Test, error)

	// Update overwrites the mutable fields of an existing test.
	Update(ctx context.Context, test *domain.Test) error

	// Delete removes a test definition. Dependent-row checks happen above.
	Delete(ctx context.Context, id string) error

	// ListActive returns running tests matching the audience whose date
	// window contains now, in creation order.
	ListActive(ctx context.Context, audience domain.Audience, now time.Time) ([]domain.Test, error)

	// List returns a page of tests plus the unpaged total.
	List(ctx context.Context, filter TestFilter, page Page) ([]domain.Test, int64, error)

	// InitSchema creates the tables if they do not exist.
	InitSchema(ctx context.Context) error

	// Ping checks the backing connection.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}

// AssignmentRepository stores sticky variant assignments.
type AssignmentRepository interface {
	// InsertIfAbsent writes the assignment unless one already exists for
	// (TestID, SubjectID). It reports whether this call inserted the row.
	InsertIfAbsent(ctx context.Context, a *domain.Assignment) (bool, error)

	// Get returns the stored assignment or a domain.NotFoundError.
	Get(ctx context.Context, testID, subjectID string) (*domain.Assignment, error)

	// CountByVariant returns assignment counts per variant for a test.
	CountByVariant(ctx context.Context, testID string) (map[string]int64, error)

	// CountByDay returns assignment counts per UTC day for a test.
	CountByDay(ctx context.Context, testID string) ([]DayCount, error)

	// ExistsForTest reports whether the test has any assignments.
	ExistsForTest(ctx context.Context, testID string) (bool, error)

	// VariantsInUse returns the distinct variant ids referenced by
	// assignments of the test.
	VariantsInUse(ctx context.Context, testID string) ([]string, error)

	// AggregateSince returns per-day assignment rollups for rows assigned
	// at or after since.
	AggregateSince(ctx context.Context, since time.Time) ([]AssignmentAggregate, error)
}

// ConversionRepository stores append-only conversion events.
type ConversionRepository interface {
	// Insert appends a conversion row.
	Insert(ctx context.Context, c *domain.Conversion) error

	// StatsByVariantForGoal returns conversion counts and value sums per
	// variant for one goal of a test.
	StatsByVariantForGoal(ctx context.Context, testID, goalID string) (map[string]ConversionStats, error)

	// StatsByVariant returns conversion counts and value sums per variant
	// across all goals of a test.
	StatsByVariant(ctx context.Context, testID string) (map[string]ConversionStats, error)

	// CountByDay returns conversion counts per UTC day for a test.
	CountByDay(ctx context.Context, testID string) ([]DayCount, error)

	// ExistsForTest reports whether the test has any conversions.
	ExistsForTest(ctx context.Context, testID string) (bool, error)

	// VariantsInUse returns the distinct variant ids referenced by
	// conversions of the test.
	VariantsInUse(ctx context.Context, testID string) ([]string, error)

	// GoalsInUse returns the distinct goal ids referenced by conversions
	// of the test.
	GoalsInUse(ctx context.Context, testID string) ([]string, error)

	// AggregateSince returns per-day conversion rollups for rows converted
	// at or after since.
	AggregateSince(ctx context.Context, since time.Time) ([]ConversionAggregate, error)
}
