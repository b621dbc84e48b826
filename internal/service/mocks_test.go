package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/geniusdynamics/alumate-sub022/internal/domain"
	"github.com/geniusdynamics/alumate-sub022/internal/repository"
)

// MockTestRepository is a mock implementation of repository.TestRepository
type MockTestRepository struct {
	mock.Mock
}

func (m *MockTestRepository) Create(ctx context.Context, test *domain.Test) error {
	args := m.Called(ctx, test)
	return args.Error(0)
}

func (m *MockTestRepository) GetByID(ctx context.Context, id string) (*domain.Test, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Test), args.Error(1)
}

func (m *MockTestRepository) Update(ctx context.Context, test *domain.Test) error {
	args := m.Called(ctx, test)
	return args.Error(0)
}

func (m *MockTestRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTestRepository) ListActive(ctx context.Context, audience domain.Audience, now time.Time) ([]domain.Test, error) {
	args := m.Called(ctx, audience, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Test), args.Error(1)
}

func (m *MockTestRepository) List(ctx context.Context, filter repository.TestFilter, page repository.Page) ([]domain.Test, int64, error) {
	args := m.Called(ctx, filter, page)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.Test), args.Get(1).(int64), args.Error(2)
}

func (m *MockTestRepository) InitSchema(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTestRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTestRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockAssignmentRepository is a mock implementation of repository.AssignmentRepository
type MockAssignmentRepository struct {
	mock.Mock
}

func (m *MockAssignmentRepository) InsertIfAbsent(ctx context.Context, a *domain.Assignment) (bool, error) {
	args := m.Called(ctx, a)
	return args.Bool(0), args.Error(1)
}

func (m *MockAssignmentRepository) Get(ctx context.Context, testID, subjectID string) (*domain.Assignment, error) {
	args := m.Called(ctx, testID, subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Assignment), args.Error(1)
}

func (m *MockAssignmentRepository) CountByVariant(ctx context.Context, testID string) (map[string]int64, error) {
	args := m.Called(ctx, testID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

func (m *MockAssignmentRepository) CountByDay(ctx context.Context, testID string) ([]repository.DayCount, error) {
	args := m.Called(ctx, testID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.DayCount), args.Error(1)
}

func (m *MockAssignmentRepository) ExistsForTest(ctx context.Context, testID string) (bool, error) {
	args := m.Called(ctx, testID)
	return args.Bool(0), args.Error(1)
}

func (m *MockAssignmentRepository) VariantsInUse(ctx context.Context, testID string) ([]string, error) {
	args := m.Called(ctx, testID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockAssignmentRepository) AggregateSince(ctx context.Context, since time.Time) ([]repository.AssignmentAggregate, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.AssignmentAggregate), args.Error(1)
}

// MockConversionRepository is a mock implementation of repository.ConversionRepository
type MockConversionRepository struct {
	mock.Mock
}

func (m *MockConversionRepository) Insert(ctx context.Context, c *domain.Conversion) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockConversionRepository) StatsByVariantForGoal(ctx context.Context, testID, goalID string) (map[string]repository.ConversionStats, error) {
	args := m.Called(ctx, testID, goalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]repository.ConversionStats), args.Error(1)
}

func (m *MockConversionRepository) StatsByVariant(ctx context.Context, testID string) (map[string]repository.ConversionStats, error) {
	args := m.Called(ctx, testID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]repository.ConversionStats), args.Error(1)
}

func (m *MockConversionRepository) CountByDay(ctx context.Context, testID string) ([]repository.DayCount, error) {
	args := m.Called(ctx, testID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.DayCount), args.Error(1)
}

func (m *MockConversionRepository) ExistsForTest(ctx context.Context, testID string) (bool, error) {
	args := m.Called(ctx, testID)
	return args.Bool(0), args.Error(1)
}

func (m *MockConversionRepository) VariantsInUse(ctx context.Context, testID string) ([]string, error) {
	args := m.Called(ctx, testID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockConversionRepository) GoalsInUse(ctx context.Context, testID string) ([]string, error) {
	args := m.Called(ctx, testID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockConversionRepository) AggregateSince(ctx context.Context, since time.Time) ([]repository.ConversionAggregate, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.ConversionAggregate), args.Error(1)
}

// MockAlertPublisher is a mock implementation of queue.AlertPublisher
type MockAlertPublisher struct {
	mock.Mock
}

func (m *MockAlertPublisher) PublishHighValueConversion(ctx context.Context, c *domain.Conversion, threshold float64) error {
	args := m.Called(ctx, c, threshold)
	return args.Error(0)
}
