package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/geniusdynamics/alumate-sub022/internal/cache/memory"
	"github.com/geniusdynamics/alumate-sub022/internal/domain"
	"github.com/geniusdynamics/alumate-sub022/internal/dto"
)

func sampleTest() *domain.Test {
	return &domain.Test{
		ID:       "test-1",
		Name:     "homepage-hero",
		Audience: domain.AudienceIndividual,
		Variants: []domain.Variant{
			{ID: "control", Name: "Control", Weight: 50},
			{ID: "treatment", Name: "Treatment", Weight: 50},
		},
		TrafficAllocation: 100,
		ConversionGoals: []domain.ConversionGoal{
			{ID: "signup", Name: "Completed signup", Type: "registration", Value: 25},
		},
		Status:    domain.StatusRunning,
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestRegistry(tests *MockTestRepository, assignments *MockAssignmentRepository, conversions *MockConversionRepository) *Registry {
	store := memory.NewStore()
	return NewRegistry(tests, assignments, conversions, store.Payloads(), 5*time.Minute, zap.NewNop())
}

func TestRegistry_ListActiveTests_RejectsBothAudience(t *testing.T) {
	registry := newTestRegistry(new(MockTestRepository), new(MockAssignmentRepository), new(MockConversionRepository))

	_, err := registry.ListActiveTests(context.Background(), domain.AudienceBoth)

	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "audience")
}

func TestRegistry_ListActiveTests_CachesSecondRead(t *testing.T) {
	mockTests := new(MockTestRepository)
	registry := newTestRegistry(mockTests, new(MockAssignmentRepository), new(MockConversionRepository))

	active := []domain.Test{*sampleTest()}
	mockTests.On("ListActive", mock.Anything, domain.AudienceIndividual, mock.Anything).Return(active, nil).Once()

	first, err := registry.ListActiveTests(context.Background(), domain.AudienceIndividual)
	assert.NoError(t, err)
	assert.Len(t, first, 1)

	// Second read must be served from the cache without touching the repo.
	second, err := registry.ListActiveTests(context.Background(), domain.AudienceIndividual)
	assert.NoError(t, err)
	assert.Equal(t, first, second)

	mockTests.AssertExpectations(t)
}

func TestRegistry_ListActiveTests_RepoFailure(t *testing.T) {
	mockTests := new(MockTestRepository)
	registry := newTestRegistry(mockTests, new(MockAssignmentRepository), new(MockConversionRepository))

	mockTests.On("ListActive", mock.Anything, domain.AudienceInstitutional, mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := registry.ListActiveTests(context.Background(), domain.AudienceInstitutional)

	var sErr *domain.StorageError
	assert.ErrorAs(t, err, &sErr)
}

func TestRegistry_CreateTest_Success(t *testing.T) {
	mockTests := new(MockTestRepository)
	registry := newTestRegistry(mockTests, new(MockAssignmentRepository), new(MockConversionRepository))

	mockTests.On("Create", mock.Anything, mock.MatchedBy(func(test *domain.Test) bool {
		return test.Status == domain.StatusDraft && test.WeightSum() == 100
	})).Return(nil)

	id, err := registry.CreateTest(context.Background(), &dto.CreateTestRequest{
		Name:     "homepage-hero",
		Audience: "individual",
		Variants: []dto.VariantPayload{
			{ID: "control", Name: "Control", Weight: 50},
			{ID: "treatment", Name: "Treatment", Weight: 50},
		},
		TrafficAllocation: 100,
		ConversionGoals: []dto.GoalPayload{
			{ID: "signup", Name: "Completed signup", Type: "registration"},
		},
	})

	assert.NoError(t, err)
	assert.NotEmpty(t, id)
	mockTests.AssertExpectations(t)
}

func TestRegistry_CreateTest_WeightSumRejected(t *testing.T) {
	mockTests := new(MockTestRepository)
	registry := newTestRegistry(mockTests, new(MockAssignmentRepository), new(MockConversionRepository))

	_, err := registry.CreateTest(context.Background(), &dto.CreateTestRequest{
		Name:     "bad-weights",
		Audience: "individual",
		Variants: []dto.VariantPayload{
			{ID: "control", Name: "Control", Weight: 60},
			{ID: "treatment", Name: "Treatment", Weight: 50},
		},
		TrafficAllocation: 100,
		ConversionGoals: []dto.GoalPayload{
			{ID: "signup", Name: "Completed signup", Type: "registration"},
		},
	})

	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "variants")
	mockTests.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegistry_CreateTest_DuplicateVariantIDRejected(t *testing.T) {
	registry := newTestRegistry(new(MockTestRepository), new(MockAssignmentRepository), new(MockConversionRepository))

	_, err := registry.CreateTest(context.Background(), &dto.CreateTestRequest{
		Name:     "dup-variants",
		Audience: "individual",
		Variants: []dto.VariantPayload{
			{ID: "control", Name: "Control", Weight: 50},
			{ID: "control", Name: "Also control", Weight: 50},
		},
		TrafficAllocation: 100,
		ConversionGoals: []dto.GoalPayload{
			{ID: "signup", Name: "Completed signup", Type: "registration"},
		},
	})

	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestRegistry_UpdateTest_BlocksVariantRemovalInUse(t *testing.T) {
	mockTests := new(MockTestRepository)
	mockAssignments := new(MockAssignmentRepository)
	mockConversions := new(MockConversionRepository)
	registry := newTestRegistry(mockTests, mockAssignments, mockConversions)

	mockTests.On("GetByID", mock.Anything, "test-1").Return(sampleTest(), nil)
	mockAssignments.On("VariantsInUse", mock.Anything, "test-1").Return([]string{"control", "treatment"}, nil)

	variants := []dto.VariantPayload{
		{ID: "control", Name: "Control", Weight: 50},
		{ID: "challenger", Name: "Challenger", Weight: 50},
	}
	err := registry.UpdateTest(context.Background(), "test-1", &dto.UpdateTestRequest{
		Variants: &variants,
	})

	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields["variants"], "treatment")
	mockTests.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestRegistry_UpdateTest_StatusTransition(t *testing.T) {
	mockTests := new(MockTestRepository)
	registry := newTestRegistry(mockTests, new(MockAssignmentRepository), new(MockConversionRepository))

	stored := sampleTest()
	stored.Status = domain.StatusDraft
	mockTests.On("GetByID", mock.Anything, "test-1").Return(stored, nil)
	mockTests.On("Update", mock.Anything, mock.MatchedBy(func(test *domain.Test) bool {
		return test.Status == domain.StatusRunning
	})).Return(nil)

	status := "running"
	err := registry.UpdateTest(context.Background(), "test-1", &dto.UpdateTestRequest{Status: &status})

	assert.NoError(t, err)
	mockTests.AssertExpectations(t)
}

func TestRegistry_UpdateTest_NotFound(t *testing.T) {
	mockTests := new(MockTestRepository)
	registry := newTestRegistry(mockTests, new(MockAssignmentRepository), new(MockConversionRepository))

	mockTests.On("GetByID", mock.Anything, "missing").
		Return(nil, &domain.NotFoundError{Resource: "test", ID: "missing"})

	name := "renamed"
	err := registry.UpdateTest(context.Background(), "missing", &dto.UpdateTestRequest{Name: &name})

	assert.True(t, domain.IsNotFound(err))
}

func TestRegistry_DeleteTest_ConflictWithRecordedData(t *testing.T) {
	mockTests := new(MockTestRepository)
	mockAssignments := new(MockAssignmentRepository)
	mockConversions := new(MockConversionRepository)
	registry := newTestRegistry(mockTests, mockAssignments, mockConversions)

	mockTests.On("GetByID", mock.Anything, "test-1").Return(sampleTest(), nil)
	mockAssignments.On("ExistsForTest", mock.Anything, "test-1").Return(true, nil)
	mockConversions.On("ExistsForTest", mock.Anything, "test-1").Return(false, nil)

	err := registry.DeleteTest(context.Background(), "test-1")

	var cErr *domain.ConflictError
	assert.ErrorAs(t, err, &cErr)
	mockTests.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestRegistry_DeleteTest_Success(t *testing.T) {
	mockTests := new(MockTestRepository)
	mockAssignments := new(MockAssignmentRepository)
	mockConversions := new(MockConversionRepository)
	registry := newTestRegistry(mockTests, mockAssignments, mockConversions)

	mockTests.On("GetByID", mock.Anything, "test-1").Return(sampleTest(), nil)
	mockAssignments.On("ExistsForTest", mock.Anything, "test-1").Return(false, nil)
	mockConversions.On("ExistsForTest", mock.Anything, "test-1").Return(false, nil)
	mockTests.On("Delete", mock.Anything, "test-1").Return(nil)

	err := registry.DeleteTest(context.Background(), "test-1")

	assert.NoError(t, err)
	mockTests.AssertExpectations(t)
}

func TestRegistry_MutationInvalidatesActiveCache(t *testing.T) {
	mockTests := new(MockTestRepository)
	mockAssignments := new(MockAssignmentRepository)
	mockConversions := new(MockConversionRepository)
	registry := newTestRegistry(mockTests, mockAssignments, mockConversions)

	active := []domain.Test{*sampleTest()}
	mockTests.On("ListActive", mock.Anything, domain.AudienceIndividual, mock.Anything).Return(active, nil).Twice()

	_, err := registry.ListActiveTests(context.Background(), domain.AudienceIndividual)
	assert.NoError(t, err)

	mockTests.On("GetByID", mock.Anything, "test-1").Return(sampleTest(), nil)
	mockAssignments.On("ExistsForTest", mock.Anything, "test-1").Return(false, nil)
	mockConversions.On("ExistsForTest", mock.Anything, "test-1").Return(false, nil)
	mockTests.On("Delete", mock.Anything, "test-1").Return(nil)
	assert.NoError(t, registry.DeleteTest(context.Background(), "test-1"))

	// The delete dropped the cached listing, so this read hits the repo again.
	_, err = registry.ListActiveTests(context.Background(), domain.AudienceIndividual)
	assert.NoError(t, err)

	mockTests.AssertExpectations(t)
}
