package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/geniusdynamics/alumate-sub022/internal/cache"
	"github.com/geniusdynamics/alumate-sub022/internal/domain"
	"github.com/geniusdynamics/alumate-sub022/internal/dto"
	"github.com/geniusdynamics/alumate-sub022/internal/repository"
)

// Registry implements TestRegistry on the test repository with a
// read-through cache over the active-test listing.
type Registry struct {
	tests       repository.TestRepository
	assignments repository.AssignmentRepository
	conversions repository.ConversionRepository
	payloads    cache.Cache
	cacheTTL    time.Duration
	log         *zap.Logger
	now         func() time.Time
}

// NewRegistry creates a test registry.
func NewRegistry(
	tests repository.TestRepository,
	assignments repository.AssignmentRepository,
	conversions repository.ConversionRepository,
	payloads cache.Cache,
	cacheTTL time.Duration,
	log *zap.Logger,
) *Registry {
	return &Registry{
		tests:       tests,
		assignments: assignments,
		conversions: conversions,
		payloads:    payloads,
		cacheTTL:    cacheTTL,
		log:         log,
		now:         time.Now,
	}
}

// ListActiveTests returns running tests for the audience, cached per
// audience. Cache failures degrade to the repository and are logged.
func (r *Registry) ListActiveTests(ctx context.Context, audience domain.Audience) ([]domain.Test, error) {
	if !audience.Valid() || audience == domain.AudienceBoth {
		return nil, domain.NewValidationError("audience", "must be individual or institutional")
	}

	key := domain.ActiveTestsCacheKey(audience)
	if data, err := r.payloads.Get(ctx, key); err == nil {
		var tests []domain.Test
		if err := json.Unmarshal(data, &tests); err == nil {
			return tests, nil
		}
		r.log.Warn("Discarding corrupt active-tests cache entry", zap.String("key", key))
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		r.log.Warn("Active-tests cache read failed", zap.String("key", key), zap.Error(err))
	}

	tests, err := r.tests.ListActive(ctx, audience, r.now())
	if err != nil {
		return nil, &domain.StorageError{Op: "list active tests", Err: err}
	}

	if data, err := json.Marshal(tests); err == nil {
		if err := r.payloads.Set(ctx, key, data, r.cacheTTL); err != nil {
			r.log.Warn("Active-tests cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	return tests, nil
}

// GetTest returns a single test definition.
func (r *Registry) GetTest(ctx context.Context, id string) (*domain.Test, error) {
	test, err := r.tests.GetByID(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, &domain.StorageError{Op: "get test", Err: err}
	}
	return test, nil
}

// ListTests returns a filtered page of tests for the admin surface.
func (r *Registry) ListTests(ctx context.Context, req *dto.ListTestsRequest) (*dto.ListTestsResponse, error) {
	filter := repository.TestFilter{
		Audience: domain.Audience(req.Audience),
		Status:   domain.TestStatus(req.Status),
	}
	page := repository.Page{Number: req.Page, Size: req.PerPage}

	tests, total, err := r.tests.List(ctx, filter, page)
	if err != nil {
		return nil, &domain.StorageError{Op: "list tests", Err: err}
	}

	return &dto.ListTestsResponse{
		Tests:   tests,
		Total:   total,
		Page:    req.Page,
		PerPage: req.PerPage,
	}, nil
}

// CreateTest validates and persists a new test in draft status.
func (r *Registry) CreateTest(ctx context.Context, req *dto.CreateTestRequest) (string, error) {
	test := &domain.Test{
		ID:                uuid.NewString(),
		Name:              req.Name,
		Description:       req.Description,
		Audience:          domain.Audience(req.Audience),
		Variants:          toVariants(req.Variants),
		TrafficAllocation: req.TrafficAllocation,
		ConversionGoals:   toGoals(req.ConversionGoals),
		Status:            domain.StatusDraft,
		StartDate:         r.now(),
		CreatedAt:         r.now(),
		UpdatedAt:         r.now(),
	}
	if req.StartDate != nil {
		test.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		test.EndDate = req.EndDate
	}

	if err := validateTestShape(test); err != nil {
		return "", err
	}

	if err := r.tests.Create(ctx, test); err != nil {
		return "", &domain.StorageError{Op: "create test", Err: err}
	}

	r.invalidate(ctx, test.ID)
	r.log.Info("Test created",
		zap.String("test_id", test.ID),
		zap.String("name", test.Name),
		zap.String("audience", string(test.Audience)),
		zap.Int("variants", len(test.Variants)))

	return test.ID, nil
}

// UpdateTest applies a partial update. Variant or goal ids that already have
// assignments or conversions referencing them cannot be removed.
func (r *Registry) UpdateTest(ctx context.Context, id string, req *dto.UpdateTestRequest) error {
	test, err := r.GetTest(ctx, id)
	if err != nil {
		return err
	}

	if req.Name != nil {
		test.Name = *req.Name
	}
	if req.Description != nil {
		test.Description = *req.Description
	}
	if req.Audience != nil {
		test.Audience = domain.Audience(*req.Audience)
	}
	if req.Status != nil {
		test.Status = domain.TestStatus(*req.Status)
	}
	if req.TrafficAllocation != nil {
		test.TrafficAllocation = *req.TrafficAllocation
	}
	if req.StartDate != nil {
		test.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		test.EndDate = req.EndDate
	}

	if req.Variants != nil {
		newVariants := toVariants(*req.Variants)
		if err := r.checkVariantRemoval(ctx, id, newVariants); err != nil {
			return err
		}
		test.Variants = newVariants
	}
	if req.ConversionGoals != nil {
		newGoals := toGoals(*req.ConversionGoals)
		if err := r.checkGoalRemoval(ctx, id, newGoals); err != nil {
			return err
		}
		test.ConversionGoals = newGoals
	}

	if err := validateTestShape(test); err != nil {
		return err
	}

	test.UpdatedAt = r.now()
	if err := r.tests.Update(ctx, test); err != nil {
		if domain.IsNotFound(err) {
			return err
		}
		return &domain.StorageError{Op: "update test", Err: err}
	}

	r.invalidate(ctx, id)
	r.log.Info("Test updated", zap.String("test_id", id))
	return nil
}

// DeleteTest removes a test unless assignments or conversions reference it.
func (r *Registry) DeleteTest(ctx context.Context, id string) error {
	if _, err := r.GetTest(ctx, id); err != nil {
		return err
	}

	hasAssignments, err := r.assignments.ExistsForTest(ctx, id)
	if err != nil {
		return &domain.StorageError{Op: "check assignments", Err: err}
	}
	hasConversions, err := r.conversions.ExistsForTest(ctx, id)
	if err != nil {
		return &domain.StorageError{Op: "check conversions", Err: err}
	}
	if hasAssignments || hasConversions {
		return &domain.ConflictError{
			Reason: "test has recorded assignments or conversions; set status to completed instead of deleting",
		}
	}

	if err := r.tests.Delete(ctx, id); err != nil {
		if domain.IsNotFound(err) {
			return err
		}
		return &domain.StorageError{Op: "delete test", Err: err}
	}

	r.invalidate(ctx, id)
	r.log.Info("Test deleted", zap.String("test_id", id))
	return nil
}

// invalidate drops every cache entry whose contents the mutation could have
// changed: the per-audience active lists plus the test's memoized views.
func (r *Registry) invalidate(ctx context.Context, testID string) {
	keys := []string{
		domain.ActiveTestsCacheKey(domain.AudienceIndividual),
		domain.ActiveTestsCacheKey(domain.AudienceInstitutional),
		domain.ResultsCacheKey(testID),
		domain.StatisticsCacheKey(testID),
	}
	if err := r.payloads.Delete(ctx, keys...); err != nil {
		r.log.Warn("Cache invalidation failed",
			zap.String("test_id", testID),
			zap.Error(err))
	}
}

func (r *Registry) checkVariantRemoval(ctx context.Context, testID string, newVariants []domain.Variant) error {
	keep := make(map[string]bool, len(newVariants))
	for _, v := range newVariants {
		keep[v.ID] = true
	}

	for _, source := range []struct {
		name string
		list func(context.Context, string) ([]string, error)
	}{
		{"assignments", r.assignments.VariantsInUse},
		{"conversions", r.conversions.VariantsInUse},
	} {
		inUse, err := source.list(ctx, testID)
		if err != nil {
			return &domain.StorageError{Op: "check variants in use", Err: err}
		}
		for _, id := range inUse {
			if !keep[id] {
				return domain.NewValidationError("variants",
					fmt.Sprintf("variant %q has recorded %s and cannot be removed", id, source.name))
			}
		}
	}
	return nil
}

func (r *Registry) checkGoalRemoval(ctx context.Context, testID string, newGoals []domain.ConversionGoal) error {
	keep := make(map[string]bool, len(newGoals))
	for _, g := range newGoals {
		keep[g.ID] = true
	}

	inUse, err := r.conversions.GoalsInUse(ctx, testID)
	if err != nil {
		return &domain.StorageError{Op: "check goals in use", Err: err}
	}
	for _, id := range inUse {
		if !keep[id] {
			return domain.NewValidationError("conversion_goals",
				fmt.Sprintf("goal %q has recorded conversions and cannot be removed", id))
		}
	}
	return nil
}

// validateTestShape enforces the structural invariants common to create and
// update: weight sum, arm count, goal count, allocation range, id uniqueness.
func validateTestShape(test *domain.Test) error {
	fields := map[string]string{}

	if len(test.Variants) < 2 {
		fields["variants"] = "at least 2 variants are required"
	}
	if len(test.ConversionGoals) < 1 {
		fields["conversion_goals"] = "at least 1 conversion goal is required"
	}
	if test.TrafficAllocation < 1 || test.TrafficAllocation > 100 {
		fields["traffic_allocation"] = "must be between 1 and 100"
	}
	if !test.Audience.Valid() {
		fields["audience"] = "must be individual, institutional or both"
	}
	if !test.Status.Valid() {
		fields["status"] = "must be draft, running, paused or completed"
	}

	if sum := test.WeightSum(); len(test.Variants) >= 2 && sum != 100 {
		fields["variants"] = fmt.Sprintf("variant weights must sum to exactly 100, got %d", sum)
	}

	seenVariants := map[string]bool{}
	for _, v := range test.Variants {
		if seenVariants[v.ID] {
			fields["variants"] = fmt.Sprintf("duplicate variant id %q", v.ID)
		}
		seenVariants[v.ID] = true
	}
	seenGoals := map[string]bool{}
	for _, g := range test.ConversionGoals {
		if seenGoals[g.ID] {
			fields["conversion_goals"] = fmt.Sprintf("duplicate goal id %q", g.ID)
		}
		seenGoals[g.ID] = true
	}

	if test.EndDate != nil && !test.EndDate.After(test.StartDate) {
		fields["end_date"] = "must be after start_date"
	}

	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

func toVariants(payloads []dto.VariantPayload) []domain.Variant {
	variants := make([]domain.Variant, len(payloads))
	for i, p := range payloads {
		variants[i] = domain.Variant{
			ID:                 p.ID,
			Name:               p.Name,
			Weight:             p.Weight,
			ComponentOverrides: p.ComponentOverrides,
		}
	}
	return variants
}

func toGoals(payloads []dto.GoalPayload) []domain.ConversionGoal {
	goals := make([]domain.ConversionGoal, len(payloads))
	for i, p := range payloads {
		goals[i] = domain.ConversionGoal{
			ID:    p.ID,
			Name:  p.Name,
			Type:  p.Type,
			Value: p.Value,
		}
	}
	return goals
}
