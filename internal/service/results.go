package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/geniusdynamics/alumate-sub022/internal/cache"
	"github.com/geniusdynamics/alumate-sub022/internal/domain"
	"github.com/geniusdynamics/alumate-sub022/internal/dto"
	"github.com/geniusdynamics/alumate-sub022/internal/repository"
	"github.com/geniusdynamics/alumate-sub022/internal/stats"
)

// Results implements ResultsProvider: significance and statistics views over
// the durable aggregates, memoized for the cache TTL. Counts come from the
// repositories, not the counter store, so a rebuilt counter never skews a
// decision.
type Results struct {
	tests       repository.TestRepository
	assignments repository.AssignmentRepository
	conversions repository.ConversionRepository
	payloads    cache.Cache
	cacheTTL    time.Duration
	log         *zap.Logger
	now         func() time.Time
}

// NewResults creates the results provider.
func NewResults(
	tests repository.TestRepository,
	assignments repository.AssignmentRepository,
	conversions repository.ConversionRepository,
	payloads cache.Cache,
	cacheTTL time.Duration,
	log *zap.Logger,
) *Results {
	return &Results{
		tests:       tests,
		assignments: assignments,
		conversions: conversions,
		payloads:    payloads,
		cacheTTL:    cacheTTL,
		log:         log,
		now:         time.Now,
	}
}

// ComputeResults returns the per-variant aggregates and the two-proportion
// z-test verdict for a test, cached per test id.
func (r *Results) ComputeResults(ctx context.Context, testID string) (*dto.TestResultsResponse, error) {
	key := domain.ResultsCacheKey(testID)
	var cached dto.TestResultsResponse
	if r.cacheRead(ctx, key, &cached) {
		return &cached, nil
	}

	test, err := r.tests.GetByID(ctx, testID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, &domain.StorageError{Op: "get test", Err: err}
	}

	assignmentCounts, err := r.assignments.CountByVariant(ctx, testID)
	if err != nil {
		return nil, &domain.StorageError{Op: "count assignments", Err: err}
	}

	response := &dto.TestResultsResponse{
		TestID:      testID,
		Variants:    make([]dto.VariantResult, 0, len(test.Variants)),
		GeneratedAt: r.now(),
	}

	goalStats := make(map[string]map[string]repository.ConversionStats, len(test.ConversionGoals))
	for _, goal := range test.ConversionGoals {
		s, err := r.conversions.StatsByVariantForGoal(ctx, testID, goal.ID)
		if err != nil {
			return nil, &domain.StorageError{Op: "aggregate conversions", Err: err}
		}
		goalStats[goal.ID] = s
	}

	for _, variant := range test.Variants {
		vr := dto.VariantResult{
			VariantID:   variant.ID,
			Name:        variant.Name,
			Assignments: assignmentCounts[variant.ID],
			Goals:       make([]dto.GoalResult, 0, len(test.ConversionGoals)),
		}
		for _, goal := range test.ConversionGoals {
			s := goalStats[goal.ID][variant.ID]
			gr := dto.GoalResult{
				GoalID:      goal.ID,
				Conversions: s.Count,
				TotalValue:  s.TotalValue,
			}
			if vr.Assignments > 0 {
				gr.Rate = float64(s.Count) / float64(vr.Assignments)
			}
			vr.Goals = append(vr.Goals, gr)
		}
		response.Variants = append(response.Variants, vr)
	}

	response.Significance = r.significance(test, assignmentCounts, goalStats)

	r.cacheWrite(ctx, key, response)
	return response, nil
}

// significance compares the first two variants on the first goal, the fixed
// choice inherited from the admin dashboard this replaces.
func (r *Results) significance(
	test *domain.Test,
	assignmentCounts map[string]int64,
	goalStats map[string]map[string]repository.ConversionStats,
) dto.SignificanceResult {
	if len(test.Variants) < 2 || len(test.ConversionGoals) < 1 {
		return dto.SignificanceResult{Significant: false, Confidence: 0}
	}

	control := test.Variants[0]
	treatment := test.Variants[1]
	primaryGoal := test.ConversionGoals[0]

	controlN := assignmentCounts[control.ID]
	treatmentN := assignmentCounts[treatment.ID]
	controlConv := goalStats[primaryGoal.ID][control.ID].Count
	treatmentConv := goalStats[primaryGoal.ID][treatment.ID].Count

	verdict := stats.TwoProportionZTest(controlConv, controlN, treatmentConv, treatmentN)

	result := dto.SignificanceResult{
		Significant: verdict.Significant,
		Confidence:  verdict.Confidence,
		PValue:      verdict.PValue,
		ZScore:      verdict.ZScore,
		Improvement: verdict.Improvement,
		Reason:      verdict.Reason,
	}
	if verdict.HasWinner {
		if verdict.WinnerIsControl {
			result.Winner = control.ID
		} else {
			result.Winner = treatment.ID
		}
	}
	return result
}

// GetStatistics returns raw aggregates and a per-day breakdown, without any
// significance math, cached per test id.
func (r *Results) GetStatistics(ctx context.Context, testID string) (*dto.StatisticsResponse, error) {
	key := domain.StatisticsCacheKey(testID)
	var cached dto.StatisticsResponse
	if r.cacheRead(ctx, key, &cached) {
		return &cached, nil
	}

	test, err := r.tests.GetByID(ctx, testID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, &domain.StorageError{Op: "get test", Err: err}
	}

	assignmentCounts, err := r.assignments.CountByVariant(ctx, testID)
	if err != nil {
		return nil, &domain.StorageError{Op: "count assignments", Err: err}
	}
	conversionStats, err := r.conversions.StatsByVariant(ctx, testID)
	if err != nil {
		return nil, &domain.StorageError{Op: "aggregate conversions", Err: err}
	}

	response := &dto.StatisticsResponse{
		TestID:      testID,
		Totals:      make([]dto.VariantTotals, 0, len(test.Variants)),
		GeneratedAt: r.now(),
	}
	for _, variant := range test.Variants {
		cs := conversionStats[variant.ID]
		response.Totals = append(response.Totals, dto.VariantTotals{
			VariantID:       variant.ID,
			Assignments:     assignmentCounts[variant.ID],
			Conversions:     cs.Count,
			ConversionValue: cs.TotalValue,
		})
	}

	assignmentDays, err := r.assignments.CountByDay(ctx, testID)
	if err != nil {
		return nil, &domain.StorageError{Op: "assignments by day", Err: err}
	}
	conversionDays, err := r.conversions.CountByDay(ctx, testID)
	if err != nil {
		return nil, &domain.StorageError{Op: "conversions by day", Err: err}
	}
	response.Daily = mergeDaily(assignmentDays, conversionDays)

	r.cacheWrite(ctx, key, response)
	return response, nil
}

// mergeDaily zips the two per-day aggregates into one ordered breakdown.
func mergeDaily(assignments, conversions []repository.DayCount) []dto.DailyStat {
	byDate := map[string]*dto.DailyStat{}
	order := []string{}

	add := func(dc repository.DayCount) *dto.DailyStat {
		stat, ok := byDate[dc.Date]
		if !ok {
			stat = &dto.DailyStat{Date: dc.Date}
			byDate[dc.Date] = stat
			order = append(order, dc.Date)
		}
		return stat
	}

	for _, dc := range assignments {
		add(dc).Assignments = dc.Count
	}
	for _, dc := range conversions {
		add(dc).Conversions = dc.Count
	}

	daily := make([]dto.DailyStat, 0, len(order))
	for _, date := range order {
		daily = append(daily, *byDate[date])
	}
	// ISO dates sort lexicographically.
	sort.Slice(daily, func(i, j int) bool { return daily[i].Date < daily[j].Date })
	return daily
}

func (r *Results) cacheRead(ctx context.Context, key string, out any) bool {
	data, err := r.payloads.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.log.Warn("Results cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		r.log.Warn("Discarding corrupt results cache entry", zap.String("key", key))
		return false
	}
	return true
}

func (r *Results) cacheWrite(ctx context.Context, key string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := r.payloads.Set(ctx, key, data, r.cacheTTL); err != nil {
		r.log.Warn("Results cache write failed", zap.String("key", key), zap.Error(err))
	}
}
