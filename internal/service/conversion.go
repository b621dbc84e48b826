package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/geniusdynamics/alumate-sub022/internal/cache"
	"github.com/geniusdynamics/alumate-sub022/internal/domain"
	"github.com/geniusdynamics/alumate-sub022/internal/dto"
	"github.com/geniusdynamics/alumate-sub022/internal/queue"
	"github.com/geniusdynamics/alumate-sub022/internal/repository"
)

// Recorder implements EventRecorder. The durable conversion row is the
// authoritative write; counter bumps and alert publishing are best-effort.
type Recorder struct {
	tests              repository.TestRepository
	conversions        repository.ConversionRepository
	counters           cache.CounterStore
	alerts             queue.AlertPublisher
	counterTTL         time.Duration
	highValueThreshold float64
	log                *zap.Logger
	now                func() time.Time
}

// NewRecorder creates an event recorder.
func NewRecorder(
	tests repository.TestRepository,
	conversions repository.ConversionRepository,
	counters cache.CounterStore,
	alerts queue.AlertPublisher,
	counterTTL time.Duration,
	highValueThreshold float64,
	log *zap.Logger,
) *Recorder {
	return &Recorder{
		tests:              tests,
		conversions:        conversions,
		counters:           counters,
		alerts:             alerts,
		counterTTL:         counterTTL,
		highValueThreshold: highValueThreshold,
		log:                log,
		now:                time.Now,
	}
}

// RecordConversion validates and appends a conversion event. Conversions are
// deliberately not deduplicated; replays count again.
func (r *Recorder) RecordConversion(ctx context.Context, req *dto.RecordConversionRequest) (string, error) {
	if req.Value < 0 {
		return "", domain.NewValidationError("value", "must be greater than or equal to 0")
	}
	subjectID := req.SubjectID()
	if subjectID == "" {
		return "", domain.NewValidationError("session_id", "a subject identifier is required")
	}
	if len(subjectID) > 100 {
		return "", domain.NewValidationError("session_id", "subject identifier exceeds 100 characters")
	}

	test, err := r.tests.GetByID(ctx, req.TestID)
	if err != nil {
		if domain.IsNotFound(err) {
			return "", err
		}
		return "", &domain.StorageError{Op: "get test", Err: err}
	}

	if test.VariantByID(req.VariantID) == nil {
		return "", domain.NewValidationError("variant_id", "unknown variant for this test")
	}
	if test.GoalByID(req.GoalID) == nil {
		return "", domain.NewValidationError("goal_id", "unknown conversion goal for this test")
	}

	conversion := &domain.Conversion{
		ID:          uuid.NewString(),
		TestID:      req.TestID,
		VariantID:   req.VariantID,
		GoalID:      req.GoalID,
		SubjectID:   subjectID,
		Audience:    domain.Audience(req.Audience),
		Value:       req.Value,
		ConvertedAt: r.now(),
	}

	if err := r.conversions.Insert(ctx, conversion); err != nil {
		return "", &domain.StorageError{Op: "insert conversion", Err: err}
	}

	r.bumpCounters(ctx, conversion)
	conversionsTotal.WithLabelValues(conversion.TestID, conversion.VariantID, conversion.GoalID).Inc()

	if conversion.Value > r.highValueThreshold {
		r.log.Warn("High-value conversion recorded",
			zap.String("conversion_id", conversion.ID),
			zap.String("test_id", conversion.TestID),
			zap.String("goal_id", conversion.GoalID),
			zap.Float64("value", conversion.Value),
			zap.Float64("threshold", r.highValueThreshold))
		if err := r.alerts.PublishHighValueConversion(ctx, conversion, r.highValueThreshold); err != nil {
			r.log.Warn("High-value conversion alert publish failed",
				zap.String("conversion_id", conversion.ID),
				zap.Error(err))
		}
	}

	r.log.Info("Conversion recorded",
		zap.String("conversion_id", conversion.ID),
		zap.String("test_id", conversion.TestID),
		zap.String("variant_id", conversion.VariantID),
		zap.String("goal_id", conversion.GoalID))

	return conversion.ID, nil
}

func (r *Recorder) bumpCounters(ctx context.Context, c *domain.Conversion) {
	date := domain.DateBucket(c.ConvertedAt)

	type bump struct {
		key   string
		delta int64
	}
	bumps := []bump{
		{domain.ConversionGoalKey(c.TestID, c.VariantID, c.GoalID, date), 1},
		{domain.ConversionVariantKey(c.TestID, c.VariantID, date), 1},
		{domain.ConversionTestKey(c.TestID, date), 1},
		{domain.ConversionValueKey(c.TestID, c.VariantID, date), domain.ValueToCents(c.Value)},
	}
	for _, b := range bumps {
		if _, err := r.counters.Increment(ctx, b.key, b.delta, r.counterTTL); err != nil {
			counterWriteFailures.Inc()
			r.log.Warn("Conversion counter increment failed",
				zap.String("key", b.key),
				zap.Error(err))
		}
	}
}
