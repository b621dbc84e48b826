package service

import (
	"context"
	"time"

	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"

	"github.com/geniusdynamics/alumate-sub022/internal/cache"
	"github.com/geniusdynamics/alumate-sub022/internal/domain"
	"github.com/geniusdynamics/alumate-sub022/internal/dto"
	"github.com/geniusdynamics/alumate-sub022/internal/repository"
)

// Engine implements AssignmentEngine. Bucketing is a pure function of
// (testID, subjectID), so the same subject lands on the same decision on
// every node and after every restart; the stored row remains the final
// authority once it exists.
type Engine struct {
	tests       repository.TestRepository
	assignments repository.AssignmentRepository
	counters    cache.CounterStore
	counterTTL  time.Duration
	log         *zap.Logger
	now         func() time.Time
}

// NewEngine creates an assignment engine.
func NewEngine(
	tests repository.TestRepository,
	assignments repository.AssignmentRepository,
	counters cache.CounterStore,
	counterTTL time.Duration,
	log *zap.Logger,
) *Engine {
	return &Engine{
		tests:       tests,
		assignments: assignments,
		counters:    counters,
		counterTTL:  counterTTL,
		log:         log,
		now:         time.Now,
	}
}

// admissionBucket maps a subject to [0,100) for the traffic-allocation gate.
// A distinct salt keeps it independent from the variant bucket.
func admissionBucket(testID, subjectID string) float64 {
	h := murmur3.Sum64([]byte("adm:" + testID + ":" + subjectID))
	return float64(h%10000) / 100.0
}

// variantBucket maps a subject to [0,100) for the cumulative-weight walk.
func variantBucket(testID, subjectID string) float64 {
	h := murmur3.Sum64([]byte("var:" + testID + ":" + subjectID))
	return float64(h%10000) / 100.0
}

// pickVariant walks the variants in definition order and selects the first
// one whose cumulative weight boundary exceeds the bucket value. Weights sum
// to 100, so the walk always terminates inside the list.
func pickVariant(test *domain.Test, bucket float64) *domain.Variant {
	cumulative := 0.0
	for i := range test.Variants {
		cumulative += float64(test.Variants[i].Weight)
		if bucket < cumulative {
			return &test.Variants[i]
		}
	}
	return &test.Variants[len(test.Variants)-1]
}

// Assign runs the full assignment flow: eligibility, admission gate,
// deterministic bucketing, idempotent persistence, counter side effects.
func (e *Engine) Assign(ctx context.Context, req *dto.RecordAssignmentRequest, meta RequestMeta) (*dto.AssignmentResponse, error) {
	subjectID := req.SubjectID()
	if subjectID == "" {
		return nil, domain.NewValidationError("session_id", "a subject identifier is required")
	}
	if len(subjectID) > 100 {
		return nil, domain.NewValidationError("session_id", "subject identifier exceeds 100 characters")
	}

	test, err := e.tests.GetByID(ctx, req.TestID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, &domain.StorageError{Op: "get test", Err: err}
	}

	audience := domain.Audience(req.Audience)
	now := e.now()
	if !test.ActiveAt(now) || !test.Audience.Matches(audience) {
		e.log.Debug("Subject not eligible for test",
			zap.String("test_id", test.ID),
			zap.String("status", string(test.Status)),
			zap.String("audience", req.Audience))
		return &dto.AssignmentResponse{Success: true, Admitted: false}, nil
	}

	if admissionBucket(test.ID, subjectID) >= float64(test.TrafficAllocation) {
		exclusionsTotal.WithLabelValues(test.ID).Inc()
		return &dto.AssignmentResponse{Success: true, Admitted: false}, nil
	}

	variant := pickVariant(test, variantBucket(test.ID, subjectID))

	assignment := &domain.Assignment{
		TestID:     test.ID,
		VariantID:  variant.ID,
		SubjectID:  subjectID,
		Audience:   audience,
		UserAgent:  meta.UserAgent,
		IPAddress:  meta.IPAddress,
		AssignedAt: now,
	}

	inserted, err := e.assignments.InsertIfAbsent(ctx, assignment)
	if err != nil {
		return nil, &domain.StorageError{Op: "insert assignment", Err: err}
	}

	if !inserted {
		// A row already exists, possibly written by a concurrent request or
		// under an older bucketing scheme. The stored variant wins.
		existing, err := e.assignments.Get(ctx, test.ID, subjectID)
		if err != nil {
			return nil, &domain.StorageError{Op: "read existing assignment", Err: err}
		}
		return &dto.AssignmentResponse{Success: true, Admitted: true, VariantID: existing.VariantID}, nil
	}

	e.bumpCounters(ctx, assignment)
	assignmentsTotal.WithLabelValues(test.ID, variant.ID).Inc()

	e.log.Info("Subject assigned",
		zap.String("test_id", test.ID),
		zap.String("variant_id", variant.ID),
		zap.String("audience", string(audience)))

	return &dto.AssignmentResponse{Success: true, Admitted: true, VariantID: variant.ID}, nil
}

// bumpCounters is a best-effort side effect; failures degrade metrics
// freshness but never fail the assignment.
func (e *Engine) bumpCounters(ctx context.Context, a *domain.Assignment) {
	date := domain.DateBucket(a.AssignedAt)
	keys := []string{
		domain.AssignmentVariantKey(a.TestID, a.VariantID, date),
		domain.AssignmentTestKey(a.TestID, date),
		domain.AssignmentAudienceKey(a.Audience, date),
	}
	for _, key := range keys {
		if _, err := e.counters.Increment(ctx, key, 1, e.counterTTL); err != nil {
			counterWriteFailures.Inc()
			e.log.Warn("Assignment counter increment failed",
				zap.String("key", key),
				zap.Error(err))
		}
	}
}
