// Package reconciler rebuilds the Redis day counters from the durable
// Postgres rows. Counters are best-effort at write time, so a periodic
// rebuild bounds how long a dropped increment can skew the live numbers.
package reconciler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/geniusdynamics/alumate-sub022/internal/cache"
	"github.com/geniusdynamics/alumate-sub022/internal/domain"
	"github.com/geniusdynamics/alumate-sub022/internal/repository"
)

// Config holds the reconciler tunables.
type Config struct {
	Interval   time.Duration
	Lookback   time.Duration
	CounterTTL time.Duration
}

// Reconciler periodically overwrites counter keys with authoritative values.
type Reconciler struct {
	assignments repository.AssignmentRepository
	conversions repository.ConversionRepository
	counters    cache.CounterStore
	cfg         Config
	log         *zap.Logger
}

// New creates a reconciler.
func New(
	assignments repository.AssignmentRepository,
	conversions repository.ConversionRepository,
	counters cache.CounterStore,
	cfg Config,
	log *zap.Logger,
) *Reconciler {
	return &Reconciler{
		assignments: assignments,
		conversions: conversions,
		counters:    counters,
		cfg:         cfg,
		log:         log,
	}
}

// Start runs one rebuild immediately, then one per interval until the
// context is cancelled.
func (r *Reconciler) Start(ctx context.Context) error {
	if err := r.Reconcile(ctx); err != nil {
		r.log.Error("Initial reconcile failed", zap.Error(err))
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Reconciler stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Reconcile(ctx); err != nil {
				r.log.Error("Reconcile failed", zap.Error(err))
			}
		}
	}
}

// Reconcile rebuilds every counter key touched within the lookback window.
// Each key is deleted then incremented by the authoritative count, so the
// stored value converges on the Postgres aggregate.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	since := time.Now().UTC().Add(-r.cfg.Lookback)
	started := time.Now()

	assignKeys, err := r.assignmentKeys(ctx, since)
	if err != nil {
		return err
	}
	convKeys, err := r.conversionKeys(ctx, since)
	if err != nil {
		return err
	}

	written, failed := 0, 0
	for key, count := range assignKeys {
		if err := r.rewrite(ctx, key, count); err != nil {
			failed++
			continue
		}
		written++
	}
	for key, count := range convKeys {
		if err := r.rewrite(ctx, key, count); err != nil {
			failed++
			continue
		}
		written++
	}

	r.log.Info("Reconcile pass complete",
		zap.Int("keys_written", written),
		zap.Int("keys_failed", failed),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}

func (r *Reconciler) assignmentKeys(ctx context.Context, since time.Time) (map[string]int64, error) {
	aggs, err := r.assignments.AggregateSince(ctx, since)
	if err != nil {
		return nil, err
	}

	keys := map[string]int64{}
	for _, agg := range aggs {
		keys[domain.AssignmentVariantKey(agg.TestID, agg.VariantID, agg.Date)] += agg.Count
		keys[domain.AssignmentTestKey(agg.TestID, agg.Date)] += agg.Count
		keys[domain.AssignmentAudienceKey(agg.Audience, agg.Date)] += agg.Count
	}
	return keys, nil
}

func (r *Reconciler) conversionKeys(ctx context.Context, since time.Time) (map[string]int64, error) {
	aggs, err := r.conversions.AggregateSince(ctx, since)
	if err != nil {
		return nil, err
	}

	keys := map[string]int64{}
	for _, agg := range aggs {
		keys[domain.ConversionGoalKey(agg.TestID, agg.VariantID, agg.GoalID, agg.Date)] += agg.Count
		keys[domain.ConversionVariantKey(agg.TestID, agg.VariantID, agg.Date)] += agg.Count
		keys[domain.ConversionTestKey(agg.TestID, agg.Date)] += agg.Count
		keys[domain.ConversionValueKey(agg.TestID, agg.VariantID, agg.Date)] += domain.ValueToCents(agg.TotalValue)
	}
	return keys, nil
}

func (r *Reconciler) rewrite(ctx context.Context, key string, count int64) error {
	if err := r.counters.Delete(ctx, key); err != nil {
		r.log.Warn("Failed to reset counter", zap.String("key", key), zap.Error(err))
		return err
	}
	if count == 0 {
		return nil
	}
	if _, err := r.counters.Increment(ctx, key, count, r.cfg.CounterTTL); err != nil {
		r.log.Warn("Failed to rewrite counter", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}
