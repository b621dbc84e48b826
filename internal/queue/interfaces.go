package queue

import (
	"context"

	"github.com/geniusdynamics/alumate-sub022/internal/domain"
)

// AlertPublisher delivers advisory notifications about notable conversion
// events to downstream alerting. Publishing is best-effort; failures are
// logged by the caller and never fail the conversion write.
type AlertPublisher interface {
	PublishHighValueConversion(ctx context.Context, conversion *domain.Conversion, threshold float64) error
}

// NopPublisher discards alerts. Used when no queue is configured.
type NopPublisher struct{}

// PublishHighValueConversion does nothing.
func (NopPublisher) PublishHighValueConversion(context.Context, *domain.Conversion, float64) error {
	return nil
}
