package dto

import (
	"time"

	"github.com/geniusdynamics/alumate-sub022/internal/domain"
)

// ErrorResponse is the sanitized error payload returned to clients.
type ErrorResponse struct {
	Success bool              `json:"success" example:"false"`
	Error   string            `json:"error" example:"validation_error"`
	Message string            `json:"message,omitempty" example:"variant weights must sum to 100"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// SuccessResponse is the minimal acknowledgment payload.
type SuccessResponse struct {
	Success bool `json:"success" example:"true"`
}

// CreateTestResponse acknowledges test creation.
type CreateTestResponse struct {
	Success bool   `json:"success" example:"true"`
	ID      string `json:"id" example:"4e8c1c36-8bc1-4a63-9d35-c2f1a3a7d9f1"`
}

// ActiveTestsResponse lists the running tests for an audience.
type ActiveTestsResponse struct {
	Tests []domain.Test `json:"tests"`
}

// AssignmentResponse acknowledges an assignment. VariantID is the sticky
// variant actually stored for the subject; Admitted is false when the
// traffic-allocation gate excluded the subject.
type AssignmentResponse struct {
	Success   bool   `json:"success" example:"true"`
	Admitted  bool   `json:"admitted" example:"true"`
	VariantID string `json:"variant_id,omitempty" example:"control"`
}

// ConversionResponse acknowledges a recorded conversion.
type ConversionResponse struct {
	Success      bool   `json:"success" example:"true"`
	ConversionID string `json:"conversion_id" example:"b8f3c5d0-1f24-4ab9-b8f1-0a4f6f2a9f11"`
}

// GoalResult is the per-goal slice of a variant's results.
type GoalResult struct {
	GoalID      string  `json:"goal_id" example:"signup"`
	Conversions int64   `json:"conversions" example:"150"`
	Rate        float64 `json:"rate" example:"0.15"`
	TotalValue  float64 `json:"total_value" example:"3750"`
}

// VariantResult aggregates one variant inside TestResultsResponse.
type VariantResult struct {
	VariantID   string       `json:"variant_id" example:"treatment"`
	Name        string       `json:"name" example:"Treatment"`
	Assignments int64        `json:"assignments" example:"1000"`
	Goals       []GoalResult `json:"goals"`
}

// SignificanceResult is the statistical verdict over the first two variants
// and the primary goal.
type SignificanceResult struct {
	Significant bool    `json:"significant" example:"true"`
	Confidence  float64 `json:"confidence" example:"99.98"`
	PValue      float64 `json:"p_value" example:"0.00022"`
	ZScore      float64 `json:"z_score" example:"3.69"`
	Winner      string  `json:"winner,omitempty" example:"treatment"`
	Improvement float64 `json:"improvement" example:"50"`
	Reason      string  `json:"reason,omitempty"`
}

// TestResultsResponse is the cached results view served to administrators.
type TestResultsResponse struct {
	TestID       string             `json:"test_id"`
	Variants     []VariantResult    `json:"variants"`
	Significance SignificanceResult `json:"significance"`
	GeneratedAt  time.Time          `json:"generated_at"`
}

// VariantTotals is one row of the statistics view.
type VariantTotals struct {
	VariantID       string  `json:"variant_id"`
	Assignments     int64   `json:"assignments"`
	Conversions     int64   `json:"conversions"`
	ConversionValue float64 `json:"conversion_value"`
}

// DailyStat is one day of the statistics breakdown.
type DailyStat struct {
	Date        string `json:"date" example:"2026-08-01"`
	Assignments int64  `json:"assignments"`
	Conversions int64  `json:"conversions"`
}

// StatisticsResponse is the aggregate view without significance math.
type StatisticsResponse struct {
	TestID      string          `json:"test_id"`
	Totals      []VariantTotals `json:"totals"`
	Daily       []DailyStat     `json:"daily"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// ListTestsResponse is the paginated admin listing.
type ListTestsResponse struct {
	Tests   []domain.Test `json:"tests"`
	Total   int64         `json:"total" example:"42"`
	Page    int           `json:"page" example:"1"`
	PerPage int           `json:"per_page" example:"20"`
}
