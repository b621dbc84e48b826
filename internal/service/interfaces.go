package service

import (
	"context"

	"github.com/geniusdynamics/alumate-sub022/internal/domain"
	"github.com/geniusdynamics/alumate-sub022/internal/dto"
)

// RequestMeta carries transport-level metadata stored alongside assignments.
// It is recorded, never used algorithmically.
type RequestMeta struct {
	UserAgent string
	IPAddress string
}

// TestRegistry manages experiment definitions and the cached active-test
// read path.
type TestRegistry interface {
	ListActiveTests(ctx context.Context, audience domain.Audience) ([]domain.Test, error)
	GetTest(ctx context.Context, id string) (*domain.Test, error)
	ListTests(ctx context.Context, req *dto.ListTestsRequest) (*dto.ListTestsResponse, error)
	CreateTest(ctx context.Context, req *dto.CreateTestRequest) (string, error)
	UpdateTest(ctx context.Context, id string, req *dto.UpdateTestRequest) error
	DeleteTest(ctx context.Context, id string) error
}

// AssignmentEngine deterministically buckets subjects into variants and
// records the sticky assignment exactly once.
type AssignmentEngine interface {
	Assign(ctx context.Context, req *dto.RecordAssignmentRequest, meta RequestMeta) (*dto.AssignmentResponse, error)
}

// EventRecorder appends conversion events and bumps real-time counters.
type EventRecorder interface {
	RecordConversion(ctx context.Context, req *dto.RecordConversionRequest) (string, error)
}

// ResultsProvider serves the cached significance and statistics views.
type ResultsProvider interface {
	ComputeResults(ctx context.Context, testID string) (*dto.TestResultsResponse, error)
	GetStatistics(ctx context.Context, testID string) (*dto.StatisticsResponse, error)
}
