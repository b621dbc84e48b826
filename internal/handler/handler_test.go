package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/geniusdynamics/alumate-sub022/internal/domain"
	"github.com/geniusdynamics/alumate-sub022/internal/dto"
	"github.com/geniusdynamics/alumate-sub022/internal/service"
)

// MockTestRegistry is a mock implementation of service.TestRegistry
type MockTestRegistry struct {
	mock.Mock
}

func (m *MockTestRegistry) ListActiveTests(ctx context.Context, audience domain.Audience) ([]domain.Test, error) {
	args := m.Called(ctx, audience)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Test), args.Error(1)
}

func (m *MockTestRegistry) GetTest(ctx context.Context, id string) (*domain.Test, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Test), args.Error(1)
}

func (m *MockTestRegistry) ListTests(ctx context.Context, req *dto.ListTestsRequest) (*dto.ListTestsResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ListTestsResponse), args.Error(1)
}

func (m *MockTestRegistry) CreateTest(ctx context.Context, req *dto.CreateTestRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockTestRegistry) UpdateTest(ctx context.Context, id string, req *dto.UpdateTestRequest) error {
	args := m.Called(ctx, id, req)
	return args.Error(0)
}

func (m *MockTestRegistry) DeleteTest(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockAssignmentEngine is a mock implementation of service.AssignmentEngine
type MockAssignmentEngine struct {
	mock.Mock
}

func (m *MockAssignmentEngine) Assign(ctx context.Context, req *dto.RecordAssignmentRequest, meta service.RequestMeta) (*dto.AssignmentResponse, error) {
	args := m.Called(ctx, req, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.AssignmentResponse), args.Error(1)
}

// MockEventRecorder is a mock implementation of service.EventRecorder
type MockEventRecorder struct {
	mock.Mock
}

func (m *MockEventRecorder) RecordConversion(ctx context.Context, req *dto.RecordConversionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// MockResultsProvider is a mock implementation of service.ResultsProvider
type MockResultsProvider struct {
	mock.Mock
}

func (m *MockResultsProvider) ComputeResults(ctx context.Context, testID string) (*dto.TestResultsResponse, error) {
	args := m.Called(ctx, testID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.TestResultsResponse), args.Error(1)
}

func (m *MockResultsProvider) GetStatistics(ctx context.Context, testID string) (*dto.StatisticsResponse, error) {
	args := m.Called(ctx, testID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.StatisticsResponse), args.Error(1)
}

type handlerMocks struct {
	registry *MockTestRegistry
	engine   *MockAssignmentEngine
	recorder *MockEventRecorder
	results  *MockResultsProvider
}

func newTestHandler() (*Handler, *handlerMocks) {
	mocks := &handlerMocks{
		registry: new(MockTestRegistry),
		engine:   new(MockAssignmentEngine),
		recorder: new(MockEventRecorder),
		results:  new(MockResultsProvider),
	}
	h := NewHandler(mocks.registry, mocks.engine, mocks.recorder, mocks.results, nil, zap.NewNop())
	return h, mocks
}

func performJSON(h *Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandler_HealthCheck(t *testing.T) {
	h, _ := newTestHandler()

	w := performJSON(h, http.MethodGet, "/health", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestHandler_ListActiveTests_PassesAudienceHeader(t *testing.T) {
	h, mocks := newTestHandler()

	mocks.registry.On("ListActiveTests", mock.Anything, domain.AudienceIndividual).
		Return([]domain.Test{{ID: "test-1", Name: "homepage-hero"}}, nil)

	w := performJSON(h, http.MethodGet, "/ab-tests/active", nil, map[string]string{"X-Audience": "individual"})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.ActiveTestsResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Tests, 1)
	assert.Equal(t, "test-1", resp.Tests[0].ID)
}

func TestHandler_ListActiveTests_InvalidAudience(t *testing.T) {
	h, mocks := newTestHandler()

	mocks.registry.On("ListActiveTests", mock.Anything, domain.Audience("everyone")).
		Return(nil, domain.NewValidationError("audience", "must be individual or institutional"))

	w := performJSON(h, http.MethodGet, "/ab-tests/active", nil, map[string]string{"X-Audience": "everyone"})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp dto.ErrorResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "validation_error", resp.Error)
	assert.Contains(t, resp.Fields, "audience")
}

func TestHandler_RecordAssignment_Success(t *testing.T) {
	h, mocks := newTestHandler()

	mocks.engine.On("Assign", mock.Anything, mock.MatchedBy(func(req *dto.RecordAssignmentRequest) bool {
		return req.TestID == "test-1" && req.SessionID == "sess_9f2c"
	}), mock.Anything).Return(&dto.AssignmentResponse{Success: true, Admitted: true, VariantID: "control"}, nil)

	w := performJSON(h, http.MethodPost, "/ab-tests/assignments", dto.RecordAssignmentRequest{
		TestID:    "test-1",
		VariantID: "control",
		SessionID: "sess_9f2c",
		Audience:  "individual",
	}, nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.AssignmentResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Admitted)
	assert.Equal(t, "control", resp.VariantID)
}

func TestHandler_RecordAssignment_MissingFields(t *testing.T) {
	h, mocks := newTestHandler()

	w := performJSON(h, http.MethodPost, "/ab-tests/assignments", map[string]string{
		"test_id": "test-1",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mocks.engine.AssertNotCalled(t, "Assign", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_RecordAssignment_UnknownTest(t *testing.T) {
	h, mocks := newTestHandler()

	mocks.engine.On("Assign", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &domain.NotFoundError{Resource: "test", ID: "ghost"})

	w := performJSON(h, http.MethodPost, "/ab-tests/assignments", dto.RecordAssignmentRequest{
		TestID:    "ghost",
		VariantID: "control",
		SessionID: "sess_9f2c",
		Audience:  "individual",
	}, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_RecordConversion_Success(t *testing.T) {
	h, mocks := newTestHandler()

	mocks.recorder.On("RecordConversion", mock.Anything, mock.MatchedBy(func(req *dto.RecordConversionRequest) bool {
		return req.GoalID == "signup" && req.Value == 25
	})).Return("conv-1", nil)

	w := performJSON(h, http.MethodPost, "/ab-tests/conversions", dto.RecordConversionRequest{
		TestID:    "test-1",
		VariantID: "control",
		GoalID:    "signup",
		Value:     25,
		SessionID: "sess_9f2c",
		Audience:  "individual",
	}, nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.ConversionResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "conv-1", resp.ConversionID)
}

func TestHandler_RecordConversion_NegativeValue(t *testing.T) {
	h, mocks := newTestHandler()

	mocks.recorder.On("RecordConversion", mock.Anything, mock.Anything).
		Return("", domain.NewValidationError("value", "must be greater than or equal to 0"))

	w := performJSON(h, http.MethodPost, "/ab-tests/conversions", dto.RecordConversionRequest{
		TestID:    "test-1",
		VariantID: "control",
		GoalID:    "signup",
		Value:     -1,
		SessionID: "sess_9f2c",
		Audience:  "individual",
	}, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandler_GetResults(t *testing.T) {
	h, mocks := newTestHandler()

	mocks.results.On("ComputeResults", mock.Anything, "test-1").Return(&dto.TestResultsResponse{
		TestID: "test-1",
		Significance: dto.SignificanceResult{
			Significant: true,
			Winner:      "treatment",
			Confidence:  99.98,
		},
	}, nil)

	w := performJSON(h, http.MethodGet, "/ab-tests/test-1/results", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.TestResultsResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "treatment", resp.Significance.Winner)
}

func TestHandler_GetResults_UnknownTest(t *testing.T) {
	h, mocks := newTestHandler()

	mocks.results.On("ComputeResults", mock.Anything, "ghost").
		Return(nil, &domain.NotFoundError{Resource: "test", ID: "ghost"})

	w := performJSON(h, http.MethodGet, "/ab-tests/ghost/results", nil, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_GetStatistics(t *testing.T) {
	h, mocks := newTestHandler()

	mocks.results.On("GetStatistics", mock.Anything, "test-1").Return(&dto.StatisticsResponse{
		TestID: "test-1",
		Daily:  []dto.DailyStat{{Date: "2026-08-01", Assignments: 20, Conversions: 3}},
	}, nil)

	w := performJSON(h, http.MethodGet, "/ab-tests/test-1/statistics", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.StatisticsResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Daily, 1)
}

func TestHandler_CreateTest_Created(t *testing.T) {
	h, mocks := newTestHandler()

	mocks.registry.On("CreateTest", mock.Anything, mock.Anything).Return("new-test-id", nil)

	w := performJSON(h, http.MethodPost, "/ab-tests", dto.CreateTestRequest{
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
	}, nil)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp dto.CreateTestResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "new-test-id", resp.ID)
}

func TestHandler_CreateTest_SingleVariantRejectedByBinding(t *testing.T) {
	h, mocks := newTestHandler()

	w := performJSON(h, http.MethodPost, "/ab-tests", dto.CreateTestRequest{
		Name:     "one-arm",
		Audience: "individual",
		Variants: []dto.VariantPayload{
			{ID: "control", Name: "Control", Weight: 100},
		},
		TrafficAllocation: 100,
		ConversionGoals: []dto.GoalPayload{
			{ID: "signup", Name: "Completed signup", Type: "registration"},
		},
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mocks.registry.AssertNotCalled(t, "CreateTest", mock.Anything, mock.Anything)
}

func TestHandler_CreateTest_WeightSumRejected(t *testing.T) {
	h, mocks := newTestHandler()

	mocks.registry.On("CreateTest", mock.Anything, mock.Anything).
		Return("", domain.NewValidationError("variants", "variant weights must sum to exactly 100, got 110"))

	w := performJSON(h, http.MethodPost, "/ab-tests", dto.CreateTestRequest{
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
	}, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandler_DeleteTest_Conflict(t *testing.T) {
	h, mocks := newTestHandler()

	mocks.registry.On("DeleteTest", mock.Anything, "test-1").
		Return(&domain.ConflictError{Reason: "test has recorded assignments or conversions; set status to completed instead of deleting"})

	w := performJSON(h, http.MethodDelete, "/ab-tests/test-1", nil, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp dto.ErrorResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "conflict", resp.Error)
}

func TestHandler_UpdateTest_Success(t *testing.T) {
	h, mocks := newTestHandler()

	mocks.registry.On("UpdateTest", mock.Anything, "test-1", mock.MatchedBy(func(req *dto.UpdateTestRequest) bool {
		return req.Status != nil && *req.Status == "running"
	})).Return(nil)

	w := performJSON(h, http.MethodPatch, "/ab-tests/test-1", map[string]string{"status": "running"}, nil)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_StorageErrorIsSanitized(t *testing.T) {
	h, mocks := newTestHandler()

	mocks.results.On("ComputeResults", mock.Anything, "test-1").
		Return(nil, &domain.StorageError{Op: "count assignments", Err: assert.AnError})

	w := performJSON(h, http.MethodGet, "/ab-tests/test-1/results", nil, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}
