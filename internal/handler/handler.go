package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/geniusdynamics/alumate-sub022/docs"
	"github.com/geniusdynamics/alumate-sub022/internal/domain"
	"github.com/geniusdynamics/alumate-sub022/internal/dto"
	"github.com/geniusdynamics/alumate-sub022/internal/service"
)

// Pinger reports whether the durable store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler wires the experiment services onto the HTTP surface.
type Handler struct {
	registry service.TestRegistry
	engine   service.AssignmentEngine
	recorder service.EventRecorder
	results  service.ResultsProvider
	pinger   Pinger
	router   *gin.Engine
	log      *zap.Logger
}

// NewHandler builds the router with all routes registered. pinger may be nil;
// the health check then reports ok unconditionally.
func NewHandler(
	registry service.TestRegistry,
	engine service.AssignmentEngine,
	recorder service.EventRecorder,
	results service.ResultsProvider,
	pinger Pinger,
	log *zap.Logger,
) *Handler {
	h := &Handler{
		registry: registry,
		engine:   engine,
		recorder: recorder,
		results:  results,
		pinger:   pinger,
		router:   gin.Default(),
		log:      log,
	}

	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.healthCheck)
	h.router.GET("/metrics/prometheus", gin.WrapH(promhttp.Handler()))
	h.router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	tests := h.router.Group("/ab-tests")
	{
		tests.GET("/active", h.listActiveTests)
		tests.POST("/assignments", h.recordAssignment)
		tests.POST("/conversions", h.recordConversion)
		tests.GET("/:testId/results", h.getResults)
		tests.GET("/:testId/statistics", h.getStatistics)

		tests.GET("", h.listTests)
		tests.POST("", h.createTest)
		tests.PATCH("/:testId", h.updateTest)
		tests.DELETE("/:testId", h.deleteTest)
	}
}

// respondError maps the domain error taxonomy onto HTTP statuses. Storage
// detail is logged here and never echoed to the client.
func (h *Handler) respondError(c *gin.Context, err error) {
	var (
		validationErr *domain.ValidationError
		notFoundErr   *domain.NotFoundError
		conflictErr   *domain.ConflictError
		storageErr    *domain.StorageError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, dto.ErrorResponse{
			Error:   "validation_error",
			Message: "invalid request",
			Fields:  validationErr.Fields,
		})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error:   "not_found",
			Message: notFoundErr.Error(),
		})
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusUnprocessableEntity, dto.ErrorResponse{
			Error:   "conflict",
			Message: conflictErr.Reason,
		})
	case errors.As(err, &storageErr):
		h.log.Error("Storage failure",
			zap.String("op", storageErr.Op),
			zap.Error(storageErr.Err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: "a storage error occurred",
		})
	default:
		h.log.Error("Unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: "an unexpected error occurred",
		})
	}
}

// healthCheck handles health check requests
// @Summary Health check
// @Description Check if the service is running
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	if h.pinger != nil {
		if err := h.pinger.Ping(c.Request.Context()); err != nil {
			h.log.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// listActiveTests handles GET /ab-tests/active
// @Summary List active tests for an audience
// @Description Running tests whose date window contains now, filtered by the X-Audience header
// @Tags experiments
// @Produce json
// @Param X-Audience header string true "Audience" Enums(individual, institutional)
// @Success 200 {object} dto.ActiveTestsResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /ab-tests/active [get]
func (h *Handler) listActiveTests(c *gin.Context) {
	audience := domain.Audience(c.GetHeader("X-Audience"))

	tests, err := h.registry.ListActiveTests(c.Request.Context(), audience)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ActiveTestsResponse{Tests: tests})
}

// recordAssignment handles POST /ab-tests/assignments
// @Summary Record a variant assignment
// @Description Deterministically assigns the subject and persists the sticky assignment exactly once
// @Tags experiments
// @Accept json
// @Produce json
// @Param assignment body dto.RecordAssignmentRequest true "Assignment data"
// @Success 200 {object} dto.AssignmentResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /ab-tests/assignments [post]
func (h *Handler) recordAssignment(c *gin.Context) {
	var req dto.RecordAssignmentRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid assignment request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	meta := service.RequestMeta{
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	}

	resp, err := h.engine.Assign(c.Request.Context(), &req, meta)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// recordConversion handles POST /ab-tests/conversions
// @Summary Record a conversion event
// @Description Appends a conversion row and bumps the real-time counters
// @Tags experiments
// @Accept json
// @Produce json
// @Param conversion body dto.RecordConversionRequest true "Conversion data"
// @Success 200 {object} dto.ConversionResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /ab-tests/conversions [post]
func (h *Handler) recordConversion(c *gin.Context) {
	var req dto.RecordConversionRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid conversion request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	conversionID, err := h.recorder.RecordConversion(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ConversionResponse{
		Success:      true,
		ConversionID: conversionID,
	})
}

// getResults handles GET /ab-tests/:testId/results
// @Summary Get significance results for a test
// @Description Per-variant aggregates plus the two-proportion z-test verdict, cached 300s
// @Tags experiments
// @Produce json
// @Param testId path string true "Test id"
// @Success 200 {object} dto.TestResultsResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /ab-tests/{testId}/results [get]
func (h *Handler) getResults(c *gin.Context) {
	results, err := h.results.ComputeResults(c.Request.Context(), c.Param("testId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

// getStatistics handles GET /ab-tests/:testId/statistics
// @Summary Get aggregate statistics for a test
// @Description Totals and a per-day breakdown without significance math, cached 300s
// @Tags experiments
// @Produce json
// @Param testId path string true "Test id"
// @Success 200 {object} dto.StatisticsResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /ab-tests/{testId}/statistics [get]
func (h *Handler) getStatistics(c *gin.Context) {
	statistics, err := h.results.GetStatistics(c.Request.Context(), c.Param("testId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, statistics)
}

// listTests handles GET /ab-tests
// @Summary List tests (admin)
// @Description Paginated listing, filterable by audience and status
// @Tags admin
// @Produce json
// @Param page query int false "Page (1-based)"
// @Param per_page query int false "Page size"
// @Param audience query string false "Audience filter" Enums(individual, institutional, both)
// @Param status query string false "Status filter" Enums(draft, running, paused, completed)
// @Success 200 {object} dto.ListTestsResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /ab-tests [get]
func (h *Handler) listTests(c *gin.Context) {
	var req dto.ListTestsRequest

	if err := c.ShouldBindQuery(&req); err != nil {
		h.log.Warn("Invalid list request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	resp, err := h.registry.ListTests(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// createTest handles POST /ab-tests
// @Summary Create a test (admin)
// @Description Creates a draft test; variant weights must sum to exactly 100
// @Tags admin
// @Accept json
// @Produce json
// @Param test body dto.CreateTestRequest true "Test definition"
// @Success 201 {object} dto.CreateTestResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /ab-tests [post]
func (h *Handler) createTest(c *gin.Context) {
	var req dto.CreateTestRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid create-test request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	id, err := h.registry.CreateTest(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.CreateTestResponse{Success: true, ID: id})
}

// updateTest handles PATCH /ab-tests/:testId
// @Summary Update a test (admin)
// @Description Partial update; variants or goals with recorded data cannot be removed
// @Tags admin
// @Accept json
// @Produce json
// @Param testId path string true "Test id"
// @Param test body dto.UpdateTestRequest true "Fields to update"
// @Success 200 {object} dto.SuccessResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /ab-tests/{testId} [patch]
func (h *Handler) updateTest(c *gin.Context) {
	var req dto.UpdateTestRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid update-test request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	if err := h.registry.UpdateTest(c.Request.Context(), c.Param("testId"), &req); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true})
}

// deleteTest handles DELETE /ab-tests/:testId
// @Summary Delete a test (admin)
// @Description Fails with 422 when assignments or conversions reference the test
// @Tags admin
// @Produce json
// @Param testId path string true "Test id"
// @Success 200 {object} dto.SuccessResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /ab-tests/{testId} [delete]
func (h *Handler) deleteTest(c *gin.Context) {
	if err := h.registry.DeleteTest(c.Request.Context(), c.Param("testId")); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true})
}
