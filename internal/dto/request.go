package dto

import "time"

// VariantPayload is one test arm as supplied by an administrator.
type VariantPayload struct {
	ID                 string         `json:"id" binding:"required,max=100" example:"control"`
	Name               string         `json:"name" binding:"required" example:"Control"`
	Weight             int            `json:"weight" binding:"required,min=1,max=100" example:"50"`
	ComponentOverrides map[string]any `json:"component_overrides" swaggertype:"object,string" example:"hero_title:Welcome back"`
}

// GoalPayload is one conversion goal as supplied by an administrator.
type GoalPayload struct {
	ID    string  `json:"id" binding:"required,max=100" example:"signup"`
	Name  string  `json:"name" binding:"required" example:"Completed signup"`
	Type  string  `json:"type" binding:"required" example:"registration"`
	Value float64 `json:"value" binding:"min=0" example:"25"`
}

// CreateTestRequest creates a new A/B test definition.
type CreateTestRequest struct {
	Name              string           `json:"name" binding:"required" example:"homepage-hero"`
	Description       string           `json:"description" example:"Hero copy experiment"`
	Audience          string           `json:"audience" binding:"required,oneof=individual institutional both" example:"individual"`
	Variants          []VariantPayload `json:"variants" binding:"required,min=2,dive"`
	TrafficAllocation int              `json:"traffic_allocation" binding:"required,min=1,max=100" example:"100"`
	ConversionGoals   []GoalPayload    `json:"conversion_goals" binding:"required,min=1,dive"`
	StartDate         *time.Time       `json:"start_date"`
	EndDate           *time.Time       `json:"end_date"`
}

// UpdateTestRequest partially updates a test. Nil fields are left untouched.
type UpdateTestRequest struct {
	Name              *string           `json:"name"`
	Description       *string           `json:"description"`
	Audience          *string           `json:"audience" binding:"omitempty,oneof=individual institutional both"`
	Status            *string           `json:"status" binding:"omitempty,oneof=draft running paused completed"`
	Variants          *[]VariantPayload `json:"variants" binding:"omitempty,min=2,dive"`
	TrafficAllocation *int              `json:"traffic_allocation" binding:"omitempty,min=1,max=100"`
	ConversionGoals   *[]GoalPayload    `json:"conversion_goals" binding:"omitempty,min=1,dive"`
	StartDate         *time.Time        `json:"start_date"`
	EndDate           *time.Time        `json:"end_date"`
}

// RecordAssignmentRequest reports a subject entering a test. The variant the
// client rendered is validated, but the engine's deterministic choice (or the
// already-stored row) is what gets persisted.
type RecordAssignmentRequest struct {
	TestID    string `json:"test_id" binding:"required,max=100" example:"4e8c1c36-8bc1-4a63-9d35-c2f1a3a7d9f1"`
	VariantID string `json:"variant_id" binding:"required,max=100" example:"control"`
	UserID    string `json:"user_id" binding:"omitempty,max=100" example:"user_123"`
	SessionID string `json:"session_id" binding:"required,max=100" example:"sess_9f2c"`
	Audience  string `json:"audience" binding:"required,oneof=individual institutional" example:"individual"`
	Timestamp int64  `json:"timestamp" example:"1723475612"`
}

// SubjectID returns the stable subject identifier: the user id when known,
// otherwise the session id.
func (r *RecordAssignmentRequest) SubjectID() string {
	if r.UserID != "" {
		return r.UserID
	}
	return r.SessionID
}

// RecordConversionRequest reports a conversion event. Value is validated in
// the service so that an explicit zero is accepted.
type RecordConversionRequest struct {
	TestID    string  `json:"test_id" binding:"required,max=100"`
	VariantID string  `json:"variant_id" binding:"required,max=100"`
	GoalID    string  `json:"goal_id" binding:"required,max=100"`
	Value     float64 `json:"value" example:"25"`
	UserID    string  `json:"user_id" binding:"omitempty,max=100"`
	SessionID string  `json:"session_id" binding:"required,max=100"`
	Audience  string  `json:"audience" binding:"required,oneof=individual institutional"`
	Timestamp int64   `json:"timestamp"`
}

// SubjectID returns the stable subject identifier for the conversion.
func (r *RecordConversionRequest) SubjectID() string {
	if r.UserID != "" {
		return r.UserID
	}
	return r.SessionID
}

// ListTestsRequest pages and filters the admin test listing.
type ListTestsRequest struct {
	Page     int    `form:"page,default=1" binding:"min=1"`
	PerPage  int    `form:"per_page,default=20" binding:"min=1,max=100"`
	Audience string `form:"audience" binding:"omitempty,oneof=individual institutional both"`
	Status   string `form:"status" binding:"omitempty,oneof=draft running paused completed"`
}
