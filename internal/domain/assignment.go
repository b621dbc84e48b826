package domain

import "time"

// Assignment records the sticky variant choice for one subject in one test.
// At most one row exists per (TestID, SubjectID); the row is immutable once
// written and wins over any recomputed hash.
type Assignment struct {
	TestID     string    `json:"test_id"`
	VariantID  string    `json:"variant_id"`
	SubjectID  string    `json:"subject_id"`
	Audience   Audience  `json:"audience"`
	UserAgent  string    `json:"user_agent,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Conversion is an append-only record of a goal being reached. Conversions
// are deliberately not deduplicated per subject.
type Conversion struct {
	ID          string    `json:"id"`
	TestID      string    `json:"test_id"`
	VariantID   string    `json:"variant_id"`
	GoalID      string    `json:"goal_id"`
	SubjectID   string    `json:"subject_id"`
	Audience    Audience  `json:"audience"`
	Value       float64   `json:"value"`
	ConvertedAt time.Time `json:"converted_at"`
}
