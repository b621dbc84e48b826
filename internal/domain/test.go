package domain

import "time"

// Audience identifies which side of the platform a test targets.
type Audience string

const (
	AudienceIndividual    Audience = "individual"
	AudienceInstitutional Audience = "institutional"
	AudienceBoth          Audience = "both"
)

// Valid reports whether the audience is one of the known values.
func (a Audience) Valid() bool {
	switch a {
	case AudienceIndividual, AudienceInstitutional, AudienceBoth:
		return true
	}
	return false
}

// Matches reports whether a test with this audience admits subjects
// from the requested audience.
func (a Audience) Matches(requested Audience) bool {
	return a == AudienceBoth || a == requested
}

// TestStatus represents the lifecycle state of a test.
type TestStatus string

const (
	StatusDraft     TestStatus = "draft"
	StatusRunning   TestStatus = "running"
	StatusPaused    TestStatus = "paused"
	StatusCompleted TestStatus = "completed"
)

// Valid reports whether the status is one of the known values.
func (s TestStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusRunning, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

// Variant is one arm of a test. ComponentOverrides is an opaque payload
// consumed by the rendering layer, never interpreted here.
type Variant struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	Weight             int            `json:"weight"`
	ComponentOverrides map[string]any `json:"component_overrides,omitempty"`
}

// ConversionGoal describes an outcome a test is measuring.
type ConversionGoal struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

// Test is a stored experiment definition. Variants and goals keep their
// definition order; the significance calculation depends on it.
type Test struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Description       string           `json:"description,omitempty"`
	Audience          Audience         `json:"audience"`
	Variants          []Variant        `json:"variants"`
	TrafficAllocation int              `json:"traffic_allocation"`
	ConversionGoals   []ConversionGoal `json:"conversion_goals"`
	Status            TestStatus       `json:"status"`
	StartDate         time.Time        `json:"start_date"`
	EndDate           *time.Time       `json:"end_date,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// ActiveAt reports whether the test accepts new assignments at the given
// instant: running, started, and not yet ended.
func (t *Test) ActiveAt(now time.Time) bool {
	if t.Status != StatusRunning {
		return false
	}
	if t.StartDate.After(now) {
		return false
	}
	if t.EndDate != nil && !t.EndDate.After(now) {
		return false
	}
	return true
}

// VariantByID returns the variant with the given id, or nil.
func (t *Test) VariantByID(id string) *Variant {
	for i := range t.Variants {
		if t.Variants[i].ID == id {
			return &t.Variants[i]
		}
	}
	return nil
}

// GoalByID returns the conversion goal with the given id, or nil.
func (t *Test) GoalByID(id string) *ConversionGoal {
	for i := range t.ConversionGoals {
		if t.ConversionGoals[i].ID == id {
			return &t.ConversionGoals[i]
		}
	}
	return nil
}

// WeightSum returns the sum of all variant weights.
func (t *Test) WeightSum() int {
	sum := 0
	for _, v := range t.Variants {
		sum += v.Weight
	}
	return sum
}
