package domain

import (
	"fmt"
	"time"
)

// Counter keys are plain strings in a fixed layout so they can be rebuilt
// from the durable rows at any time. Date buckets are UTC days.

// DateBucket formats the counter date bucket for an instant.
func DateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// AssignmentVariantKey counts assignments per test, variant and day.
func AssignmentVariantKey(testID, variantID, date string) string {
	return fmt.Sprintf("ab:cnt:assign:%s:%s:%s", testID, variantID, date)
}

// AssignmentTestKey counts assignments per test and day.
func AssignmentTestKey(testID, date string) string {
	return fmt.Sprintf("ab:cnt:assign:%s:%s", testID, date)
}

// AssignmentAudienceKey counts assignments per audience and day across tests.
func AssignmentAudienceKey(audience Audience, date string) string {
	return fmt.Sprintf("ab:cnt:assign:aud:%s:%s", audience, date)
}

// ConversionGoalKey counts conversions per test, variant, goal and day.
func ConversionGoalKey(testID, variantID, goalID, date string) string {
	return fmt.Sprintf("ab:cnt:conv:%s:%s:%s:%s", testID, variantID, goalID, date)
}

// ConversionVariantKey counts conversions per test, variant and day.
func ConversionVariantKey(testID, variantID, date string) string {
	return fmt.Sprintf("ab:cnt:conv:%s:%s:%s", testID, variantID, date)
}

// ConversionTestKey counts conversions per test and day.
func ConversionTestKey(testID, date string) string {
	return fmt.Sprintf("ab:cnt:conv:%s:%s", testID, date)
}

// ConversionValueKey accumulates conversion value per test, variant and day.
// Values are stored in cents so the counter stays integral.
func ConversionValueKey(testID, variantID, date string) string {
	return fmt.Sprintf("ab:cnt:convval:%s:%s:%s", testID, variantID, date)
}

// ValueToCents converts a monetary conversion value to the integral
// representation used by the value counters.
func ValueToCents(value float64) int64 {
	return int64(value*100 + 0.5)
}

// ActiveTestsCacheKey caches the active-test list per audience.
func ActiveTestsCacheKey(audience Audience) string {
	return fmt.Sprintf("ab:cache:active:%s", audience)
}

// ResultsCacheKey caches computed significance results per test.
func ResultsCacheKey(testID string) string {
	return fmt.Sprintf("ab:cache:results:%s", testID)
}

// StatisticsCacheKey caches aggregate statistics per test.
func StatisticsCacheKey(testID string) string {
	return fmt.Sprintf("ab:cache:stats:%s", testID)
}
