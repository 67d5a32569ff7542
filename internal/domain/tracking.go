// Package domain defines the core types shared by the tracking and mission packages.
package domain

import "time"

// Domain identifies a health tracking category.
type Domain string

const (
	DomainMeal    Domain = "meal"
	DomainWater   Domain = "water"
	DomainFitness Domain = "fitness"
	DomainSleep   Domain = "sleep"
	DomainMood    Domain = "mood"
)

// LocalDayKey is a calendar date ("2006-01-02") in the user's local timezone.
// Keys of this form order correctly under plain string comparison.
type LocalDayKey string

// Before reports whether k is an earlier calendar day than other.
func (k LocalDayKey) Before(other LocalDayKey) bool { return string(k) < string(other) }

// TrackingRecord is a single immutable health measurement. LocalDayKey is
// computed once at ingestion from RecordedAtUTC and the offset that was in
// effect at that instant; it is never recomputed with a later offset.
type TrackingRecord struct {
	ID              string
	Domain          Domain
	UserID          string
	Value           float64
	Unit            string
	RecordedAtUTC   time.Time
	TZOffsetMinutes int
	LocalDayKey     LocalDayKey
}

// DayAggregate accumulates one user's records for one domain on one local day.
// Version increments on every mutation so downstream caches can detect staleness.
type DayAggregate struct {
	Domain           Domain
	UserID           string
	LocalDayKey      LocalDayKey
	AccumulatedValue float64
	RecordCount      int
	Version          int64
	Stale            bool // set when served past freshness after a failed refresh
	Archived         bool
}

// ZeroAggregate returns the valid empty aggregate for a key that has no data yet.
func ZeroAggregate(d Domain, userID string, key LocalDayKey) DayAggregate {
	return DayAggregate{Domain: d, UserID: userID, LocalDayKey: key}
}
