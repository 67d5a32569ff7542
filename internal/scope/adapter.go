// Package scope defines the backend query contract for date-scoped tracking
// data.
package scope

import (
	"context"

	"example.com/healthtrack/internal/domain"
)

// DaySum is a server-reported aggregate for one (domain,user,day). The
// contract requires filtering by the record's own local day, but backends
// are known to filter by UTC date instead, so callers treat these totals as
// advisory and verify them against raw records.
type DaySum struct {
	Total float64
	Count int
}

// Adapter is the backend query layer consumed by the aggregate store.
type Adapter interface {
	// SumForDay returns the server's total for a local day.
	SumForDay(ctx context.Context, d domain.Domain, userID string, key domain.LocalDayKey) (DaySum, error)
	// RecordsAround returns raw records whose UTC timestamps fall within a
	// day of the given key, carrying their own offsets so the caller can
	// classify each record into its correct local day.
	RecordsAround(ctx context.Context, d domain.Domain, userID string, key domain.LocalDayKey) ([]domain.TrackingRecord, error)
}

// Recorder persists ingested tracking records.
type Recorder interface {
	InsertRecord(ctx context.Context, rec domain.TrackingRecord) error
}
