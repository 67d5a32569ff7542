// Package postgres provides the pgx-backed implementation of the scope
// adapter and record persistence.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/healthtrack/internal/domain"
	"example.com/healthtrack/internal/scope"
)

// Repository provides Postgres-backed storage for tracking records and
// local-day sums.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertRecord persists an ingested record together with its precomputed
// local day key. Replays of the same record ID are ignored.
func (r *Repository) InsertRecord(ctx context.Context, rec domain.TrackingRecord) error {
	const stmt = `INSERT INTO tracking_records (record_id, domain, user_id, value, unit, recorded_at, tz_offset_minutes, local_day_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (record_id) DO NOTHING`

	_, err := r.pool.Exec(ctx, stmt,
		rec.ID,
		string(rec.Domain),
		rec.UserID,
		rec.Value,
		rec.Unit,
		rec.RecordedAtUTC,
		rec.TZOffsetMinutes,
		string(rec.LocalDayKey),
	)
	return err
}

// SumForDay totals records by their stored local day key. This is the
// contract-conformant filter; remote backends that filter by UTC date are
// caught by the store's divergence check.
func (r *Repository) SumForDay(ctx context.Context, d domain.Domain, userID string, key domain.LocalDayKey) (scope.DaySum, error) {
	const query = `SELECT COALESCE(SUM(value),0), COUNT(*)
        FROM tracking_records
        WHERE domain=$1 AND user_id=$2 AND local_day_key=$3`

	var sum scope.DaySum
	row := r.pool.QueryRow(ctx, query, string(d), userID, string(key))
	if err := row.Scan(&sum.Total, &sum.Count); err != nil {
		return scope.DaySum{}, err
	}
	return sum, nil
}

// RecordsAround returns raw records within a day either side of the key so
// the caller can classify each one with its own offset.
func (r *Repository) RecordsAround(ctx context.Context, d domain.Domain, userID string, key domain.LocalDayKey) ([]domain.TrackingRecord, error) {
	dayStart, err := time.Parse("2006-01-02", string(key))
	if err != nil {
		return nil, &domain.DataIntegrityError{Entity: "local_day_key", ID: string(key), Reason: "unparseable key"}
	}

	const query = `SELECT record_id, domain, user_id, value, unit, recorded_at, tz_offset_minutes, local_day_key
        FROM tracking_records
        WHERE domain=$1 AND user_id=$2 AND recorded_at >= $3 AND recorded_at < $4
        ORDER BY recorded_at`

	rows, err := r.pool.Query(ctx, query, string(d), userID,
		dayStart.Add(-24*time.Hour), dayStart.Add(48*time.Hour))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.TrackingRecord, 0)
	for rows.Next() {
		var rec domain.TrackingRecord
		var dom, dayKey string
		if err := rows.Scan(&rec.ID, &dom, &rec.UserID, &rec.Value, &rec.Unit, &rec.RecordedAtUTC, &rec.TZOffsetMinutes, &dayKey); err != nil {
			return nil, err
		}
		rec.Domain = domain.Domain(dom)
		rec.LocalDayKey = domain.LocalDayKey(dayKey)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// HistoryForUser returns a user's records in one domain ordered newest
// first, for archive views.
func (r *Repository) HistoryForUser(ctx context.Context, d domain.Domain, userID string, limit int) ([]domain.TrackingRecord, error) {
	const query = `SELECT record_id, domain, user_id, value, unit, recorded_at, tz_offset_minutes, local_day_key
        FROM tracking_records
        WHERE domain=$1 AND user_id=$2
        ORDER BY recorded_at DESC, record_id DESC
        LIMIT $3`

	rows, err := r.pool.Query(ctx, query, string(d), userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.TrackingRecord, 0, limit)
	for rows.Next() {
		var rec domain.TrackingRecord
		var dom, dayKey string
		if err := rows.Scan(&rec.ID, &dom, &rec.UserID, &rec.Value, &rec.Unit, &rec.RecordedAtUTC, &rec.TZOffsetMinutes, &dayKey); err != nil {
			return nil, err
		}
		rec.Domain = domain.Domain(dom)
		rec.LocalDayKey = domain.LocalDayKey(dayKey)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
