package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/healthtrack/internal/bus"
	"example.com/healthtrack/internal/domain"
	"example.com/healthtrack/internal/observability"
)

// EventTypeRecorded is the ingestion event carrying a raw tracking record.
const EventTypeRecorded = "tracking.recorded"

// EventTypeCacheClear is the operational event requesting a bulk cache
// invalidation by key prefix.
const EventTypeCacheClear = "cache.clear_requested"

// Appender is the aggregate store surface the handler writes through.
type Appender interface {
	Append(ctx context.Context, rec domain.TrackingRecord) (domain.DayAggregate, error)
}

// Recorder persists the raw record before it is aggregated.
type Recorder interface {
	InsertRecord(ctx context.Context, rec domain.TrackingRecord) error
}

// OffsetObserver learns users' timezone offsets from their records.
type OffsetObserver interface {
	Observe(userID string, offsetMinutes int, at time.Time) error
}

// recordedPayload is the wire shape of tracking.recorded events.
type recordedPayload struct {
	RecordID        string    `json:"record_id"`
	Domain          string    `json:"domain"`
	UserID          string    `json:"user_id"`
	Value           float64   `json:"value"`
	Unit            string    `json:"unit"`
	RecordedAt      time.Time `json:"recorded_at"`
	TZOffsetMinutes int       `json:"tz_offset_minutes"`
}

// RecordHandler turns tracking.recorded events into persisted records,
// aggregate updates, and RecordAdded bus events.
type RecordHandler struct {
	recorder Recorder
	store    Appender
	bus      *bus.Bus
	offsets  OffsetObserver
}

// NewRecordHandler constructs a RecordHandler. recorder and offsets may be
// nil when persistence or offset tracking is handled elsewhere.
func NewRecordHandler(recorder Recorder, store Appender, b *bus.Bus, offsets OffsetObserver) *RecordHandler {
	return &RecordHandler{recorder: recorder, store: store, bus: b, offsets: offsets}
}

// Handle ingests one event. The record's local day key is resolved here,
// once, with the offset the device reported for the record's own instant.
func (h *RecordHandler) Handle(ctx context.Context, msg Message) error {
	switch msg.EventType {
	case EventTypeRecorded:
	case EventTypeCacheClear:
		return h.handleCacheClear(ctx, msg)
	default:
		return nil
	}

	var payload recordedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return err
	}
	if payload.UserID == "" {
		return fmt.Errorf("tracking.recorded without user_id (topic=%s, offset=%d)", msg.Topic, msg.Offset)
	}
	if payload.RecordID == "" {
		payload.RecordID = uuid.NewString()
	}

	rec := domain.TrackingRecord{
		ID:              payload.RecordID,
		Domain:          domain.Domain(payload.Domain),
		UserID:          payload.UserID,
		Value:           payload.Value,
		Unit:            payload.Unit,
		RecordedAtUTC:   payload.RecordedAt.UTC(),
		TZOffsetMinutes: payload.TZOffsetMinutes,
	}

	if h.offsets != nil {
		if err := h.offsets.Observe(rec.UserID, rec.TZOffsetMinutes, rec.RecordedAtUTC); err != nil {
			return err
		}
	}

	agg, err := h.store.Append(ctx, rec)
	if err != nil {
		return err
	}
	rec.LocalDayKey = agg.LocalDayKey
	observability.RecordIngested(rec.RecordedAtUTC)

	if h.recorder != nil {
		if err := h.recorder.InsertRecord(ctx, rec); err != nil {
			return err
		}
	}

	return h.bus.Publish(ctx, bus.RecordAdded{
		Domain:           rec.Domain,
		UserID:           rec.UserID,
		LocalDayKey:      rec.LocalDayKey,
		AggregateVersion: agg.Version,
	})
}

func (h *RecordHandler) handleCacheClear(ctx context.Context, msg Message) error {
	var payload struct {
		Scope string `json:"scope"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return err
	}
	if payload.Scope == "" {
		return fmt.Errorf("cache.clear_requested without scope (topic=%s, offset=%d)", msg.Topic, msg.Offset)
	}
	return h.bus.Publish(ctx, bus.CacheCleared{Scope: payload.Scope})
}
