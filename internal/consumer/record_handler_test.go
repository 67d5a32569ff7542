package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthtrack/internal/aggregate"
	"example.com/healthtrack/internal/bus"
	"example.com/healthtrack/internal/dayroll"
	"example.com/healthtrack/internal/domain"
)

func TestRecordHandlerIngestsAndPublishes(t *testing.T) {
	store := aggregate.NewStore(nil)
	eventBus := bus.New()
	registry := dayroll.NewRegistry()
	recorder := &stubRecorder{}
	sink := &collectingHandler{}
	eventBus.Subscribe(sink)

	handler := NewRecordHandler(recorder, store, eventBus, registry)

	payload, err := json.Marshal(map[string]interface{}{
		"record_id":         "r1",
		"domain":            "water",
		"user_id":           "u1",
		"value":             250,
		"unit":              "ml",
		"recorded_at":       time.Date(2025, 4, 1, 16, 58, 0, 0, time.UTC),
		"tz_offset_minutes": 7 * 60,
	})
	require.NoError(t, err)

	msg := Message{
		Topic:     "tracking_records",
		EventType: EventTypeRecorded,
		UserID:    "u1",
		Payload:   payload,
	}
	require.NoError(t, handler.Handle(context.Background(), msg))
	eventBus.Close()

	// The record was persisted with its resolved local day key.
	require.Len(t, recorder.records, 1)
	require.Equal(t, domain.LocalDayKey("2025-04-01"), recorder.records[0].LocalDayKey)

	// The aggregate reflects the append.
	agg, ok := store.Get(domain.DomainWater, "u1", "2025-04-01")
	require.True(t, ok)
	require.Equal(t, 250.0, agg.AccumulatedValue)

	// A RecordAdded event went out carrying the new aggregate version.
	require.Len(t, sink.evts, 1)
	added, ok := sink.evts[0].(bus.RecordAdded)
	require.True(t, ok)
	require.Equal(t, "u1", added.UserID)
	require.Equal(t, agg.Version, added.AggregateVersion)

	// The registry learned the user's offset.
	require.Equal(t, 7*60, registry.OffsetMinutes("u1"))
}

func TestRecordHandlerRetryDoesNotDoubleCount(t *testing.T) {
	// A transient insert failure makes Handle return an error, so the
	// processor skips the commit and the broker redelivers the message. The
	// retried append must not count the record twice or bump the aggregate
	// version past the engine's idempotence check.
	store := aggregate.NewStore(nil)
	eventBus := bus.New()
	recorder := &stubRecorder{failures: 1}
	sink := &collectingHandler{}
	eventBus.Subscribe(sink)

	handler := NewRecordHandler(recorder, store, eventBus, nil)

	payload, err := json.Marshal(map[string]interface{}{
		"record_id":         "r1",
		"domain":            "water",
		"user_id":           "u1",
		"value":             250,
		"unit":              "ml",
		"recorded_at":       time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC),
		"tz_offset_minutes": 0,
	})
	require.NoError(t, err)

	msg := Message{Topic: "tracking_records", EventType: EventTypeRecorded, UserID: "u1", Payload: payload}
	require.Error(t, handler.Handle(context.Background(), msg))
	require.NoError(t, handler.Handle(context.Background(), msg))
	eventBus.Close()

	agg, ok := store.Get(domain.DomainWater, "u1", "2025-04-01")
	require.True(t, ok)
	require.Equal(t, 250.0, agg.AccumulatedValue)
	require.Equal(t, 1, agg.RecordCount)
	require.Equal(t, int64(1), agg.Version)

	// The record still made it to the backend on the retry.
	require.Len(t, recorder.records, 1)

	// Only the retry published, and it carries the unchanged version.
	require.Len(t, sink.evts, 1)
	added, ok := sink.evts[0].(bus.RecordAdded)
	require.True(t, ok)
	require.Equal(t, agg.Version, added.AggregateVersion)
}

func TestRecordHandlerIgnoresForeignEventTypes(t *testing.T) {
	store := aggregate.NewStore(nil)
	eventBus := bus.New()
	defer eventBus.Close()

	handler := NewRecordHandler(nil, store, eventBus, nil)

	msg := Message{EventType: "mission.completed", Payload: []byte(`{}`)}
	require.NoError(t, handler.Handle(context.Background(), msg))

	_, ok := store.Get(domain.DomainWater, "u1", "2025-04-01")
	require.False(t, ok)
}

func TestRecordHandlerForwardsCacheClearRequests(t *testing.T) {
	store := aggregate.NewStore(nil)
	eventBus := bus.New()
	sink := &collectingHandler{}
	eventBus.Subscribe(sink)

	handler := NewRecordHandler(nil, store, eventBus, nil)

	msg := Message{EventType: EventTypeCacheClear, Payload: []byte(`{"scope":"today:water:"}`)}
	require.NoError(t, handler.Handle(context.Background(), msg))
	eventBus.Close()

	require.Len(t, sink.evts, 1)
	cleared, ok := sink.evts[0].(bus.CacheCleared)
	require.True(t, ok)
	require.Equal(t, "today:water:", cleared.Scope)
}

func TestRecordHandlerRejectsMissingUser(t *testing.T) {
	store := aggregate.NewStore(nil)
	eventBus := bus.New()
	defer eventBus.Close()

	handler := NewRecordHandler(nil, store, eventBus, nil)

	msg := Message{EventType: EventTypeRecorded, Payload: []byte(`{"domain":"water","value":1}`)}
	require.Error(t, handler.Handle(context.Background(), msg))
}

type stubRecorder struct {
	records  []domain.TrackingRecord
	failures int
}

func (s *stubRecorder) InsertRecord(_ context.Context, rec domain.TrackingRecord) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("connection reset")
	}
	s.records = append(s.records, rec)
	return nil
}

type collectingHandler struct {
	evts []bus.Event
}

func (c *collectingHandler) HandleEvent(_ context.Context, evt bus.Event) error {
	c.evts = append(c.evts, evt)
	return nil
}
