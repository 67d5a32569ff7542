package mission

import (
	"context"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthtrack/internal/bus"
	"example.com/healthtrack/internal/domain"
)

var waterDef = domain.MissionDefinition{
	ID: "water-8-glasses", Category: domain.DomainWater,
	TargetValue: 8, Unit: "glasses", Points: 10, Cadence: domain.CadenceDaily,
}

func newTestEngine(t *testing.T, reader TodayReader) (*Engine, *stubEmitter) {
	t.Helper()
	emitter := &stubEmitter{}
	engine := NewEngine(reader, NewCatalog(waterDef), stubOffsets{}, emitter,
		WithLogger(log.New(testWriter{t}, "", 0)),
		WithClock(func() time.Time { return time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC) }),
	)
	return engine, emitter
}

func acceptMission(t *testing.T, engine *Engine, userID string) domain.UserMission {
	t.Helper()
	m, err := engine.Assign(userID, waterDef.ID)
	require.NoError(t, err)
	m, err = engine.Accept(userID, m.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MissionActive, m.Status)
	return m
}

func TestCompletionAwardsPointsExactlyOnce(t *testing.T) {
	reader := &stubReader{agg: domain.DayAggregate{
		Domain: domain.DomainWater, UserID: "u1", LocalDayKey: "2025-04-01",
		AccumulatedValue: 8, RecordCount: 8, Version: 8,
	}}
	engine, emitter := newTestEngine(t, reader)
	acceptMission(t, engine, "u1")

	evt := bus.RecordAdded{Domain: domain.DomainWater, UserID: "u1", LocalDayKey: "2025-04-01", AggregateVersion: 8}
	require.NoError(t, engine.HandleEvent(context.Background(), evt))
	// Redelivery of the same event with an unchanged aggregate version.
	require.NoError(t, engine.HandleEvent(context.Background(), evt))

	missions := engine.Missions("u1")
	require.Len(t, missions, 1)
	require.Equal(t, domain.MissionCompleted, missions[0].Status)
	require.Equal(t, 100, missions[0].ProgressPct)
	require.NotNil(t, missions[0].CompletedAt)
	require.Equal(t, 10, engine.Points("u1"))

	require.Equal(t, 1, emitter.count(bus.MissionCompleted{}.EventType()))
	require.Equal(t, 1, emitter.count(bus.MissionProgressChanged{}.EventType()))
}

func TestProgressIsMonotonicWithinDay(t *testing.T) {
	reader := &stubReader{}
	engine, emitter := newTestEngine(t, reader)
	acceptMission(t, engine, "u1")

	last := 0
	for i := 1; i <= 8; i++ {
		reader.set(domain.DayAggregate{
			Domain: domain.DomainWater, UserID: "u1", LocalDayKey: "2025-04-01",
			AccumulatedValue: float64(i), RecordCount: i, Version: int64(i),
		})
		evt := bus.RecordAdded{Domain: domain.DomainWater, UserID: "u1", LocalDayKey: "2025-04-01", AggregateVersion: int64(i)}
		require.NoError(t, engine.HandleEvent(context.Background(), evt))

		missions := engine.Missions("u1")
		require.GreaterOrEqual(t, missions[0].ProgressPct, last)
		last = missions[0].ProgressPct
	}
	require.Equal(t, 100, last)
	require.Equal(t, 1, emitter.count(bus.MissionCompleted{}.EventType()))
}

func TestProgressPctIsClampedAt100(t *testing.T) {
	reader := &stubReader{agg: domain.DayAggregate{
		Domain: domain.DomainWater, UserID: "u1", LocalDayKey: "2025-04-01",
		AccumulatedValue: 20, RecordCount: 20, Version: 1,
	}}
	engine, _ := newTestEngine(t, reader)
	acceptMission(t, engine, "u1")

	evt := bus.RecordAdded{Domain: domain.DomainWater, UserID: "u1", LocalDayKey: "2025-04-01", AggregateVersion: 1}
	require.NoError(t, engine.HandleEvent(context.Background(), evt))

	missions := engine.Missions("u1")
	require.Equal(t, 100, missions[0].ProgressPct)
}

func TestNegativeAggregateValueIsClamped(t *testing.T) {
	reader := &stubReader{agg: domain.DayAggregate{
		Domain: domain.DomainWater, UserID: "u1", LocalDayKey: "2025-04-01",
		AccumulatedValue: -3, RecordCount: 1, Version: 1,
	}}
	engine, _ := newTestEngine(t, reader)
	acceptMission(t, engine, "u1")

	evt := bus.RecordAdded{Domain: domain.DomainWater, UserID: "u1", LocalDayKey: "2025-04-01", AggregateVersion: 1}
	require.NoError(t, engine.HandleEvent(context.Background(), evt))

	missions := engine.Missions("u1")
	require.Equal(t, domain.MissionActive, missions[0].Status)
	require.Equal(t, 0, missions[0].ProgressPct)
	require.Equal(t, 0.0, missions[0].CurrentValue)
}

func TestDayRollExpiresIncompleteDailyMissions(t *testing.T) {
	reader := &stubReader{agg: domain.DayAggregate{
		Domain: domain.DomainWater, UserID: "u1", LocalDayKey: "2025-04-01",
		AccumulatedValue: 3, RecordCount: 3, Version: 3,
	}}
	engine, emitter := newTestEngine(t, reader)
	acceptMission(t, engine, "u1")

	evt := bus.RecordAdded{Domain: domain.DomainWater, UserID: "u1", LocalDayKey: "2025-04-01", AggregateVersion: 3}
	require.NoError(t, engine.HandleEvent(context.Background(), evt))

	roll := bus.DayRolled{UserID: "u1", PreviousKey: "2025-04-01", NewKey: "2025-04-02"}
	require.NoError(t, engine.HandleEvent(context.Background(), roll))

	missions := engine.Missions("u1")
	require.Equal(t, domain.MissionExpired, missions[0].Status)

	// A second roll never resurrects the expired mission.
	require.NoError(t, engine.HandleEvent(context.Background(), bus.DayRolled{
		UserID: "u1", PreviousKey: "2025-04-02", NewKey: "2025-04-03",
	}))
	require.Equal(t, domain.MissionExpired, engine.Missions("u1")[0].Status)
	require.Equal(t, 1, emitter.statusCount(domain.MissionExpired))
}

func TestDayRollLeavesPendingMissionsWaiting(t *testing.T) {
	// Pending missions have not started a day, so a boundary crossing
	// cannot expire them; acceptance and cancellation are their only exits.
	engine, emitter := newTestEngine(t, &stubReader{})
	m, err := engine.Assign("u1", waterDef.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MissionPending, m.Status)

	require.NoError(t, engine.HandleEvent(context.Background(), bus.DayRolled{
		UserID: "u1", PreviousKey: "2025-04-01", NewKey: "2025-04-02",
	}))

	missions := engine.Missions("u1")
	require.Equal(t, domain.MissionPending, missions[0].Status)
	require.Equal(t, 0, emitter.statusCount(domain.MissionExpired))

	accepted, err := engine.Accept("u1", m.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MissionActive, accepted.Status)
}

func TestDayRollLeavesCompletedMissionsUntouched(t *testing.T) {
	reader := &stubReader{agg: domain.DayAggregate{
		Domain: domain.DomainWater, UserID: "u1", LocalDayKey: "2025-04-01",
		AccumulatedValue: 8, RecordCount: 8, Version: 8,
	}}
	engine, _ := newTestEngine(t, reader)
	acceptMission(t, engine, "u1")

	evt := bus.RecordAdded{Domain: domain.DomainWater, UserID: "u1", LocalDayKey: "2025-04-01", AggregateVersion: 8}
	require.NoError(t, engine.HandleEvent(context.Background(), evt))
	require.NoError(t, engine.HandleEvent(context.Background(), bus.DayRolled{
		UserID: "u1", PreviousKey: "2025-04-01", NewKey: "2025-04-02",
	}))

	missions := engine.Missions("u1")
	require.Equal(t, domain.MissionCompleted, missions[0].Status)
	require.Equal(t, 10, engine.Points("u1"))
}

func TestCancelIsTerminal(t *testing.T) {
	engine, _ := newTestEngine(t, &stubReader{})
	m := acceptMission(t, engine, "u1")

	cancelled, err := engine.Cancel("u1", m.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MissionCancelled, cancelled.Status)

	_, err = engine.Cancel("u1", m.ID)
	require.Error(t, err)
}

func TestAssignRejectsUnknownDefinition(t *testing.T) {
	engine, _ := newTestEngine(t, &stubReader{})
	_, err := engine.Assign("u1", "no-such-mission")
	require.ErrorIs(t, err, domain.ErrUnknownDefinition)
}

func TestRenewCycleRestartsTerminalMissions(t *testing.T) {
	reader := &stubReader{agg: domain.DayAggregate{
		Domain: domain.DomainWater, UserID: "u1", LocalDayKey: "2025-04-01",
		AccumulatedValue: 8, RecordCount: 8, Version: 8,
	}}
	engine, _ := newTestEngine(t, reader)
	acceptMission(t, engine, "u1")

	evt := bus.RecordAdded{Domain: domain.DomainWater, UserID: "u1", LocalDayKey: "2025-04-01", AggregateVersion: 8}
	require.NoError(t, engine.HandleEvent(context.Background(), evt))
	require.Equal(t, domain.MissionCompleted, engine.Missions("u1")[0].Status)

	engine.RenewCycle(context.Background(), "u1")

	renewed := engine.Missions("u1")[0]
	require.Equal(t, domain.MissionActive, renewed.Status)
	require.Equal(t, 0, renewed.ProgressPct)
	require.Nil(t, renewed.CompletedAt)
	// Points awarded before the renewal stand.
	require.Equal(t, 10, engine.Points("u1"))

	// Progress recomputes cleanly in the new cycle.
	reader.set(domain.DayAggregate{
		Domain: domain.DomainWater, UserID: "u1", LocalDayKey: "2025-04-02",
		AccumulatedValue: 8, RecordCount: 8, Version: 9,
	})
	require.NoError(t, engine.HandleEvent(context.Background(), bus.RecordAdded{
		Domain: domain.DomainWater, UserID: "u1", LocalDayKey: "2025-04-02", AggregateVersion: 9,
	}))
	require.Equal(t, domain.MissionCompleted, engine.Missions("u1")[0].Status)
	require.Equal(t, 20, engine.Points("u1"))
}

type stubReader struct {
	mu  sync.Mutex
	agg domain.DayAggregate
}

func (s *stubReader) set(agg domain.DayAggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agg = agg
}

func (s *stubReader) GetToday(context.Context, domain.Domain, string, time.Time, int) (domain.DayAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg, nil
}

type stubOffsets struct{}

func (stubOffsets) OffsetMinutes(string) int { return 0 }

type stubEmitter struct {
	mu   sync.Mutex
	evts []bus.Event
}

func (s *stubEmitter) Emit(_ context.Context, evt bus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evts = append(s.evts, evt)
}

func (s *stubEmitter) count(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, evt := range s.evts {
		if evt.EventType() == eventType {
			n++
		}
	}
	return n
}

func (s *stubEmitter) statusCount(status domain.MissionStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, evt := range s.evts {
		if pc, ok := evt.(bus.MissionProgressChanged); ok && pc.Status == status {
			n++
		}
	}
	return n
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
