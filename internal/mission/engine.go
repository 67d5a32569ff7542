// Package mission derives mission progress and completion from day
// aggregates, consuming invalidation bus events.
package mission

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/healthtrack/internal/bus"
	"example.com/healthtrack/internal/domain"
)

// TodayReader is the aggregate store surface the engine depends on.
type TodayReader interface {
	GetToday(ctx context.Context, d domain.Domain, userID string, nowUTC time.Time, tzOffsetMinutes int) (domain.DayAggregate, error)
}

// OffsetSource reports the timezone offset currently in effect for a user.
type OffsetSource interface {
	OffsetMinutes(userID string) int
}

// Emitter receives the engine's outward events (progress changes and
// completions). Production wires the Kafka egress publisher here.
type Emitter interface {
	Emit(ctx context.Context, evt bus.Event)
}

// Option configures optional behaviour for the Engine.
type Option func(*Engine)

// WithLogger overrides the engine logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// Engine owns UserMission state and recomputes it from aggregates. All
// mutations for one user arrive serialized through the bus; the mutex only
// guards the shared maps against cross-user access and external calls.
type Engine struct {
	mu          sync.Mutex
	missions    map[string]map[string]*domain.UserMission // userID -> userMissionID
	lastVersion map[string]int64                          // userMissionID -> last processed aggregate version
	points      map[string]int                            // userID -> lifetime points

	store   TodayReader
	catalog *Catalog
	offsets OffsetSource
	emitter Emitter
	clock   func() time.Time
	logger  *log.Logger
}

// NewEngine constructs an Engine.
func NewEngine(store TodayReader, catalog *Catalog, offsets OffsetSource, emitter Emitter, opts ...Option) *Engine {
	e := &Engine{
		missions:    make(map[string]map[string]*domain.UserMission),
		lastVersion: make(map[string]int64),
		points:      make(map[string]int),
		store:       store,
		catalog:     catalog,
		offsets:     offsets,
		emitter:     emitter,
		clock:       func() time.Time { return time.Now().UTC() },
		logger:      log.New(log.Writer(), "[mission] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Assign creates a pending mission for the user.
func (e *Engine) Assign(userID, missionID string) (domain.UserMission, error) {
	if _, ok := e.catalog.Get(missionID); !ok {
		return domain.UserMission{}, fmt.Errorf("%w: %s", domain.ErrUnknownDefinition, missionID)
	}

	m := &domain.UserMission{
		ID:        uuid.NewString(),
		MissionID: missionID,
		UserID:    userID,
		Status:    domain.MissionPending,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.missions[userID] == nil {
		e.missions[userID] = make(map[string]*domain.UserMission)
	}
	e.missions[userID][m.ID] = m
	return *m, nil
}

// Accept transitions a pending mission to active.
func (e *Engine) Accept(userID, userMissionID string) (domain.UserMission, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.lookup(userID, userMissionID)
	if err != nil {
		return domain.UserMission{}, err
	}
	if m.Status != domain.MissionPending {
		return *m, fmt.Errorf("cannot accept mission in status %s", m.Status)
	}
	m.Status = domain.MissionActive
	m.AcceptedAt = e.clock()
	return *m, nil
}

// Cancel transitions a pending or active mission to cancelled.
func (e *Engine) Cancel(userID, userMissionID string) (domain.UserMission, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.lookup(userID, userMissionID)
	if err != nil {
		return domain.UserMission{}, err
	}
	if m.Status.Terminal() {
		return *m, fmt.Errorf("cannot cancel mission in status %s", m.Status)
	}
	m.Status = domain.MissionCancelled
	return *m, nil
}

// RenewCycle is the explicit program-cycle renewal: every mission of the
// user restarts active with zeroed progress. This is the only path that
// leaves a terminal status. Previously awarded points stand.
func (e *Engine) RenewCycle(ctx context.Context, userID string) {
	e.mu.Lock()
	renewed := make([]domain.UserMission, 0)
	for _, m := range e.missions[userID] {
		m.Status = domain.MissionActive
		m.CurrentValue = 0
		m.ProgressPct = 0
		m.CompletedAt = nil
		m.AcceptedAt = e.clock()
		delete(e.lastVersion, m.ID)
		renewed = append(renewed, *m)
	}
	e.mu.Unlock()

	for _, m := range renewed {
		e.emitter.Emit(ctx, bus.MissionProgressChanged{
			UserMissionID: m.ID,
			UserID:        userID,
			ProgressPct:   0,
			Status:        domain.MissionActive,
		})
	}
}

// Missions returns a snapshot of the user's missions.
func (e *Engine) Missions(userID string) []domain.UserMission {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.UserMission, 0, len(e.missions[userID]))
	for _, m := range e.missions[userID] {
		out = append(out, *m)
	}
	return out
}

// Points returns the user's lifetime awarded points.
func (e *Engine) Points(userID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.points[userID]
}

// HandleEvent subscribes the engine to the invalidation bus.
func (e *Engine) HandleEvent(ctx context.Context, evt bus.Event) error {
	switch ev := evt.(type) {
	case bus.RecordAdded:
		e.onRecordAdded(ctx, ev)
	case bus.DayRolled:
		e.onDayRolled(ctx, ev)
	}
	return nil
}

// onRecordAdded recomputes every active mission of the user mapped to the
// event's category. Redelivery of an event whose aggregate version was
// already processed is a no-op, so points can never be awarded twice for
// the same underlying state.
func (e *Engine) onRecordAdded(ctx context.Context, evt bus.RecordAdded) {
	now := e.clock()
	offset := e.offsets.OffsetMinutes(evt.UserID)

	e.mu.Lock()
	affected := make([]*domain.UserMission, 0)
	for _, m := range e.missions[evt.UserID] {
		if m.Status != domain.MissionActive {
			continue
		}
		def, ok := e.catalog.Get(m.MissionID)
		if !ok {
			e.logger.Printf("skipping: %v", &domain.DataIntegrityError{Entity: "mission_definition", ID: m.MissionID, Reason: "not in catalog"})
			recordIntegritySkip()
			continue
		}
		if def.Category != evt.Domain {
			continue
		}
		affected = append(affected, m)
	}
	e.mu.Unlock()

	for _, m := range affected {
		e.recompute(ctx, m.ID, evt.UserID, now, offset)
	}
}

func (e *Engine) recompute(ctx context.Context, userMissionID, userID string, now time.Time, offset int) {
	e.mu.Lock()
	m, err := e.lookup(userID, userMissionID)
	if err != nil || m.Status != domain.MissionActive {
		e.mu.Unlock()
		return
	}
	def, ok := e.catalog.Get(m.MissionID)
	e.mu.Unlock()
	if !ok {
		return
	}

	agg, err := e.store.GetToday(ctx, def.Category, userID, now, offset)
	if err != nil {
		e.logger.Printf("recompute failed (user=%s, mission=%s): %v", userID, m.MissionID, err)
		return
	}

	current := agg.AccumulatedValue
	if current < 0 || math.IsNaN(current) || math.IsInf(current, 0) {
		e.logger.Printf("audit: clamped mission value (user=%s, mission=%s, value=%g)", userID, m.MissionID, current)
		recordClampedProgress()
		current = 0
	}

	var progressEvt *bus.MissionProgressChanged
	var completedEvt *bus.MissionCompleted

	e.mu.Lock()
	m, err = e.lookup(userID, userMissionID)
	if err != nil || m.Status != domain.MissionActive {
		e.mu.Unlock()
		return
	}
	if last, seen := e.lastVersion[m.ID]; seen && last == agg.Version {
		e.mu.Unlock()
		return
	}
	e.lastVersion[m.ID] = agg.Version

	pct := domain.ProgressPct(current, def.TargetValue)
	changed := pct != m.ProgressPct || current != m.CurrentValue
	m.CurrentValue = current
	m.ProgressPct = pct

	if pct >= 100 {
		completedAt := now
		m.Status = domain.MissionCompleted
		m.CompletedAt = &completedAt
		m.PointsAwarded = def.Points
		e.points[userID] += def.Points
		completedEvt = &bus.MissionCompleted{
			UserMissionID: m.ID,
			UserID:        userID,
			MissionID:     def.ID,
			PointsAwarded: def.Points,
		}
		recordCompleted(string(def.Category), def.Points)
	}
	if changed || completedEvt != nil {
		progressEvt = &bus.MissionProgressChanged{
			UserMissionID: m.ID,
			UserID:        userID,
			ProgressPct:   m.ProgressPct,
			Status:        m.Status,
		}
	}
	e.mu.Unlock()

	if progressEvt != nil {
		e.emitter.Emit(ctx, *progressEvt)
	}
	if completedEvt != nil {
		e.emitter.Emit(ctx, *completedEvt)
	}
}

// onDayRolled expires the user's incomplete active daily missions. Pending
// missions keep waiting for acceptance, and terminal missions are never
// touched, so nothing can be resurrected here.
func (e *Engine) onDayRolled(ctx context.Context, evt bus.DayRolled) {
	e.mu.Lock()
	expired := make([]domain.UserMission, 0)
	for _, m := range e.missions[evt.UserID] {
		def, ok := e.catalog.Get(m.MissionID)
		if !ok {
			e.logger.Printf("skipping: %v", &domain.DataIntegrityError{Entity: "mission_definition", ID: m.MissionID, Reason: "not in catalog"})
			recordIntegritySkip()
			continue
		}
		if def.Cadence != domain.CadenceDaily {
			continue
		}
		if m.Status != domain.MissionActive {
			continue
		}
		if m.ProgressPct >= 100 {
			continue
		}
		m.Status = domain.MissionExpired
		delete(e.lastVersion, m.ID)
		expired = append(expired, *m)
	}
	e.mu.Unlock()

	for _, m := range expired {
		recordExpired()
		e.emitter.Emit(ctx, bus.MissionProgressChanged{
			UserMissionID: m.ID,
			UserID:        evt.UserID,
			ProgressPct:   m.ProgressPct,
			Status:        domain.MissionExpired,
		})
	}
}

func (e *Engine) lookup(userID, userMissionID string) (*domain.UserMission, error) {
	m, ok := e.missions[userID][userMissionID]
	if !ok {
		return nil, domain.ErrMissionNotFound
	}
	return m, nil
}
