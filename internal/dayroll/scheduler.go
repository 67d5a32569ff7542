package dayroll

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"example.com/healthtrack/internal/bus"
	"example.com/healthtrack/internal/day"
	"example.com/healthtrack/internal/domain"
)

// Invalidator is the aggregate store surface used to retire a finished day.
type Invalidator interface {
	ArchiveDay(ctx context.Context, userID string, key domain.LocalDayKey)
}

// Option configures optional behaviour for the Scheduler.
type Option func(*Scheduler)

// WithLogger overrides the scheduler logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithSchedule sets the cron spec for boundary sweeps.
func WithSchedule(spec string) Option {
	return func(s *Scheduler) { s.schedule = spec }
}

// Scheduler periodically checks every tracked user for a local-day
// boundary crossing and publishes DayRolled when one is found.
type Scheduler struct {
	registry *Registry
	bus      *bus.Bus
	store    Invalidator
	cron     *cron.Cron
	clock    func() time.Time
	schedule string
	logger   *log.Logger
	rolls    sync.WaitGroup
}

// NewScheduler constructs a Scheduler sweeping on the given registry.
func NewScheduler(registry *Registry, b *bus.Bus, store Invalidator, opts ...Option) *Scheduler {
	s := &Scheduler{
		registry: registry,
		bus:      b,
		store:    store,
		cron:     cron.New(),
		clock:    func() time.Time { return time.Now().UTC() },
		schedule: "@every 1m",
		logger:   log.New(log.Writer(), "[dayroll] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins periodic sweeps.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.Sweep); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the sweep loop and waits for running sweeps and in-flight
// rolls to finish, so no roll publishes to an already-closed bus.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.rolls.Wait()
}

// Sweep checks every tracked user once. It is exported so callers (and
// tests) can force a boundary check, e.g. when the app returns to the
// foreground.
func (s *Scheduler) Sweep() {
	now := s.clock()
	for userID, st := range s.registry.snapshot() {
		if st.lastKey == "" {
			continue
		}
		rolled, err := day.HasDayRolled(st.lastKey, now, st.offsetMinutes)
		if err != nil {
			s.logger.Printf("sweep skipped (user=%s): %v", userID, err)
			continue
		}
		if !rolled {
			continue
		}
		newKey := day.MustResolve(now, st.offsetMinutes)
		s.roll(userID, st.lastKey, newKey)
	}
}

// roll advances the user's day, retires the finished day under a
// cancellable per-user context, and publishes DayRolled. A newer roll for
// the same user supersedes the in-flight invalidation rather than merging
// with it.
func (s *Scheduler) roll(userID string, prevKey, newKey domain.LocalDayKey) {
	ctx := s.registry.beginRoll(userID, newKey)
	recordRoll()

	s.rolls.Add(1)
	go func() {
		defer s.rolls.Done()
		if s.store != nil {
			s.store.ArchiveDay(ctx, userID, prevKey)
		}
		if ctx.Err() != nil {
			s.logger.Printf("roll superseded (user=%s, prev=%s, new=%s)", userID, prevKey, newKey)
			recordSuperseded()
			return
		}
		evt := bus.DayRolled{UserID: userID, PreviousKey: prevKey, NewKey: newKey}
		if err := s.bus.Publish(ctx, evt); err != nil {
			s.logger.Printf("publish failed (user=%s): %v", userID, err)
		}
	}()
}
