// Package aggregate maintains versioned per-(domain,user,day) tracking
// aggregates with stale-serving on backend failure.
package aggregate

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"example.com/healthtrack/internal/bus"
	"example.com/healthtrack/internal/cache"
	"example.com/healthtrack/internal/day"
	"example.com/healthtrack/internal/domain"
	"example.com/healthtrack/internal/scope"
)

type aggKey struct {
	domain domain.Domain
	userID string
	dayKey domain.LocalDayKey
}

type entry struct {
	agg   domain.DayAggregate
	seen  map[string]struct{}
	dirty bool
}

// Option configures optional behaviour for the Store.
type Option func(*Store)

// WithLogger overrides the audit/error logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithCache enables write-through caching of current-day aggregates.
func WithCache(c cache.Store, ttl time.Duration) Option {
	return func(s *Store) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithFetchTimeout bounds backend refresh calls.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithDivergenceThreshold sets the absolute difference beyond which a
// server-reported sum is discarded in favour of the client recomputation.
func WithDivergenceThreshold(v float64) Option {
	return func(s *Store) {
		if v > 0 {
			s.threshold = v
		}
	}
}

// Store is the in-process authority for day aggregates. It is safe for
// concurrent use; per-user write ordering is provided by the bus upstream.
type Store struct {
	mu      sync.Mutex
	entries map[aggKey]*entry

	backend      scope.Adapter
	cache        cache.Store
	cacheTTL     time.Duration
	fetchTimeout time.Duration
	threshold    float64
	logger       *log.Logger
}

// NewStore constructs a Store. backend may be nil, in which case misses
// resolve to zero-value aggregates and invalidations only bump versions.
func NewStore(backend scope.Adapter, opts ...Option) *Store {
	s := &Store{
		entries:      make(map[aggKey]*entry),
		backend:      backend,
		cache:        cache.Noop{},
		cacheTTL:     24 * time.Hour,
		fetchTimeout: 3 * time.Second,
		threshold:    0.5,
		logger:       log.New(log.Writer(), "[aggregate] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append folds a record into its day's aggregate, creating the aggregate on
// first use and incrementing its version. The record's LocalDayKey is
// resolved once, from the offset in effect at RecordedAtUTC; aggregates of
// other days are never touched. Appending a record ID the aggregate has
// already absorbed returns the current aggregate unchanged, so Kafka
// redelivery cannot double-count a value or bump the version.
func (s *Store) Append(ctx context.Context, rec domain.TrackingRecord) (domain.DayAggregate, error) {
	if rec.LocalDayKey == "" {
		key, err := day.Resolve(rec.RecordedAtUTC, rec.TZOffsetMinutes)
		if err != nil {
			return domain.DayAggregate{}, err
		}
		rec.LocalDayKey = key
	}

	value := rec.Value
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		s.logger.Printf("audit: clamped record value (record_id=%s, domain=%s, value=%g)", rec.ID, rec.Domain, rec.Value)
		recordClamped(string(rec.Domain))
		value = 0
	}

	s.mu.Lock()
	e := s.getOrCreate(rec.Domain, rec.UserID, rec.LocalDayKey)
	if rec.ID != "" {
		if _, dup := e.seen[rec.ID]; dup {
			current := e.agg
			s.mu.Unlock()
			s.logger.Printf("audit: ignored redelivered record (record_id=%s, domain=%s, day=%s)", rec.ID, rec.Domain, rec.LocalDayKey)
			recordDuplicate(string(rec.Domain))
			return current, nil
		}
		e.seen[rec.ID] = struct{}{}
	}
	e.agg.AccumulatedValue += value
	e.agg.RecordCount++
	e.agg.Version++
	e.agg.Stale = false
	updated := e.agg
	s.mu.Unlock()

	s.writeThrough(ctx, updated)
	return updated, nil
}

// GetToday resolves the user's current day key and returns that aggregate.
// A missing aggregate hydrates from the backend when one is configured; if
// no data exists the zero-value aggregate is returned, because absence of
// data is not an error. Backend failures surface as a stale-flagged value,
// never as an error.
func (s *Store) GetToday(ctx context.Context, d domain.Domain, userID string, nowUTC time.Time, tzOffsetMinutes int) (domain.DayAggregate, error) {
	key, err := day.Resolve(nowUTC, tzOffsetMinutes)
	if err != nil {
		return domain.DayAggregate{}, err
	}

	s.mu.Lock()
	e, ok := s.entries[aggKey{d, userID, key}]
	if ok && !e.dirty {
		agg := e.agg
		s.mu.Unlock()
		return agg, nil
	}
	var last domain.DayAggregate
	if ok {
		last = e.agg
	} else {
		last = domain.ZeroAggregate(d, userID, key)
	}
	s.mu.Unlock()

	if s.backend == nil {
		return last, nil
	}

	refreshed, err := s.refresh(ctx, d, userID, key)
	if err != nil {
		recordStaleServed(string(d))
		last.Stale = true
		s.logger.Printf("serving stale aggregate (domain=%s, user=%s, day=%s): %v", d, userID, key, err)
		return last, nil
	}
	return refreshed, nil
}

// Get returns an aggregate by its explicit historical key. Archived days
// remain retrievable.
func (s *Store) Get(d domain.Domain, userID string, key domain.LocalDayKey) (domain.DayAggregate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[aggKey{d, userID, key}]
	if !ok {
		return domain.DayAggregate{}, false
	}
	return e.agg, true
}

// Invalidate marks the aggregate for recompute from the backend on next
// access and drops its cache entry.
func (s *Store) Invalidate(ctx context.Context, d domain.Domain, userID string, key domain.LocalDayKey) {
	s.mu.Lock()
	if e, ok := s.entries[aggKey{d, userID, key}]; ok {
		e.dirty = true
	}
	s.mu.Unlock()

	if err := s.cache.Remove(ctx, cache.TodayKey(d, userID)); err != nil {
		s.logger.Printf("cache remove failed (key=%s): %v", cache.TodayKey(d, userID), err)
	}
}

// ArchiveDay marks every domain's aggregate for the user's finished day as
// archived and clears the user's current-day cache entries. Archived
// aggregates stay readable through Get.
func (s *Store) ArchiveDay(ctx context.Context, userID string, key domain.LocalDayKey) {
	s.mu.Lock()
	domains := make([]domain.Domain, 0, 4)
	for k, e := range s.entries {
		if k.userID == userID && k.dayKey == key && !e.agg.Archived {
			e.agg.Archived = true
			e.agg.Version++
			domains = append(domains, k.domain)
		}
	}
	s.mu.Unlock()

	for _, d := range domains {
		if err := s.cache.Remove(ctx, cache.TodayKey(d, userID)); err != nil {
			s.logger.Printf("cache remove failed (key=%s): %v", cache.TodayKey(d, userID), err)
		}
	}
}

// HandleEvent subscribes the store to the invalidation bus: DayRolled
// archives the previous day, CacheCleared drops a cache scope.
func (s *Store) HandleEvent(ctx context.Context, evt bus.Event) error {
	switch e := evt.(type) {
	case bus.DayRolled:
		s.ArchiveDay(ctx, e.UserID, e.PreviousKey)
	case bus.CacheCleared:
		return s.cache.RemoveByPrefix(ctx, e.Scope)
	}
	return nil
}

// refresh recomputes one aggregate from the backend. The server total is
// advisory: when it diverges from a recomputation over raw record
// timestamps beyond the threshold, the client value wins and the divergence
// is logged for audit.
func (s *Store) refresh(ctx context.Context, d domain.Domain, userID string, key domain.LocalDayKey) (domain.DayAggregate, error) {
	start := time.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	serverSum, serverErr := s.backend.SumForDay(fetchCtx, d, userID, key)
	records, recordsErr := s.backend.RecordsAround(fetchCtx, d, userID, key)
	refreshDuration.WithLabelValues(string(d)).Observe(time.Since(start).Seconds())

	if serverErr != nil && recordsErr != nil {
		err := serverErr
		if errors.Is(err, context.DeadlineExceeded) {
			err = &domain.TimeoutError{Op: "scope fetch", Elapsed: s.fetchTimeout, Err: err}
		}
		return domain.DayAggregate{}, err
	}

	total := serverSum.Total
	count := serverSum.Count
	if recordsErr == nil {
		clientTotal, clientCount := reclassify(records, key)
		if serverErr != nil || math.Abs(clientTotal-serverSum.Total) > s.threshold {
			if serverErr == nil {
				warn := &domain.StaleDataWarning{
					Domain: d, UserID: userID, LocalDayKey: key,
					ServerValue: serverSum.Total, ClientValue: clientTotal,
				}
				s.logger.Printf("audit: %v", warn)
				recordDivergence(string(d))
			}
			total = clientTotal
			count = clientCount
		}
	}

	s.mu.Lock()
	e := s.getOrCreate(d, userID, key)
	if e.agg.AccumulatedValue != total || e.agg.RecordCount != count || e.dirty || e.agg.Stale {
		e.agg.AccumulatedValue = total
		e.agg.RecordCount = count
		e.agg.Version++
	}
	e.agg.Stale = false
	e.dirty = false
	updated := e.agg
	s.mu.Unlock()

	s.writeThrough(ctx, updated)
	return updated, nil
}

// reclassify sums only the records whose own (instant, offset) pair resolves
// to the requested local day, regardless of how the backend filtered them.
func reclassify(records []domain.TrackingRecord, key domain.LocalDayKey) (float64, int) {
	var total float64
	count := 0
	for _, rec := range records {
		recKey := rec.LocalDayKey
		if recKey == "" {
			resolved, err := day.Resolve(rec.RecordedAtUTC, rec.TZOffsetMinutes)
			if err != nil {
				continue
			}
			recKey = resolved
		}
		if recKey != key {
			continue
		}
		if math.IsNaN(rec.Value) || math.IsInf(rec.Value, 0) || rec.Value < 0 {
			continue
		}
		total += rec.Value
		count++
	}
	return total, count
}

func (s *Store) getOrCreate(d domain.Domain, userID string, key domain.LocalDayKey) *entry {
	k := aggKey{d, userID, key}
	e, ok := s.entries[k]
	if !ok {
		e = &entry{agg: domain.ZeroAggregate(d, userID, key), seen: make(map[string]struct{})}
		s.entries[k] = e
	}
	return e
}

func (s *Store) writeThrough(ctx context.Context, agg domain.DayAggregate) {
	if _, ok := s.cache.(cache.Noop); ok {
		return
	}
	body, err := encodeAggregate(agg)
	if err != nil {
		s.logger.Printf("cache encode failed (domain=%s, user=%s): %v", agg.Domain, agg.UserID, err)
		return
	}
	err = s.cache.Set(ctx, cache.Entry{
		Key:           cache.TodayKey(agg.Domain, agg.UserID),
		Value:         body,
		SourceVersion: agg.Version,
	}, s.cacheTTL)
	if err != nil {
		s.logger.Printf("cache set failed (domain=%s, user=%s): %v", agg.Domain, agg.UserID, err)
	}
}
