// Package dayroll tracks per-user local days and emits DayRolled events when
// they advance.
package dayroll

import (
	"context"
	"sync"
	"time"

	"example.com/healthtrack/internal/day"
	"example.com/healthtrack/internal/domain"
	"example.com/healthtrack/internal/observability"
)

type userState struct {
	offsetMinutes int
	lastKey       domain.LocalDayKey
	cancelRoll    context.CancelFunc
}

// Registry remembers, per user, the timezone offset last reported by the
// device and the last local day key the scheduler has confirmed.
type Registry struct {
	mu    sync.Mutex
	users map[string]*userState
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[string]*userState)}
}

// Observe records the offset in effect for a user, seeding the last-known
// day key on first sight. Day advancement is owned by the scheduler, so a
// later Observe never moves lastKey.
func (r *Registry) Observe(userID string, offsetMinutes int, at time.Time) error {
	key, err := day.Resolve(at, offsetMinutes)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.users[userID]
	if !ok {
		r.users[userID] = &userState{offsetMinutes: offsetMinutes, lastKey: key}
		observability.SetTrackedUsers(len(r.users))
		return nil
	}
	st.offsetMinutes = offsetMinutes
	return nil
}

// OffsetMinutes returns the user's current offset, zero (UTC) when unknown.
func (r *Registry) OffsetMinutes(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.users[userID]; ok {
		return st.offsetMinutes
	}
	return 0
}

// LastKey returns the user's last confirmed local day key.
func (r *Registry) LastKey(userID string) (domain.LocalDayKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.users[userID]
	if !ok {
		return "", false
	}
	return st.lastKey, true
}

// snapshot returns a stable copy of the tracked users.
func (r *Registry) snapshot() map[string]userState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]userState, len(r.users))
	for id, st := range r.users {
		out[id] = *st
	}
	return out
}

// beginRoll advances the user's day and returns a context for the roll's
// invalidation work. A roll already in flight for the user is superseded:
// its context is cancelled, because only the latest roll is authoritative.
func (r *Registry) beginRoll(userID string, newKey domain.LocalDayKey) context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.users[userID]
	if !ok {
		st = &userState{}
		r.users[userID] = st
	}
	if st.cancelRoll != nil {
		st.cancelRoll()
	}
	ctx, cancel := context.WithCancel(context.Background())
	st.cancelRoll = cancel
	st.lastKey = newKey
	return ctx
}
