package bus

import "example.com/healthtrack/internal/domain"

// Event is a typed message distributed by the Bus. UserKey selects the
// per-user delivery queue; events for the same user are delivered in publish
// order. An empty UserKey routes through the shared broadcast queue.
type Event interface {
	EventType() string
	UserKey() string
}

// RecordAdded announces that a tracking record was folded into its day
// aggregate. AggregateVersion carries the post-append version for
// idempotence checks downstream.
type RecordAdded struct {
	Domain           domain.Domain
	UserID           string
	LocalDayKey      domain.LocalDayKey
	AggregateVersion int64
}

func (RecordAdded) EventType() string { return "tracking.record_added" }
func (e RecordAdded) UserKey() string { return e.UserID }

// DayRolled announces that a user's local calendar day advanced. It is
// published after all of the user's prior-day RecordAdded events, so a
// subscriber that observes it has seen the complete previous day.
type DayRolled struct {
	UserID      string
	PreviousKey domain.LocalDayKey
	NewKey      domain.LocalDayKey
}

func (DayRolled) EventType() string { return "tracking.day_rolled" }
func (e DayRolled) UserKey() string { return e.UserID }

// CacheCleared announces a bulk invalidation of a cache scope
// (e.g. "today:water:" or "today:" for everything).
type CacheCleared struct {
	Scope string
}

func (CacheCleared) EventType() string { return "cache.cleared" }
func (CacheCleared) UserKey() string   { return "" }

// MissionProgressChanged reports a recomputed mission progress snapshot.
type MissionProgressChanged struct {
	UserMissionID string
	UserID        string
	ProgressPct   int
	Status        domain.MissionStatus
}

func (MissionProgressChanged) EventType() string { return "mission.progress_changed" }
func (e MissionProgressChanged) UserKey() string { return e.UserID }

// MissionCompleted reports a mission reaching its target. Points are awarded
// exactly once per completion.
type MissionCompleted struct {
	UserMissionID string
	UserID        string
	MissionID     string
	PointsAwarded int
}

func (MissionCompleted) EventType() string { return "mission.completed" }
func (e MissionCompleted) UserKey() string { return e.UserID }
