package domain

import (
	"math"
	"time"
)

// Cadence is the period over which a mission's progress is evaluated.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceProgram Cadence = "program"
)

// MissionStatus is the lifecycle state of a user's mission.
type MissionStatus string

const (
	MissionPending   MissionStatus = "pending"
	MissionActive    MissionStatus = "active"
	MissionCompleted MissionStatus = "completed"
	MissionCancelled MissionStatus = "cancelled"
	MissionExpired   MissionStatus = "expired"
)

// Terminal reports whether the status admits no further transitions
// outside an explicit cycle renewal.
func (s MissionStatus) Terminal() bool {
	return s == MissionCompleted || s == MissionCancelled || s == MissionExpired
}

// MissionDefinition is static reference data describing a mission template.
type MissionDefinition struct {
	ID          string
	Category    Domain
	TargetValue float64
	Unit        string
	Points      int
	Cadence     Cadence
}

// UserMission is one user's instance of a mission. ProgressPct is always
// derived from CurrentValue against the definition target, never set directly.
type UserMission struct {
	ID            string
	MissionID     string
	UserID        string
	Status        MissionStatus
	CurrentValue  float64
	ProgressPct   int
	PointsAwarded int
	AcceptedAt    time.Time
	CompletedAt   *time.Time
}

// ProgressPct derives the completion percentage, clamped to [0,100].
func ProgressPct(current, target float64) int {
	if target <= 0 || current <= 0 || math.IsNaN(current) || math.IsInf(current, 0) {
		return 0
	}
	pct := int(math.Round(current / target * 100))
	if pct > 100 {
		return 100
	}
	return pct
}
