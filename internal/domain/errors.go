package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissionNotFound is returned when a user mission cannot be located.
	ErrMissionNotFound = errors.New("user mission not found")
	// ErrUnknownDefinition indicates a mission references a definition missing
	// from the catalog.
	ErrUnknownDefinition = errors.New("unknown mission definition")
)

// ConfigError marks an invalid configuration value, detected at startup or at
// the edge of ingestion. It is the only error class callers are expected to
// treat as fatal.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// StaleDataWarning records that a server-reported aggregate diverged from the
// client-side recomputation beyond the accepted threshold. It is surfaced as
// an audit signal, never raised to callers.
type StaleDataWarning struct {
	Domain      Domain
	UserID      string
	LocalDayKey LocalDayKey
	ServerValue float64
	ClientValue float64
}

func (e *StaleDataWarning) Error() string {
	return fmt.Sprintf("stale data for %s/%s on %s: server=%g client=%g",
		e.Domain, e.UserID, e.LocalDayKey, e.ServerValue, e.ClientValue)
}

// DataIntegrityError flags an inconsistent entity. The offending entity is
// logged and skipped; processing of other units continues.
type DataIntegrityError struct {
	Entity string
	ID     string
	Reason string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity: %s %s: %s", e.Entity, e.ID, e.Reason)
}

// TimeoutError wraps a bounded external fetch that exceeded its deadline.
// Callers fall back to stale-serving instead of blocking.
type TimeoutError struct {
	Op      string
	Elapsed time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s: %v", e.Op, e.Elapsed, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
