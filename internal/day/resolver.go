// Package day resolves UTC instants to local calendar day keys.
package day

import (
	"fmt"
	"time"

	"example.com/healthtrack/internal/domain"
)

const (
	// MaxOffsetMinutes bounds timezone offsets to the UTC±14h range in use
	// anywhere on earth.
	MaxOffsetMinutes = 14 * 60

	keyLayout = "2006-01-02"
)

// Resolve maps a UTC instant and the timezone offset in effect at that
// instant to the local calendar day key. It is pure: the same inputs always
// produce the same key. The only failure mode is an out-of-range offset.
func Resolve(instantUTC time.Time, tzOffsetMinutes int) (domain.LocalDayKey, error) {
	if tzOffsetMinutes < -MaxOffsetMinutes || tzOffsetMinutes > MaxOffsetMinutes {
		return "", &domain.ConfigError{
			Field:  "tz_offset_minutes",
			Reason: fmt.Sprintf("offset %d outside ±%d", tzOffsetMinutes, MaxOffsetMinutes),
		}
	}
	local := instantUTC.UTC().Add(time.Duration(tzOffsetMinutes) * time.Minute)
	return domain.LocalDayKey(local.Format(keyLayout)), nil
}

// MustResolve is Resolve for callers that have already validated the offset.
func MustResolve(instantUTC time.Time, tzOffsetMinutes int) domain.LocalDayKey {
	key, err := Resolve(instantUTC, tzOffsetMinutes)
	if err != nil {
		panic(err)
	}
	return key
}

// HasDayRolled reports whether the local calendar day at instantUTC has
// advanced past prevKey. A key equal to or earlier than prevKey (possible
// when the offset regime changes backwards) does not count as a roll.
func HasDayRolled(prevKey domain.LocalDayKey, instantUTC time.Time, tzOffsetMinutes int) (bool, error) {
	key, err := Resolve(instantUTC, tzOffsetMinutes)
	if err != nil {
		return false, err
	}
	return prevKey.Before(key), nil
}
