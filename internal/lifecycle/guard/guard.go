// Package guard holds the assignment eligibility rule. Listings, the engine
// and the sweeper all derive their decisions from Cutoff so they agree on
// the day a cooloff ends.
package guard

import (
	"time"

	phonenumberdomain "github.com/smallbiznis/numberpool/internal/phonenumber/domain"
)

const day = 24 * time.Hour

// Policy supplies the cooloff window in whole days.
type Policy interface {
	CooloffWindowDays() int
}

// StaticPolicy is a fixed window, mostly for tests and one-off tools.
type StaticPolicy int

func (p StaticPolicy) CooloffWindowDays() int { return int(p) }

// StartOfDayUTC truncates t to midnight UTC.
func StartOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Cutoff returns the instant before which an unassignment counts as elapsed.
// At day granularity a cooloff has elapsed when the UTC calendar days between
// the unassignment and now reach windowDays, which holds exactly when
// unassignmentDate < StartOfDayUTC(now) - (windowDays-1) days.
func Cutoff(now time.Time, windowDays int) time.Time {
	if windowDays < 0 {
		windowDays = 0
	}
	return StartOfDayUTC(now).Add(-time.Duration(windowDays-1) * day)
}

// CooloffElapsed reports whether an unassignment at unassignedAt is past cutoff.
func CooloffElapsed(unassignedAt *time.Time, cutoff time.Time) bool {
	return unassignedAt != nil && unassignedAt.Before(cutoff)
}

// IsEligibleAt reports whether number can be assigned given a precomputed cutoff.
func IsEligibleAt(number phonenumberdomain.PhoneNumber, cutoff time.Time) bool {
	switch number.Status {
	case phonenumberdomain.StatusUnassigned:
		return true
	case phonenumberdomain.StatusCooloff:
		return CooloffElapsed(number.UnassignmentDate, cutoff)
	}
	return false
}

// IsEligibleForAssignment reports whether number can be assigned at now.
func IsEligibleForAssignment(number phonenumberdomain.PhoneNumber, now time.Time, windowDays int) bool {
	return IsEligibleAt(number, Cutoff(now, windowDays))
}

// EffectiveStatusAt maps the stored status to what readers should see.
func EffectiveStatusAt(number phonenumberdomain.PhoneNumber, cutoff time.Time) phonenumberdomain.EffectiveStatus {
	switch number.Status {
	case phonenumberdomain.StatusAssigned:
		return phonenumberdomain.EffectiveStatusAssigned
	case phonenumberdomain.StatusCooloff:
		if !CooloffElapsed(number.UnassignmentDate, cutoff) {
			return phonenumberdomain.EffectiveStatusCooloff
		}
	}
	return phonenumberdomain.EffectiveStatusAvailable
}

// EligibleOn returns the first UTC day on which a number unassigned at
// unassignedAt becomes assignable.
func EligibleOn(unassignedAt time.Time, windowDays int) time.Time {
	if windowDays < 0 {
		windowDays = 0
	}
	return StartOfDayUTC(unassignedAt).Add(time.Duration(windowDays) * day)
}
