package streak

import (
	"errors"
	"time"
)

var ErrInvariantViolation = errors.New("streak invariant violated")

// State is the streak-relevant slice of a user's metrics.
type State struct {
	LastActivityDate *time.Time `json:"last_activity_date"`
	CurrentStreak    int        `json:"current_streak"`
	LongestStreak    int        `json:"longest_streak"`
}

// Calculator computes the next streak State for a qualifying activity.
// All day comparisons happen in loc.
type Calculator struct {
	loc    *time.Location
	strict bool
}

func NewCalculator(loc *time.Location, strict bool) *Calculator {
	if loc == nil {
		loc = time.Local
	}
	return &Calculator{loc: loc, strict: strict}
}

func (c *Calculator) Location() *time.Location {
	return c.loc
}

// Next returns the state after an activity at the given moment.
// In strict mode negative prior counters are reported as ErrInvariantViolation,
// otherwise they are clamped to zero.
func (c *Calculator) Next(prior State, at time.Time) (State, error) {
	if prior.CurrentStreak < 0 || prior.LongestStreak < 0 {
		if c.strict {
			return prior, ErrInvariantViolation
		}
		prior.CurrentStreak = max(prior.CurrentStreak, 0)
		prior.LongestStreak = max(prior.LongestStreak, 0)
	}

	current := 1
	if prior.LastActivityDate != nil {
		switch DaysBetween(*prior.LastActivityDate, at, c.loc) {
		case 0:
			current = max(prior.CurrentStreak, 1)
		case 1:
			current = prior.CurrentStreak + 1
		default:
			// gap, or an activity older than the last one
			current = 1
		}
	}

	last := at
	return State{
		LastActivityDate: &last,
		CurrentStreak:    current,
		LongestStreak:    max(prior.LongestStreak, current),
	}, nil
}

// DaysBetween counts calendar days from a to b as seen in loc. It is negative when b
// falls on an earlier day than a.
func DaysBetween(a, b time.Time, loc *time.Location) int {
	return int(calendarDay(b, loc).Sub(calendarDay(a, loc)).Hours() / 24)
}

// calendarDay maps t to midnight UTC of its local date so that DST shifts in loc
// never produce 23 or 25 hour days.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
