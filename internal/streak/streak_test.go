package streak_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecoStreakAPI/internal/streak"
)

func day(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestNext_FirstActivity(t *testing.T) {
	calc := streak.NewCalculator(time.UTC, true)

	at := day(2024, 1, 10, 8)
	next, err := calc.Next(streak.State{}, at)
	require.NoError(t, err)

	assert.Equal(t, 1, next.CurrentStreak)
	assert.Equal(t, 1, next.LongestStreak)
	require.NotNil(t, next.LastActivityDate)
	assert.True(t, next.LastActivityDate.Equal(at))
}

func TestNext_Transitions(t *testing.T) {
	last := day(2024, 1, 10, 22)

	tests := []struct {
		name        string
		prior       streak.State
		at          time.Time
		wantCurrent int
		wantLongest int
	}{
		{
			name:        "same day keeps streak",
			prior:       streak.State{LastActivityDate: &last, CurrentStreak: 3, LongestStreak: 5},
			at:          day(2024, 1, 10, 23),
			wantCurrent: 3,
			wantLongest: 5,
		},
		{
			name:        "same day with zero streak becomes one",
			prior:       streak.State{LastActivityDate: &last, CurrentStreak: 0, LongestStreak: 0},
			at:          day(2024, 1, 10, 23),
			wantCurrent: 1,
			wantLongest: 1,
		},
		{
			name:        "next day increments",
			prior:       streak.State{LastActivityDate: &last, CurrentStreak: 3, LongestStreak: 5},
			at:          day(2024, 1, 11, 1),
			wantCurrent: 4,
			wantLongest: 5,
		},
		{
			name:        "next day extends longest",
			prior:       streak.State{LastActivityDate: &last, CurrentStreak: 5, LongestStreak: 5},
			at:          day(2024, 1, 11, 12),
			wantCurrent: 6,
			wantLongest: 6,
		},
		{
			name:        "gap resets",
			prior:       streak.State{LastActivityDate: &last, CurrentStreak: 4, LongestStreak: 9},
			at:          day(2024, 1, 13, 9),
			wantCurrent: 1,
			wantLongest: 9,
		},
		{
			name:        "backdated activity restarts",
			prior:       streak.State{LastActivityDate: &last, CurrentStreak: 4, LongestStreak: 4},
			at:          day(2024, 1, 8, 9),
			wantCurrent: 1,
			wantLongest: 4,
		},
		{
			name:        "month boundary counts as consecutive",
			prior:       streak.State{LastActivityDate: ptr(day(2024, 1, 31, 20)), CurrentStreak: 2, LongestStreak: 2},
			at:          day(2024, 2, 1, 6),
			wantCurrent: 3,
			wantLongest: 3,
		},
	}

	calc := streak.NewCalculator(time.UTC, true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := calc.Next(tt.prior, tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCurrent, next.CurrentStreak)
			assert.Equal(t, tt.wantLongest, next.LongestStreak)
			assert.True(t, next.LastActivityDate.Equal(tt.at))
		})
	}
}

func TestNext_SameDayTwiceDoesNotDoubleIncrement(t *testing.T) {
	calc := streak.NewCalculator(time.UTC, true)
	last := day(2024, 3, 1, 9)
	state := streak.State{LastActivityDate: &last, CurrentStreak: 2, LongestStreak: 2}

	first, err := calc.Next(state, day(2024, 3, 2, 8))
	require.NoError(t, err)
	second, err := calc.Next(first, day(2024, 3, 2, 19))
	require.NoError(t, err)

	assert.Equal(t, 3, first.CurrentStreak)
	assert.Equal(t, 3, second.CurrentStreak)
}

func TestNext_LongestIsMonotonic(t *testing.T) {
	calc := streak.NewCalculator(time.UTC, true)
	events := []time.Time{
		day(2024, 5, 1, 10),
		day(2024, 5, 2, 10),
		day(2024, 5, 2, 18),
		day(2024, 5, 3, 7),
		day(2024, 5, 7, 7),
		day(2024, 5, 6, 7),
		day(2024, 5, 8, 7),
		day(2024, 5, 9, 7),
	}

	var state streak.State
	for _, at := range events {
		next, err := calc.Next(state, at)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, next.LongestStreak, state.LongestStreak)
		assert.GreaterOrEqual(t, next.LongestStreak, next.CurrentStreak)
		assert.GreaterOrEqual(t, next.CurrentStreak, 1)
		state = next
	}
	assert.Equal(t, 3, state.LongestStreak)
}

func TestNext_UsesConfiguredLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	calc := streak.NewCalculator(tokyo, true)

	// 23:30 UTC on Jan 10 is already Jan 11 in Tokyo.
	last := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	at := time.Date(2024, 1, 10, 23, 30, 0, 0, time.UTC)

	next, err := calc.Next(streak.State{LastActivityDate: &last, CurrentStreak: 1, LongestStreak: 1}, at)
	require.NoError(t, err)
	assert.Equal(t, 2, next.CurrentStreak)

	utcCalc := streak.NewCalculator(time.UTC, true)
	next, err = utcCalc.Next(streak.State{LastActivityDate: &last, CurrentStreak: 1, LongestStreak: 1}, at)
	require.NoError(t, err)
	assert.Equal(t, 1, next.CurrentStreak)
}

func TestNext_InvariantViolation(t *testing.T) {
	last := day(2024, 1, 10, 9)
	prior := streak.State{LastActivityDate: &last, CurrentStreak: -2, LongestStreak: 1}

	_, err := streak.NewCalculator(time.UTC, true).Next(prior, day(2024, 1, 11, 9))
	assert.True(t, errors.Is(err, streak.ErrInvariantViolation))

	next, err := streak.NewCalculator(time.UTC, false).Next(prior, day(2024, 1, 11, 9))
	require.NoError(t, err)
	assert.Equal(t, 1, next.CurrentStreak)
	assert.Equal(t, 1, next.LongestStreak)
}

func TestDaysBetween_DSTDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 2024-03-10 is 23 hours long in New York.
	a := time.Date(2024, 3, 10, 0, 30, 0, 0, ny)
	b := time.Date(2024, 3, 11, 0, 15, 0, 0, ny)
	assert.Equal(t, 1, streak.DaysBetween(a, b, ny))
	assert.Equal(t, -1, streak.DaysBetween(b, a, ny))
}

func ptr(t time.Time) *time.Time { return &t }
