package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecoStreakAPI/internal/apperrors"
	"ecoStreakAPI/internal/reward"
	"ecoStreakAPI/internal/streak"
	"ecoStreakAPI/internal/types/challenge"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedChallenge(t *testing.T, s *Store, co2 float64) *challenge.Challenge {
	t.Helper()
	c := &challenge.Challenge{Title: "Bike to work", Category: "transport", CO2Saved: co2, IsActive: true}
	require.NoError(t, s.InsertChallenge(context.Background(), c))
	return c
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestApplyCompletion_UpdatesMetricsAndRecordsCompletion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	last := time.Date(2024, 1, 10, 18, 0, 0, 0, time.UTC)
	userID := uuid.New()
	require.NoError(t, s.InsertUser(ctx, SeedUser{
		ID: userID, LastActivityDate: &last, CurrentStreak: 3, LongestStreak: 5, TotalCO2Saved: 8,
	}))
	c := seedChallenge(t, s, 4)

	calc := streak.NewCalculator(time.UTC, true)
	at := time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC)
	res, err := s.ApplyCompletion(ctx, userID, c, at, func(prior streak.State) (streak.State, error) {
		return calc.Next(prior, at)
	})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Streak.CurrentStreak)
	assert.Equal(t, 5, res.Streak.LongestStreak)
	assert.InDelta(t, 12.0, res.TotalCO2Saved, 1e-9)

	m, err := s.GetMetrics(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 4, m.CurrentStreak)
	assert.InDelta(t, 12.0, m.TotalCO2Saved, 1e-9)

	history, err := s.ListCompletions(ctx, userID, 50)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, c.ID, history[0].ChallengeID)
	assert.Equal(t, "Bike to work", history[0].Title)
	assert.True(t, history[0].CompletedAt.Equal(at))
}

func TestApplyCompletion_RollsBackWhenStreakFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	userID := uuid.New()
	require.NoError(t, s.InsertUser(ctx, SeedUser{ID: userID, TotalCO2Saved: 2}))
	c := seedChallenge(t, s, 4)

	_, err := s.ApplyCompletion(ctx, userID, c, time.Now(), func(streak.State) (streak.State, error) {
		return streak.State{}, streak.ErrInvariantViolation
	})
	require.True(t, errors.Is(err, streak.ErrInvariantViolation))

	m, err := s.GetMetrics(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, m.TotalCO2Saved)

	history, err := s.ListCompletions(ctx, userID, 50)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestApplyCompletion_UnknownUser(t *testing.T) {
	s := newTestStore(t)
	c := seedChallenge(t, s, 1)

	_, err := s.ApplyCompletion(context.Background(), uuid.New(), c, time.Now(), func(p streak.State) (streak.State, error) {
		return p, nil
	})
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestApplyCompletion_ConcurrentCompletionsAllCount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	userID := uuid.New()
	require.NoError(t, s.InsertUser(ctx, SeedUser{ID: userID}))
	c := seedChallenge(t, s, 1.5)
	calc := streak.NewCalculator(time.UTC, true)
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ApplyCompletion(ctx, userID, c, at, func(p streak.State) (streak.State, error) {
				return calc.Next(p, at)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	m, err := s.GetMetrics(ctx, userID)
	require.NoError(t, err)
	assert.InDelta(t, 12.0, m.TotalCO2Saved, 1e-9)
	assert.Equal(t, 1, m.CurrentStreak)
}

func TestGrantCosmetic_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	userID := uuid.New()
	cosmeticID := uuid.New()
	require.NoError(t, s.InsertUser(ctx, SeedUser{ID: userID}))
	require.NoError(t, s.InsertCosmetic(ctx, cosmeticID, "Leaf Badge"))

	granted, err := s.GrantCosmetic(ctx, userID, cosmeticID, reward.MetricCO2, time.Now())
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = s.GrantCosmetic(ctx, userID, cosmeticID, reward.MetricStreak, time.Now())
	require.NoError(t, err)
	assert.False(t, granted)

	unlocks, err := s.ListUnlocks(ctx, userID)
	require.NoError(t, err)
	require.Len(t, unlocks, 1)
	assert.Equal(t, reward.MetricCO2, unlocks[0].Source)
	assert.Equal(t, "Leaf Badge", unlocks[0].CosmeticName)
}

func TestActiveThresholds_FiltersByTypeAndActivity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, th := range []reward.Threshold{
		{Type: reward.MetricCO2, Threshold: 25, CosmeticID: uuid.New(), IsActive: true},
		{Type: reward.MetricCO2, Threshold: 10, CosmeticID: uuid.New(), IsActive: true},
		{Type: reward.MetricCO2, Threshold: 50, CosmeticID: uuid.New(), IsActive: false},
		{Type: reward.MetricStreak, Threshold: 3, CosmeticID: uuid.New(), IsActive: true},
	} {
		require.NoError(t, s.InsertThreshold(ctx, th))
	}

	got, err := s.ActiveThresholds(ctx, reward.MetricCO2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 10.0, got[0].Threshold)
	assert.Equal(t, 25.0, got[1].Threshold)
	assert.Equal(t, "co2-10", got[0].CosmeticName)

	got, err = s.ActiveThresholds(ctx, reward.MetricReferral)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReferrals(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	referrer, friend := uuid.New(), uuid.New()
	require.NoError(t, s.InsertUser(ctx, SeedUser{ID: referrer, ReferralCode: "ab12cd34"}))
	require.NoError(t, s.InsertUser(ctx, SeedUser{ID: friend}))

	id, err := s.UserIDByReferralCode(ctx, "AB12CD34")
	require.NoError(t, err)
	assert.Equal(t, referrer, id)

	_, err = s.UserIDByReferralCode(ctx, "ZZZZZZZZ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidReferralCode)

	require.NoError(t, s.SetReferrer(ctx, friend, referrer))
	assert.ErrorIs(t, s.SetReferrer(ctx, friend, referrer), apperrors.ErrAlreadyReferred)
	assert.ErrorIs(t, s.SetReferrer(ctx, uuid.New(), referrer), apperrors.ErrUserNotFound)

	n, err := s.ReferralCount(ctx, referrer)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	m, err := s.GetMetrics(ctx, referrer)
	require.NoError(t, err)
	assert.Equal(t, 1, m.ReferralCount)
}
