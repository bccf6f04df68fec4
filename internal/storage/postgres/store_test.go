package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecoStreakAPI/internal/apperrors"
	"ecoStreakAPI/internal/reward"
	"ecoStreakAPI/internal/storage/postgres"
	"ecoStreakAPI/internal/streak"
	"ecoStreakAPI/internal/testutil"
	"ecoStreakAPI/internal/types/challenge"
)

func TestApplyCompletion_ConcurrentCompletionsAllCount(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()

	userID := testutil.InsertUser(t, pool, testutil.UserSeed{})
	c := &challenge.Challenge{Title: "Bike to work", Category: "transport", CO2Saved: 1.5, IsActive: true}
	testutil.InsertChallenge(t, pool, c)

	calc := streak.NewCalculator(time.UTC, true)
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ApplyCompletion(ctx, userID, c, at, func(p streak.State) (streak.State, error) {
				return calc.Next(p, at)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	m, err := store.GetMetrics(ctx, userID)
	require.NoError(t, err)
	assert.InDelta(t, 12.0, m.TotalCO2Saved, 1e-9)
	assert.Equal(t, 1, m.CurrentStreak)

	history, err := store.ListCompletions(ctx, userID, 50)
	require.NoError(t, err)
	assert.Len(t, history, 8)
}

func TestApplyCompletion_RollsBackWhenStreakFails(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()

	userID := testutil.InsertUser(t, pool, testutil.UserSeed{TotalCO2Saved: 3})
	c := &challenge.Challenge{Title: "Cold wash", CO2Saved: 2, IsActive: true}
	testutil.InsertChallenge(t, pool, c)

	_, err := store.ApplyCompletion(ctx, userID, c, time.Now(), func(streak.State) (streak.State, error) {
		return streak.State{}, streak.ErrInvariantViolation
	})
	require.True(t, errors.Is(err, streak.ErrInvariantViolation))

	m, err := store.GetMetrics(ctx, userID)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, m.TotalCO2Saved, 1e-9)

	history, err := store.ListCompletions(ctx, userID, 50)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestGetChallenge_NotFound(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	store := postgres.NewStore(pool)

	_, err := store.GetChallenge(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrChallengeNotFound)
}

func TestGrantCosmetic_IsIdempotent(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()

	userID := testutil.InsertUser(t, pool, testutil.UserSeed{})
	cosmeticID := testutil.InsertThreshold(t, pool, reward.MetricCO2, 10, "badge")

	granted, err := store.GrantCosmetic(ctx, userID, cosmeticID, reward.MetricCO2, time.Now())
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = store.GrantCosmetic(ctx, userID, cosmeticID, reward.MetricCO2, time.Now())
	require.NoError(t, err)
	assert.False(t, granted)

	unlocks, err := store.ListUnlocks(ctx, userID)
	require.NoError(t, err)
	require.Len(t, unlocks, 1)
	assert.Equal(t, "co2-10", unlocks[0].CosmeticName)
}

func TestReferrals(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()

	referrer := testutil.InsertUser(t, pool, testutil.UserSeed{ReferralCode: "GREEN123"})
	referred := testutil.InsertUser(t, pool, testutil.UserSeed{})

	got, err := store.UserIDByReferralCode(ctx, "green123")
	require.NoError(t, err)
	assert.Equal(t, referrer, got)

	_, err = store.UserIDByReferralCode(ctx, "NOPE0000")
	assert.ErrorIs(t, err, apperrors.ErrInvalidReferralCode)

	require.NoError(t, store.SetReferrer(ctx, referred, referrer))
	assert.ErrorIs(t, store.SetReferrer(ctx, referred, referrer), apperrors.ErrAlreadyReferred)
	assert.ErrorIs(t, store.SetReferrer(ctx, uuid.New(), referrer), apperrors.ErrUserNotFound)

	count, err := store.ReferralCount(ctx, referrer)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	m, err := store.GetMetrics(ctx, referrer)
	require.NoError(t, err)
	assert.Equal(t, 1, m.ReferralCount)
}
