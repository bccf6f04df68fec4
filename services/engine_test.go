package services_test

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
	"go.uber.org/zap/zaptest"

	"ecoStreakAPI/internal/apperrors"
	"ecoStreakAPI/internal/reward"
	"ecoStreakAPI/internal/storage/sqlite"
	"ecoStreakAPI/internal/streak"
	"ecoStreakAPI/internal/types/challenge"
	"ecoStreakAPI/internal/types/notification"
	"ecoStreakAPI/services"
)

type recordingNotifier struct {
	mu      sync.Mutex
	unlocks map[uuid.UUID][]reward.Unlock
}

func (n *recordingNotifier) NotifyUnlocks(_ context.Context, userID uuid.UUID, unlocks []reward.Unlock) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.unlocks == nil {
		n.unlocks = map[uuid.UUID][]reward.Unlock{}
	}
	n.unlocks[userID] = append(n.unlocks[userID], unlocks...)
}

type recordingCreator struct {
	mu   sync.Mutex
	reqs []*notification.CreateNotificationRequest
}

func (c *recordingCreator) CreateNotification(_ context.Context, req *notification.CreateNotificationRequest) (*notification.Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, req)
	return &notification.Notification{ID: uuid.New(), UserID: req.UserID, Type: req.Type}, nil
}

// flakyStore fails every grant of one cosmetic.
type flakyStore struct {
	*sqlite.Store
	failFor uuid.UUID
}

func (f *flakyStore) GrantCosmetic(ctx context.Context, userID, cosmeticID uuid.UUID, source reward.MetricType, at time.Time) (bool, error) {
	if cosmeticID == f.failFor {
		return false, errors.New("connection reset")
	}
	return f.Store.GrantCosmetic(ctx, userID, cosmeticID, source, at)
}

type engine struct {
	store      *sqlite.Store
	rewards    *services.RewardService
	challenges *services.ChallengeService
	referrals  *services.ReferralService
	notifier   *recordingNotifier
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := zaptest.NewLogger(t)
	notifier := &recordingNotifier{}
	rewards := services.NewRewardService(store, nil, logger)
	rewards.SetNotifier(notifier)

	return &engine{
		store:      store,
		rewards:    rewards,
		challenges: services.NewChallengeService(store, rewards, streak.NewCalculator(time.UTC, true), logger),
		referrals:  services.NewReferralService(store, rewards, "https://ecostreak.app/invite", logger),
		notifier:   notifier,
	}
}

func (e *engine) threshold(t *testing.T, typ reward.MetricType, value float64) uuid.UUID {
	t.Helper()
	cosmeticID := uuid.New()
	require.NoError(t, e.store.InsertThreshold(context.Background(), reward.Threshold{
		Type: typ, Threshold: value, CosmeticID: cosmeticID, IsActive: true,
	}))
	return cosmeticID
}

func (e *engine) challenge(t *testing.T, co2 float64, active bool) *challenge.Challenge {
	t.Helper()
	c := &challenge.Challenge{Title: "Meat-free day", Category: "food", CO2Saved: co2, IsActive: active}
	require.NoError(t, e.store.InsertChallenge(context.Background(), c))
	return c
}

func TestCompleteChallenge_ConcreteScenario(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	last := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	userID := uuid.New()
	require.NoError(t, e.store.InsertUser(ctx, sqlite.SeedUser{
		ID: userID, ClerkID: "user_a", LastActivityDate: &last,
		CurrentStreak: 3, LongestStreak: 5, TotalCO2Saved: 8,
	}))
	leaf := e.threshold(t, reward.MetricCO2, 10)
	e.threshold(t, reward.MetricCO2, 25)
	c := e.challenge(t, 4, true)

	at := time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC)
	e.challenges.SetClock(func() time.Time { return at })

	res, err := e.challenges.CompleteChallenge(ctx, "user_a", c.ID)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Streak.CurrentStreak)
	assert.Equal(t, 5, res.Streak.LongestStreak)
	assert.InDelta(t, 12.0, res.TotalCO2Saved, 1e-9)
	require.NotNil(t, res.Streak.LastActivityDate)
	assert.True(t, res.Streak.LastActivityDate.Equal(at))

	require.Len(t, res.Unlocked, 1)
	assert.Equal(t, leaf, res.Unlocked[0].CosmeticID)
	assert.Equal(t, reward.MetricCO2, res.Unlocked[0].Source)

	owned, err := e.store.ListUnlocks(ctx, userID)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, leaf, owned[0].CosmeticID)
	assert.Len(t, e.notifier.unlocks[userID], 1)
}

func TestCompleteChallenge_RejectsMissingAndInactive(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	require.NoError(t, e.store.InsertUser(ctx, sqlite.SeedUser{ClerkID: "user_b"}))

	_, err := e.challenges.CompleteChallenge(ctx, "user_b", uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrChallengeNotFound)

	inactive := e.challenge(t, 2, false)
	_, err = e.challenges.CompleteChallenge(ctx, "user_b", inactive.ID)
	assert.ErrorIs(t, err, apperrors.ErrChallengeInactive)

	_, err = e.challenges.CompleteChallenge(ctx, "nobody", inactive.ID)
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestEvaluate_GrantsEveryCrossedThreshold(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	userID := uuid.New()
	require.NoError(t, e.store.InsertUser(ctx, sqlite.SeedUser{ID: userID, ClerkID: "user_c", TotalCO2Saved: 5}))
	want := []uuid.UUID{
		e.threshold(t, reward.MetricCO2, 10),
		e.threshold(t, reward.MetricCO2, 25),
		e.threshold(t, reward.MetricCO2, 50),
	}
	big := e.challenge(t, 55, true)

	res, err := e.challenges.CompleteChallenge(ctx, "user_c", big.ID)
	require.NoError(t, err)
	assert.InDelta(t, 60.0, res.TotalCO2Saved, 1e-9)

	var got []uuid.UUID
	for _, u := range res.Unlocked {
		got = append(got, u.CosmeticID)
	}
	assert.ElementsMatch(t, want, got)
}

func TestEvaluate_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	userID := uuid.New()
	require.NoError(t, e.store.InsertUser(ctx, sqlite.SeedUser{ID: userID, CurrentStreak: 7, LongestStreak: 7}))
	e.threshold(t, reward.MetricStreak, 3)
	e.threshold(t, reward.MetricStreak, 7)

	first, err := e.rewards.Evaluate(ctx, userID, reward.MetricStreak, 7)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := e.rewards.Evaluate(ctx, userID, reward.MetricStreak, 7)
	require.NoError(t, err)
	assert.Empty(t, second)

	owned, err := e.store.ListUnlocks(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, owned, 2)
}

func TestEvaluate_ConcurrentInvocationsGrantOnce(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	userID := uuid.New()
	require.NoError(t, e.store.InsertUser(ctx, sqlite.SeedUser{ID: userID}))
	e.threshold(t, reward.MetricCO2, 10)
	e.threshold(t, reward.MetricCO2, 20)

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := e.rewards.Evaluate(ctx, userID, reward.MetricCO2, 30)
			assert.NoError(t, err)
			mu.Lock()
			total += len(got)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, total)
	owned, err := e.store.ListUnlocks(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, owned, 2)
}

func TestEvaluate_GrantFailureDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	userID := uuid.New()
	require.NoError(t, e.store.InsertUser(ctx, sqlite.SeedUser{ID: userID}))
	broken := e.threshold(t, reward.MetricCO2, 10)
	ok := e.threshold(t, reward.MetricCO2, 20)

	flaky := services.NewRewardService(&flakyStore{Store: e.store, failFor: broken}, nil, zaptest.NewLogger(t))
	got, err := flaky.Evaluate(ctx, userID, reward.MetricCO2, 25)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ok, got[0].CosmeticID)

	// a later evaluation heals the missed grant
	healed, err := e.rewards.Evaluate(ctx, userID, reward.MetricCO2, 25)
	require.NoError(t, err)
	require.Len(t, healed, 1)
	assert.Equal(t, broken, healed[0].CosmeticID)
}

func TestEvaluate_NoThresholdsConfigured(t *testing.T) {
	e := newEngine(t)
	got, err := e.rewards.Evaluate(context.Background(), uuid.New(), reward.MetricReferral, 100)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOverview(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	userID := uuid.New()
	require.NoError(t, e.store.InsertUser(ctx, sqlite.SeedUser{
		ID: userID, ClerkID: "user_d", CurrentStreak: 4, LongestStreak: 4, TotalCO2Saved: 30,
	}))
	e.threshold(t, reward.MetricStreak, 3)
	e.threshold(t, reward.MetricStreak, 7)
	e.threshold(t, reward.MetricCO2, 25)

	overview, err := e.rewards.OverviewByClerkID(ctx, "user_d")
	require.NoError(t, err)
	require.Len(t, overview.Progress, 3)

	byType := map[reward.MetricType]reward.Progress{}
	for _, p := range overview.Progress {
		byType[p.Type] = p
	}

	streakProgress := byType[reward.MetricStreak]
	require.NotNil(t, streakProgress.Target)
	assert.Equal(t, 7.0, *streakProgress.Target)
	assert.Equal(t, 1, streakProgress.Unlocked)

	assert.True(t, byType[reward.MetricCO2].Completed)
	assert.False(t, byType[reward.MetricReferral].Configured)

	// reached thresholds were reconciled into the ledger
	owned, err := e.rewards.Unlocks(ctx, "user_d")
	require.NoError(t, err)
	assert.Len(t, owned, 2)
}

func TestReconcileAll(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	for _, co2 := range []float64{5, 15, 40} {
		require.NoError(t, e.store.InsertUser(ctx, sqlite.SeedUser{TotalCO2Saved: co2}))
	}
	e.threshold(t, reward.MetricCO2, 10)
	e.threshold(t, reward.MetricCO2, 30)

	users, granted, err := e.rewards.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, users)
	assert.Equal(t, 3, granted)

	_, granted, err = e.rewards.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, granted)
}

func TestApplyReferral(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	referrer, first, second := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, e.store.InsertUser(ctx, sqlite.SeedUser{ID: referrer, ClerkID: "user_ref", ReferralCode: "GREEN123"}))
	require.NoError(t, e.store.InsertUser(ctx, sqlite.SeedUser{ID: first}))
	require.NoError(t, e.store.InsertUser(ctx, sqlite.SeedUser{ID: second}))
	badge := e.threshold(t, reward.MetricReferral, 2)
	creator := &recordingCreator{}
	e.referrals.SetNotifier(creator)

	_, err := e.referrals.Apply(ctx, first, "nope0000")
	assert.ErrorIs(t, err, apperrors.ErrInvalidReferralCode)

	_, err = e.referrals.Apply(ctx, referrer, "GREEN123")
	assert.ErrorIs(t, err, apperrors.ErrSelfReferral)

	got, err := e.referrals.Apply(ctx, first, "green123")
	require.NoError(t, err)
	assert.Equal(t, referrer, got)

	_, err = e.referrals.Apply(ctx, first, "GREEN123")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyReferred)

	owned, err := e.store.ListUnlocks(ctx, referrer)
	require.NoError(t, err)
	assert.Empty(t, owned)

	_, err = e.referrals.Apply(ctx, second, "GREEN123")
	require.NoError(t, err)

	owned, err = e.store.ListUnlocks(ctx, referrer)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, badge, owned[0].CosmeticID)
	assert.Equal(t, reward.MetricReferral, owned[0].Source)

	require.Len(t, creator.reqs, 2)
	for _, req := range creator.reqs {
		assert.Equal(t, referrer, req.UserID)
		assert.Equal(t, notification.TypeReferralJoined, req.Type)
	}
	assert.Equal(t, second, *creator.reqs[1].ActorID)
}

func TestInvite(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	require.NoError(t, e.store.InsertUser(ctx, sqlite.SeedUser{ClerkID: "user_inv", ReferralCode: "ABCD1234"}))

	inv, err := e.referrals.Invite(ctx, "user_inv")
	require.NoError(t, err)
	assert.Equal(t, "ABCD1234", inv.ReferralCode)
	assert.Equal(t, "https://ecostreak.app/invite?code=ABCD1234", inv.ShareURL)
	assert.NotEmpty(t, inv.QrCodeBase64)
	assert.Zero(t, inv.ReferralCount)
}
