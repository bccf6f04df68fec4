package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ecoStreakAPI/internal/reward"
	"ecoStreakAPI/internal/streak"
	"ecoStreakAPI/internal/types/challenge"
)

// StreakFunc computes the next streak state while the user's row is locked.
type StreakFunc func(prior streak.State) (streak.State, error)

// ChallengeStore persists challenge completions. ApplyCompletion must apply the streak
// update, the CO2 increment and the completion record as one transaction.
type ChallengeStore interface {
	UserIDByClerkID(ctx context.Context, clerkID string) (uuid.UUID, error)
	GetChallenge(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error)
	ListChallenges(ctx context.Context) ([]*challenge.Challenge, error)
	ListCompletions(ctx context.Context, userID uuid.UUID, limit int) ([]*challenge.Completion, error)
	ApplyCompletion(ctx context.Context, userID uuid.UUID, c *challenge.Challenge, at time.Time, next StreakFunc) (*challenge.CompletionResult, error)
}

// RewardStore reads metrics and thresholds and owns the unlocked-cosmetics ledger.
// GrantCosmetic is insert-if-absent and reports whether a row was created.
type RewardStore interface {
	UserIDByClerkID(ctx context.Context, clerkID string) (uuid.UUID, error)
	ListUserIDs(ctx context.Context) ([]uuid.UUID, error)
	GetMetrics(ctx context.Context, userID uuid.UUID) (reward.Metrics, error)
	ActiveThresholds(ctx context.Context, t reward.MetricType) ([]reward.Threshold, error)
	GrantCosmetic(ctx context.Context, userID, cosmeticID uuid.UUID, source reward.MetricType, at time.Time) (bool, error)
	ListUnlocks(ctx context.Context, userID uuid.UUID) ([]reward.Unlock, error)
}

type ReferralStore interface {
	UserIDByClerkID(ctx context.Context, clerkID string) (uuid.UUID, error)
	ReferralCode(ctx context.Context, userID uuid.UUID) (string, error)
	UserIDByReferralCode(ctx context.Context, code string) (uuid.UUID, error)
	SetReferrer(ctx context.Context, userID, referrerID uuid.UUID) error
	ReferralCount(ctx context.Context, userID uuid.UUID) (int, error)
}

// EngineStore is everything the streak and reward engine needs from storage.
type EngineStore interface {
	ChallengeStore
	RewardStore
	ReferralStore
}
