package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ecoStreakAPI/internal/apperrors"
	"ecoStreakAPI/internal/reward"
	"ecoStreakAPI/internal/streak"
	"ecoStreakAPI/internal/types/challenge"
)

const historyLimit = 50

type ChallengeService struct {
	store   ChallengeStore
	rewards *RewardService
	calc    *streak.Calculator
	logger  *zap.Logger
	now     func() time.Time
}

func NewChallengeService(store ChallengeStore, rewards *RewardService, calc *streak.Calculator, logger *zap.Logger) *ChallengeService {
	return &ChallengeService{
		store:   store,
		rewards: rewards,
		calc:    calc,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock replaces the completion timestamp source.
func (s *ChallengeService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *ChallengeService) ListChallenges(ctx context.Context) ([]*challenge.Challenge, error) {
	return s.store.ListChallenges(ctx)
}

// CompleteChallenge records a completion for the user and applies its streak and CO2
// effects atomically. Streak and CO2 thresholds are evaluated after the commit; their
// failures never fail the completion.
func (s *ChallengeService) CompleteChallenge(ctx context.Context, clerkID string, challengeID uuid.UUID) (*challenge.CompletionResult, error) {
	userID, err := s.store.UserIDByClerkID(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	return s.Complete(ctx, userID, challengeID)
}

func (s *ChallengeService) Complete(ctx context.Context, userID, challengeID uuid.UUID) (*challenge.CompletionResult, error) {
	c, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return nil, apperrors.ErrChallengeInactive
	}

	at := s.now()
	res, err := s.store.ApplyCompletion(ctx, userID, c, at, func(prior streak.State) (streak.State, error) {
		return s.calc.Next(prior, at)
	})
	if err != nil {
		challengeCompletions.WithLabelValues("error").Inc()
		s.logger.Error("challenge completion failed",
			zap.String("user_id", userID.String()),
			zap.String("challenge_id", challengeID.String()),
			zap.Error(err),
		)
		return nil, err
	}
	challengeCompletions.WithLabelValues("ok").Inc()

	res.Unlocked = s.rewards.EvaluateMetrics(ctx, userID, res.Metrics(), reward.MetricStreak, reward.MetricCO2)
	if res.Unlocked == nil {
		res.Unlocked = []reward.Unlock{}
	}
	s.rewards.Invalidate(ctx, userID)

	s.logger.Info("challenge completed",
		zap.String("user_id", userID.String()),
		zap.String("challenge_id", challengeID.String()),
		zap.Int("current_streak", res.Streak.CurrentStreak),
		zap.Float64("total_co2_saved", res.TotalCO2Saved),
		zap.Int("unlocked", len(res.Unlocked)),
	)
	return res, nil
}

func (s *ChallengeService) History(ctx context.Context, clerkID string) ([]*challenge.Completion, error) {
	userID, err := s.store.UserIDByClerkID(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	return s.store.ListCompletions(ctx, userID, historyLimit)
}
