package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ecoStreakAPI/internal/cache"
	"ecoStreakAPI/internal/reward"
)

// grants for one evaluation target distinct cosmetics and may run in parallel
const grantConcurrency = 4

// UnlockNotifier is told about cosmetics an evaluation has just granted.
type UnlockNotifier interface {
	NotifyUnlocks(ctx context.Context, userID uuid.UUID, unlocks []reward.Unlock)
}

type RewardService struct {
	store    RewardStore
	cache    *cache.Cache
	notifier UnlockNotifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewRewardService(store RewardStore, c *cache.Cache, logger *zap.Logger) *RewardService {
	return &RewardService{
		store:  store,
		cache:  c,
		logger: logger,
		now:    time.Now,
	}
}

// Allow injecting the notification service from main.go
func (s *RewardService) SetNotifier(n UnlockNotifier) {
	s.notifier = n
}

// Evaluate grants every active threshold of type t reached by value and returns the
// grants that were new. A failed grant is logged and skipped; the next evaluation
// retries it. The returned error only reports that thresholds could not be read.
func (s *RewardService) Evaluate(ctx context.Context, userID uuid.UUID, t reward.MetricType, value float64) ([]reward.Unlock, error) {
	thresholds, err := s.store.ActiveThresholds(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s thresholds: %w", t, err)
	}

	eligible := reward.Eligible(thresholds, value)
	if len(eligible) == 0 {
		return nil, nil
	}

	at := s.now()
	slots := make([]*reward.Unlock, len(eligible))

	var g errgroup.Group
	g.SetLimit(grantConcurrency)
	for i, th := range eligible {
		g.Go(func() error {
			granted, err := s.store.GrantCosmetic(ctx, userID, th.CosmeticID, t, at)
			if err != nil {
				cosmeticGrants.WithLabelValues(string(t), "error").Inc()
				s.logger.Warn("cosmetic grant failed",
					zap.String("user_id", userID.String()),
					zap.String("cosmetic_id", th.CosmeticID.String()),
					zap.String("source", string(t)),
					zap.Error(err),
				)
				return nil
			}
			if !granted {
				cosmeticGrants.WithLabelValues(string(t), "owned").Inc()
				return nil
			}
			cosmeticGrants.WithLabelValues(string(t), "granted").Inc()
			slots[i] = &reward.Unlock{
				UserID:       userID,
				CosmeticID:   th.CosmeticID,
				CosmeticName: th.CosmeticName,
				Source:       t,
				UnlockedAt:   at,
			}
			return nil
		})
	}
	_ = g.Wait()

	var unlocks []reward.Unlock
	for _, u := range slots {
		if u != nil {
			unlocks = append(unlocks, *u)
		}
	}
	return unlocks, nil
}

// EvaluateMetrics runs Evaluate for each of types against m. Evaluation errors are
// logged, never returned, so a committed metric update is never reported as failed.
func (s *RewardService) EvaluateMetrics(ctx context.Context, userID uuid.UUID, m reward.Metrics, types ...reward.MetricType) []reward.Unlock {
	var unlocks []reward.Unlock
	for _, t := range types {
		granted, err := s.Evaluate(ctx, userID, t, t.Value(m))
		if err != nil {
			s.logger.Error("reward evaluation failed",
				zap.String("user_id", userID.String()),
				zap.String("type", string(t)),
				zap.Error(err),
			)
			continue
		}
		unlocks = append(unlocks, granted...)
	}

	if len(unlocks) > 0 {
		s.Invalidate(ctx, userID)
		if s.notifier != nil {
			s.notifier.NotifyUnlocks(ctx, userID, unlocks)
		}
	}
	return unlocks
}

// Reconcile evaluates every metric type against the user's stored metrics.
func (s *RewardService) Reconcile(ctx context.Context, userID uuid.UUID) ([]reward.Unlock, error) {
	m, err := s.store.GetMetrics(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.EvaluateMetrics(ctx, userID, m, reward.MetricTypes...), nil
}

// ReconcileAll reconciles every user and returns how many users were visited and
// how many cosmetics were granted.
func (s *RewardService) ReconcileAll(ctx context.Context) (int, int, error) {
	ids, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return 0, 0, err
	}

	granted := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return 0, granted, err
		}
		unlocks, err := s.Reconcile(ctx, id)
		if err != nil {
			s.logger.Warn("reconcile failed", zap.String("user_id", id.String()), zap.Error(err))
			continue
		}
		granted += len(unlocks)
	}
	return len(ids), granted, nil
}

// Overview returns metrics and per-type progress for the user. Missing unlocks are
// granted first so the page never shows a reached threshold as pending.
func (s *RewardService) Overview(ctx context.Context, userID uuid.UUID) (*reward.Overview, error) {
	key := cache.ProgressKey(userID.String())

	var cached reward.Overview
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	if _, err := s.Reconcile(ctx, userID); err != nil {
		return nil, err
	}

	m, err := s.store.GetMetrics(ctx, userID)
	if err != nil {
		return nil, err
	}

	overview := &reward.Overview{Metrics: m}
	for _, t := range reward.MetricTypes {
		thresholds, err := s.store.ActiveThresholds(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s thresholds: %w", t, err)
		}
		overview.Progress = append(overview.Progress, reward.BuildProgress(t, thresholds, t.Value(m)))
	}

	s.cache.SetJSON(ctx, key, overview)
	return overview, nil
}

func (s *RewardService) OverviewByClerkID(ctx context.Context, clerkID string) (*reward.Overview, error) {
	userID, err := s.store.UserIDByClerkID(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	return s.Overview(ctx, userID)
}

func (s *RewardService) Unlocks(ctx context.Context, clerkID string) ([]reward.Unlock, error) {
	userID, err := s.store.UserIDByClerkID(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	return s.store.ListUnlocks(ctx, userID)
}

// Invalidate drops the cached overview for the user.
func (s *RewardService) Invalidate(ctx context.Context, userID uuid.UUID) {
	s.cache.Delete(ctx, cache.ProgressKey(userID.String()))
}
