package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"ecoStreakAPI/internal/apperrors"
	"ecoStreakAPI/internal/reward"
	"ecoStreakAPI/internal/types/notification"
	"ecoStreakAPI/internal/types/user"
)

type ReferralService struct {
	store         ReferralStore
	rewards       *RewardService
	notifications NotificationCreator
	linkBase      string
	logger        *zap.Logger
}

func NewReferralService(store ReferralStore, rewards *RewardService, linkBase string, logger *zap.Logger) *ReferralService {
	return &ReferralService{
		store:    store,
		rewards:  rewards,
		linkBase: linkBase,
		logger:   logger,
	}
}

// SetNotifier makes Apply tell the referrer that someone joined with their code.
func (s *ReferralService) SetNotifier(n NotificationCreator) {
	s.notifications = n
}

// Apply records that userID joined through code and evaluates referral thresholds
// for the referrer. It returns the referrer's id.
func (s *ReferralService) Apply(ctx context.Context, userID uuid.UUID, code string) (uuid.UUID, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return uuid.Nil, apperrors.ErrInvalidReferralCode
	}

	referrerID, err := s.store.UserIDByReferralCode(ctx, code)
	if err != nil {
		return uuid.Nil, err
	}
	if referrerID == userID {
		return uuid.Nil, apperrors.ErrSelfReferral
	}

	if err := s.store.SetReferrer(ctx, userID, referrerID); err != nil {
		return uuid.Nil, err
	}

	count, err := s.store.ReferralCount(ctx, referrerID)
	if err != nil {
		// the referral itself is stored; the next reconcile picks the threshold up
		s.logger.Error("referral count failed", zap.String("referrer_id", referrerID.String()), zap.Error(err))
		return referrerID, nil
	}

	s.rewards.EvaluateMetrics(ctx, referrerID, reward.Metrics{ReferralCount: count}, reward.MetricReferral)
	s.rewards.Invalidate(ctx, referrerID)
	s.notifyReferrer(ctx, referrerID, userID, count)

	s.logger.Info("referral applied",
		zap.String("user_id", userID.String()),
		zap.String("referrer_id", referrerID.String()),
		zap.Int("referral_count", count),
	)
	return referrerID, nil
}

func (s *ReferralService) ApplyByClerkID(ctx context.Context, clerkID, code string) (uuid.UUID, error) {
	userID, err := s.store.UserIDByClerkID(ctx, clerkID)
	if err != nil {
		return uuid.Nil, err
	}
	return s.Apply(ctx, userID, code)
}

// Invite returns the caller's referral code with a share link and its QR code.
func (s *ReferralService) Invite(ctx context.Context, clerkID string) (*user.InviteResponse, error) {
	userID, err := s.store.UserIDByClerkID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	code, err := s.store.ReferralCode(ctx, userID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.ReferralCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	shareURL := s.linkBase + "?code=" + url.QueryEscape(code)
	pngBytes, err := qrcode.Encode(shareURL, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR png: %w", err)
	}

	return &user.InviteResponse{
		ReferralCode:  code,
		ShareURL:      shareURL,
		QrCodeBase64:  base64.StdEncoding.EncodeToString(pngBytes),
		ReferralCount: count,
	}, nil
}

func (s *ReferralService) notifyReferrer(ctx context.Context, referrerID, userID uuid.UUID, count int) {
	if s.notifications == nil {
		return
	}
	_, err := s.notifications.CreateNotification(ctx, &notification.CreateNotificationRequest{
		UserID:  referrerID,
		Type:    notification.TypeReferralJoined,
		Title:   "A friend joined",
		Body:    fmt.Sprintf("Someone signed up with your code. You have %d referrals.", count),
		Data:    map[string]any{"referral_count": count},
		ActorID: &userID,
	})
	if err != nil {
		s.logger.Warn("referral notification failed", zap.String("referrer_id", referrerID.String()), zap.Error(err))
	}
}
