package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"ecoStreakAPI/internal/apperrors"
	"ecoStreakAPI/internal/reward"
	"ecoStreakAPI/internal/types/notification"
)

type NotificationService struct {
	db         *pgxpool.Pool
	dispatcher *NotificationDispatcher
	logger     *zap.Logger
}

var _ UnlockNotifier = (*NotificationService)(nil)

func NewNotificationService(db *pgxpool.Pool, logger *zap.Logger) *NotificationService {
	service := &NotificationService{
		db:     db,
		logger: logger,
	}
	service.dispatcher = NewNotificationDispatcher(service, 5, logger)
	return service
}

func (s *NotificationService) SetPushProvider(provider PushNotificationProvider) {
	s.dispatcher.SetPushProvider(provider)
}

func (s *NotificationService) Stop() {
	s.dispatcher.Stop()
}

// CreateNotification stores a notification and queues it for push delivery.
func (s *NotificationService) CreateNotification(ctx context.Context, req *notification.CreateNotificationRequest) (*notification.Notification, error) {
	data := req.Data
	if data == nil {
		data = map[string]any{}
	}

	notif := &notification.Notification{
		ID:        uuid.New(),
		UserID:    req.UserID,
		Type:      req.Type,
		Status:    notification.StatusPending,
		Title:     req.Title,
		Body:      req.Body,
		Data:      data,
		ActorID:   req.ActorID,
		CreatedAt: time.Now(),
	}

	query := `
	INSERT INTO notifications (id, user_id, type, status, title, body, data, actor_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.Exec(ctx, query,
		notif.ID,
		notif.UserID,
		string(notif.Type),
		string(notif.Status),
		notif.Title,
		notif.Body,
		notif.Data,
		notif.ActorID,
		notif.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	tokens, err := s.deviceTokens(ctx, notif.UserID)
	if err != nil {
		s.logger.Warn("failed to load device tokens", zap.String("user_id", notif.UserID.String()), zap.Error(err))
	}
	s.dispatcher.Dispatch(notif, tokens)

	return notif, nil
}

// NotifyUnlocks sends one "cosmetic unlocked" notification per new grant.
func (s *NotificationService) NotifyUnlocks(ctx context.Context, userID uuid.UUID, unlocks []reward.Unlock) {
	for _, u := range unlocks {
		name := u.CosmeticName
		if name == "" {
			name = "a new cosmetic"
		}
		_, err := s.CreateNotification(ctx, &notification.CreateNotificationRequest{
			UserID: userID,
			Type:   notification.TypeCosmeticUnlocked,
			Title:  "New reward unlocked",
			Body:   fmt.Sprintf("You unlocked %s.", name),
			Data: map[string]any{
				"cosmetic_id": u.CosmeticID.String(),
				"source":      string(u.Source),
			},
		})
		if err != nil {
			s.logger.Warn("unlock notification failed",
				zap.String("user_id", userID.String()),
				zap.String("cosmetic_id", u.CosmeticID.String()),
				zap.Error(err),
			)
		}
	}
}

func (s *NotificationService) GetNotifications(ctx context.Context, clerkID string, page, pageSize int) (*notification.NotificationListResponse, error) {
	userID, err := userIDByClerkID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := `
	SELECT id, user_id, type, status, title, body, data, actor_id, read_at, sent_at, created_at
	FROM notifications
	WHERE user_id = $1
	ORDER BY created_at DESC
	LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Query(ctx, query, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	notifications := []*notification.Notification{}
	for rows.Next() {
		n := &notification.Notification{}
		var typ, status string
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &status, &n.Title, &n.Body, &n.Data, &n.ActorID, &n.ReadAt, &n.SentAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Type = notification.NotificationType(typ)
		n.Status = notification.NotificationStatus(status)
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var total, unread int
	err = s.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE read_at IS NULL)
		FROM notifications
		WHERE user_id = $1
	`, userID).Scan(&total, &unread)
	if err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}

	return &notification.NotificationListResponse{
		Notifications: notifications,
		UnreadCount:   unread,
		TotalCount:    total,
		Page:          page,
		PageSize:      pageSize,
	}, nil
}

func (s *NotificationService) GetUnreadCount(ctx context.Context, clerkID string) (int, error) {
	userID, err := userIDByClerkID(ctx, s.db, clerkID)
	if err != nil {
		return 0, err
	}

	var count int
	err = s.db.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (s *NotificationService) MarkAsRead(ctx context.Context, clerkID string, notificationID uuid.UUID) error {
	userID, err := userIDByClerkID(ctx, s.db, clerkID)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE notifications
		SET read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND user_id = $2
	`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotificationMissing
	}
	return nil
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, clerkID string) (int64, error) {
	userID, err := userIDByClerkID(ctx, s.db, clerkID)
	if err != nil {
		return 0, err
	}

	tag, err := s.db.Exec(ctx, `UPDATE notifications SET read_at = NOW() WHERE user_id = $1 AND read_at IS NULL`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RegisterDevice stores a push token; a token moves to whichever user registered it last.
func (s *NotificationService) RegisterDevice(ctx context.Context, clerkID string, req *notification.RegisterDeviceRequest) error {
	userID, err := userIDByClerkID(ctx, s.db, clerkID)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO device_tokens (token, user_id, platform, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (token) DO UPDATE
		SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform, updated_at = NOW()
	`, req.Token, userID, req.Platform)
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

func (s *NotificationService) MarkSent(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `UPDATE notifications SET status = 'sent', sent_at = NOW() WHERE id = $1`, id)
	return err
}

func (s *NotificationService) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.db.Exec(ctx, `UPDATE notifications SET status = 'failed', failure_reason = $2 WHERE id = $1`, id, reason)
	return err
}

func (s *NotificationService) deviceTokens(ctx context.Context, userID uuid.UUID) ([]notification.DeviceToken, error) {
	rows, err := s.db.Query(ctx, `SELECT token, platform FROM device_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []notification.DeviceToken
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.Token, &t.Platform); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// userIDByClerkID resolves the internal id for an authenticated Clerk subject.
func userIDByClerkID(ctx context.Context, db *pgxpool.Pool, clerkID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, apperrors.ErrUserNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to get user: %w", err)
	}
	return id, nil
}
