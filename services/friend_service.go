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
	"ecoStreakAPI/internal/types/friendship"
	"ecoStreakAPI/internal/types/leaderboard"
	"ecoStreakAPI/internal/types/notification"
	"ecoStreakAPI/internal/types/user"
)

// NotificationCreator stores and dispatches a notification.
type NotificationCreator interface {
	CreateNotification(ctx context.Context, req *notification.CreateNotificationRequest) (*notification.Notification, error)
}

type FriendService struct {
	db            *pgxpool.Pool
	notifications NotificationCreator
	logger        *zap.Logger
}

func NewFriendService(db *pgxpool.Pool, notifications NotificationCreator, logger *zap.Logger) *FriendService {
	return &FriendService{db: db, notifications: notifications, logger: logger}
}

// SendRequest creates a pending request from the caller to friendID. When friendID
// already asked the caller, the existing request is accepted instead.
func (s *FriendService) SendRequest(ctx context.Context, clerkID string, friendID uuid.UUID) (*friendship.Friendship, error) {
	userID, err := userIDByClerkID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}
	if userID == friendID {
		return nil, apperrors.ErrSelfFriend
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, friendID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return nil, apperrors.ErrUserNotFound
	}

	var existing friendship.Friendship
	var status string
	err = s.db.QueryRow(ctx, `
		SELECT id, user_id, friend_id, status, created_at
		FROM friendships
		WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
	`, userID, friendID).Scan(&existing.ID, &existing.UserID, &existing.FriendID, &status, &existing.CreatedAt)
	switch {
	case err == nil:
		existing.Status = friendship.FriendshipStatus(status)
		if existing.Status == friendship.FriendshipPending && existing.UserID == friendID {
			return s.accept(ctx, userID, friendID)
		}
		return nil, apperrors.ErrFriendshipExists
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("failed to check friendship: %w", err)
	}

	f := &friendship.Friendship{
		ID:        uuid.New(),
		UserID:    userID,
		FriendID:  friendID,
		Status:    friendship.FriendshipPending,
		CreatedAt: time.Now(),
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO friendships (id, user_id, friend_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, f.ID, f.UserID, f.FriendID, string(f.Status), f.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, apperrors.ErrFriendshipExists
		}
		return nil, fmt.Errorf("failed to create friend request: %w", err)
	}

	s.notify(ctx, friendID, userID, notification.TypeFriendRequest, "New friend request", "Someone wants to join your green circle.")
	return f, nil
}

// AcceptRequest accepts the pending request requesterID sent to the caller.
func (s *FriendService) AcceptRequest(ctx context.Context, clerkID string, requesterID uuid.UUID) (*friendship.Friendship, error) {
	userID, err := userIDByClerkID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}
	return s.accept(ctx, userID, requesterID)
}

func (s *FriendService) accept(ctx context.Context, userID, requesterID uuid.UUID) (*friendship.Friendship, error) {
	f := &friendship.Friendship{}
	var status string
	err := s.db.QueryRow(ctx, `
		UPDATE friendships
		SET status = 'accepted'
		WHERE user_id = $1 AND friend_id = $2 AND status = 'pending'
		RETURNING id, user_id, friend_id, status, created_at
	`, requesterID, userID).Scan(&f.ID, &f.UserID, &f.FriendID, &status, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrFriendshipNotFound
		}
		return nil, fmt.Errorf("failed to accept friend request: %w", err)
	}
	f.Status = friendship.FriendshipStatus(status)

	s.notify(ctx, requesterID, userID, notification.TypeFriendAccepted, "Friend request accepted", "You have a new friend to race.")
	return f, nil
}

// RemoveFriend deletes the relationship in either direction, including a pending request.
func (s *FriendService) RemoveFriend(ctx context.Context, clerkID string, friendID uuid.UUID) error {
	userID, err := userIDByClerkID(ctx, s.db, clerkID)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, `
		DELETE FROM friendships
		WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
	`, userID, friendID)
	if err != nil {
		return fmt.Errorf("failed to remove friend: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrFriendshipNotFound
	}
	return nil
}

func (s *FriendService) ListFriends(ctx context.Context, clerkID string) ([]*user.User, error) {
	userID, err := userIDByClerkID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id IN (
			SELECT CASE WHEN user_id = $1 THEN friend_id ELSE user_id END
			FROM friendships
			WHERE status = 'accepted' AND (user_id = $1 OR friend_id = $1)
		)
		ORDER BY username
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	defer rows.Close()

	friends := []*user.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan friend: %w", err)
		}
		u.Email = ""
		friends = append(friends, u)
	}
	return friends, rows.Err()
}

// ListPendingRequests returns requests other users sent to the caller.
func (s *FriendService) ListPendingRequests(ctx context.Context, clerkID string) ([]*friendship.FriendRequest, error) {
	userID, err := userIDByClerkID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT f.id, u.id, u.username, u.image_url, f.created_at
		FROM friendships f
		JOIN users u ON u.id = f.user_id
		WHERE f.friend_id = $1 AND f.status = 'pending'
		ORDER BY f.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friend requests: %w", err)
	}
	defer rows.Close()

	requests := []*friendship.FriendRequest{}
	for rows.Next() {
		r := &friendship.FriendRequest{}
		if err := rows.Scan(&r.ID, &r.FromID, &r.Username, &r.ImageURL, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan friend request: %w", err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// FriendsLeaderboard ranks the caller and their friends by CO2 saved, then current streak.
func (s *FriendService) FriendsLeaderboard(ctx context.Context, clerkID string) (*leaderboard.Leaderboard, error) {
	userID, err := userIDByClerkID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	query := `
	WITH circle AS (
		SELECT $1::uuid AS id
		UNION
		SELECT CASE WHEN user_id = $1 THEN friend_id ELSE user_id END
		FROM friendships
		WHERE status = 'accepted' AND (user_id = $1 OR friend_id = $1)
	)
	SELECT
		u.id,
		u.username,
		NULLIF(u.image_url, ''),
		u.total_co2_saved,
		u.current_streak,
		RANK() OVER (ORDER BY u.total_co2_saved DESC, u.current_streak DESC) AS rank
	FROM users u
	JOIN circle c ON c.id = u.id
	ORDER BY rank, u.username
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get friends leaderboard: %w", err)
	}
	defer rows.Close()

	board := &leaderboard.Leaderboard{Entries: []*leaderboard.LeaderboardEntry{}}
	for rows.Next() {
		e := &leaderboard.LeaderboardEntry{}
		if err := rows.Scan(&e.UserID, &e.Username, &e.ImageURL, &e.TotalCO2Saved, &e.CurrentStreak, &e.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		board.Entries = append(board.Entries, e)
		if e.UserID == userID {
			board.UserPosition = e
		}
	}
	board.TotalUsers = len(board.Entries)
	return board, rows.Err()
}

func (s *FriendService) notify(ctx context.Context, to, actor uuid.UUID, typ notification.NotificationType, title, body string) {
	if s.notifications == nil {
		return
	}
	_, err := s.notifications.CreateNotification(ctx, &notification.CreateNotificationRequest{
		UserID:  to,
		Type:    typ,
		Title:   title,
		Body:    body,
		ActorID: &actor,
	})
	if err != nil {
		s.logger.Warn("friend notification failed", zap.String("user_id", to.String()), zap.Error(err))
	}
}
