package notification

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	TypeCosmeticUnlocked NotificationType = "cosmetic_unlocked"
	TypeFriendRequest    NotificationType = "friend_request"
	TypeFriendAccepted   NotificationType = "friend_accepted"
	TypeReferralJoined   NotificationType = "referral_joined"
	TypeTeamJoined       NotificationType = "team_joined"
)

type NotificationStatus string

const (
	StatusPending NotificationStatus = "pending"
	StatusSent    NotificationStatus = "sent"
	StatusFailed  NotificationStatus = "failed"
)

type Notification struct {
	ID            uuid.UUID          `json:"id" db:"id"`
	UserID        uuid.UUID          `json:"user_id" db:"user_id"`
	Type          NotificationType   `json:"type" db:"type"`
	Status        NotificationStatus `json:"status" db:"status"`
	Title         string             `json:"title" db:"title"`
	Body          string             `json:"body" db:"body"`
	Data          map[string]any     `json:"data" db:"data"`
	ActorID       *uuid.UUID         `json:"actor_id,omitempty" db:"actor_id"`
	ReadAt        *time.Time         `json:"read_at,omitempty" db:"read_at"`
	SentAt        *time.Time         `json:"sent_at,omitempty" db:"sent_at"`
	FailureReason *string            `json:"-" db:"failure_reason"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
}

type DeviceToken struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}
