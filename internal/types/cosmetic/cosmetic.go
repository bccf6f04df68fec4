package cosmetic

import (
	"time"

	"github.com/google/uuid"

	"ecoStreakAPI/internal/reward"
)

type Cosmetic struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Description  string    `json:"description" db:"description"`
	CosmeticType string    `json:"cosmetic_type" db:"cosmetic_type"`
	ImageURL     string    `json:"image_url" db:"image_url"`
	IsActive     bool      `json:"is_active" db:"is_active"`
}

type OwnedCosmetic struct {
	Cosmetic
	Source     reward.MetricType `json:"source" db:"source"`
	UnlockedAt time.Time         `json:"unlocked_at" db:"unlocked_at"`
	IsEquipped bool              `json:"is_equipped" db:"is_equipped"`
}

// CatalogEntry is a cosmetic together with the threshold that unlocks it.
type CatalogEntry struct {
	Cosmetic
	UnlockType      *reward.MetricType `json:"unlock_type,omitempty"`
	UnlockThreshold *float64           `json:"unlock_threshold,omitempty"`
	Owned           bool               `json:"owned"`
}

type EquipRequest struct {
	CosmeticID string `json:"cosmetic_id" validate:"required,uuid"`
}
