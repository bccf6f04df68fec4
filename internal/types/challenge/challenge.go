package challenge

import (
	"time"

	"github.com/google/uuid"

	"ecoStreakAPI/internal/reward"
	"ecoStreakAPI/internal/streak"
)

type Challenge struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Category    string    `json:"category" db:"category"`
	CO2Saved    float64   `json:"co2_saved" db:"co2_saved"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type Completion struct {
	ID          uuid.UUID `json:"id" db:"id"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	ChallengeID uuid.UUID `json:"challenge_id" db:"challenge_id"`
	Title       string    `json:"title,omitempty"`
	CO2Saved    float64   `json:"co2_saved" db:"co2_saved"`
	CompletedAt time.Time `json:"completed_at" db:"completed_at"`
}

// CompletionResult is what a committed completion changed for the user.
type CompletionResult struct {
	Completion    *Completion     `json:"completion"`
	Streak        streak.State    `json:"streak"`
	TotalCO2Saved float64         `json:"total_co2_saved"`
	Unlocked      []reward.Unlock `json:"unlocked"`
}

func (r *CompletionResult) Metrics() reward.Metrics {
	return reward.Metrics{
		CurrentStreak: r.Streak.CurrentStreak,
		LongestStreak: r.Streak.LongestStreak,
		TotalCO2Saved: r.TotalCO2Saved,
	}
}
