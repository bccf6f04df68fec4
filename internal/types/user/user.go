package user

import (
	"time"

	"github.com/google/uuid"

	"ecoStreakAPI/internal/reward"
	"ecoStreakAPI/internal/types/cosmetic"
	"ecoStreakAPI/internal/streak"
)

type User struct {
	ID               uuid.UUID  `json:"id"`
	ClerkID          string     `json:"clerkId"`
	Email            string     `json:"email"`
	Username         string     `json:"username"`
	FirstName        string     `json:"firstName"`
	LastName         string     `json:"lastName"`
	ImageURL         string     `json:"imageUrl,omitempty"`
	EmailVerified    bool       `json:"emailVerified"`
	ReferralCode     string     `json:"referralCode"`
	ReferredBy       *uuid.UUID `json:"referredBy,omitempty"`
	LastActivityDate *time.Time `json:"lastActivityDate,omitempty"`
	CurrentStreak    int        `json:"currentStreak"`
	LongestStreak    int        `json:"longestStreak"`
	TotalCO2Saved    float64    `json:"totalCo2Saved"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func (u *User) StreakState() streak.State {
	return streak.State{
		LastActivityDate: u.LastActivityDate,
		CurrentStreak:    u.CurrentStreak,
		LongestStreak:    u.LongestStreak,
	}
}

func (u *User) Metrics(referralCount int) reward.Metrics {
	return reward.Metrics{
		CurrentStreak: u.CurrentStreak,
		LongestStreak: u.LongestStreak,
		TotalCO2Saved: u.TotalCO2Saved,
		ReferralCount: referralCount,
	}
}

type Profile struct {
	User          *User                `json:"user"`
	ReferralCount int                  `json:"referralCount"`
	Metrics       reward.Metrics       `json:"metrics"`
	Equipped      []*cosmetic.Cosmetic `json:"equipped"`
	IsFriend      bool                 `json:"isFriend"`
}
