package team

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

const MaxMembers = 20

type Team struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	OwnerID     uuid.UUID `json:"owner_id" db:"owner_id"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type Member struct {
	UserID        uuid.UUID `json:"user_id"`
	Username      string    `json:"username"`
	ImageURL      string    `json:"image_url,omitempty"`
	Role          Role      `json:"role"`
	CurrentStreak int       `json:"current_streak"`
	TotalCO2Saved float64   `json:"total_co2_saved"`
	JoinedAt      time.Time `json:"joined_at"`
}

type Details struct {
	Team    *Team     `json:"team"`
	Members []*Member `json:"members"`
}

type LeaderboardEntry struct {
	TeamID        uuid.UUID `json:"team_id"`
	Name          string    `json:"name"`
	MemberCount   int       `json:"member_count"`
	TotalCO2Saved float64   `json:"total_co2_saved"`
	Rank          int       `json:"rank"`
}

type CreateTeamRequest struct {
	Name        string `json:"name" validate:"required,min=3,max=40"`
	Description string `json:"description" validate:"max=280"`
}

type JoinTeamRequest struct {
	TeamID string `json:"team_id" validate:"required,uuid"`
}
