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
	"ecoStreakAPI/internal/types/notification"
	"ecoStreakAPI/internal/types/team"
)

type TeamService struct {
	db            *pgxpool.Pool
	notifications NotificationCreator
	logger        *zap.Logger
}

func NewTeamService(db *pgxpool.Pool, notifications NotificationCreator, logger *zap.Logger) *TeamService {
	return &TeamService{db: db, notifications: notifications, logger: logger}
}

// CreateTeam creates a team owned by the caller, who becomes its first member.
func (s *TeamService) CreateTeam(ctx context.Context, clerkID string, req *team.CreateTeamRequest) (*team.Team, error) {
	userID, err := userIDByClerkID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	t := &team.Team{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     userID,
		MemberCount: 1,
		CreatedAt:   time.Now(),
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO teams (id, name, description, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, t.ID, t.Name, t.Description, t.OwnerID, t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "teams_name_key") {
			return nil, fmt.Errorf("team name %q is taken: %w", req.Name, apperrors.ErrInvalidInput)
		}
		return nil, fmt.Errorf("failed to create team: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO team_members (team_id, user_id, role, joined_at)
		VALUES ($1, $2, 'owner', $3)
	`, t.ID, userID, t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "team_members_user_id_key") {
			return nil, apperrors.ErrAlreadyInTeam
		}
		return nil, fmt.Errorf("failed to add owner: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return t, nil
}

// JoinTeam adds the caller to teamID. The team row is locked so the member cap holds
// under concurrent joins.
func (s *TeamService) JoinTeam(ctx context.Context, clerkID string, teamID uuid.UUID) (*team.Team, error) {
	userID, err := userIDByClerkID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	t := &team.Team{}
	err = tx.QueryRow(ctx, `
		SELECT id, name, description, owner_id, created_at
		FROM teams
		WHERE id = $1
		FOR UPDATE
	`, teamID).Scan(&t.ID, &t.Name, &t.Description, &t.OwnerID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}

	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM team_members WHERE team_id = $1`, teamID).Scan(&t.MemberCount); err != nil {
		return nil, fmt.Errorf("failed to count members: %w", err)
	}
	if t.MemberCount >= team.MaxMembers {
		return nil, apperrors.ErrTeamFull
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO team_members (team_id, user_id, role, joined_at)
		VALUES ($1, $2, 'member', NOW())
	`, teamID, userID)
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, apperrors.ErrAlreadyInTeam
		}
		return nil, fmt.Errorf("failed to join team: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	t.MemberCount++

	if s.notifications != nil {
		_, err := s.notifications.CreateNotification(ctx, &notification.CreateNotificationRequest{
			UserID:  t.OwnerID,
			Type:    notification.TypeTeamJoined,
			Title:   "New teammate",
			Body:    fmt.Sprintf("Someone joined %s.", t.Name),
			Data:    map[string]any{"team_id": t.ID.String()},
			ActorID: &userID,
		})
		if err != nil {
			s.logger.Warn("team notification failed", zap.String("team_id", t.ID.String()), zap.Error(err))
		}
	}
	return t, nil
}

func (s *TeamService) LeaveTeam(ctx context.Context, clerkID string) error {
	userID, err := userIDByClerkID(ctx, s.db, clerkID)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := leaveTeamTx(ctx, tx, userID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// leaveTeamTx removes userID from their team. An owner leaving hands the team to the
// earliest remaining member; the last member leaving deletes the team.
func leaveTeamTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	var teamID uuid.UUID
	var role string
	err := tx.QueryRow(ctx, `
		SELECT tm.team_id, tm.role
		FROM team_members tm
		JOIN teams t ON t.id = tm.team_id
		WHERE tm.user_id = $1
		FOR UPDATE OF t
	`, userID).Scan(&teamID, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotInTeam
		}
		return fmt.Errorf("failed to get membership: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID); err != nil {
		return fmt.Errorf("failed to leave team: %w", err)
	}

	if team.Role(role) != team.RoleOwner {
		return nil
	}

	var successor uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT user_id FROM team_members
		WHERE team_id = $1
		ORDER BY joined_at ASC, user_id ASC
		LIMIT 1
	`, teamID).Scan(&successor)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := tx.Exec(ctx, `DELETE FROM teams WHERE id = $1`, teamID); err != nil {
			return fmt.Errorf("failed to delete empty team: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find new owner: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE team_members SET role = 'owner' WHERE team_id = $1 AND user_id = $2`, teamID, successor); err != nil {
		return fmt.Errorf("failed to promote member: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE teams SET owner_id = $2 WHERE id = $1`, teamID, successor); err != nil {
		return fmt.Errorf("failed to transfer ownership: %w", err)
	}
	return nil
}

func (s *TeamService) GetTeam(ctx context.Context, teamID uuid.UUID) (*team.Details, error) {
	t := &team.Team{}
	err := s.db.QueryRow(ctx, `
		SELECT id, name, description, owner_id, created_at
		FROM teams
		WHERE id = $1
	`, teamID).Scan(&t.ID, &t.Name, &t.Description, &t.OwnerID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT u.id, u.username, u.image_url, tm.role, u.current_streak, u.total_co2_saved, tm.joined_at
		FROM team_members tm
		JOIN users u ON u.id = tm.user_id
		WHERE tm.team_id = $1
		ORDER BY u.total_co2_saved DESC, tm.joined_at ASC
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []*team.Member{}
	for rows.Next() {
		m := &team.Member{}
		var role string
		if err := rows.Scan(&m.UserID, &m.Username, &m.ImageURL, &role, &m.CurrentStreak, &m.TotalCO2Saved, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.Role = team.Role(role)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	t.MemberCount = len(members)
	return &team.Details{Team: t, Members: members}, nil
}

// MyTeam returns the caller's team.
func (s *TeamService) MyTeam(ctx context.Context, clerkID string) (*team.Details, error) {
	userID, err := userIDByClerkID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	var teamID uuid.UUID
	if err := s.db.QueryRow(ctx, `SELECT team_id FROM team_members WHERE user_id = $1`, userID).Scan(&teamID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotInTeam
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return s.GetTeam(ctx, teamID)
}

// TeamLeaderboard ranks teams by the CO2 saved by their current members.
func (s *TeamService) TeamLeaderboard(ctx context.Context, limit int) ([]*team.LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT
			t.id,
			t.name,
			COUNT(tm.user_id) AS member_count,
			COALESCE(SUM(u.total_co2_saved), 0) AS total_co2,
			RANK() OVER (ORDER BY COALESCE(SUM(u.total_co2_saved), 0) DESC) AS rank
		FROM teams t
		JOIN team_members tm ON tm.team_id = t.id
		JOIN users u ON u.id = tm.user_id
		GROUP BY t.id, t.name
		ORDER BY rank, t.name
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get team leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []*team.LeaderboardEntry{}
	for rows.Next() {
		e := &team.LeaderboardEntry{}
		if err := rows.Scan(&e.TeamID, &e.Name, &e.MemberCount, &e.TotalCO2Saved, &e.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan team entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
