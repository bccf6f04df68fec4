package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ecoStreakAPI/internal/apperrors"
	"ecoStreakAPI/internal/reward"
	"ecoStreakAPI/internal/streak"
	"ecoStreakAPI/internal/types/challenge"
	"ecoStreakAPI/services"
)

// Store is the PostgreSQL implementation of services.EngineStore.
type Store struct {
	db *pgxpool.Pool
}

var _ services.EngineStore = (*Store)(nil)

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) UserIDByClerkID(ctx context.Context, clerkID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, apperrors.ErrUserNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to get user: %w", err)
	}
	return id, nil
}

func (s *Store) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) GetChallenge(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error) {
	query := `
	SELECT id, title, description, category, co2_saved, is_active, created_at
	FROM challenges
	WHERE id = $1
	`

	c := &challenge.Challenge{}
	err := s.db.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.Title,
		&c.Description,
		&c.Category,
		&c.CO2Saved,
		&c.IsActive,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	return c, nil
}

func (s *Store) ListChallenges(ctx context.Context) ([]*challenge.Challenge, error) {
	query := `
	SELECT id, title, description, category, co2_saved, is_active, created_at
	FROM challenges
	WHERE is_active = TRUE
	ORDER BY category, title
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	defer rows.Close()

	challenges := []*challenge.Challenge{}
	for rows.Next() {
		c := &challenge.Challenge{}
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.Category, &c.CO2Saved, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		challenges = append(challenges, c)
	}
	return challenges, rows.Err()
}

func (s *Store) ListCompletions(ctx context.Context, userID uuid.UUID, limit int) ([]*challenge.Completion, error) {
	query := `
	SELECT cc.id, cc.user_id, cc.challenge_id, c.title, cc.co2_saved, cc.completed_at
	FROM challenge_completions cc
	JOIN challenges c ON c.id = cc.challenge_id
	WHERE cc.user_id = $1
	ORDER BY cc.completed_at DESC
	LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	defer rows.Close()

	completions := []*challenge.Completion{}
	for rows.Next() {
		c := &challenge.Completion{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.ChallengeID, &c.Title, &c.CO2Saved, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		completions = append(completions, c)
	}
	return completions, rows.Err()
}

// ApplyCompletion locks the user row with SELECT ... FOR UPDATE so concurrent
// completions by the same user serialize on it.
func (s *Store) ApplyCompletion(ctx context.Context, userID uuid.UUID, c *challenge.Challenge, at time.Time, next services.StreakFunc) (*challenge.CompletionResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var prior streak.State
	err = tx.QueryRow(ctx, `
		SELECT last_activity_date, current_streak, longest_streak
		FROM users
		WHERE id = $1
		FOR UPDATE
	`, userID).Scan(&prior.LastActivityDate, &prior.CurrentStreak, &prior.LongestStreak)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to lock user metrics: %w", err)
	}

	updated, err := next(prior)
	if err != nil {
		return nil, err
	}

	var totalCO2 float64
	err = tx.QueryRow(ctx, `
		UPDATE users
		SET last_activity_date = $2,
			current_streak = $3,
			longest_streak = $4,
			total_co2_saved = total_co2_saved + $5,
			updated_at = NOW()
		WHERE id = $1
		RETURNING total_co2_saved
	`, userID, updated.LastActivityDate, updated.CurrentStreak, updated.LongestStreak, c.CO2Saved).Scan(&totalCO2)
	if err != nil {
		return nil, fmt.Errorf("failed to update user metrics: %w", err)
	}

	completion := &challenge.Completion{
		ID:          uuid.New(),
		UserID:      userID,
		ChallengeID: c.ID,
		Title:       c.Title,
		CO2Saved:    c.CO2Saved,
		CompletedAt: at,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO challenge_completions (id, user_id, challenge_id, co2_saved, completed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, completion.ID, completion.UserID, completion.ChallengeID, completion.CO2Saved, completion.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record completion: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit completion: %w", err)
	}

	return &challenge.CompletionResult{
		Completion:    completion,
		Streak:        updated,
		TotalCO2Saved: totalCO2,
	}, nil
}

func (s *Store) GetMetrics(ctx context.Context, userID uuid.UUID) (reward.Metrics, error) {
	query := `
	SELECT
		u.current_streak,
		u.longest_streak,
		u.total_co2_saved,
		(SELECT COUNT(*) FROM users r WHERE r.referred_by = u.id) AS referral_count
	FROM users u
	WHERE u.id = $1
	`

	var m reward.Metrics
	err := s.db.QueryRow(ctx, query, userID).Scan(&m.CurrentStreak, &m.LongestStreak, &m.TotalCO2Saved, &m.ReferralCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return m, apperrors.ErrUserNotFound
		}
		return m, fmt.Errorf("failed to get metrics: %w", err)
	}
	return m, nil
}

func (s *Store) ActiveThresholds(ctx context.Context, t reward.MetricType) ([]reward.Threshold, error) {
	query := `
	SELECT rt.id, rt.type, rt.threshold, rt.cosmetic_id, c.name, rt.is_active
	FROM reward_thresholds rt
	JOIN cosmetics c ON c.id = rt.cosmetic_id
	WHERE rt.type = $1 AND rt.is_active = TRUE
	ORDER BY rt.threshold ASC
	`

	rows, err := s.db.Query(ctx, query, string(t))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thresholds: %w", err)
	}
	defer rows.Close()

	var thresholds []reward.Threshold
	for rows.Next() {
		var th reward.Threshold
		var typ string
		if err := rows.Scan(&th.ID, &typ, &th.Threshold, &th.CosmeticID, &th.CosmeticName, &th.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan threshold: %w", err)
		}
		th.Type = reward.MetricType(typ)
		thresholds = append(thresholds, th)
	}
	return thresholds, rows.Err()
}

// GrantCosmetic relies on UNIQUE (user_id, cosmetic_id); racing grants converge on one row.
func (s *Store) GrantCosmetic(ctx context.Context, userID, cosmeticID uuid.UUID, source reward.MetricType, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO user_cosmetics (user_id, cosmetic_id, source, unlocked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, cosmetic_id) DO NOTHING
	`, userID, cosmeticID, string(source), at)
	if err != nil {
		return false, fmt.Errorf("failed to grant cosmetic: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListUnlocks(ctx context.Context, userID uuid.UUID) ([]reward.Unlock, error) {
	query := `
	SELECT uc.user_id, uc.cosmetic_id, c.name, uc.source, uc.unlocked_at
	FROM user_cosmetics uc
	JOIN cosmetics c ON c.id = uc.cosmetic_id
	WHERE uc.user_id = $1
	ORDER BY uc.unlocked_at ASC
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unlocks: %w", err)
	}
	defer rows.Close()

	unlocks := []reward.Unlock{}
	for rows.Next() {
		var u reward.Unlock
		var source string
		if err := rows.Scan(&u.UserID, &u.CosmeticID, &u.CosmeticName, &source, &u.UnlockedAt); err != nil {
			return nil, fmt.Errorf("failed to scan unlock: %w", err)
		}
		u.Source = reward.MetricType(source)
		unlocks = append(unlocks, u)
	}
	return unlocks, rows.Err()
}

func (s *Store) ReferralCode(ctx context.Context, userID uuid.UUID) (string, error) {
	var code string
	err := s.db.QueryRow(ctx, `SELECT referral_code FROM users WHERE id = $1`, userID).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.ErrUserNotFound
		}
		return "", fmt.Errorf("failed to get referral code: %w", err)
	}
	return code, nil
}

func (s *Store) UserIDByReferralCode(ctx context.Context, code string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE referral_code = UPPER($1)`, code).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, apperrors.ErrInvalidReferralCode
		}
		return uuid.Nil, fmt.Errorf("failed to resolve referral code: %w", err)
	}
	return id, nil
}

// SetReferrer only fills an empty referred_by; a second referral is rejected.
func (s *Store) SetReferrer(ctx context.Context, userID, referrerID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users
		SET referred_by = $2, updated_at = NOW()
		WHERE id = $1 AND referred_by IS NULL
	`, userID, referrerID)
	if err != nil {
		return fmt.Errorf("failed to set referrer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check user: %w", err)
		}
		if !exists {
			return apperrors.ErrUserNotFound
		}
		return apperrors.ErrAlreadyReferred
	}
	return nil
}

func (s *Store) ReferralCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE referred_by = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count referrals: %w", err)
	}
	return count, nil
}
