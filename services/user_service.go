package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"ecoStreakAPI/internal/apperrors"
	"ecoStreakAPI/internal/types/clerk"
	"ecoStreakAPI/internal/types/cosmetic"
	"ecoStreakAPI/internal/types/user"
)

const (
	referralCodeLength   = 8
	referralCodeAttempts = 3
	searchLimit          = 20
)

const userColumns = `
	id, clerk_id, email, username, first_name, last_name, image_url, email_verified,
	referral_code, referred_by, last_activity_date, current_streak, longest_streak,
	total_co2_saved, created_at, updated_at`

type UserService struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewUserService(db *pgxpool.Pool, logger *zap.Logger) *UserService {
	return &UserService{db: db, logger: logger}
}

func scanUser(row pgx.Row) (*user.User, error) {
	u := &user.User{}
	err := row.Scan(
		&u.ID,
		&u.ClerkID,
		&u.Email,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.ImageURL,
		&u.EmailVerified,
		&u.ReferralCode,
		&u.ReferredBy,
		&u.LastActivityDate,
		&u.CurrentStreak,
		&u.LongestStreak,
		&u.TotalCO2Saved,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// newReferralCode returns an 8 character upper-case hex code.
func newReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:referralCodeLength])
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
}

// CreateUser inserts the user with a fresh referral code. A redelivered webhook for an
// existing clerk_id updates the profile fields and keeps the original code.
func (s *UserService) CreateUser(ctx context.Context, req *user.CreateUserRequest) (*user.User, bool, error) {
	username := req.Username
	if username == "" {
		username = "eco_" + strings.ToLower(newReferralCode())
	}

	query := `
	INSERT INTO users (id, clerk_id, email, username, first_name, last_name, image_url, referral_code, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	ON CONFLICT (clerk_id) DO UPDATE
	SET email = EXCLUDED.email,
		first_name = EXCLUDED.first_name,
		last_name = EXCLUDED.last_name,
		image_url = EXCLUDED.image_url,
		updated_at = NOW()
	RETURNING ` + userColumns + `, (xmax = 0) AS inserted`

	var lastErr error
	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		var inserted bool
		u := &user.User{}
		err := s.db.QueryRow(ctx, query,
			uuid.New(),
			req.ClerkID,
			req.Email,
			username,
			req.FirstName,
			req.LastName,
			req.ImageURL,
			newReferralCode(),
		).Scan(
			&u.ID, &u.ClerkID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.ImageURL,
			&u.EmailVerified, &u.ReferralCode, &u.ReferredBy, &u.LastActivityDate,
			&u.CurrentStreak, &u.LongestStreak, &u.TotalCO2Saved, &u.CreatedAt, &u.UpdatedAt,
			&inserted,
		)
		if err == nil {
			return u, inserted, nil
		}
		if !isUniqueViolation(err, "users_referral_code_key") {
			return nil, false, fmt.Errorf("failed to create user: %w", err)
		}
		lastErr = err
	}
	return nil, false, fmt.Errorf("failed to allocate referral code: %w", lastErr)
}

func (s *UserService) GetUserByClerkID(ctx context.Context, clerkID string) (*user.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE clerk_id = $1`, clerkID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (s *UserService) GetUserByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetProfile returns the caller's own profile.
func (s *UserService) GetProfile(ctx context.Context, clerkID string) (*user.Profile, error) {
	u, err := s.GetUserByClerkID(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	return s.buildProfile(ctx, u, false)
}

// GetPublicProfile returns another user's profile as seen by the caller.
func (s *UserService) GetPublicProfile(ctx context.Context, clerkID string, targetID uuid.UUID) (*user.Profile, error) {
	viewerID, err := userIDByClerkID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}
	target, err := s.GetUserByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	var isFriend bool
	err = s.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM friendships
			WHERE status = 'accepted'
			  AND ((user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1))
		)
	`, viewerID, targetID).Scan(&isFriend)
	if err != nil {
		return nil, fmt.Errorf("failed to check friendship: %w", err)
	}

	profile, err := s.buildProfile(ctx, target, isFriend)
	if err != nil {
		return nil, err
	}
	// private fields
	profile.User.Email = ""
	profile.User.ReferredBy = nil
	return profile, nil
}

func (s *UserService) buildProfile(ctx context.Context, u *user.User, isFriend bool) (*user.Profile, error) {
	var referralCount int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE referred_by = $1`, u.ID).Scan(&referralCount); err != nil {
		return nil, fmt.Errorf("failed to count referrals: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.name, c.description, c.cosmetic_type, c.image_url, c.is_active
		FROM user_cosmetics uc
		JOIN cosmetics c ON c.id = uc.cosmetic_id
		WHERE uc.user_id = $1 AND uc.is_equipped = TRUE
		ORDER BY c.cosmetic_type
	`, u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get equipped cosmetics: %w", err)
	}
	defer rows.Close()

	equipped := []*cosmetic.Cosmetic{}
	for rows.Next() {
		c := &cosmetic.Cosmetic{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CosmeticType, &c.ImageURL, &c.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan cosmetic: %w", err)
		}
		equipped = append(equipped, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &user.Profile{
		User:          u,
		ReferralCount: referralCount,
		Metrics:       u.Metrics(referralCount),
		Equipped:      equipped,
		IsFriend:      isFriend,
	}, nil
}

func (s *UserService) UpdateProfileByClerkID(ctx context.Context, clerkID string, req *user.UpdateProfileRequest) (*user.User, error) {
	query := `
	UPDATE users
	SET username = COALESCE(NULLIF($2, ''), username),
		first_name = COALESCE(NULLIF($3, ''), first_name),
		last_name = COALESCE(NULLIF($4, ''), last_name),
		image_url = COALESCE(NULLIF($5, ''), image_url),
		updated_at = NOW()
	WHERE clerk_id = $1
	RETURNING ` + userColumns

	u, err := scanUser(s.db.QueryRow(ctx, query, clerkID, req.Username, req.FirstName, req.LastName, req.ImageURL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		if isUniqueViolation(err, "users_username_key") {
			return nil, fmt.Errorf("username %q is taken: %w", req.Username, apperrors.ErrInvalidInput)
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return u, nil
}

// SyncFromClerk applies a user.updated webhook payload.
func (s *UserService) SyncFromClerk(ctx context.Context, data *clerk.ClerkUserData) error {
	email, verified := data.PrimaryEmail()
	imageURL := data.ImageURL
	if imageURL == "" {
		imageURL = data.ProfileImageURL
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE users
		SET email = $2, first_name = $3, last_name = $4, image_url = $5, email_verified = $6,
			username = COALESCE(NULLIF($7, ''), username),
			updated_at = NOW()
		WHERE clerk_id = $1
	`, data.ID, email, data.FirstName, data.LastName, imageURL, verified, data.Username)
	if err != nil {
		return fmt.Errorf("failed to sync user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (s *UserService) DeleteUserByClerkID(ctx context.Context, clerkID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var userID uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1 FOR UPDATE`, clerkID).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrUserNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	// teams owned by the user pass to their earliest other member, or go away
	if err := leaveTeamTx(ctx, tx, userID); err != nil && !errors.Is(err, apperrors.ErrNotInTeam) {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	s.logger.Info("user deleted", zap.String("user_id", userID.String()))
	return nil
}

func (s *UserService) SearchUsers(ctx context.Context, clerkID, query string) ([]*user.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty search query: %w", apperrors.ErrInvalidInput)
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE username ILIKE '%' || $1 || '%' AND clerk_id <> $2
		ORDER BY username
		LIMIT $3
	`, query, clerkID, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	users := []*user.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Email = ""
		users = append(users, u)
	}
	return users, rows.Err()
}
