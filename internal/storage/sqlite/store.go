// Package sqlite is a single-file implementation of the engine store used by the
// ops CLI and by service tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"ecoStreakAPI/internal/apperrors"
	"ecoStreakAPI/internal/reward"
	"ecoStreakAPI/internal/streak"
	"ecoStreakAPI/internal/types/challenge"
	"ecoStreakAPI/services"
)

type Store struct {
	db *sql.DB
}

var _ services.EngineStore = (*Store)(nil)

// Open opens or creates the database at path and runs migrations.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id                 TEXT PRIMARY KEY,
			clerk_id           TEXT NOT NULL UNIQUE,
			email              TEXT NOT NULL DEFAULT '',
			username           TEXT NOT NULL DEFAULT '',
			referral_code      TEXT NOT NULL UNIQUE,
			referred_by        TEXT REFERENCES users(id),
			last_activity_date INTEGER,
			current_streak     INTEGER NOT NULL DEFAULT 0,
			longest_streak     INTEGER NOT NULL DEFAULT 0,
			total_co2_saved    REAL NOT NULL DEFAULT 0,
			created_at         INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_referred_by ON users(referred_by)`,

		`CREATE TABLE IF NOT EXISTS challenges (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category    TEXT NOT NULL DEFAULT '',
			co2_saved   REAL NOT NULL,
			is_active   BOOLEAN NOT NULL DEFAULT 1,
			created_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS challenge_completions (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			challenge_id TEXT NOT NULL REFERENCES challenges(id),
			co2_saved    REAL NOT NULL,
			completed_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_completions_user ON challenge_completions(user_id, completed_at)`,

		`CREATE TABLE IF NOT EXISTS cosmetics (
			id        TEXT PRIMARY KEY,
			name      TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS reward_thresholds (
			id          TEXT PRIMARY KEY,
			type        TEXT NOT NULL CHECK (type IN ('streak', 'co2', 'referral')),
			threshold   REAL NOT NULL CHECK (threshold > 0),
			cosmetic_id TEXT NOT NULL REFERENCES cosmetics(id),
			is_active   BOOLEAN NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_thresholds_type ON reward_thresholds(type, threshold)`,
		`CREATE TABLE IF NOT EXISTS user_cosmetics (
			user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			cosmetic_id TEXT NOT NULL REFERENCES cosmetics(id),
			source      TEXT NOT NULL,
			unlocked_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, cosmetic_id)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Seeding ────────────────────────────────────────────────────────────────

// SeedUser is the subset of a user row the engine reads.
type SeedUser struct {
	ID               uuid.UUID
	ClerkID          string
	ReferralCode     string
	ReferredBy       *uuid.UUID
	LastActivityDate *time.Time
	CurrentStreak    int
	LongestStreak    int
	TotalCO2Saved    float64
}

func (s *Store) InsertUser(ctx context.Context, u SeedUser) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.ClerkID == "" {
		u.ClerkID = "user_" + u.ID.String()
	}
	if u.ReferralCode == "" {
		u.ReferralCode = strings.ToUpper(strings.ReplaceAll(u.ID.String(), "-", "")[:8])
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, clerk_id, referral_code, referred_by, last_activity_date,
			current_streak, longest_streak, total_co2_saved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID.String(), u.ClerkID, strings.ToUpper(u.ReferralCode), nullableID(u.ReferredBy),
		nullableNano(u.LastActivityDate), u.CurrentStreak, u.LongestStreak, u.TotalCO2Saved,
		time.Now().UnixNano(),
	)
	return err
}

func (s *Store) InsertChallenge(ctx context.Context, c *challenge.Challenge) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO challenges (id, title, description, category, co2_saved, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.Title, c.Description, c.Category, c.CO2Saved, c.IsActive, c.CreatedAt.UnixNano(),
	)
	return err
}

func (s *Store) InsertCosmetic(ctx context.Context, id uuid.UUID, name string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO cosmetics (id, name) VALUES (?, ?)`, id.String(), name)
	return err
}

// InsertThreshold stores th, creating its cosmetic first when it is missing.
func (s *Store) InsertThreshold(ctx context.Context, th reward.Threshold) error {
	if th.ID == uuid.Nil {
		th.ID = uuid.New()
	}
	name := th.CosmeticName
	if name == "" {
		name = fmt.Sprintf("%s-%g", th.Type, th.Threshold)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cosmetics (id, name) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		th.CosmeticID.String(), name)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reward_thresholds (id, type, threshold, cosmetic_id, is_active)
		VALUES (?, ?, ?, ?, ?)`,
		th.ID.String(), string(th.Type), th.Threshold, th.CosmeticID.String(), th.IsActive,
	)
	return err
}

// ─── Engine store ───────────────────────────────────────────────────────────

func (s *Store) UserIDByClerkID(ctx context.Context, clerkID string) (uuid.UUID, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE clerk_id = ?`, clerkID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(id)
}

func (s *Store) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) GetChallenge(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, category, co2_saved, is_active, created_at
		FROM challenges WHERE id = ?`, id.String())
	c, err := scanChallenge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrChallengeNotFound
	}
	return c, err
}

func (s *Store) ListChallenges(ctx context.Context) ([]*challenge.Challenge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, category, co2_saved, is_active, created_at
		FROM challenges WHERE is_active = 1 ORDER BY category, title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	challenges := []*challenge.Challenge{}
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		challenges = append(challenges, c)
	}
	return challenges, rows.Err()
}

func (s *Store) ListCompletions(ctx context.Context, userID uuid.UUID, limit int) ([]*challenge.Completion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cc.id, cc.user_id, cc.challenge_id, c.title, cc.co2_saved, cc.completed_at
		FROM challenge_completions cc
		JOIN challenges c ON c.id = cc.challenge_id
		WHERE cc.user_id = ?
		ORDER BY cc.completed_at DESC
		LIMIT ?`, userID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	completions := []*challenge.Completion{}
	for rows.Next() {
		var c challenge.Completion
		var id, uid, cid string
		var at int64
		if err := rows.Scan(&id, &uid, &cid, &c.Title, &c.CO2Saved, &at); err != nil {
			return nil, err
		}
		c.ID, c.UserID, c.ChallengeID = uuid.MustParse(id), uuid.MustParse(uid), uuid.MustParse(cid)
		c.CompletedAt = fromNano(at)
		completions = append(completions, &c)
	}
	return completions, rows.Err()
}

// ApplyCompletion runs inside one transaction; with a single connection the
// transaction also serializes concurrent callers.
func (s *Store) ApplyCompletion(ctx context.Context, userID uuid.UUID, c *challenge.Challenge, at time.Time, next services.StreakFunc) (*challenge.CompletionResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var prior streak.State
	var last sql.NullInt64
	var totalCO2 float64
	err = tx.QueryRowContext(ctx, `
		SELECT last_activity_date, current_streak, longest_streak, total_co2_saved
		FROM users WHERE id = ?`, userID.String(),
	).Scan(&last, &prior.CurrentStreak, &prior.LongestStreak, &totalCO2)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if last.Valid {
		t := fromNano(last.Int64)
		prior.LastActivityDate = &t
	}

	updated, err := next(prior)
	if err != nil {
		return nil, err
	}
	totalCO2 += c.CO2Saved

	_, err = tx.ExecContext(ctx, `
		UPDATE users
		SET last_activity_date = ?, current_streak = ?, longest_streak = ?, total_co2_saved = ?
		WHERE id = ?`,
		nullableNano(updated.LastActivityDate), updated.CurrentStreak, updated.LongestStreak, totalCO2,
		userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("update metrics: %w", err)
	}

	completion := &challenge.Completion{
		ID:          uuid.New(),
		UserID:      userID,
		ChallengeID: c.ID,
		Title:       c.Title,
		CO2Saved:    c.CO2Saved,
		CompletedAt: at,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO challenge_completions (id, user_id, challenge_id, co2_saved, completed_at)
		VALUES (?, ?, ?, ?, ?)`,
		completion.ID.String(), userID.String(), c.ID.String(), c.CO2Saved, at.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert completion: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &challenge.CompletionResult{
		Completion:    completion,
		Streak:        updated,
		TotalCO2Saved: totalCO2,
	}, nil
}

func (s *Store) GetMetrics(ctx context.Context, userID uuid.UUID) (reward.Metrics, error) {
	var m reward.Metrics
	err := s.db.QueryRowContext(ctx, `
		SELECT u.current_streak, u.longest_streak, u.total_co2_saved,
			(SELECT COUNT(*) FROM users r WHERE r.referred_by = u.id)
		FROM users u WHERE u.id = ?`, userID.String(),
	).Scan(&m.CurrentStreak, &m.LongestStreak, &m.TotalCO2Saved, &m.ReferralCount)
	if errors.Is(err, sql.ErrNoRows) {
		return m, apperrors.ErrUserNotFound
	}
	return m, err
}

func (s *Store) ActiveThresholds(ctx context.Context, t reward.MetricType) ([]reward.Threshold, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rt.id, rt.type, rt.threshold, rt.cosmetic_id, c.name, rt.is_active
		FROM reward_thresholds rt
		JOIN cosmetics c ON c.id = rt.cosmetic_id
		WHERE rt.type = ? AND rt.is_active = 1
		ORDER BY rt.threshold ASC`, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var thresholds []reward.Threshold
	for rows.Next() {
		var th reward.Threshold
		var id, typ, cosmeticID string
		if err := rows.Scan(&id, &typ, &th.Threshold, &cosmeticID, &th.CosmeticName, &th.IsActive); err != nil {
			return nil, err
		}
		th.ID, th.CosmeticID = uuid.MustParse(id), uuid.MustParse(cosmeticID)
		th.Type = reward.MetricType(typ)
		thresholds = append(thresholds, th)
	}
	return thresholds, rows.Err()
}

func (s *Store) GrantCosmetic(ctx context.Context, userID, cosmeticID uuid.UUID, source reward.MetricType, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO user_cosmetics (user_id, cosmetic_id, source, unlocked_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, cosmetic_id) DO NOTHING`,
		userID.String(), cosmeticID.String(), string(source), at.UnixNano(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) ListUnlocks(ctx context.Context, userID uuid.UUID) ([]reward.Unlock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uc.cosmetic_id, c.name, uc.source, uc.unlocked_at
		FROM user_cosmetics uc
		JOIN cosmetics c ON c.id = uc.cosmetic_id
		WHERE uc.user_id = ?
		ORDER BY uc.unlocked_at ASC`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	unlocks := []reward.Unlock{}
	for rows.Next() {
		u := reward.Unlock{UserID: userID}
		var cosmeticID, source string
		var at int64
		if err := rows.Scan(&cosmeticID, &u.CosmeticName, &source, &at); err != nil {
			return nil, err
		}
		u.CosmeticID = uuid.MustParse(cosmeticID)
		u.Source = reward.MetricType(source)
		u.UnlockedAt = fromNano(at)
		unlocks = append(unlocks, u)
	}
	return unlocks, rows.Err()
}

func (s *Store) ReferralCode(ctx context.Context, userID uuid.UUID) (string, error) {
	var code string
	err := s.db.QueryRowContext(ctx, `SELECT referral_code FROM users WHERE id = ?`, userID.String()).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.ErrUserNotFound
	}
	return code, err
}

func (s *Store) UserIDByReferralCode(ctx context.Context, code string) (uuid.UUID, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE referral_code = ?`, strings.ToUpper(code)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, apperrors.ErrInvalidReferralCode
	}
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(id)
}

func (s *Store) SetReferrer(ctx context.Context, userID, referrerID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET referred_by = ? WHERE id = ? AND referred_by IS NULL`,
		referrerID.String(), userID.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, userID.String()).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperrors.ErrUserNotFound
	}
	return apperrors.ErrAlreadyReferred
}

func (s *Store) ReferralCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE referred_by = ?`, userID.String()).Scan(&n)
	return n, err
}

// ─── Helpers ────────────────────────────────────────────────────────────────

type scanner interface {
	Scan(dest ...any) error
}

func scanChallenge(s scanner) (*challenge.Challenge, error) {
	var c challenge.Challenge
	var id string
	var createdAt int64
	if err := s.Scan(&id, &c.Title, &c.Description, &c.Category, &c.CO2Saved, &c.IsActive, &createdAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	c.ID = parsed
	c.CreatedAt = fromNano(createdAt)
	return &c, nil
}

func fromNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableNano(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func nullableID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}
