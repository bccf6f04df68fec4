package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ecoStreakAPI/internal/apperrors"
	"ecoStreakAPI/internal/reward"
	"ecoStreakAPI/internal/types/cosmetic"
)

type CosmeticService struct {
	db *pgxpool.Pool
}

func NewCosmeticService(db *pgxpool.Pool) *CosmeticService {
	return &CosmeticService{db: db}
}

// GetCatalog returns active cosmetics grouped by type, each with the lowest threshold
// that unlocks it and whether the caller owns it.
func (s *CosmeticService) GetCatalog(ctx context.Context, clerkID string) (map[string][]*cosmetic.CatalogEntry, error) {
	userID, err := userIDByClerkID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	query := `
	SELECT
		c.id,
		c.name,
		c.description,
		c.cosmetic_type,
		c.image_url,
		c.is_active,
		rt.type,
		rt.threshold,
		EXISTS(SELECT 1 FROM user_cosmetics uc WHERE uc.user_id = $1 AND uc.cosmetic_id = c.id) AS owned
	FROM cosmetics c
	LEFT JOIN LATERAL (
		SELECT type, threshold
		FROM reward_thresholds
		WHERE cosmetic_id = c.id AND is_active = TRUE
		ORDER BY threshold ASC
		LIMIT 1
	) rt ON TRUE
	WHERE c.is_active = TRUE
	ORDER BY c.cosmetic_type, rt.threshold NULLS LAST, c.name
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}
	defer rows.Close()

	catalog := make(map[string][]*cosmetic.CatalogEntry)
	for rows.Next() {
		e := &cosmetic.CatalogEntry{}
		var unlockType *string
		err := rows.Scan(
			&e.ID,
			&e.Name,
			&e.Description,
			&e.CosmeticType,
			&e.ImageURL,
			&e.IsActive,
			&unlockType,
			&e.UnlockThreshold,
			&e.Owned,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan catalog entry: %w", err)
		}
		if unlockType != nil {
			t := reward.MetricType(*unlockType)
			e.UnlockType = &t
		}
		catalog[e.CosmeticType] = append(catalog[e.CosmeticType], e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return catalog, nil
}

// GetInventory lists the caller's unlocked cosmetics, newest first.
func (s *CosmeticService) GetInventory(ctx context.Context, clerkID string) ([]*cosmetic.OwnedCosmetic, error) {
	userID, err := userIDByClerkID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.name, c.description, c.cosmetic_type, c.image_url, c.is_active,
			uc.source, uc.unlocked_at, uc.is_equipped
		FROM user_cosmetics uc
		JOIN cosmetics c ON c.id = uc.cosmetic_id
		WHERE uc.user_id = $1
		ORDER BY uc.unlocked_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory: %w", err)
	}
	defer rows.Close()

	owned := []*cosmetic.OwnedCosmetic{}
	for rows.Next() {
		o := &cosmetic.OwnedCosmetic{}
		var source string
		if err := rows.Scan(&o.ID, &o.Name, &o.Description, &o.CosmeticType, &o.ImageURL, &o.IsActive,
			&source, &o.UnlockedAt, &o.IsEquipped); err != nil {
			return nil, fmt.Errorf("failed to scan cosmetic: %w", err)
		}
		o.Source = reward.MetricType(source)
		owned = append(owned, o)
	}
	return owned, rows.Err()
}

// Equip marks an owned cosmetic as equipped. At most one cosmetic per type is equipped.
func (s *CosmeticService) Equip(ctx context.Context, clerkID string, cosmeticID uuid.UUID) error {
	userID, err := userIDByClerkID(ctx, s.db, clerkID)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var cosmeticType string
	err = tx.QueryRow(ctx, `
		SELECT c.cosmetic_type
		FROM user_cosmetics uc
		JOIN cosmetics c ON c.id = uc.cosmetic_id
		WHERE uc.user_id = $1 AND uc.cosmetic_id = $2
		FOR UPDATE OF uc
	`, userID, cosmeticID).Scan(&cosmeticType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM cosmetics WHERE id = $1)`, cosmeticID).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check cosmetic: %w", err)
			}
			if !exists {
				return apperrors.ErrCosmeticNotFound
			}
			return apperrors.ErrCosmeticNotOwned
		}
		return fmt.Errorf("failed to get cosmetic: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE user_cosmetics uc
		SET is_equipped = (uc.cosmetic_id = $2)
		FROM cosmetics c
		WHERE c.id = uc.cosmetic_id AND uc.user_id = $1 AND c.cosmetic_type = $3
	`, userID, cosmeticID, cosmeticType)
	if err != nil {
		return fmt.Errorf("failed to equip cosmetic: %w", err)
	}

	return tx.Commit(ctx)
}
