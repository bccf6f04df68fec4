// Package testutil holds helpers shared by the PostgreSQL integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"ecoStreakAPI/internal/reward"
	"ecoStreakAPI/internal/storage/postgres"
	"ecoStreakAPI/internal/types/challenge"
)

const truncateAll = `
TRUNCATE device_tokens, notifications, team_members, teams, friendships,
	user_cosmetics, reward_thresholds, cosmetics, challenge_completions, challenges, users
CASCADE`

// SetupTestDB connects to TEST_DATABASE_URL, applies the schema and empties every table.
// The test is skipped when the variable is unset. Point it at a scratch database.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := postgres.Connect(ctx, dbURL, postgres.PoolOptions{MaxConns: 10})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := postgres.ApplySchema(ctx, pool); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}
	if _, err := pool.Exec(ctx, truncateAll); err != nil {
		t.Fatalf("Failed to reset test database: %v", err)
	}
	return pool
}

// UserSeed describes a user row inserted directly, bypassing the webhook path.
type UserSeed struct {
	ID            uuid.UUID
	ClerkID       string
	Username      string
	ReferralCode  string
	CurrentStreak int
	LongestStreak int
	TotalCO2Saved float64
}

func InsertUser(t *testing.T, pool *pgxpool.Pool, u UserSeed) uuid.UUID {
	t.Helper()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	short := u.ID.String()[:8]
	if u.ClerkID == "" {
		u.ClerkID = "user_" + short
	}
	if u.Username == "" {
		u.Username = "eco_" + short
	}
	if u.ReferralCode == "" {
		u.ReferralCode = fmt.Sprintf("%X", u.ID[:4])
	}
	_, err := pool.Exec(context.Background(), `
		INSERT INTO users (id, clerk_id, username, referral_code, current_streak, longest_streak, total_co2_saved)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.ClerkID, u.Username, u.ReferralCode, u.CurrentStreak, u.LongestStreak, u.TotalCO2Saved)
	if err != nil {
		t.Fatalf("Failed to insert user: %v", err)
	}
	return u.ID
}

func InsertChallenge(t *testing.T, pool *pgxpool.Pool, c *challenge.Challenge) {
	t.Helper()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := pool.Exec(context.Background(), `
		INSERT INTO challenges (id, title, description, category, co2_saved, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.Title, c.Description, c.Category, c.CO2Saved, c.IsActive)
	if err != nil {
		t.Fatalf("Failed to insert challenge: %v", err)
	}
}

// InsertThreshold creates a cosmetic of cosmeticType and a threshold that unlocks it.
func InsertThreshold(t *testing.T, pool *pgxpool.Pool, typ reward.MetricType, value float64, cosmeticType string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	cosmeticID := uuid.New()
	_, err := pool.Exec(ctx, `INSERT INTO cosmetics (id, name, cosmetic_type) VALUES ($1, $2, $3)`,
		cosmeticID, fmt.Sprintf("%s-%g", typ, value), cosmeticType)
	if err != nil {
		t.Fatalf("Failed to insert cosmetic: %v", err)
	}
	_, err = pool.Exec(ctx, `INSERT INTO reward_thresholds (id, type, threshold, cosmetic_id) VALUES ($1, $2, $3, $4)`,
		uuid.New(), string(typ), value, cosmeticID)
	if err != nil {
		t.Fatalf("Failed to insert threshold: %v", err)
	}
	return cosmeticID
}

// MockClerkWebhookPayload creates a Clerk webhook body. referralCode lands in
// unsafe_metadata when set.
func MockClerkWebhookPayload(eventType, clerkID, referralCode string) []byte {
	switch eventType {
	case "user.deleted":
		return []byte(fmt.Sprintf(`{
			"data": {"id": %q, "deleted": true},
			"object": "event",
			"type": %q
		}`, clerkID, eventType))
	default:
		metadata := `{}`
		if referralCode != "" {
			metadata = fmt.Sprintf(`{"referral_code": %q}`, referralCode)
		}
		return []byte(fmt.Sprintf(`{
			"data": {
				"id": %q,
				"first_name": "Test",
				"last_name": "User",
				"email_addresses": [{
					"id": "email_123",
					"email_address": "test.user@example.com",
					"verification": {"status": "verified"}
				}],
				"primary_email_address_id": "email_123",
				"username": "",
				"image_url": "https://example.com/image.jpg",
				"unsafe_metadata": %s
			},
			"object": "event",
			"type": %q
		}`, clerkID, metadata, eventType))
	}
}
