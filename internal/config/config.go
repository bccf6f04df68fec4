package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

// AppConfig is read from the environment, optionally seeded from a .env file.
type AppConfig struct {
	Port        string `validate:"required,numeric"`
	DatabaseURL string `validate:"required"`
	DBMaxConns  int32  `validate:"gte=1"`
	DBMinConns  int32  `validate:"gte=0,ltefield=DBMaxConns"`

	ClerkSecretKey     string
	ClerkWebhookSecret string

	RedisAddr        string
	RedisPassword    string
	RedisDB          int `validate:"gte=0"`
	ProgressCacheTTL time.Duration

	FCMCredentialsFile    string
	FCMServiceAccountJSON string

	MetricsUser string
	MetricsPass string
	PprofSecret string

	LogLevel string `validate:"oneof=debug info warn error"`
	LogPath  string

	StreakTimezone    string
	StrictInvariants  bool
	ReconcileInterval time.Duration

	AllowedOrigins   []string `validate:"min=1"`
	ReferralLinkBase string   `validate:"required,url"`
}

// Load reads .env (when present) and the process environment.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{
		Port:                  getEnv("PORT", "3333"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		DBMaxConns:            int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:            int32(getInt("DB_MIN_CONNS", 5)),
		ClerkSecretKey:        os.Getenv("CLERK_SECRET_KEY"),
		ClerkWebhookSecret:    os.Getenv("CLERK_WEBHOOK_SECRET"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getInt("REDIS_DB", 0),
		ProgressCacheTTL:      getDuration("PROGRESS_CACHE_TTL", 10*time.Minute),
		FCMCredentialsFile:    getEnv("FCM_CREDENTIALS_FILE", "./serviceAccountKey.json"),
		FCMServiceAccountJSON: os.Getenv("FCM_SERVICE_ACCOUNT_JSON"),
		MetricsUser:           os.Getenv("METRICS_USER"),
		MetricsPass:           os.Getenv("METRICS_PASS"),
		PprofSecret:           os.Getenv("PPROF_SECRET"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogPath:               os.Getenv("LOG_PATH"),
		StreakTimezone:        getEnv("STREAK_TIMEZONE", "Local"),
		StrictInvariants:      getBool("STRICT_INVARIANTS", false),
		ReconcileInterval:     getDuration("RECONCILE_INTERVAL", 0),
		AllowedOrigins:        splitList(getEnv("ALLOWED_ORIGINS", "*")),
		ReferralLinkBase:      getEnv("REFERRAL_LINK_BASE", "https://ecostreak.app/invite"),
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := cfg.StreakLocation(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// StreakLocation is the zone whose midnights separate streak days. "Local" keeps the
// server's own zone.
func (c *AppConfig) StreakLocation() (*time.Location, error) {
	if c.StreakTimezone == "" || c.StreakTimezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.StreakTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid STREAK_TIMEZONE %q: %w", c.StreakTimezone, err)
	}
	return loc, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
