package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const sqlitePrefix = "sqlite:///"

// Config holds application configuration
type Config struct {
	TelegramToken string
	GeminiAPIKey  string
	GeminiModel   string
	AdminUserIDs  []int64
	DatabasePath  string

	RateLimit RateLimit

	LLMTimeout           time.Duration
	MaxMessageLength     int
	DailyRewardPoints    int
	LeaderboardSize      int
	MaxConcurrentUpdates int

	MetricsAddr string
	LogLevel    string
	LogFormat   string
}

// RateLimit configures the per-user message cooldown
type RateLimit struct {
	Cooldown      time.Duration
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// Load loads configuration from environment variables.
// Missing .env files are ignored.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	cfg := &Config{
		TelegramToken: strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		GeminiAPIKey:  strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:   envString("GEMINI_MODEL", "gemini-2.0-flash"),
		MetricsAddr:   strings.TrimSpace(os.Getenv("METRICS_ADDR")),
		LogLevel:      envString("LOG_LEVEL", "info"),
		LogFormat:     envString("LOG_FORMAT", "text"),
	}

	admins, err := parseAdminIDs(os.Getenv("ADMIN_USER_IDS"))
	if err != nil {
		return nil, err
	}
	cfg.AdminUserIDs = admins

	if cfg.DatabasePath, err = databasePath(); err != nil {
		return nil, err
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"RATE_LIMIT_COOLDOWN", 5 * time.Second, &cfg.RateLimit.Cooldown},
		{"RATE_LIMIT_IDLE_TTL", 10 * time.Minute, &cfg.RateLimit.IdleTTL},
		{"RATE_LIMIT_SWEEP_INTERVAL", 5 * time.Minute, &cfg.RateLimit.SweepInterval},
		{"LLM_TIMEOUT", 30 * time.Second, &cfg.LLMTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = envDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"MAX_MESSAGE_LENGTH", 4000, &cfg.MaxMessageLength},
		{"DAILY_REWARD_POINTS", 10, &cfg.DailyRewardPoints},
		{"LEADERBOARD_SIZE", 10, &cfg.LeaderboardSize},
		{"MAX_CONCURRENT_UPDATES", 16, &cfg.MaxConcurrentUpdates},
	}
	for _, i := range ints {
		if *i.dst, err = envInt(i.key, i.def); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDatabasePath resolves DATABASE_URL alone, for commands that only
// touch storage.
func LoadDatabasePath(envFiles ...string) (string, error) {
	_ = godotenv.Load(envFiles...)
	return databasePath()
}

func databasePath() (string, error) {
	dbURL := envString("DATABASE_URL", sqlitePrefix+"database.db")
	if !strings.HasPrefix(dbURL, sqlitePrefix) {
		return "", fmt.Errorf("DATABASE_URL must start with %s", sqlitePrefix)
	}
	return strings.TrimPrefix(dbURL, sqlitePrefix), nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.RateLimit.Cooldown <= 0 {
		return fmt.Errorf("rate limit cooldown must be positive")
	}
	if c.RateLimit.IdleTTL < c.RateLimit.Cooldown {
		return fmt.Errorf("rate limit idle TTL must not be shorter than the cooldown")
	}
	if c.RateLimit.SweepInterval <= 0 {
		return fmt.Errorf("rate limit sweep interval must be positive")
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM timeout must be positive")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("max message length must be positive")
	}
	if c.DailyRewardPoints <= 0 {
		return fmt.Errorf("daily reward points must be positive")
	}
	if c.LeaderboardSize <= 0 {
		return fmt.Errorf("leaderboard size must be positive")
	}
	if c.MaxConcurrentUpdates <= 0 {
		return fmt.Errorf("max concurrent updates must be positive")
	}
	return nil
}

// IsAdmin reports whether the user may run admin commands
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// EnsureDatabaseDir creates the parent directory of the database file
func (c *Config) EnsureDatabaseDir() error {
	dir := filepath.Dir(c.DatabasePath)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database dir %q: %w", dir, err)
	}
	return nil
}

func parseAdminIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_USER_IDS must be a comma-separated list of integers: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}
