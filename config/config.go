// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials (e.g., the Discord bot token), use ValidateDiscordReady.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Discord
	DiscordToken string

	// Twitch
	TwitchClientID     string
	TwitchClientSecret string
	HelixRatePerMinute int

	// Reconciler
	TickInterval    time.Duration
	MemberScanEvery int
	HistoryLimit    int

	// Guild configuration storage. DB_DSN wins over GuildsFile.
	DBDsn      string
	GuildsFile string

	// Enrichment cache (optional)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	AvatarTTL     time.Duration

	// HTTP
	HTTPAddr   string
	AdminToken string
}

// Load reads environment variables and applies defaults. It doesn't fail if credentials are missing;
// use ValidateDiscordReady() before connecting. Missing Twitch credentials disable polling.
func Load() (*Config, error) {
	cfg := &Config{
		DiscordToken:       os.Getenv("DISCORD_TOKEN"),
		TwitchClientID:     os.Getenv("TWITCH_CLIENT_ID"),
		TwitchClientSecret: os.Getenv("TWITCH_CLIENT_SECRET"),
		DBDsn:              os.Getenv("DB_DSN"),
		GuildsFile:         os.Getenv("GUILDS_FILE"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		AdminToken:         os.Getenv("ADMIN_TOKEN"),
		HTTPAddr:           os.Getenv("HTTP_ADDR"),
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	var err error
	if cfg.TickInterval, err = durationEnv("TICK_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.AvatarTTL, err = durationEnv("AVATAR_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.MemberScanEvery, err = positiveIntEnv("MEMBER_SCAN_EVERY", 60); err != nil {
		return nil, err
	}
	if cfg.HistoryLimit, err = positiveIntEnv("HISTORY_LIMIT", 100); err != nil {
		return nil, err
	}
	if cfg.HelixRatePerMinute, err = positiveIntEnv("HELIX_RATE_PER_MINUTE", 600); err != nil {
		return nil, err
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if cfg.RedisDB, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
	}
	return cfg, nil
}

// ValidateDiscordReady checks the fields required to connect the bot.
func (c *Config) ValidateDiscordReady() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("missing discord env: require DISCORD_TOKEN")
	}
	return nil
}

// TwitchEnabled reports whether Helix credentials are configured.
func (c *Config) TwitchEnabled() bool {
	return c.TwitchClientID != "" && c.TwitchClientSecret != ""
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func positiveIntEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return n, nil
}
