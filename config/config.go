package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
}

// Enabled reports whether enough is set to reach a bucket.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.AccessKeySecret != "" && c.Bucket != ""
}

type MatchmakingConfig struct {
	InitialTolerance   int
	ToleranceStep      int
	ExpansionInterval  time.Duration
	MaxTolerance       int
	MaxWait            time.Duration
	MaxMatchesPerSweep int
}

type Config struct {
	ServerPort       string
	LogLevel         string
	AllowedOrigins   []string
	GameServiceToken string
	DatabaseURL      string
	R2               R2Config

	GracePeriod    time.Duration
	AutoStartDelay time.Duration
	IdleTimeout    time.Duration
	MaxSpectators  int

	MatchmakingSweepInterval time.Duration
	IdleSweepInterval        time.Duration
	PresenceInterval         time.Duration

	Matchmaking MatchmakingConfig
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		ServerPort:       getEnv("SERVER_PORT", "5200"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		AllowedOrigins:   splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		GameServiceToken: getEnv("GAME_SERVICE_TOKEN", ""),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		R2: R2Config{
			AccountID:       getEnv("CLOUDFLARE_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			AccessKeySecret: getEnv("R2_ACCESS_KEY_SECRET", ""),
			Bucket:          getEnv("R2_BUCKET_NAME", ""),
		},

		GracePeriod:    getDuration("GRACE_PERIOD", 30*time.Second),
		AutoStartDelay: getDuration("AUTO_START_DELAY", 3*time.Second),
		IdleTimeout:    getDuration("IDLE_TIMEOUT", 10*time.Minute),
		MaxSpectators:  getInt("MAX_SPECTATORS", 8),

		MatchmakingSweepInterval: getDuration("MATCHMAKING_SWEEP_INTERVAL", 2*time.Second),
		IdleSweepInterval:        getDuration("IDLE_SWEEP_INTERVAL", time.Minute),
		PresenceInterval:         getDuration("PRESENCE_INTERVAL", 15*time.Second),

		Matchmaking: MatchmakingConfig{
			InitialTolerance:   getInt("MATCHMAKING_INITIAL_TOLERANCE", 100),
			ToleranceStep:      getInt("MATCHMAKING_TOLERANCE_STEP", 50),
			ExpansionInterval:  getDuration("MATCHMAKING_EXPANSION_INTERVAL", 10*time.Second),
			MaxTolerance:       getInt("MATCHMAKING_MAX_TOLERANCE", 400),
			MaxWait:            getDuration("MATCHMAKING_MAX_WAIT", 60*time.Second),
			MaxMatchesPerSweep: getInt("MATCHMAKING_MAX_MATCHES_PER_SWEEP", 1),
		},
	}

	if cfg.GameServiceToken == "" {
		return nil, fmt.Errorf("GAME_SERVICE_TOKEN is required")
	}
	if cfg.MaxSpectators < 0 {
		return nil, fmt.Errorf("MAX_SPECTATORS must not be negative")
	}
	for key, d := range map[string]time.Duration{
		"GRACE_PERIOD":               cfg.GracePeriod,
		"MATCHMAKING_SWEEP_INTERVAL": cfg.MatchmakingSweepInterval,
		"IDLE_SWEEP_INTERVAL":        cfg.IdleSweepInterval,
		"PRESENCE_INTERVAL":          cfg.PresenceInterval,
	} {
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive", key)
		}
	}

	logger.Info().
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Bool("database", cfg.DatabaseURL != "").
		Bool("r2_archive", cfg.R2.Enabled()).
		Dur("grace_period", cfg.GracePeriod).
		Dur("idle_timeout", cfg.IdleTimeout).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
