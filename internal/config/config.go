package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds application configuration.
type Config struct {
	// API
	APIBaseURL     string
	RequestTimeout time.Duration
	UserAgent      string

	// Keystore
	KeystorePath string

	// Login lockout
	MaxLoginAttempts int
	LockoutWindow    time.Duration

	// Refresh scheduling
	RefreshLead     time.Duration
	WarningLead     time.Duration
	InactivityLimit time.Duration
	ResumeWindow    time.Duration

	// Devserver
	ServerAddr      string
	ServerPort      int
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		APIBaseURL:     getEnv("API_BASE_URL", "http://localhost:8081"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		UserAgent:      getEnv("USER_AGENT", "stockkanban-cli/1.0"),

		KeystorePath: getEnv("KEYSTORE_PATH", ""),

		MaxLoginAttempts: getEnvInt("MAX_LOGIN_ATTEMPTS", 5),
		LockoutWindow:    getEnvDuration("LOCKOUT_WINDOW", 15*time.Minute),

		RefreshLead:     getEnvDuration("REFRESH_LEAD", 5*time.Minute),
		WarningLead:     getEnvDuration("WARNING_LEAD", 10*time.Minute),
		InactivityLimit: getEnvDuration("INACTIVITY_LIMIT", 60*time.Minute),
		ResumeWindow:    getEnvDuration("RESUME_WINDOW", 10*time.Minute),

		ServerAddr:      getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort:      getEnvInt("SERVER_PORT", 8081),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret-change-me"),
		AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL: getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
	}

	if cfg.KeystorePath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		cfg.KeystorePath = filepath.Join(dir, "stockkanban", "credentials.json")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
