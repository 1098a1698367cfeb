package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every setting the server needs, resolved once at startup.
// Handlers receive it by value; nothing re-reads the environment later.
type Config struct {
	HTTPPort     string
	DatabaseURL  string
	JWTSecret    string
	PublicOrigin string

	// Empty GeminiAPIKey switches completions to demo mode.
	GeminiAPIKey string
	DefaultModel string

	// Shape endpoint of the external replication service, plus optional
	// source credentials attached to every forwarded subscription.
	SyncURL      string
	SyncSourceID string
	SyncSecret   string

	// Optional; the guest limiter falls back to an in-process counter
	// when no Redis address is configured.
	RedisAddr      string
	GuestFreeLimit int

	LogMode string
}

func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := Config{
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		PublicOrigin:   getEnv("PUBLIC_ORIGIN", "http://localhost:8080"),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		DefaultModel:   getEnv("DEFAULT_MODEL", "gemini-1.5-flash-latest"),
		SyncURL:        getEnv("SYNC_URL", ""),
		SyncSourceID:   getEnv("SYNC_SOURCE_ID", ""),
		SyncSecret:     getEnv("SYNC_SECRET", ""),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		GuestFreeLimit: getEnvAsInt("GUEST_FREE_LIMIT", 1),
		LogMode:        getEnv("LOG_MODE", "dev"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if cfg.SyncURL == "" {
		return Config{}, fmt.Errorf("SYNC_URL environment variable is required")
	}

	return cfg, nil
}

// DemoMode reports whether completions run without an external LLM,
// answering with a canned echo instead.
func (c Config) DemoMode() bool {
	return c.GeminiAPIKey == ""
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
