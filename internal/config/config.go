package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Room creation retry
	DefaultRoomRetryMax       = 3
	DefaultRoomRetryBaseDelay = time.Second

	// Session
	SessionCommandBuffer = 16
	// Room events buffered per subscription before publishers wait.
	SessionEventBuffer = 64

	// Auth
	TokenTTL    = 72 * time.Hour
	TokenIssuer = "claimchat-service"

	// Telegram link tokens are single-purpose and short-lived.
	LinkTokenTTL      = 15 * time.Minute
	LinkTokenAudience = "telegram-link"
)

type Config struct {
	Env      string
	Port     string
	LogLevel string
	Locale   string

	DatabaseDriver string // "pgx", "postgres" (lib/pq) or "sqlite"
	DatabaseURL    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret        string
	TelegramBotToken string
	CORSOrigins      []string

	NodeID             int64
	RoomRetryMax       int
	RoomRetryBaseDelay time.Duration
}

// Load reads configuration from the environment, loading .env outside production.
func Load() Config {
	env := getEnv("APP_ENV", "development")
	if env != "production" {
		if err := godotenv.Load(); err != nil {
			slog.Debug("no .env file found, using process environment")
		}
	}

	return Config{
		Env:                env,
		Port:               getEnv("PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", ""),
		Locale:             getEnv("LOCALE", "en"),
		DatabaseDriver:     getEnv("DATABASE_DRIVER", "pgx"),
		DatabaseURL:        getEnv("DATABASE_URL", "host=localhost user=user password=password dbname=claimchat port=5432 sslmode=disable"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		TelegramBotToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
		CORSOrigins:        getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),
		NodeID:             int64(getEnvInt("NODE_ID", 1)),
		RoomRetryMax:       getEnvInt("ROOM_RETRY_MAX", DefaultRoomRetryMax),
		RoomRetryBaseDelay: getEnvDuration("ROOM_RETRY_BASE_DELAY", DefaultRoomRetryBaseDelay),
	}
}

func (c Config) IsProduction() bool  { return c.Env == "production" }
func (c Config) IsDevelopment() bool { return c.Env == "development" }

// Validate reports the settings that must be present before serving traffic.
func (c Config) Validate() []string {
	var missing []string
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	return missing
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", raw)
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", raw)
		return fallback
	}
	return v
}

func getEnvList(key string, fallback []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
