package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Server
	Port        string
	FrontendURL string

	// Authentication
	JWTSecret            string
	TokenTTLMinutes      int
	AuthMaxAttempts      int // failed attempts per connection
	AuthMaxPerOrigin     int // failed attempts per origin within the window
	AuthWindowSeconds    int
	ConnectRatePerOrigin int // new connections per origin per window
	ConnectWindowSeconds int

	// Matchmaking
	SkillToleranceBase   int
	SkillToleranceStep   int
	SkillToleranceMax    int
	ToleranceWidenSecs   int // widen by one step every this many seconds waited
	PairingIntervalSecs  int
	MaxQueueWaitSecs     int
	PairingRateWindowMin int // rolling window for estimated-wait math

	// Game
	RematchTimeoutSecs       int
	FinishedRetentionMinutes int

	// Chat
	ChatBufferCap        int
	ChatMaxMessageLen    int
	TypingIdleSecs       int
	ChatRetentionMinutes int

	// Workers
	CleanupIntervalSecs int

	// Admin
	AdminKeyHash string // bcrypt hash of the admin API key
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/playgrid?sslmode=disable"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Authentication
		JWTSecret:            getEnv("JWT_SECRET", "change-me-in-production"),
		TokenTTLMinutes:      getEnvInt("TOKEN_TTL_MINUTES", 60),
		AuthMaxAttempts:      getEnvInt("AUTH_MAX_ATTEMPTS", 5),
		AuthMaxPerOrigin:     getEnvInt("AUTH_MAX_PER_ORIGIN", 20),
		AuthWindowSeconds:    getEnvInt("AUTH_WINDOW_SECONDS", 300),
		ConnectRatePerOrigin: getEnvInt("CONNECT_RATE_PER_ORIGIN", 30),
		ConnectWindowSeconds: getEnvInt("CONNECT_WINDOW_SECONDS", 60),

		// Matchmaking
		SkillToleranceBase:   getEnvInt("SKILL_TOLERANCE_BASE", 2),
		SkillToleranceStep:   getEnvInt("SKILL_TOLERANCE_STEP", 2),
		SkillToleranceMax:    getEnvInt("SKILL_TOLERANCE_MAX", 100),
		ToleranceWidenSecs:   getEnvInt("TOLERANCE_WIDEN_SECONDS", 10),
		PairingIntervalSecs:  getEnvInt("PAIRING_INTERVAL_SECONDS", 3),
		MaxQueueWaitSecs:     getEnvInt("MAX_QUEUE_WAIT_SECONDS", 120),
		PairingRateWindowMin: getEnvInt("PAIRING_RATE_WINDOW_MINUTES", 5),

		// Game
		RematchTimeoutSecs:       getEnvInt("REMATCH_TIMEOUT_SECONDS", 30),
		FinishedRetentionMinutes: getEnvInt("FINISHED_RETENTION_MINUTES", 10),

		// Chat
		ChatBufferCap:        getEnvInt("CHAT_BUFFER_CAP", 100),
		ChatMaxMessageLen:    getEnvInt("CHAT_MAX_MESSAGE_LEN", 500),
		TypingIdleSecs:       getEnvInt("TYPING_IDLE_SECONDS", 5),
		ChatRetentionMinutes: getEnvInt("CHAT_RETENTION_MINUTES", 60),

		// Workers
		CleanupIntervalSecs: getEnvInt("CLEANUP_INTERVAL_SECONDS", 60),

		// Admin
		AdminKeyHash: getEnv("ADMIN_KEY_HASH", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
