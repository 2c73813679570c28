package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DataDir      string
	SessionsFile string
	BookingsFile string
	RosterFile   string
	MessagesFile string

	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	SessionTimeoutDays    int
	SessionSweepInterval  time.Duration
	SaveDebounce          time.Duration
	SaveDebounceShort     time.Duration
	SaveDebounceImmediate time.Duration
	SaveBatchCap          int

	ConflictWindow  time.Duration
	AmbiguityPolicy string
	WelcomeDelay    time.Duration
	WorkerCount     int

	WebhookRateLimit float64
	WebhookRateBurst int

	// Text classification model
	ClassifierProvider  string
	GeminiAPIKey        string
	GeminiModelID       string
	BedrockModelID      string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Telnyx transport
	TelnyxAPIKey             string
	TelnyxMessagingProfileID string
	TelnyxFromNumber         string
	TelnyxWebhookSecret      string
}

// Load reads configuration from environment variables
func Load() *Config {
	dataDir := getEnv("DATA_DIR", "./data")
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataDir:      dataDir,
		SessionsFile: getEnvAsPath("SESSIONS_FILE", dataDir, "sessions.json"),
		BookingsFile: getEnvAsPath("BOOKINGS_FILE", dataDir, "bookings.json"),
		RosterFile:   getEnvAsPath("ROSTER_FILE", dataDir, "roster.json"),
		MessagesFile: getEnv("MESSAGES_FILE", ""),

		StoreBackend:  strings.ToLower(strings.TrimSpace(getEnv("STORE_BACKEND", "file"))),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SessionTimeoutDays:    getEnvAsInt("SESSION_TIMEOUT_DAYS", 7),
		SessionSweepInterval:  getEnvAsDuration("SESSION_SWEEP_INTERVAL", time.Hour),
		SaveDebounce:          getEnvAsDuration("SAVE_DEBOUNCE", 2*time.Second),
		SaveDebounceShort:     getEnvAsDuration("SAVE_DEBOUNCE_SHORT", 500*time.Millisecond),
		SaveDebounceImmediate: getEnvAsDuration("SAVE_DEBOUNCE_IMMEDIATE", 50*time.Millisecond),
		SaveBatchCap:          getEnvAsInt("SAVE_BATCH_CAP", 20),

		ConflictWindow:  getEnvAsDuration("CONFLICT_WINDOW", 15*time.Minute),
		AmbiguityPolicy: strings.ToLower(strings.TrimSpace(getEnv("AMBIGUITY_POLICY", "positive"))),
		WelcomeDelay:    getEnvAsDuration("WELCOME_DELAY", 3*time.Second),
		WorkerCount:     getEnvAsInt("WORKER_COUNT", 4),

		WebhookRateLimit: getEnvAsFloat("WEBHOOK_RATE_LIMIT", 20),
		WebhookRateBurst: getEnvAsInt("WEBHOOK_RATE_BURST", 40),

		ClassifierProvider:  strings.ToLower(strings.TrimSpace(getEnv("CLASSIFIER_PROVIDER", "none"))),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:       getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		TelnyxAPIKey:             getEnv("TELNYX_API_KEY", ""),
		TelnyxMessagingProfileID: getEnv("TELNYX_MESSAGING_PROFILE_ID", ""),
		TelnyxFromNumber:         getEnv("TELNYX_FROM_NUMBER", ""),
		TelnyxWebhookSecret:      getEnv("TELNYX_WEBHOOK_SECRET", ""),
	}
}

// SessionTimeout converts the configured day count into a duration.
func (c *Config) SessionTimeout() time.Duration {
	if c == nil || c.SessionTimeoutDays <= 0 {
		return 0
	}
	return time.Duration(c.SessionTimeoutDays) * 24 * time.Hour
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsPath returns the variable as-is when set, otherwise name joined onto dir.
func getEnvAsPath(key, dir, name string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return filepath.Join(dir, name)
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
