package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Dispatch modes for inbound webhook batches.
const (
	DispatchInline = "inline"
	DispatchMemory = "memory"
	DispatchSQS    = "sqs"
)

// Settings sources.
const (
	SettingsSourceMaven = "maven"
	SettingsSourceSSM   = "ssm"
	SettingsSourceEnv   = "env"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	// Scope used by the unscoped /webhook route.
	DefaultOrganizationID string
	DefaultAgentID        string

	// Maven AGI backend
	MavenBaseURL        string
	MavenAppID          string
	MavenAppSecret      string
	MavenAppSecretParam string

	// Messenger / Graph API
	GraphAPIBase         string
	MessengerVerifyToken string
	MessengerPageToken   string
	MessengerAppSecret   string
	ConversationTags     string

	// Settings resolution
	SettingsSource      string
	SettingsParamPrefix string
	SettingsCacheTTL    time.Duration

	// Turn processing
	TypingInterval   time.Duration
	TurnTimeout      time.Duration
	BatchConcurrency int
	FallbackReply    string
	DispatchMode     string
	WorkerCount      int
	RelayQueueURL    string
	TurnsTable       string

	// Storage
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DefaultOrganizationID: getEnv("DEFAULT_ORGANIZATION_ID", "maveninternal"),
		DefaultAgentID:        getEnv("DEFAULT_AGENT_ID", "help"),

		MavenBaseURL:        getEnv("MAVENAGI_BASE_URL", "https://www.mavenagi-apis.com"),
		MavenAppID:          getEnv("MAVENAGI_APP_ID", ""),
		MavenAppSecret:      getEnv("MAVENAGI_APP_SECRET", ""),
		MavenAppSecretParam: getEnv("MAVENAGI_APP_SECRET_PARAM", ""),

		GraphAPIBase:         getEnv("GRAPH_API_BASE", "https://graph.facebook.com/v12.0"),
		MessengerVerifyToken: getEnv("MESSENGER_VERIFY_TOKEN", ""),
		MessengerPageToken:   getEnv("MESSENGER_PAGE_ACCESS_TOKEN", ""),
		MessengerAppSecret:   getEnv("MESSENGER_APP_SECRET", ""),
		ConversationTags:     getEnv("CONVERSATION_TAGS", ""),
		SettingsSource:       strings.ToLower(strings.TrimSpace(getEnv("SETTINGS_SOURCE", SettingsSourceMaven))),
		SettingsParamPrefix:  getEnv("SETTINGS_PARAM_PREFIX", "/messenger-relay/settings"),
		SettingsCacheTTL:     getEnvAsDuration("SETTINGS_CACHE_TTL", 5*time.Minute),
		TypingInterval:       getEnvAsDuration("TYPING_INTERVAL", 3*time.Second),
		TurnTimeout:          getEnvAsDuration("TURN_TIMEOUT", 900*time.Second),
		BatchConcurrency:     getEnvAsInt("BATCH_CONCURRENCY", 4),
		FallbackReply:        getEnv("FALLBACK_REPLY", "I'm sorry, I am having trouble answering questions right now."),
		DispatchMode:         strings.ToLower(strings.TrimSpace(getEnv("DISPATCH_MODE", DispatchInline))),
		WorkerCount:          getEnvAsInt("WORKER_COUNT", 2),
		RelayQueueURL:        getEnv("RELAY_QUEUE_URL", ""),
		TurnsTable:           getEnv("TURNS_TABLE", ""),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisTLS:             getEnvAsBool("REDIS_TLS", false),
		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// NeedsAWS reports whether any configured component talks to AWS.
func (c *Config) NeedsAWS() bool {
	return c.SettingsSource == SettingsSourceSSM ||
		c.MavenAppSecretParam != "" ||
		c.DispatchMode == DispatchSQS ||
		c.TurnsTable != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
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
