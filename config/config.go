// Package config provides application configuration management.
package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	ServerPort      string
	PromptMaxLength int

	// Agent upstream
	AgentURL     string
	AgentToken   string
	AgentTimeout time.Duration

	// Persistence
	StatePath       string
	DataStoreDriver string
	DataStoreDSN    string

	// Redis / events configuration
	RedisURL         string
	RedisAddr        string
	RedisUsername    string
	RedisPassword    string
	RedisDB          int
	RedisTLSEnabled  bool
	RedisTLSInsecure bool
	EventsChannel    string
	RedisSyncStream  string
	RedisSyncGroup   string
	FileCacheTTL     time.Duration

	// Sync jobs
	SyncMaxAttempts int
	SyncTimeout     time.Duration

	// Artifact archive (S3-compatible)
	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveBucket    string
	ArchiveUseSSL    bool

	// Tokens
	APIToken    string
	GitHubToken string
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	statePath := getEnv("STATE_PATH", "/app/state")
	dataStoreDriver := getEnv("DATASTORE_DRIVER", "sqlite")
	dataStoreDSN := getEnv("DATASTORE_DSN", "")
	if dataStoreDSN == "" && dataStoreDriver == "postgres" {
		dataStoreDSN = os.Getenv("POSTGRES_DSN")
	}
	if dataStoreDSN == "" {
		dataStoreDSN = filepath.Join(statePath, "lockin.db")
	}
	return &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		PromptMaxLength:  getEnvInt("PROMPT_MAX_LENGTH", 8000),
		AgentURL:         strings.TrimRight(getEnv("AGENT_URL", "http://localhost:8000"), "/"),
		AgentToken:       os.Getenv("AGENT_TOKEN"),
		AgentTimeout:     getEnvDuration("AGENT_TIMEOUT", 30*time.Second),
		StatePath:        statePath,
		DataStoreDriver:  dataStoreDriver,
		DataStoreDSN:     dataStoreDSN,
		RedisURL:         os.Getenv("REDIS_URL"),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisUsername:    getEnv("REDIS_USERNAME", ""),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		RedisTLSEnabled:  getEnvBool("REDIS_TLS_ENABLED", false),
		RedisTLSInsecure: getEnvBool("REDIS_TLS_INSECURE_SKIP_VERIFY", false),
		EventsChannel:    getEnv("EVENTS_CHANNEL", "lockin-events"),
		RedisSyncStream:  getEnv("REDIS_SYNC_STREAM", "lockin:sync"),
		RedisSyncGroup:   getEnv("REDIS_SYNC_GROUP", "sync-workers"),
		FileCacheTTL:     getEnvDuration("FILE_CACHE_TTL", 10*time.Minute),
		SyncMaxAttempts:  getEnvInt("SYNC_MAX_ATTEMPTS", 3),
		SyncTimeout:      getEnvDuration("SYNC_TIMEOUT", 5*time.Minute),
		ArchiveEndpoint:  getEnv("ARCHIVE_ENDPOINT", ""),
		ArchiveAccessKey: os.Getenv("ARCHIVE_ACCESS_KEY"),
		ArchiveSecretKey: os.Getenv("ARCHIVE_SECRET_KEY"),
		ArchiveBucket:    getEnv("ARCHIVE_BUCKET", "lockin-sessions"),
		ArchiveUseSSL:    getEnvBool("ARCHIVE_USE_SSL", false),
		APIToken:         os.Getenv("LOCKIN_API_TOKEN"),
		GitHubToken:      os.Getenv("GITHUB_TOKEN"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Invalid duration for %s: %s, using default %s", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
		log.Printf("Invalid int for %s: %s, using default %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "y":
			return true
		case "0", "false", "no", "n":
			return false
		default:
			log.Printf("Invalid bool for %s: %s, using default %t", key, value, defaultValue)
		}
	}
	return defaultValue
}
