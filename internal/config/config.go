package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

const (
	defaultEnginePath  = "stockfish"
	defaultHashMB      = 128
	defaultThreads     = 1
	defaultInitTimeout = 10 * time.Second
)

// ServerConfig holds all configuration values loaded from environment variables.
type ServerConfig struct {
	ServerHost  string
	ServerPort  string
	RedisURL    string
	PostgresURL string
	Token       string
	Prefork     bool
}

// LoadServerConfig loads configuration from environment variables.
// Storage is disabled when KIBITZ_REDIS_URL or KIBITZ_POSTGRES_URL is not set.
func LoadServerConfig() *ServerConfig {
	return &ServerConfig{
		ServerHost:  getEnvMust("KIBITZ_SERVER_HOST"),
		ServerPort:  getEnvMust("KIBITZ_SERVER_PORT"),
		RedisURL:    os.Getenv("KIBITZ_REDIS_URL"),
		PostgresURL: os.Getenv("KIBITZ_POSTGRES_URL"),
		Token:       getEnvMust("KIBITZ_TOKEN"),
		Prefork:     getEnvMustBool("KIBITZ_PREFORK"),
	}
}

// StorageEnabled returns whether analyses are stored.
func (c *ServerConfig) StorageEnabled() bool {
	return c.RedisURL != "" && c.PostgresURL != ""
}

// EngineConfig describes how to start and tune the UCI engine.
type EngineConfig struct {
	EnginePath  string
	HashMB      int
	Threads     int
	InitTimeout time.Duration
}

// LoadEngineConfig loads engine configuration from environment variables.
func LoadEngineConfig() *EngineConfig {
	return &EngineConfig{
		EnginePath:  getEnvDefault("KIBITZ_ENGINE_PATH", defaultEnginePath),
		HashMB:      getEnvInt("KIBITZ_ENGINE_HASH_MB", defaultHashMB),
		Threads:     getEnvInt("KIBITZ_ENGINE_THREADS", defaultThreads),
		InitTimeout: getEnvDuration("KIBITZ_ENGINE_INIT_TIMEOUT", defaultInitTimeout),
	}
}

// getEnvMust either returns the environment variable or logs a fatal error if it is not set.
func getEnvMust(key string) string {
	value := os.Getenv(key)
	if value == "" {
		slog.Error("Environment variable is not set", "key", key)
		os.Exit(1)
	}
	return value
}

func getEnvMustBool(key string) bool {
	value := getEnvMust(key)

	if value != "true" && value != "false" {
		slog.Error("Cannot load environment variable, it must be \"true\" or \"false\"", "key", key, "value", value)
		os.Exit(1)
	}

	return value == "true"
}

func getEnvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvInt returns the positive integer in the environment variable, or fallback if it is not set.
func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		slog.Error("Cannot load environment variable, it must be a positive integer", "key", key, "value", value)
		os.Exit(1)
	}

	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		slog.Error("Cannot load environment variable, it must be a positive duration", "key", key, "value", value)
		os.Exit(1)
	}

	return parsed
}
