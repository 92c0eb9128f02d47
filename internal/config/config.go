package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	// GitHub credential pool (comma-separated tokens)
	GitHubTokens []string

	// Storage
	StorageType string // "sqlite", "postgres" or "memory"
	SQLitePath  string
	PostgresURL string

	// API Server
	APIPort string
	APIHost string

	// Narrative generation backend
	AIEndpoint string
	AIAPIKey   string
	AIModel    string

	// Pipeline tuning
	AnalysisWindowDays     int
	RefreshIntervalHours   int
	MaxConcurrentRefreshes int
	TeamRefreshTimeoutMin  int

	// CLI
	APIEndpoint string
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	return &Config{
		GitHubTokens:           splitTokens(getEnv("GITHUB_TOKENS", "")),
		StorageType:            getEnv("STORAGE_TYPE", "sqlite"),
		SQLitePath:             getEnv("SQLITE_PATH", "./devx360.db"),
		PostgresURL:            getEnv("POSTGRES_URL", ""),
		APIPort:                getEnv("API_PORT", "8080"),
		APIHost:                getEnv("API_HOST", "localhost"),
		AIEndpoint:             getEnv("AI_ENDPOINT", ""),
		AIAPIKey:               getEnv("AI_API_KEY", ""),
		AIModel:                getEnv("AI_MODEL", "gpt-4o-mini"),
		AnalysisWindowDays:     getEnvInt("ANALYSIS_WINDOW_DAYS", 90),
		RefreshIntervalHours:   getEnvInt("REFRESH_INTERVAL_HOURS", 24),
		MaxConcurrentRefreshes: getEnvInt("MAX_CONCURRENT_REFRESHES", 5),
		TeamRefreshTimeoutMin:  getEnvInt("TEAM_REFRESH_TIMEOUT_MINUTES", 10),
		APIEndpoint:            getEnv("API_ENDPOINT", "http://localhost:8080"),
	}, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func splitTokens(s string) []string {
	var tokens []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.GitHubTokens) == 0 {
		return &ConfigError{Field: "GITHUB_TOKENS", Message: "at least one GitHub token is required"}
	}
	if c.StorageType != "sqlite" && c.StorageType != "postgres" && c.StorageType != "memory" {
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'sqlite', 'postgres' or 'memory'"}
	}
	if c.StorageType == "postgres" && c.PostgresURL == "" {
		return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
