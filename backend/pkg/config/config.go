package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	apperrors "branchboard/backend/pkg/errors"
)

const (
	StoreNeo4j  = "neo4j"
	StoreMemory = "memory"
)

// Config holds all application configuration
type Config struct {
	// App
	Port        string
	Env         string
	InstanceID  string
	CORSOrigins []string

	// Storage
	StoreBackend  string
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// LLM
	LLMBaseURL     string
	LLMAPIKey      string
	ModelID        string
	LLMTemperature float64
	LLMMaxTokens   int
	LLMMaxAttempts int

	// Realtime
	RedisURL          string // empty disables the cross-instance relay
	WSSendBuffer      int
	WSWriteTimeout    time.Duration
	WSMaxMessageBytes int64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8000"),
		Env:               getEnv("ENV", "development"),
		InstanceID:        getEnv("INSTANCE_ID", uuid.New().String()),
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		StoreBackend:      strings.ToLower(getEnv("STORE_BACKEND", StoreNeo4j)),
		Neo4jURI:          getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:         getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:     getEnv("NEO4J_PASSWORD", "password"),
		LLMBaseURL:        getEnv("LLM_BASE_URL", "http://localhost:4000/v1"),
		LLMAPIKey:         getEnv("LLM_API_KEY", ""),
		ModelID:           getEnv("MODEL_ID", "gemini-2.5-flash-lite"),
		LLMTemperature:    getEnvFloat("LLM_TEMPERATURE", 0.2),
		LLMMaxTokens:      getEnvInt("LLM_MAX_TOKENS", 2048),
		LLMMaxAttempts:    getEnvInt("LLM_MAX_ATTEMPTS", 1),
		RedisURL:          getEnv("REDIS_URL", ""),
		WSSendBuffer:      getEnvInt("WS_SEND_BUFFER", 256),
		WSWriteTimeout:    time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		WSMaxMessageBytes: int64(getEnvInt("WS_MAX_MESSAGE_BYTES", 512*1024)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreNeo4j:
		if c.Neo4jURI == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_URI")
		}
		if c.Neo4jUser == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_USER")
		}
		if c.Neo4jPassword == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_PASSWORD")
		}
	case StoreMemory:
	default:
		return apperrors.NewConfigValidationFailed("STORE_BACKEND", fmt.Sprintf("unknown backend %q", c.StoreBackend))
	}
	if c.ModelID == "" {
		return apperrors.NewConfigMissingRequired("MODEL_ID")
	}
	if c.LLMMaxAttempts < 1 {
		return apperrors.NewConfigValidationFailed("LLM_MAX_ATTEMPTS", "must be at least 1")
	}
	if c.WSSendBuffer < 1 {
		return apperrors.NewConfigValidationFailed("WS_SEND_BUFFER", "must be at least 1")
	}
	if c.WSWriteTimeout <= 0 {
		return apperrors.NewConfigValidationFailed("WS_WRITE_TIMEOUT_MS", "must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// RelayEnabled reports whether rooms are fanned out across instances
func (c *Config) RelayEnabled() bool {
	return c.RedisURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
