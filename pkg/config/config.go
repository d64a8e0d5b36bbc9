package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	LLM         LLMConfig
	Embedding   EmbeddingConfig
	Market      MarketConfig
	SEC         SECConfig
	Retrieval   RetrievalConfig
	Memory      MemoryConfig
	Assistant   AssistantConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Storage     StorageConfig
	Environment Environment
}

type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentStaging     Environment = "staging"
	EnvironmentProduction  Environment = "production"
)

func (c Config) IsDevelopment() bool {
	return c.Environment == EnvironmentDevelopment
}
func (c Config) IsStaging() bool {
	return c.Environment == EnvironmentStaging
}
func (c Config) IsProd() bool {
	return c.Environment == EnvironmentProduction
}

func loadEnvironment() Environment {
	env := getEnv("ENVIRONMENT", "development")
	switch strings.ToLower(env) {
	case "production":
		return EnvironmentProduction
	case "staging":
		return EnvironmentStaging
	default:
		return EnvironmentDevelopment
	}
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present; real env vars win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{
		Server:      loadServerConfig(),
		LLM:         loadLLMConfig(),
		Embedding:   loadEmbeddingConfig(),
		Market:      loadMarketConfig(),
		SEC:         loadSECConfig(),
		Retrieval:   loadRetrievalConfig(),
		Memory:      loadMemoryConfig(),
		Assistant:   loadAssistantConfig(),
		Database:    loadDatabaseConfig(),
		Redis:       loadRedisConfig(),
		Storage:     loadStorageConfig(),
		Environment: loadEnvironment(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY (or DEEPSEEK_API_KEY / OPENAI_API_KEY) is required")
	}
	if c.Memory.MaxHistory < 1 {
		return fmt.Errorf("MEMORY_MAX_HISTORY must be at least 1")
	}
	if c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("RETRIEVAL_CHUNK_OVERLAP must be smaller than RETRIEVAL_CHUNK_SIZE")
	}
	switch c.Memory.Store {
	case "file", "redis", "postgres":
	default:
		return fmt.Errorf("unknown MEMORY_STORE %q (use file, redis or postgres)", c.Memory.Store)
	}
	switch c.Retrieval.VectorStore {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown VECTOR_STORE %q (use memory or postgres)", c.Retrieval.VectorStore)
	}
	switch c.Storage.Mode {
	case "local", "s3":
	default:
		return fmt.Errorf("unknown STORAGE_MODE %q (use local or s3)", c.Storage.Mode)
	}
	return nil
}

// NeedsDatabase reports whether any component is backed by Postgres
func (c *Config) NeedsDatabase() bool {
	return c.Memory.Store == "postgres" || c.Retrieval.VectorStore == "postgres"
}

// NeedsRedis reports whether any component is backed by Redis
func (c *Config) NeedsRedis() bool {
	return c.Memory.Store == "redis"
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFirst returns the first non-empty variable among keys
func getEnvFirst(defaultValue string, keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
