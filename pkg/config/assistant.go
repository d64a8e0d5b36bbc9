package config

import "time"

// RetrievalConfig configures 10-K chunking, indexing and search
type RetrievalConfig struct {
	ChunkSize       int
	ChunkOverlap    int
	TopK            int
	MaxContextChars int
	OptimizeQuery   bool
	VectorStore     string // "memory" or "postgres"
}

// MemoryConfig configures conversation memory and its durable log
type MemoryConfig struct {
	MaxHistory      int
	Store           string // "file", "redis" or "postgres"
	Dir             string
	RedisTTL        time.Duration
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
}

// AssistantConfig configures the turn pipeline
type AssistantConfig struct {
	MaxTickers        int
	TickerConcurrency int
	TurnTimeout       time.Duration
	TickerFallback    bool
}

// StorageConfig selects where raw filing text is cached
type StorageConfig struct {
	Mode      string // "local" or "s3"
	LocalDir  string
	S3Bucket  string
	S3Prefix  string
	AWSRegion string
}

func loadRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		ChunkSize:       getEnvInt("RETRIEVAL_CHUNK_SIZE", 1000),
		ChunkOverlap:    getEnvInt("RETRIEVAL_CHUNK_OVERLAP", 200),
		TopK:            getEnvInt("RETRIEVAL_TOP_K", 5),
		MaxContextChars: getEnvInt("RETRIEVAL_MAX_CONTEXT_CHARS", 8000),
		OptimizeQuery:   getEnvBool("RETRIEVAL_OPTIMIZE_QUERY", true),
		VectorStore:     getEnv("VECTOR_STORE", "memory"),
	}
}

func loadMemoryConfig() MemoryConfig {
	return MemoryConfig{
		MaxHistory:      getEnvInt("MEMORY_MAX_HISTORY", 10),
		Store:           getEnv("MEMORY_STORE", "file"),
		Dir:             getEnv("MEMORY_DIR", "./conversations"),
		RedisTTL:        getEnvDuration("MEMORY_REDIS_TTL", 7*24*time.Hour),
		IdleTimeout:     getEnvDuration("MEMORY_IDLE_TIMEOUT", 30*time.Minute),
		CleanupInterval: getEnvDuration("MEMORY_CLEANUP_INTERVAL", 5*time.Minute),
	}
}

func loadAssistantConfig() AssistantConfig {
	return AssistantConfig{
		MaxTickers:        getEnvInt("ASSISTANT_MAX_TICKERS", 5),
		TickerConcurrency: getEnvInt("ASSISTANT_TICKER_CONCURRENCY", 4),
		TurnTimeout:       getEnvDuration("ASSISTANT_TURN_TIMEOUT", 2*time.Minute),
		TickerFallback:    getEnvBool("ASSISTANT_TICKER_FALLBACK", true),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Mode:      getEnv("STORAGE_MODE", "local"),
		LocalDir:  getEnv("STORAGE_DIR", "./data"),
		S3Bucket:  getEnv("AWS_BUCKET", "finai-filings"),
		S3Prefix:  getEnv("AWS_PREFIX", "finai"),
		AWSRegion: getEnv("AWS_REGION", "us-east-1"),
	}
}
