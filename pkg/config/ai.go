package config

import "time"

// LLMConfig configures the chat model used for classification, search-query
// rewriting and answer generation. Any OpenAI-compatible endpoint works.
type LLMConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	ClassifierModel string
	Temperature     float64
	MaxTokens       int
	Timeout         time.Duration
}

// EmbeddingConfig configures the embedding endpoint used for 10-K retrieval
type EmbeddingConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	BatchSize  int
}

func loadLLMConfig() LLMConfig {
	model := getEnv("LLM_MODEL", "deepseek-chat")
	return LLMConfig{
		APIKey:          getEnvFirst("", "LLM_API_KEY", "DEEPSEEK_API_KEY", "OPENAI_API_KEY"),
		BaseURL:         getEnv("LLM_BASE_URL", "https://api.deepseek.com/v1"),
		Model:           model,
		ClassifierModel: getEnv("LLM_CLASSIFIER_MODEL", model),
		Temperature:     getEnvFloat("LLM_TEMPERATURE", 0),
		MaxTokens:       getEnvInt("LLM_MAX_TOKENS", 0),
		Timeout:         getEnvDuration("LLM_TIMEOUT", 60*time.Second),
	}
}

func loadEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		APIKey:     getEnvFirst("", "EMBEDDING_API_KEY", "OPENAI_API_KEY"),
		BaseURL:    getEnv("EMBEDDING_BASE_URL", "https://api.openai.com/v1"),
		Model:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		BatchSize:  getEnvInt("EMBEDDING_BATCH_SIZE", 64),
	}
}
