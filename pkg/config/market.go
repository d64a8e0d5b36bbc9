package config

import "time"

// MarketConfig holds the Alpaca credentials and endpoints
type MarketConfig struct {
	APIKey     string
	SecretKey  string
	TradingURL string
	DataURL    string
	Feed       string
	Paper      bool
	Timeout    time.Duration
}

// SECConfig holds the sec-api.io settings
type SECConfig struct {
	APIKey   string
	BaseURL  string
	CacheTTL time.Duration
	Timeout  time.Duration
}

func loadMarketConfig() MarketConfig {
	paper := getEnvBool("ALPACA_PAPER", true)
	tradingURL := "https://api.alpaca.markets"
	if paper {
		tradingURL = "https://paper-api.alpaca.markets"
	}
	return MarketConfig{
		APIKey:     getEnvFirst("", "APCA_API_KEY", "APCA_API_KEY_ID"),
		SecretKey:  getEnvFirst("", "APCA_API_SECRET", "APCA_API_SECRET_KEY"),
		TradingURL: getEnv("ALPACA_TRADING_URL", tradingURL),
		DataURL:    getEnv("ALPACA_DATA_URL", "https://data.alpaca.markets"),
		Feed:       getEnv("ALPACA_DATA_FEED", "iex"),
		Paper:      paper,
		Timeout:    getEnvDuration("ALPACA_TIMEOUT", 15*time.Second),
	}
}

func loadSECConfig() SECConfig {
	return SECConfig{
		APIKey:   getEnv("SEC_API_KEY", ""),
		BaseURL:  getEnv("SEC_API_URL", "https://api.sec-api.io"),
		CacheTTL: getEnvDuration("SEC_CACHE_TTL", 12*time.Hour),
		Timeout:  getEnvDuration("SEC_TIMEOUT", 30*time.Second),
	}
}
