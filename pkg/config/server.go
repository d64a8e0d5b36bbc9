package config

import "time"

type ServerConfig struct {
	Port            int
	Environment     string
	LogLevel        string
	LogFile         string
	BaseURL         string
	CORSOrigins     []string
	BodyLimit       int
	ShutdownTimeout time.Duration
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port:            getEnvInt("SERVER_PORT", 8000),
		Environment:     getEnv("ENVIRONMENT", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFile:         getEnv("LOG_FILE", ""),
		BaseURL:         getEnv("BASE_URL", "http://localhost:8000"),
		CORSOrigins:     getEnvStringSlice("CORS_ORIGINS", []string{"*"}),
		BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 64*1024),
		ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}
