package config

import "time"

// ConsoleConfig holds runtime configuration for the console service.
type ConsoleConfig struct {
	Environment        string
	Addr               string
	DeployAPIURL       string
	LogLevel           string
	ShutdownTimeout    time.Duration
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// LoadConsoleConfig constructs a ConsoleConfig from environment variables.
func LoadConsoleConfig() ConsoleConfig {
	return ConsoleConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("CONSOLE_ADDR", ":8090"),
		DeployAPIURL:       GetString("DEPLOY_API_URL", "http://localhost:7100"),
		LogLevel:           GetString("LOG_LEVEL", "info"),
		ShutdownTimeout:    time.Duration(GetInt("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
