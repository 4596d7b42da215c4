package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration
type Config struct {
	// Listener
	Port       string
	CORSOrigin string

	// Capability secrets
	OwnerKey         string
	RouteTokenSecret string

	// Gateway worker pool
	WorkerPortBase int
	WorkerPortMax  int

	// Optional Redis room directory
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Room sizing
	MaxRooms         int
	RoomCapacity     int
	ParticipantLimit int
	TickRate         int

	// Ambient
	DevelopmentMode bool
	LogLevel        string
	RateLimitWsIP   string
	OTLPEndpoint    string
}

// ValidateEnv validates all environment variables and returns a Config.
// Returns an error if any variable is present but invalid.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// PORT (default 3001)
	cfg.Port = getEnvOrDefault("PORT", "3001")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	// CORS_ORIGIN: comma-separated allowlist; "*" or empty allows all
	cfg.CORSOrigin = os.Getenv("CORS_ORIGIN")

	// OWNER_KEY: preshared secret for owner-token validation. Optional, but
	// without it no connection can claim host privileges.
	cfg.OwnerKey = os.Getenv("OWNER_KEY")
	if cfg.OwnerKey != "" && len(cfg.OwnerKey) < 8 {
		errors = append(errors, fmt.Sprintf("OWNER_KEY must be at least 8 characters (got %d)", len(cfg.OwnerKey)))
	}

	// ROUTE_TOKEN_SECRET signs one-time gateway routing tokens. Falls back to
	// a derivation of OWNER_KEY so single-secret deployments still work.
	cfg.RouteTokenSecret = os.Getenv("ROUTE_TOKEN_SECRET")
	if cfg.RouteTokenSecret == "" && cfg.OwnerKey != "" {
		cfg.RouteTokenSecret = "route:" + cfg.OwnerKey
	}

	cfg.WorkerPortBase = getEnvIntOrDefault("WORKER_PORT_BASE", 3101, &errors)
	cfg.WorkerPortMax = getEnvIntOrDefault("WORKER_PORT_MAX", 3116, &errors)
	if cfg.WorkerPortMax < cfg.WorkerPortBase {
		errors = append(errors, fmt.Sprintf("WORKER_PORT_MAX (%d) must be >= WORKER_PORT_BASE (%d)", cfg.WorkerPortMax, cfg.WorkerPortBase))
	}

	// Conditional: REDIS_ADDR (required if REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errors = append(errors, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	cfg.MaxRooms = getEnvIntOrDefault("MAX_ROOMS", 40, &errors)
	cfg.RoomCapacity = getEnvIntOrDefault("ROOM_CAPACITY", 120, &errors)
	cfg.ParticipantLimit = getEnvIntOrDefault("PARTICIPANT_LIMIT", 50, &errors)
	if cfg.ParticipantLimit > cfg.RoomCapacity {
		errors = append(errors, fmt.Sprintf("PARTICIPANT_LIMIT (%d) must be <= ROOM_CAPACITY (%d)", cfg.ParticipantLimit, cfg.RoomCapacity))
	}

	// Tick rate is capped at 33 so the interval never drops below 30ms.
	cfg.TickRate = getEnvIntOrDefault("TICK_RATE", 20, &errors)
	if cfg.TickRate < 1 || cfg.TickRate > 33 {
		errors = append(errors, fmt.Sprintf("TICK_RATE must be between 1 and 33 (got %d)", cfg.TickRate))
	}

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "60-M")
	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	return parts[0] != ""
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("Environment configuration validated")
	slog.Info("Configuration",
		"port", cfg.Port,
		"cors_origin", cfg.CORSOrigin,
		"owner_key", redactSecret(cfg.OwnerKey),
		"worker_port_base", cfg.WorkerPortBase,
		"worker_port_max", cfg.WorkerPortMax,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", cfg.RedisAddr,
		"max_rooms", cfg.MaxRooms,
		"room_capacity", cfg.RoomCapacity,
		"participant_limit", cfg.ParticipantLimit,
		"tick_rate", cfg.TickRate,
		"development_mode", cfg.DevelopmentMode,
		"log_level", cfg.LogLevel,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault parses an integer environment variable, appending to
// errs when the value is present but not a number.
func getEnvIntOrDefault(key string, defaultValue int, errs *[]string) int {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s must be an integer (got '%s')", key, value))
		return defaultValue
	}
	return n
}

// redactSecret redacts a secret by showing only the first 4 characters
func redactSecret(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	if len(secret) <= 4 {
		return "***"
	}
	return secret[:4] + "***"
}
