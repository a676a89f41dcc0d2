// Package config validates Bonfire's process environment at startup,
// failing fast with every validation error aggregated into one message
// rather than stopping at the first.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// StorageBackend selects which Storage adapter bootstrap wires up.
type StorageBackend string

const (
	StorageBackendMemory StorageBackend = "memory"
	StorageBackendRedis  StorageBackend = "redis"
)

// Config holds validated environment configuration for the Bonfire server.
type Config struct {
	Port           string
	AdminAPIKey    string
	AllowedOrigins []string

	StorageBackend StorageBackend
	RedisAddr      string
	RedisPassword  string

	DefaultRoomTTL  time.Duration
	MaxRooms        int
	CleanupInterval time.Duration

	RateLimitWsIP   string
	RateLimitAdmin  string

	LogLevel    string
	GoEnv       string
	Development bool
}

// EnvReader abstracts process environment lookups so tests can supply a
// fake environment without mutating the real process.
type EnvReader func(key string) (string, bool)

// FromEnviron reads from the real process environment via os.LookupEnv.
func FromEnviron() EnvReader {
	return os.LookupEnv
}

// ValidateEnv validates environment variables via read and returns a Config,
// or an aggregated error describing every problem found.
func ValidateEnv(read EnvReader) (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.Port = getEnvOrDefault(read, "PORT", "8080")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got %q)", cfg.Port))
	}

	cfg.AdminAPIKey, _ = read("ADMIN_API_KEY")

	originsRaw := getEnvOrDefault(read, "ALLOWED_ORIGINS", "http://localhost:3000")
	for _, o := range strings.Split(originsRaw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	backend := getEnvOrDefault(read, "STORAGE_BACKEND", "memory")
	switch StorageBackend(backend) {
	case StorageBackendMemory, StorageBackendRedis:
		cfg.StorageBackend = StorageBackend(backend)
	default:
		errs = append(errs, fmt.Sprintf("STORAGE_BACKEND must be %q or %q (got %q)", StorageBackendMemory, StorageBackendRedis, backend))
	}

	if cfg.StorageBackend == StorageBackendRedis {
		cfg.RedisAddr = getEnvOrDefault(read, "REDIS_ADDR", "localhost:6379")
		if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got %q)", cfg.RedisAddr))
		}
		cfg.RedisPassword, _ = read("REDIS_PASSWORD")
	}

	cfg.DefaultRoomTTL = getDurationMsOrDefault(read, &errs, "DEFAULT_ROOM_TTL_MS", 24*time.Hour)
	cfg.CleanupInterval = getDurationMsOrDefault(read, &errs, "CLEANUP_INTERVAL_MS", time.Hour)

	cfg.MaxRooms = 1000
	if raw, ok := read("MAX_ROOMS"); ok && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Sprintf("MAX_ROOMS must be a positive integer (got %q)", raw))
		} else {
			cfg.MaxRooms = n
		}
	}

	cfg.RateLimitWsIP = getEnvOrDefault(read, "RATE_LIMIT_WS_IP", "100-M")
	cfg.RateLimitAdmin = getEnvOrDefault(read, "RATE_LIMIT_ADMIN", "60-M")

	cfg.LogLevel = getEnvOrDefault(read, "LOG_LEVEL", "info")
	cfg.GoEnv = getEnvOrDefault(read, "GO_ENV", "production")
	cfg.Development = cfg.GoEnv != "production"

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

func getDurationMsOrDefault(read EnvReader, errs *[]string, key string, def time.Duration) time.Duration {
	raw, ok := read(key)
	if !ok || raw == "" {
		return def
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s must be a positive integer of milliseconds (got %q)", key, raw))
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 || parts[0] == "" {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	return err == nil && port >= 1 && port <= 65535
}

func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated",
		"port", cfg.Port,
		"storage_backend", cfg.StorageBackend,
		"redis_addr", cfg.RedisAddr,
		"max_rooms", cfg.MaxRooms,
		"default_room_ttl", cfg.DefaultRoomTTL,
		"cleanup_interval", cfg.CleanupInterval,
		"admin_api_key", redactSecret(cfg.AdminAPIKey),
		"go_env", cfg.GoEnv,
	)
}

func getEnvOrDefault(read EnvReader, key, def string) string {
	if v, ok := read(key); ok && v != "" {
		return v
	}
	return def
}

func redactSecret(secret string) string {
	if len(secret) == 0 {
		return "(unset)"
	}
	if len(secret) <= 4 {
		return "***"
	}
	return secret[:4] + "***"
}
