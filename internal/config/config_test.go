package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeEnv(values map[string]string) EnvReader {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestValidateEnvDefaults(t *testing.T) {
	cfg, err := ValidateEnv(fakeEnv(nil))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StorageBackendMemory, cfg.StorageBackend)
	assert.Equal(t, 1000, cfg.MaxRooms)
	assert.Equal(t, 24*time.Hour, cfg.DefaultRoomTTL)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
}

func TestValidateEnvInvalidPort(t *testing.T) {
	_, err := ValidateEnv(fakeEnv(map[string]string{"PORT": "not-a-port"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
}

func TestValidateEnvRedisRequiresValidAddr(t *testing.T) {
	_, err := ValidateEnv(fakeEnv(map[string]string{
		"STORAGE_BACKEND": "redis",
		"REDIS_ADDR":      "not-valid",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_ADDR")
}

func TestValidateEnvRedisDefaultsAddr(t *testing.T) {
	cfg, err := ValidateEnv(fakeEnv(map[string]string{"STORAGE_BACKEND": "redis"}))
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestValidateEnvUnknownBackend(t *testing.T) {
	_, err := ValidateEnv(fakeEnv(map[string]string{"STORAGE_BACKEND": "postgres"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_BACKEND")
}

func TestValidateEnvAggregatesMultipleErrors(t *testing.T) {
	_, err := ValidateEnv(fakeEnv(map[string]string{
		"PORT":            "0",
		"STORAGE_BACKEND": "bogus",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "STORAGE_BACKEND")
}

func TestValidateEnvCustomTTLMs(t *testing.T) {
	cfg, err := ValidateEnv(fakeEnv(map[string]string{"DEFAULT_ROOM_TTL_MS": "5000"}))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.DefaultRoomTTL)
}
