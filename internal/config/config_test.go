package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/engine"
)

var allKeys = []string{
	"SV_HTTP_PORT", "SV_GRPC_PORT", "SV_LOG_LEVEL", "SV_MODE",
	"SV_SCAN_TIMEOUT_MS", "SV_CACHE_TTL_S", "SV_CACHE_SIZE",
	"SV_BLOCK_THRESHOLD", "SV_REVIEW_THRESHOLD", "SV_WARN_THRESHOLD",
	"SV_RULES_DIR", "SV_AUTH", "SV_API_KEY_HASH", "SV_AUTH_CACHE_TTL_S", "SV_CORS_ORIGINS",
	"SV_TOOL_CACHE_TTL_S", "SV_TOOL_CALL_RETENTION_H", "POSTGRES_DSN", "CLICKHOUSE_DSN",
	"SV_REVIEW_ENABLED", "SV_REVIEW_ENDPOINT", "SV_REVIEW_API_KEY", "SV_REVIEW_MODEL",
	"SV_REVIEW_TIMEOUT_MS", "SV_REVIEW_MAX_RETRIES", "SV_REVIEW_RPS",
}

// clearEnv blanks every key so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8741", cfg.HTTPPort)
	assert.Equal(t, ModeMonitor, cfg.Mode)
	assert.False(t, cfg.FailClosed())
	assert.Equal(t, engine.DefaultScanTimeout, cfg.ScanTimeout)
	assert.Equal(t, engine.DefaultCacheTTL, cfg.CacheTTL)
	assert.Equal(t, engine.DefaultCacheSize, cfg.CacheSize)
	assert.Equal(t, engine.DefaultThresholds(), cfg.Thresholds)
	assert.Equal(t, AuthNone, cfg.Auth)
	assert.Equal(t, 30*time.Second, cfg.ToolCacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.ToolCallRetention)
	assert.False(t, cfg.Review.Enabled)
	assert.Empty(t, cfg.PostgresDSN)
	assert.Empty(t, cfg.CORSOrigins)
}

func TestLoad_CORSOrigins(t *testing.T) {
	clearEnv(t)
	t.Setenv("SV_CORS_ORIGINS", " http://localhost:3000 ,,https://console.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:3000", "https://console.example.com"}, cfg.CORSOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SV_MODE", "BLOCK")
	t.Setenv("SV_SCAN_TIMEOUT_MS", "250")
	t.Setenv("SV_CACHE_TTL_S", "60")
	t.Setenv("SV_BLOCK_THRESHOLD", "90")
	t.Setenv("SV_REVIEW_ENABLED", "true")
	t.Setenv("SV_REVIEW_ENDPOINT", "http://localhost:11434/v1")
	t.Setenv("SV_REVIEW_RPS", "2.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.FailClosed())
	assert.Equal(t, 250*time.Millisecond, cfg.ScanTimeout)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.Equal(t, 90, cfg.Thresholds.Block)
	assert.True(t, cfg.Review.Enabled)
	assert.InDelta(t, 2.5, cfg.Review.RequestsPerSecond, 1e-9)
}

func TestLoad_UnparseableFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("SV_CACHE_SIZE", "lots")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultCacheSize, cfg.CacheSize)
}

func TestLoad_StaticHashImpliesStaticAuth(t *testing.T) {
	clearEnv(t)
	t.Setenv("SV_API_KEY_HASH", "$2a$10$abc")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, AuthStatic, cfg.Auth)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad mode", map[string]string{"SV_MODE": "panic"}},
		{"unordered thresholds", map[string]string{"SV_WARN_THRESHOLD": "80", "SV_REVIEW_THRESHOLD": "70"}},
		{"static without hash", map[string]string{"SV_AUTH": "static"}},
		{"store without postgres", map[string]string{"SV_AUTH": "store"}},
		{"unknown auth", map[string]string{"SV_AUTH": "ldap"}},
		{"review without endpoint", map[string]string{"SV_REVIEW_ENABLED": "1"}},
		{"zero timeout", map[string]string{"SV_SCAN_TIMEOUT_MS": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
