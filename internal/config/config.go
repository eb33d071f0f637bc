// Package config reads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/engine"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/review"
)

// Mode controls what happens when a scan cannot complete.
type Mode string

const (
	// ModeBlock fails closed: an unfinished scan is reported as a block.
	ModeBlock Mode = "block"
	// ModeMonitor fails open: an unfinished scan is reported as allowed.
	ModeMonitor Mode = "monitor"
)

// AuthMode selects how /v1 callers are authenticated.
type AuthMode string

const (
	AuthNone   AuthMode = "none"
	AuthStatic AuthMode = "static" // one key, bcrypt hash in SV_API_KEY_HASH
	AuthStore  AuthMode = "store"  // keys in the api_keys table
)

// Config is the full server configuration.
type Config struct {
	HTTPPort string
	GRPCPort string
	LogLevel string
	Mode     Mode

	ScanTimeout time.Duration
	CacheTTL    time.Duration
	CacheSize   int
	Thresholds  engine.Thresholds
	RulesDir    string

	Auth         AuthMode
	APIKeyHash   string
	AuthCacheTTL time.Duration
	CORSOrigins  []string

	ToolCacheTTL      time.Duration
	ToolCallRetention time.Duration

	PostgresDSN   string
	ClickHouseDSN string

	Review review.Config
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	th := engine.DefaultThresholds()
	cfg := Config{
		HTTPPort: envOrDefault("SV_HTTP_PORT", "8741"),
		GRPCPort: envOrDefault("SV_GRPC_PORT", "8742"),
		LogLevel: envOrDefault("SV_LOG_LEVEL", "info"),
		Mode:     Mode(strings.ToLower(envOrDefault("SV_MODE", string(ModeMonitor)))),

		ScanTimeout: envOrDefaultMillis("SV_SCAN_TIMEOUT_MS", engine.DefaultScanTimeout),
		CacheTTL:    envOrDefaultSeconds("SV_CACHE_TTL_S", engine.DefaultCacheTTL),
		CacheSize:   envOrDefaultInt("SV_CACHE_SIZE", engine.DefaultCacheSize),
		Thresholds: engine.Thresholds{
			Block:  envOrDefaultInt("SV_BLOCK_THRESHOLD", th.Block),
			Review: envOrDefaultInt("SV_REVIEW_THRESHOLD", th.Review),
			Warn:   envOrDefaultInt("SV_WARN_THRESHOLD", th.Warn),
		},
		RulesDir: os.Getenv("SV_RULES_DIR"),

		Auth:         AuthMode(strings.ToLower(envOrDefault("SV_AUTH", string(AuthNone)))),
		APIKeyHash:   os.Getenv("SV_API_KEY_HASH"),
		AuthCacheTTL: envOrDefaultSeconds("SV_AUTH_CACHE_TTL_S", 30*time.Second),
		CORSOrigins:  envList("SV_CORS_ORIGINS"),

		ToolCacheTTL:      envOrDefaultSeconds("SV_TOOL_CACHE_TTL_S", 30*time.Second),
		ToolCallRetention: time.Duration(envOrDefaultInt("SV_TOOL_CALL_RETENTION_H", 24)) * time.Hour,

		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		ClickHouseDSN: os.Getenv("CLICKHOUSE_DSN"),

		Review: review.Config{
			Enabled:           envOrDefaultBool("SV_REVIEW_ENABLED", false),
			Endpoint:          os.Getenv("SV_REVIEW_ENDPOINT"),
			APIKey:            os.Getenv("SV_REVIEW_API_KEY"),
			Model:             os.Getenv("SV_REVIEW_MODEL"),
			Timeout:           envOrDefaultMillis("SV_REVIEW_TIMEOUT_MS", 0),
			MaxRetries:        envOrDefaultInt("SV_REVIEW_MAX_RETRIES", 2),
			RequestsPerSecond: envOrDefaultFloat("SV_REVIEW_RPS", 0),
		},
	}
	// An explicit static hash implies static auth.
	if os.Getenv("SV_AUTH") == "" && cfg.APIKeyHash != "" {
		cfg.Auth = AuthStatic
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeBlock, ModeMonitor:
	default:
		return fmt.Errorf("config: SV_MODE must be block or monitor, got %q", c.Mode)
	}
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Auth {
	case AuthNone:
	case AuthStatic:
		if c.APIKeyHash == "" {
			return fmt.Errorf("config: SV_AUTH=static requires SV_API_KEY_HASH")
		}
	case AuthStore:
		if c.PostgresDSN == "" {
			return fmt.Errorf("config: SV_AUTH=store requires POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("config: SV_AUTH must be none, static or store, got %q", c.Auth)
	}
	if c.Review.Enabled && c.Review.Endpoint == "" {
		return fmt.Errorf("config: SV_REVIEW_ENABLED requires SV_REVIEW_ENDPOINT")
	}
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("config: SV_SCAN_TIMEOUT_MS must be positive")
	}
	return nil
}

// FailClosed reports whether unfinished scans should block.
func (c Config) FailClosed() bool { return c.Mode == ModeBlock }

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// envList splits a comma-separated value, dropping blanks.
func envList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envOrDefaultFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envOrDefaultMillis(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i) * time.Millisecond
		}
	}
	return defaultVal
}

func envOrDefaultSeconds(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return defaultVal
}
