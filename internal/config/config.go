// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
//
// The five *Key secrets are required: the two signing keys are opaque HMAC
// secrets, the vault keys must be base64-encoded 32-byte values. Load fails
// when any of them is missing so the process never starts with a weakened
// security posture.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// TokenSigningKey is the HMAC secret for access and refresh tokens.
	TokenSigningKey string `mapstructure:"TOKEN_SIGNING_KEY"`
	// TokenIssuer is the iss claim on access and refresh tokens.
	TokenIssuer string `mapstructure:"TOKEN_ISSUER"`
	// TokenAccessTTL is the access token lifetime (e.g. "15m").
	TokenAccessTTL string `mapstructure:"TOKEN_ACCESS_TTL"`
	// TokenRefreshTTL is the refresh token lifetime (e.g. "720h").
	TokenRefreshTTL string `mapstructure:"TOKEN_REFRESH_TTL"`
	// MaxSessionsPerUser bounds the live refresh session list; the oldest
	// session is evicted and blacklisted when the bound is exceeded.
	MaxSessionsPerUser int `mapstructure:"MAX_SESSIONS_PER_USER"`

	// RFIDSigningKey is the HMAC secret for RFID card tokens. Separate from
	// TokenSigningKey so a leaked card token can never be replayed as a session.
	RFIDSigningKey string `mapstructure:"RFID_SIGNING_KEY"`

	// VaultMasterKey is the base64-encoded 32-byte outermost vault layer key.
	VaultMasterKey string `mapstructure:"VAULT_MASTER_KEY"`
	// VaultPepperKey is the base64-encoded 32-byte innermost vault layer key.
	VaultPepperKey string `mapstructure:"VAULT_PEPPER_KEY"`
	// PaymentProofKey is the passphrase for the single-layer payment-proof profile.
	PaymentProofKey string `mapstructure:"PAYMENT_PROOF_KEY"`

	// AnalysisQueueSize bounds the in-process threat-analysis queue.
	AnalysisQueueSize int `mapstructure:"ANALYSIS_QUEUE_SIZE"`

	// RateLimitRPS and RateLimitBurst shape the best-effort per-IP limiter.
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	// CORSAllowedOrigins is a comma-separated list of allowed origins for the admin surface.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	// OTLPEndpoint enables tracing when set (e.g. http://localhost:4317).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// AuditKafkaBrokers is a comma-separated broker list. When set, analysis
	// requests are published to Kafka and consumed by cmd/worker in addition to
	// the in-process queue.
	AuditKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuditKafkaTopic is the Kafka topic for analysis requests.
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the analysis worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

var requiredSecrets = []string{
	"TOKEN_SIGNING_KEY",
	"RFID_SIGNING_KEY",
	"VAULT_MASTER_KEY",
	"VAULT_PEPPER_KEY",
	"PAYMENT_PROOF_KEY",
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Every required
// secret must be present; a missing secret is a startup error, never a per-request one.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("TOKEN_ISSUER", "membership-crm")
	v.SetDefault("TOKEN_ACCESS_TTL", "15m")
	v.SetDefault("TOKEN_REFRESH_TTL", "720h") // 30d
	v.SetDefault("MAX_SESSIONS_PER_USER", 5)
	v.SetDefault("ANALYSIS_QUEUE_SIZE", 256)
	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 30)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "crm-security-events")
	v.SetDefault("KAFKA_GROUP_ID", "crm-threat-worker")
	for _, key := range requiredSecrets {
		v.SetDefault(key, "")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, fmt.Errorf("config: HTTP_ADDR must be set")
	}
	for _, key := range requiredSecrets {
		if strings.TrimSpace(v.GetString(key)) == "" {
			return nil, fmt.Errorf("config: required secret %s is not set", key)
		}
	}
	if _, err := cfg.VaultMasterKeyBytes(); err != nil {
		return nil, err
	}
	if _, err := cfg.VaultPepperKeyBytes(); err != nil {
		return nil, err
	}
	if cfg.MaxSessionsPerUser <= 0 {
		return nil, fmt.Errorf("config: MAX_SESSIONS_PER_USER must be positive")
	}
	if cfg.AnalysisQueueSize <= 0 {
		cfg.AnalysisQueueSize = 256
	}

	return &cfg, nil
}

// AccessTTL parses TokenAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.TokenAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL parses TokenRefreshTTL as a time.Duration. Returns 720h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.TokenRefreshTTL)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}

// VaultMasterKeyBytes decodes VAULT_MASTER_KEY; must be base64 of exactly 32 bytes.
func (c *Config) VaultMasterKeyBytes() ([]byte, error) {
	return decodeKey("VAULT_MASTER_KEY", c.VaultMasterKey)
}

// VaultPepperKeyBytes decodes VAULT_PEPPER_KEY; must be base64 of exactly 32 bytes.
func (c *Config) VaultPepperKeyBytes() ([]byte, error) {
	return decodeKey("VAULT_PEPPER_KEY", c.VaultPepperKey)
}

func decodeKey(name, value string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("config: %s is not valid base64: %w", name, err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("config: %s must decode to 32 bytes, got %d", name, len(b))
	}
	return b, nil
}

// KafkaBrokersList returns broker addresses from the comma-separated config.
// A non-empty list means analysis requests also flow through Kafka.
func (c *Config) KafkaBrokersList() []string {
	return splitList(c.AuditKafkaBrokers)
}

// CORSOrigins returns allowed origins from the comma-separated config.
func (c *Config) CORSOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
