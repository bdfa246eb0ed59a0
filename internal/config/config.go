// Package config provides the configuration schema, loading, and
// validation for Warden Gate. Configuration comes from a YAML file with
// environment variable overrides.
package config

import "time"

// Config is the top-level configuration.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Database configures the SQLite file backing keys, tenant limits,
	// and the audit trail.
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Auth configures credential verification.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// HMAC configures the request signing requirement.
	HMAC HMACConfig `yaml:"hmac" mapstructure:"hmac"`

	// RateLimit configures the default token bucket.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Providers configures the language-model provider chain.
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the listen address, e.g. ":8087".
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"required"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// ShutdownTimeout bounds graceful shutdown, e.g. "10s".
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"omitempty,duration"`

	// TenantHeader names the header used as the rate-limit identity for
	// unauthenticated requests, e.g. "X-Tenant-ID".
	TenantHeader string `yaml:"tenant_header" mapstructure:"tenant_header"`

	// PIDFile is where the start command records its pid.
	PIDFile string `yaml:"pid_file" mapstructure:"pid_file"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	// Path is the database file, e.g. "warden-gate.db".
	Path string `yaml:"path" mapstructure:"path" validate:"required"`

	// BusyTimeout is how long to wait for locks, e.g. "5s".
	BusyTimeout string `yaml:"busy_timeout" mapstructure:"busy_timeout" validate:"omitempty,duration"`

	// AuditRetentionDays is how long audit rows are kept. Negative
	// disables the sweep.
	AuditRetentionDays int `yaml:"audit_retention_days" mapstructure:"audit_retention_days"`
}

// AuthConfig configures credential verification.
type AuthConfig struct {
	// HashScheme selects the password hash: argon2id or pbkdf2.
	HashScheme string `yaml:"hash_scheme" mapstructure:"hash_scheme" validate:"omitempty,oneof=argon2id pbkdf2"`

	// StaticAPIKey is an optional bootstrap secret granting the admin
	// role, compared in constant time. Empty disables it.
	StaticAPIKey string `yaml:"static_api_key" mapstructure:"static_api_key"`

	// JWT configures bearer-token verification. Empty keys disable JWTs.
	JWT JWTConfig `yaml:"jwt" mapstructure:"jwt"`
}

// JWTConfig configures the token verifier.
type JWTConfig struct {
	// Issuer, when set, must match the iss claim.
	Issuer string `yaml:"issuer" mapstructure:"issuer"`

	// Audience, when set, must match the aud claim.
	Audience string `yaml:"audience" mapstructure:"audience"`

	// Keys maps key ids to verification material: PEM public keys
	// verify RS256, anything else is an HS256 shared secret.
	Keys []JWTKeyConfig `yaml:"keys" mapstructure:"keys" validate:"omitempty,dive"`
}

// JWTKeyConfig is one entry in the kid registry.
type JWTKeyConfig struct {
	KID      string `yaml:"kid" mapstructure:"kid" validate:"required"`
	Material string `yaml:"material" mapstructure:"material" validate:"required"`
}

// HMACConfig configures the replay guard.
type HMACConfig struct {
	// Required demands signature headers on every API-key request.
	Required bool `yaml:"required" mapstructure:"required"`

	// Window is the accepted timestamp skew, e.g. "300s".
	Window string `yaml:"window" mapstructure:"window" validate:"omitempty,duration"`
}

// RateLimitConfig configures the default bucket. Per-tenant overrides
// live in the database.
type RateLimitConfig struct {
	Capacity   float64 `yaml:"capacity" mapstructure:"capacity" validate:"gt=0"`
	RefillRate float64 `yaml:"refill_rate" mapstructure:"refill_rate" validate:"gt=0"`
}

// ProvidersConfig configures the provider chain.
type ProvidersConfig struct {
	// Primary selects chain order: the other provider is the fallback.
	Primary string `yaml:"primary" mapstructure:"primary" validate:"omitempty,oneof=openrouter local-inference"`

	// Retries is the number of extra attempts per provider.
	Retries int `yaml:"retries" mapstructure:"retries" validate:"gte=0,lte=10"`

	// Timeout bounds one provider attempt, e.g. "20s".
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`

	OpenRouter     OpenRouterConfig     `yaml:"openrouter" mapstructure:"openrouter"`
	LocalInference LocalInferenceConfig `yaml:"local_inference" mapstructure:"local_inference"`
}

// OpenRouterConfig configures the OpenRouter provider.
type OpenRouterConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	Model   string `yaml:"model" mapstructure:"model"`
	Referer string `yaml:"referer" mapstructure:"referer"`
	Title   string `yaml:"title" mapstructure:"title"`
}

// LocalInferenceConfig configures the local inference provider.
type LocalInferenceConfig struct {
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey   string `yaml:"api_key" mapstructure:"api_key"`
}

// SetDefaults fills in defaults for optional fields.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8087"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Server.TenantHeader == "" {
		c.Server.TenantHeader = "X-Tenant-ID"
	}
	if c.Server.PIDFile == "" {
		c.Server.PIDFile = "warden-gate.pid"
	}
	if c.Database.Path == "" {
		c.Database.Path = "warden-gate.db"
	}
	if c.Database.BusyTimeout == "" {
		c.Database.BusyTimeout = "5s"
	}
	if c.Database.AuditRetentionDays == 0 {
		c.Database.AuditRetentionDays = 90
	}
	if c.Auth.HashScheme == "" {
		c.Auth.HashScheme = "argon2id"
	}
	if c.HMAC.Window == "" {
		c.HMAC.Window = "300s"
	}
	if c.RateLimit.Capacity == 0 {
		c.RateLimit.Capacity = 60
	}
	if c.RateLimit.RefillRate == 0 {
		c.RateLimit.RefillRate = 1
	}
	if c.Providers.Primary == "" {
		c.Providers.Primary = "openrouter"
	}
	if c.Providers.Retries == 0 {
		c.Providers.Retries = 2
	}
	if c.Providers.Timeout == "" {
		c.Providers.Timeout = "20s"
	}
}

// Duration parses a duration field that has already passed validation.
// Invalid or empty values return the fallback.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
