// Package config defines the global configuration structure for the
// TippSlottet platform. Configuration is loaded once at process start and is
// immutable thereafter, following 12-Factor principles: values come from the
// OS environment, with a .env file as the local-development fallback.
//
// Any missing required value or invalid format fails the process immediately
// on startup.
package config

import (
	"time"

	"tippslottet/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"tippslottet"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	Email    EmailConfig
	Cron     CronConfig
	Security SecurityConfig

	// Build metadata injected via ldflags, not env.
	Build BuildInfo
}

// IsLocal reports whether the process runs in the local development
// environment.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// EmailConfig holds email provider credentials and outbound pacing settings.
// ResendAPIKey is optional: when unset, the process wires a logging stub
// provider instead of the real Resend client, so local development never
// sends real mail.
type EmailConfig struct {
	ResendAPIKey SecretString  `envconfig:"RESEND_API_KEY"`
	FromAddress  string        `envconfig:"EMAIL_FROM_ADDRESS" default:"varsel@tippslottet.no" validate:"email"`
	FromName     string        `envconfig:"EMAIL_FROM_NAME" default:"TippSlottet"`
	ReplyTo      string        `envconfig:"EMAIL_REPLY_TO" default:""`
	MinDelay     time.Duration `envconfig:"EMAIL_MIN_DELAY" default:"550ms"`
	// OpsRetention is how long email operation records stay in the hot table
	// before the archive job compresses them out. Default 90 days.
	OpsRetention time.Duration `envconfig:"EMAIL_OPS_RETENTION" default:"2160h"`
}

// ProviderConfigured reports whether a real email provider key is present.
func (c EmailConfig) ProviderConfigured() bool {
	return c.ResendAPIKey.Unmask() != ""
}

// From returns the configured sender identity.
func (c EmailConfig) From() types.EmailAddress {
	return types.EmailAddress{Address: c.FromAddress, Name: c.FromName}
}

// CronConfig holds the shared secret authenticating scheduled-job triggers.
type CronConfig struct {
	Secret SecretString `envconfig:"CRON_SECRET" validate:"required,min=16"`
}

// SecurityConfig holds admin access and CORS settings. AdminAPIKeyHash is the
// bcrypt hash of the admin API key; the plaintext key never touches the
// environment of the running service.
type SecurityConfig struct {
	AdminAPIKeyHash    SecretString `envconfig:"ADMIN_API_KEY_HASH" validate:"required"`
	WhitelistEnabled   bool         `envconfig:"WHITELIST_ENABLED" default:"true"`
	CorsAllowedOrigins []string     `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// BuildInfo holds build-time metadata injected via ldflags. These values are
// NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
