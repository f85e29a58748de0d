package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for sheetsmith-engine.
// Values come from config.yaml with environment variable overrides.
// Secrets (passwords, keys) only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443" validate:"required,numeric"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	Version  string `yaml:"-"`

	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	LLM       LLMConfig       `yaml:"llm"`
	Storage   StorageConfig   `yaml:"storage"`
	Upload    UploadConfig    `yaml:"upload"`
	Jobs      JobsConfig      `yaml:"jobs"`
}

// AuthConfig holds token verification and chat-session cookie settings.
type AuthConfig struct {
	// EnableVerification=false accepts unsigned tokens; local development only.
	EnableVerification bool   `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`
	JWKSURL            string `yaml:"jwks_url" env:"JWKS_URL" env-default:""`
	HMACSecret         string `yaml:"-" env:"JWT_HMAC_SECRET"`
	SessionSecret      string `yaml:"-" env:"SESSION_SECRET" env-default:"dev-session-secret"`
	SecureCookies      bool   `yaml:"secure_cookies" env:"SECURE_COOKIES" env-default:"true"`
	SessionMaxAge      int    `yaml:"session_max_age" env:"SESSION_MAX_AGE" env-default:"86400" validate:"gt=0"`
}

// DatabaseConfig holds the engine PostgreSQL configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost" validate:"required"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432" validate:"gt=0"`
	User           string `yaml:"user" env:"PGUSER" env-default:"sheetsmith"`
	Password       string `yaml:"-" env:"PGPASSWORD"`
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"sheetsmith" validate:"required"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25" validate:"gt=0"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// WarehouseConfig points at the database that holds uploaded data.
// An empty URL reuses the engine database.
type WarehouseConfig struct {
	URL          string `yaml:"-" env:"WAREHOUSE_URL"`
	Schema       string `yaml:"schema" env:"WAREHOUSE_SCHEMA" env-default:"public" validate:"required"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"WAREHOUSE_MAX_OPEN_CONNS" env-default:"10" validate:"gt=0"`
}

// LLMConfig selects the model provider and the token ceiling of its context window.
type LLMConfig struct {
	Provider         string        `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai" validate:"oneof=openai anthropic"`
	BaseURL          string        `yaml:"base_url" env:"LLM_BASE_URL" env-default:"https://api.openai.com/v1" validate:"omitempty,url"`
	APIKey           string        `yaml:"-" env:"LLM_API_KEY"`
	Model            string        `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o" validate:"required"`
	VisionModel      string        `yaml:"vision_model" env:"LLM_VISION_MODEL" env-default:"gpt-4o" validate:"required"`
	MaxContextTokens int           `yaml:"max_context_tokens" env:"LLM_MAX_CONTEXT_TOKENS" env-default:"16000" validate:"min=512"`
	MaxOutputTokens  int           `yaml:"max_output_tokens" env:"LLM_MAX_OUTPUT_TOKENS" env-default:"2048" validate:"gt=0"`
	Temperature      float64       `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.2" validate:"min=0,max=2"`
	RequestTimeout   time.Duration `yaml:"request_timeout" env:"LLM_REQUEST_TIMEOUT" env-default:"90s" validate:"min=1s,max=10m"`
}

// StorageConfig holds the S3-compatible archive settings for uploaded files.
type StorageConfig struct {
	Enabled          bool   `yaml:"enabled" env:"STORAGE_ENABLED" env-default:"false"`
	Endpoint         string `yaml:"endpoint" env:"STORAGE_ENDPOINT" env-default:"localhost:9000" validate:"required_if=Enabled true"`
	Region           string `yaml:"region" env:"STORAGE_REGION" env-default:""`
	Bucket           string `yaml:"bucket" env:"STORAGE_BUCKET" env-default:"uploads" validate:"required_if=Enabled true"`
	Prefix           string `yaml:"prefix" env:"STORAGE_PREFIX" env-default:"archive"`
	AccessKeyID      string `yaml:"-" env:"STORAGE_ACCESS_KEY_ID"`
	SecretAccessKey  string `yaml:"-" env:"STORAGE_SECRET_ACCESS_KEY"`
	UseSSL           bool   `yaml:"use_ssl" env:"STORAGE_USE_SSL" env-default:"false"`
	AutoCreateBucket bool   `yaml:"auto_create_bucket" env:"STORAGE_AUTO_CREATE_BUCKET" env-default:"true"`
}

// UploadConfig bounds what the upload endpoint accepts.
type UploadConfig struct {
	MaxBytes    int64 `yaml:"max_bytes" env:"UPLOAD_MAX_BYTES" env-default:"33554432" validate:"gt=0"`
	SampleLines int   `yaml:"sample_lines" env:"UPLOAD_SAMPLE_LINES" env-default:"10" validate:"gt=0"`
}

// JobsConfig schedules background maintenance.
type JobsConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval" env:"JOBS_RECONCILE_INTERVAL" env-default:"15m" validate:"min=1m"`
	SessionIdleTTL    time.Duration `yaml:"session_idle_ttl" env:"JOBS_SESSION_IDLE_TTL" env-default:"30m" validate:"min=1m"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// A missing config.yaml is not an error; env vars and defaults apply.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{Scheme: "http", Host: "localhost:" + cfg.Port}).String()
	}

	return cfg, nil
}

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.LLM.Provider == "anthropic" && c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required for the anthropic provider")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// WarehouseDSN returns the warehouse connection string, falling back to the
// engine database.
func (c *Config) WarehouseDSN() string {
	if c.Warehouse.URL != "" {
		return c.Warehouse.URL
	}
	return c.Database.ConnectionString()
}
