package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Floors and defaults for the dispatch pipeline.
const (
	DefaultPort           = 3001
	DefaultMaxConnections = 3
	DefaultMaxMessages    = 100
	DefaultConcurrency    = 3
	DefaultTimeoutMS      = 30000
	MinTimeoutMS          = 5000
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Mail     MailConfig     `yaml:"mail"`
	SES      SESConfig      `yaml:"ses"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port       int    `yaml:"port"`
	Host       string `yaml:"host"`
	CORSOrigin string `yaml:"cors_origin"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" {
		return "0.0.0.0"
	}
	return c.Host
}

// DatabaseConfig holds the PostgreSQL connection settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig holds the optional Redis connection used for bulk-send locking
type RedisConfig struct {
	URL         string `yaml:"url"`
	LockTTLSecs int    `yaml:"lock_ttl_seconds"`
}

// LockTTL returns the bulk-send lock TTL as a duration
func (c RedisConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSecs) * time.Second
}

// MailConfig is the configuration surface consumed by the transport resolver
// and the dispatcher.
type MailConfig struct {
	Provider          string `yaml:"provider"` // "smtp" (default) or "ses"
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	From              string `yaml:"from"`
	MaxConnections    int    `yaml:"max_connections"`
	MaxMessages       int    `yaml:"max_messages"`
	Concurrency       int    `yaml:"concurrency"`
	TimeoutMS         int    `yaml:"timeout_ms"`
	UseTestAccount    bool   `yaml:"ethereal"`
	FallbackToTest    bool   `yaml:"fallback_to_ethereal"`
	TestAccountAPIURL string `yaml:"test_account_api_url"`
}

// SMTPConfigured reports whether every real-transport field is present.
func (c MailConfig) SMTPConfigured() bool {
	return c.Host != "" && c.Port > 0 && c.Username != "" && c.Password != ""
}

// Timeout returns the per-job send timeout as a duration
func (c MailConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// ArchiveConfig controls S3 archiving of rendered certificates
type ArchiveConfig struct {
	S3Bucket  string `yaml:"s3_bucket"`
	S3Region  string `yaml:"s3_region"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Enabled reports whether certificates should be archived
func (c ArchiveConfig) Enabled() bool { return c.S3Bucket != "" }

// LogConfig controls the structured logger
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills zero values and enforces floors.
func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.CORSOrigin == "" {
		cfg.Server.CORSOrigin = "http://localhost:5173"
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Redis.LockTTLSecs <= 0 {
		cfg.Redis.LockTTLSecs = 600
	}
	if cfg.Mail.Provider == "" {
		cfg.Mail.Provider = "smtp"
	}
	cfg.Mail.Provider = strings.ToLower(cfg.Mail.Provider)
	if cfg.Mail.MaxConnections <= 0 {
		cfg.Mail.MaxConnections = DefaultMaxConnections
	}
	if cfg.Mail.MaxMessages <= 0 {
		cfg.Mail.MaxMessages = DefaultMaxMessages
	}
	if cfg.Mail.Concurrency < 1 {
		cfg.Mail.Concurrency = DefaultConcurrency
	}
	if cfg.Mail.TimeoutMS == 0 {
		cfg.Mail.TimeoutMS = DefaultTimeoutMS
	}
	if cfg.Mail.TimeoutMS < MinTimeoutMS {
		cfg.Mail.TimeoutMS = MinTimeoutMS
	}
	if cfg.Mail.TestAccountAPIURL == "" {
		cfg.Mail.TestAccountAPIURL = "https://api.nodemailer.com/user"
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.Archive.S3Region == "" {
		cfg.Archive.S3Region = cfg.SES.Region
	}
	if cfg.Archive.KeyPrefix == "" {
		cfg.Archive.KeyPrefix = "certificates"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
// A missing config file is not an error: env-only deployments are common.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = &Config{}
	} else if err != nil {
		return nil, err
	}

	// Server overrides
	if v := envInt("PORT"); v > 0 {
		cfg.Server.Port = v
	}
	if v := os.Getenv("CORS_ORIGIN"); v != "" {
		cfg.Server.CORSOrigin = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}

	// Mail transport overrides
	if v := os.Getenv("MAIL_PROVIDER"); v != "" {
		cfg.Mail.Provider = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Mail.Host = v
	}
	if v := envInt("SMTP_PORT"); v > 0 {
		cfg.Mail.Port = v
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Mail.Username = v
	}
	if v := os.Getenv("SMTP_PASS"); v != "" {
		cfg.Mail.Password = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Mail.From = v
	}
	if v := envInt("SMTP_MAX_CONN"); v > 0 {
		cfg.Mail.MaxConnections = v
	}
	if v := envInt("SMTP_MAX_MSG"); v > 0 {
		cfg.Mail.MaxMessages = v
	}
	if v, err := strconv.Atoi(os.Getenv("SMTP_CONCURRENCY")); err == nil {
		cfg.Mail.Concurrency = max(1, v)
	}
	if v, err := strconv.Atoi(os.Getenv("SMTP_TIMEOUT_MS")); err == nil {
		cfg.Mail.TimeoutMS = max(MinTimeoutMS, v)
	}
	if v, ok := envBool("ETHEREAL"); ok {
		cfg.Mail.UseTestAccount = v
	}
	if v, ok := envBool("SMTP_FALLBACK_TO_ETHEREAL"); ok {
		cfg.Mail.FallbackToTest = v
	}

	// AWS overrides
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("ARCHIVE_S3_BUCKET"); v != "" {
		cfg.Archive.S3Bucket = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	// Re-apply floors: env values may have undercut them.
	cfg.applyDefaults()
	return cfg, nil
}

func envInt(name string) int {
	n, _ := strconv.Atoi(os.Getenv(name))
	return n
}

func envBool(name string) (bool, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return false, false
	}
	return strings.EqualFold(strings.TrimSpace(v), "true"), true
}
