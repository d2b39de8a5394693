package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"
  cors_origin: "*"

database:
  url: "postgres://localhost/certs"

mail:
  host: "in-v3.mailjet.com"
  port: 587
  username: "api-key"
  password: "secret"
  from: "events@example.org"
  max_connections: 5
  max_messages: 50
  concurrency: 4
  timeout_ms: 12000
  fallback_to_ethereal: true

archive:
  s3_bucket: "cert-archive"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "*", cfg.Server.CORSOrigin)
	assert.Equal(t, "postgres://localhost/certs", cfg.Database.URL)

	assert.Equal(t, "smtp", cfg.Mail.Provider)
	assert.True(t, cfg.Mail.SMTPConfigured())
	assert.Equal(t, "events@example.org", cfg.Mail.From)
	assert.Equal(t, 5, cfg.Mail.MaxConnections)
	assert.Equal(t, 50, cfg.Mail.MaxMessages)
	assert.Equal(t, 4, cfg.Mail.Concurrency)
	assert.Equal(t, 12*time.Second, cfg.Mail.Timeout())
	assert.True(t, cfg.Mail.FallbackToTest)
	assert.False(t, cfg.Mail.UseTestAccount)

	assert.True(t, cfg.Archive.Enabled())
	assert.Equal(t, "certificates", cfg.Archive.KeyPrefix)
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(configPath, []byte("mail:\n  timeout_ms: 100\n"), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "http://localhost:5173", cfg.Server.CORSOrigin)
	assert.Equal(t, DefaultMaxConnections, cfg.Mail.MaxConnections)
	assert.Equal(t, DefaultMaxMessages, cfg.Mail.MaxMessages)
	assert.Equal(t, DefaultConcurrency, cfg.Mail.Concurrency)
	assert.Equal(t, MinTimeoutMS, cfg.Mail.TimeoutMS, "timeout floor must be enforced")
	assert.False(t, cfg.Mail.SMTPConfigured())
	assert.False(t, cfg.Archive.Enabled())
	assert.Equal(t, 10*time.Minute, cfg.Redis.LockTTL())
}

func TestLoadFromEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
mail:
  host: "file-host"
  port: 25
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	t.Setenv("SMTP_HOST", "smtp.env.test")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("SMTP_USER", "env-user")
	t.Setenv("SMTP_PASS", "env-pass")
	t.Setenv("SMTP_CONCURRENCY", "0")
	t.Setenv("SMTP_TIMEOUT_MS", "1000")
	t.Setenv("ETHEREAL", "TRUE")
	t.Setenv("SMTP_FALLBACK_TO_ETHEREAL", "false")
	t.Setenv("MAIL_PROVIDER", "SES")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	// Environment variables should override file values
	assert.Equal(t, "smtp.env.test", cfg.Mail.Host)
	assert.Equal(t, 465, cfg.Mail.Port)
	assert.Equal(t, "env-user", cfg.Mail.Username)
	assert.Equal(t, "env-pass", cfg.Mail.Password)
	assert.Equal(t, 1, cfg.Mail.Concurrency)
	assert.Equal(t, MinTimeoutMS, cfg.Mail.TimeoutMS)
	assert.True(t, cfg.Mail.UseTestAccount)
	assert.False(t, cfg.Mail.FallbackToTest)
	assert.Equal(t, "ses", cfg.Mail.Provider)
}

func TestLoadFromEnv_MissingFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")

	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultTimeoutMS, cfg.Mail.TimeoutMS)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestServerConfig_GetHost(t *testing.T) {
	t.Setenv("SERVER_HOST", "")
	t.Setenv("ECS_CONTAINER_METADATA_URI", "")
	assert.Equal(t, "localhost", ServerConfig{Host: "localhost"}.GetHost())

	t.Setenv("SERVER_HOST", "10.0.0.5")
	assert.Equal(t, "10.0.0.5", ServerConfig{Host: "localhost"}.GetHost())
}
