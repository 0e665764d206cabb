package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
server:
  port: "9090"
  allowed_origins: ["https://learn.example.com"]
redis:
  addr: "localhost:6379"
  ttl: "15m"
postgres:
  url: "postgres://file"
cache:
  ttl: "2m"
certificates:
  default_validity_days: 365
notify:
  from_name: "Assessments"
  from_email: "noreply@example.com"
  email_domain: "students.example.com"
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", sample)
	t.Setenv("PORT", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("POSTGRES_URL", "postgres://env")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SENDGRID_API_KEY", "sg-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"https://learn.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "postgres://env", cfg.Postgres.URL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 365, cfg.Certificates.DefaultValidityDays)
	assert.Equal(t, "sg-env", cfg.Notify.SendGridKey)
	assert.Equal(t, "students.example.com", cfg.Notify.EmailDomain)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("POSTGRES_URL", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Empty(t, cfg.Postgres.URL)
}

func TestLoadRejectsBadInput(t *testing.T) {
	_, err := Load(writeFile(t, "broken.yaml", "server: [\n"))
	assert.Error(t, err)

	t.Setenv("REDIS_DB", "zero")
	_, err = Load(writeFile(t, "ok.yaml", sample))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")), "a missing file is fine")

	t.Setenv("REDIS_ADDR", "kept:6379")
	path := writeFile(t, ".env", "REDIS_ADDR=dotenv:6379\nASSESSMENT_DOTENV_PROBE=loaded\n")
	t.Cleanup(func() { os.Unsetenv("ASSESSMENT_DOTENV_PROBE") })
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("ASSESSMENT_DOTENV_PROBE"))
	assert.Equal(t, "kept:6379", os.Getenv("REDIS_ADDR"), "existing variables are not overridden")
}

func TestTTLDuration(t *testing.T) {
	assert.Equal(t, 2*time.Minute, TTLDuration("2m", time.Hour))
	assert.Equal(t, time.Hour, TTLDuration("", time.Hour))
	assert.Equal(t, time.Hour, TTLDuration("soon", time.Hour))
}
