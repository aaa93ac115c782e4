package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T, dir string) {
	t.Helper()
	t.Setenv("JWT_SECRET", "jwt")
	t.Setenv("ENCRYPTION_KEY", "enc")
	t.Setenv("UPLOAD_DIR", filepath.Join(dir, "uploads"))
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	setRequired(t, dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "0.0.0.0:8000", cfg.HTTPAddr())
	assert.Equal(t, 10*24*time.Hour, cfg.AccessTokenTTL())
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORSOrigins)
	assert.Equal(t, "*/15 * * * *", cfg.JanitorSchedule)
	assert.DirExists(t, cfg.UploadDir)
}

func TestLoadRequiresSecrets(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ENCRYPTION_KEY", "enc")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "jwt")
	t.Setenv("ENCRYPTION_KEY", "")
	_, err = Load()
	assert.ErrorContains(t, err, "ENCRYPTION_KEY")
}

func TestYAMLFileIsOverriddenByEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	setRequired(t, dir)

	file := filepath.Join(dir, "directchat.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
server:
  port: 9100
  cors_origins: ["https://chat.example.com"]
database:
  driver: postgres
  url: postgres://db/chat
rate_limit:
  per_second: 2.5
ws:
  send_buffer: 8
`), 0o600))
	t.Setenv("CONFIG_FILE", file)
	t.Setenv("HTTP_PORT", "9200")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Port)
	assert.Equal(t, []string{"https://chat.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "postgres://db/chat", cfg.PostgresDSN())
	assert.Equal(t, 2.5, cfg.SendRatePerSec)
	assert.Equal(t, 8, cfg.WSSendBuffer)
}

func TestDotEnvFillsUnsetVariables(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	setRequired(t, dir)
	// t.Setenv restores the original state; the unset lets .env fill it.
	t.Setenv("APP_NAME", "")
	require.NoError(t, os.Unsetenv("APP_NAME"))
	t.Setenv("LOG_LEVEL", "warn")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("APP_NAME=from-dotenv\nLOG_LEVEL=debug\n"), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.AppName)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestUnknownDriverRejected(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	setRequired(t, dir)
	t.Setenv("DB_DRIVER", "mongo")

	_, err := Load()
	assert.ErrorContains(t, err, "DB_DRIVER")
}

func TestPostgresDSNFromParts(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "pg")
	t.Setenv("POSTGRES_DB", "chat")
	cfg := &Config{}
	assert.Equal(t, "postgres://postgres:postgres@pg:5432/chat?sslmode=disable", cfg.PostgresDSN())
}
