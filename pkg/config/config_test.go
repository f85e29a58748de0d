package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T, yaml string) {
	t.Helper()
	dir := t.TempDir()
	if yaml != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	}
	original, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(original) })
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	chdirTemp(t, `
port: "3443"
env: "test"
database:
  host: "db.example.com"
  port: 5432
  database: "testdb"
llm:
  model: "gpt-4o-mini"
  max_context_tokens: 8000
`)
	t.Setenv("PORT", "4443")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LLM_REQUEST_TIMEOUT", "30s")
	t.Setenv("BASE_URL", "")

	cfg, err := Load("test-version")
	require.NoError(t, err)

	assert.Equal(t, "4443", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, "http://localhost:4443", cfg.BaseURL)
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 8000, cfg.LLM.MaxContextTokens)
	assert.Equal(t, 30*time.Second, cfg.LLM.RequestTimeout)
}

func TestLoad_WithoutConfigFile(t *testing.T) {
	chdirTemp(t, "")
	t.Setenv("PGHOST", "pg.internal")

	cfg, err := Load("dev")
	require.NoError(t, err)
	assert.Equal(t, "pg.internal", cfg.Database.Host)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 10, cfg.Upload.SampleLines)
	assert.Equal(t, 15*time.Minute, cfg.Jobs.ReconcileInterval)
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	chdirTemp(t, "")
	t.Setenv("LLM_PROVIDER", "bard")

	_, err := Load("dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestValidate_AnthropicNeedsKey(t *testing.T) {
	chdirTemp(t, "")
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("LLM_API_KEY", "")

	_, err := Load("dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_API_KEY")
}

func TestWarehouseDSN(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		Host: "h", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable",
	}}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=d sslmode=disable", cfg.WarehouseDSN())

	cfg.Warehouse.URL = "postgres://w@warehouse/data"
	assert.Equal(t, "postgres://w@warehouse/data", cfg.WarehouseDSN())
}
