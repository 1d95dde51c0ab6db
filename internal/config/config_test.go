package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("missing", "")
	require.NoError(t, err)
	assert.Equal(t, Defaults().Agent, cfg.Agent)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"text_completion"}, cfg.Credits.ExemptTools)
	assert.Same(t, cfg, Get())
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
agent:
  max_rounds: 3
  turn_timeout: 90s
credits:
  require_pricing: true
providers:
  replicate:
    models:
      image: owner/custom-image
queue:
  enabled: true
`)
	t.Setenv("APP_AI_OPENAI_API_KEY", "sk-test")
	t.Setenv("APP_SERVER_PORT", "9090")

	cfg, err := Load("test", path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Agent.MaxRounds)
	assert.Equal(t, 90*time.Second, cfg.Agent.TurnTimeout)
	assert.True(t, cfg.Credits.RequirePricing)
	assert.Equal(t, "owner/custom-image", cfg.Providers.Replicate.Models["image"])
	assert.True(t, cfg.Queue.Enabled)
	assert.Equal(t, "sk-test", cfg.AI.OpenAI.APIKey)
	assert.Equal(t, 9090, cfg.Server.Port)
	// 未覆盖的键保留默认值
	assert.Equal(t, 6000, cfg.Agent.HistoryTokenBudget)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load("test", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	cfg.Agent.MaxRounds = 0
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Credits.DefaultDurationSeconds = 0
	assert.Error(t, cfg.Validate())
}

func TestDSNAndAddr(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "host=localhost port=5432 user=postgres password= dbname=aistudio sslmode=disable", cfg.Database.GetDSN())
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
}
