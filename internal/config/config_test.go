package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"9090\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 10, cfg.Assistant.DailyLimit)
	assert.Equal(t, "gemini-1.5-flash", cfg.LLM.Model)
	assert.Equal(t, "daily", cfg.Assistant.TipMode)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoadEnvOverridesSecret(t *testing.T) {
	path := writeConfig(t, "llm:\n  api_key: from-file\n")
	t.Setenv("TANI_LLM_API_KEY", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLM.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestAssistantLocation(t *testing.T) {
	assert.Equal(t, "Asia/Jakarta", AssistantConfig{Timezone: "Asia/Jakarta"}.Location().String())
	assert.Equal(t, "UTC", AssistantConfig{Timezone: "Not/AZone"}.Location().String())
	assert.Equal(t, "UTC", AssistantConfig{}.Location().String())
}
