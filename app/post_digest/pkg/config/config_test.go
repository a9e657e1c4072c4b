package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LLM_API_KEY", "LLM_PROVIDER", "LLM_BASE_URL", "LLM_MODEL", "LLM_MAX_TOKENS", "LLM_RPM",
		"DATA_DIR", "BATCH_SIZE", "BATCH_DELAY_MS", "MIN_CONTENT_LENGTH",
		"LOG_LEVEL", "LOG_FILE", "LOG_FORMAT", "DATABASE_URL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.Batch.Size)
	assert.Equal(t, time.Second, cfg.BatchDelay())
	assert.Equal(t, 50, cfg.Batch.MinContentLength)
	assert.Equal(t, 3, cfg.LLM.MaxAttempts)
	assert.Equal(t, "data", cfg.Snapshot.Dir)
	assert.ErrorIs(t, cfg.Validate(), ErrMissingAPIKey)
}

func TestLoadConfigYAMLWithEnvOverride(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  provider: gemini
  api_key: from-file
  model: gemini-2.0-flash
batch:
  size: 5
  delay_ms: 250
snapshot:
  dir: /srv/data
`), 0o644))

	t.Setenv("BATCH_SIZE", "7")
	t.Setenv("LLM_API_KEY", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "from-env", cfg.LLM.APIKey)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
	assert.Equal(t, 7, cfg.Batch.Size)
	assert.Equal(t, 250*time.Millisecond, cfg.BatchDelay())
	assert.Equal(t, "/srv/data", cfg.Snapshot.Dir)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigTOML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[llm]
api_key = "k"
max_tokens = 2048

[batch]
min_content_length = 120
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.LLM.MaxTokens)
	assert.Equal(t, 120, cfg.Batch.MinContentLength)
	assert.Equal(t, "k", cfg.LLM.APIKey)
}

func TestLoadConfigExplicitMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadConfigInvalidInteger(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("BATCH_SIZE", "three")

	_, err := LoadConfig("")
	assert.Error(t, err)
}

func TestValidateUnknownProvider(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "k"
	cfg.LLM.Provider = "claude"
	assert.Error(t, cfg.Validate())
}
