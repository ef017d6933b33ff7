package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SNAPLENS_CONFIG", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("SNAPLENS_LISTEN_ADDR", "")
	t.Setenv("SNAPLENS_MODEL", "")
	t.Setenv("SNAPLENS_LOG_LEVEL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8888", cfg.ListenAddr)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.GeminiAPIKey)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snaplens.yml")
	content := `listen_addr: ":9000"
model: gemini-2.0-flash
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("SNAPLENS_CONFIG", path)
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("SNAPLENS_LISTEN_ADDR", "")
	t.Setenv("SNAPLENS_MODEL", "")
	t.Setenv("SNAPLENS_LOG_LEVEL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "gemini-2.0-flash", cfg.Model)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snaplens.yml")
	require.NoError(t, os.WriteFile(path, []byte("model: from-file\n"), 0644))

	t.Setenv("SNAPLENS_CONFIG", path)
	t.Setenv("GEMINI_API_KEY", "sk-test")
	t.Setenv("SNAPLENS_MODEL", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Model)
	assert.Equal(t, "sk-test", cfg.GeminiAPIKey)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snaplens.yml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: [unclosed"), 0644))

	t.Setenv("SNAPLENS_CONFIG", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("SNAPLENS_CONFIG", filepath.Join(t.TempDir(), "nope.yml"))

	_, err := Load()
	assert.Error(t, err)
}
