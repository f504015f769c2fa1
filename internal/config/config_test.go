package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	oldXDG := os.Getenv("XDG_CONFIG_HOME")
	os.Unsetenv("XDG_CONFIG_HOME")
	t.Cleanup(func() {
		os.Setenv("HOME", oldHome)
		if oldXDG != "" {
			os.Setenv("XDG_CONFIG_HOME", oldXDG)
		}
	})
	return tmpDir
}

func TestLoadAppliesDefaultsWithNoConfigFiles(t *testing.T) {
	isolateHome(t)
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-sonnet-4-20250514", cfg.Model)
	assert.Equal(t, uint64(5), cfg.LLMBridge.MaxRetries)
	assert.Equal(t, 50, cfg.MaxAgentSteps)
}

func TestLoadMergesProjectConfigOverGlobal(t *testing.T) {
	home := isolateHome(t)
	project := t.TempDir()

	globalDir := filepath.Join(home, ".config", "sidecar")
	require.NoError(t, os.MkdirAll(globalDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(globalDir, "sidecar.json"), []byte(`{
		"model": "anthropic/claude-sonnet-4-20250514",
		"provider": {"anthropic": {"api_key": "global-key"}}
	}`), 0644))

	projectDir := filepath.Join(project, ".sidecar")
	require.NoError(t, os.MkdirAll(projectDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "sidecar.json"), []byte(`{
		"model": "openai/gpt-4o"
	}`), 0644))

	cfg, err := Load(project)
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", cfg.Model)
	assert.Equal(t, "global-key", cfg.Provider["anthropic"].APIKey)
}

func TestLoadStripsJSONCComments(t *testing.T) {
	home := isolateHome(t)
	project := t.TempDir()

	projectDir := filepath.Join(project, ".sidecar")
	require.NoError(t, os.MkdirAll(projectDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "sidecar.jsonc"), []byte(`{
		// pick a faster default model for this project
		"model": "anthropic/claude-3-5-haiku-20241022"
	}`), 0644))
	_ = home

	cfg, err := Load(project)
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-3-5-haiku-20241022", cfg.Model)
}

func TestApplyEnvOverridesSetsProviderKeyOnlyWhenUnset(t *testing.T) {
	os.Setenv("ANTHROPIC_API_KEY", "env-key")
	defer os.Unsetenv("ANTHROPIC_API_KEY")

	cfg := Default()
	cfg.Provider["anthropic"] = ProviderConfig{APIKey: "file-key"}
	applyEnvOverrides(cfg)
	assert.Equal(t, "file-key", cfg.Provider["anthropic"].APIKey, "file-provided key should win over env")

	cfg2 := Default()
	applyEnvOverrides(cfg2)
	assert.Equal(t, "env-key", cfg2.Provider["anthropic"].APIKey)
}

func TestEnvVarOverridesModel(t *testing.T) {
	isolateHome(t)
	os.Setenv("SIDECAR_MODEL", "env-model")
	defer os.Unsetenv("SIDECAR_MODEL")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.Model)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "sidecar.json")
	cfg := Default()
	cfg.Model = "openai/gpt-4o"

	require.NoError(t, Save(cfg, path))

	loaded := Default()
	loadConfigFile(path, loaded)
	assert.Equal(t, "openai/gpt-4o", loaded.Model)
}
