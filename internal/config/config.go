package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
)

// ProviderConfig holds one LLM provider's credentials.
type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
}

// LLMBridgeConfig tunes internal/llmbridge's retry behavior. Retry count
// of 5 is the Open Question from the distilled spec's §9, settled here
// by making it configurable rather than hard-coded.
type LLMBridgeConfig struct {
	MaxRetries       uint64 `json:"max_retries"`
	InitialBackoffMs int    `json:"initial_backoff_ms"`
	MaxBackoffMs     int    `json:"max_backoff_ms"`
}

// ServerConfig tunes the SSE event-stream HTTP listener.
type ServerConfig struct {
	Addr string `json:"addr"`
}

// Config is the resolved, merged configuration for one process.
type Config struct {
	EditorURL      string                    `json:"editor_url"`
	StorageRoot    string                    `json:"storage_root"`
	LogLevel       string                    `json:"log_level"`
	Model          string                    `json:"model"`
	MaxAgentSteps  int                       `json:"max_agent_steps"`
	Provider       map[string]ProviderConfig `json:"provider"`
	LLMBridge      LLMBridgeConfig           `json:"llm_bridge"`
	Server         ServerConfig              `json:"server"`
}

// Default returns the built-in fallback configuration, used as the base
// every other source is merged on top of.
func Default() *Config {
	return &Config{
		EditorURL:     "http://127.0.0.1:51234",
		StorageRoot:   GetPaths().StoragePath(),
		LogLevel:      "info",
		Model:         "anthropic/claude-sonnet-4-20250514",
		MaxAgentSteps: 50,
		Provider:      make(map[string]ProviderConfig),
		LLMBridge:     LLMBridgeConfig{MaxRetries: 5, InitialBackoffMs: 500, MaxBackoffMs: 10_000},
		Server:        ServerConfig{Addr: ":8080"},
	}
}

// Load resolves configuration from, in increasing priority: the global
// config file under GetPaths().Config, a project config file under
// directory/.sidecar/, and environment variable overrides. A .env file in
// directory is first loaded into the process environment without replacing
// variables already set; environment API keys only fill providers whose
// key no config file set.
func Load(directory string) (*Config, error) {
	if directory != "" {
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}

	cfg := Default()

	globalPath := GetPaths().Config
	loadConfigFile(filepath.Join(globalPath, "sidecar.json"), cfg)
	loadConfigFile(filepath.Join(globalPath, "sidecar.jsonc"), cfg)

	if directory != "" {
		loadConfigFile(filepath.Join(directory, ".sidecar", "sidecar.json"), cfg)
		loadConfigFile(filepath.Join(directory, ".sidecar", "sidecar.jsonc"), cfg)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	data = jsonc.ToJSON(data)

	var file Config
	if err := json.Unmarshal(data, &file); err != nil {
		return
	}
	mergeConfig(cfg, &file)
}

func mergeConfig(target, source *Config) {
	if source.EditorURL != "" {
		target.EditorURL = source.EditorURL
	}
	if source.StorageRoot != "" {
		target.StorageRoot = source.StorageRoot
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.MaxAgentSteps != 0 {
		target.MaxAgentSteps = source.MaxAgentSteps
	}
	if source.LLMBridge.MaxRetries != 0 {
		target.LLMBridge.MaxRetries = source.LLMBridge.MaxRetries
	}
	if source.LLMBridge.InitialBackoffMs != 0 {
		target.LLMBridge.InitialBackoffMs = source.LLMBridge.InitialBackoffMs
	}
	if source.LLMBridge.MaxBackoffMs != 0 {
		target.LLMBridge.MaxBackoffMs = source.LLMBridge.MaxBackoffMs
	}
	if source.Server.Addr != "" {
		target.Server.Addr = source.Server.Addr
	}
	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
	}
	for provider, envVar := range providerEnvMap {
		apiKey := os.Getenv(envVar)
		if apiKey == "" {
			continue
		}
		if cfg.Provider == nil {
			cfg.Provider = make(map[string]ProviderConfig)
		}
		p := cfg.Provider[provider]
		if p.APIKey == "" {
			p.APIKey = apiKey
			cfg.Provider[provider] = p
		}
	}

	if v := os.Getenv("SIDECAR_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("SIDECAR_EDITOR_URL"); v != "" {
		cfg.EditorURL = v
	}
	if v := os.Getenv("SIDECAR_STORAGE_ROOT"); v != "" {
		cfg.StorageRoot = v
	}
}

// Save writes cfg as indented JSON to path, creating parent directories
// as needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
