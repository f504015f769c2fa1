package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/skcd-labs/sidecar-core/internal/config"
	"github.com/skcd-labs/sidecar-core/internal/editorbridge"
	"github.com/skcd-labs/sidecar-core/internal/event"
	"github.com/skcd-labs/sidecar-core/internal/llmbridge"
	"github.com/skcd-labs/sidecar-core/internal/permission"
	"github.com/skcd-labs/sidecar-core/internal/sessionservice"
	"github.com/skcd-labs/sidecar-core/internal/storage"
	"github.com/skcd-labs/sidecar-core/internal/symbolagent"
	"github.com/skcd-labs/sidecar-core/internal/toolbox"
	"github.com/skcd-labs/sidecar-core/internal/toolbroker"
)

// bootstrap wires every shared collaborator a CLI subcommand needs out
// of loaded configuration: the editor RPC client, the provider
// registry behind the LLM Bridge, the tool broker/box, and finally the
// Session Service sitting on top of all of it.
func bootstrap(ctx context.Context, cfg *config.Config) (*sessionservice.Service, *event.Bus, error) {
	registry := llmbridge.NewRegistry()
	if anthropic, ok := cfg.Provider["anthropic"]; ok && anthropic.APIKey != "" {
		p, err := llmbridge.NewAnthropicProvider(ctx, llmbridge.AnthropicConfig{APIKey: anthropic.APIKey, BaseURL: anthropic.BaseURL})
		if err != nil {
			return nil, nil, fmt.Errorf("initializing anthropic provider: %w", err)
		}
		registry.Register(p)
	}
	if openai, ok := cfg.Provider["openai"]; ok && openai.APIKey != "" {
		p, err := llmbridge.NewOpenAIProvider(ctx, llmbridge.OpenAIConfig{APIKey: openai.APIKey, BaseURL: openai.BaseURL})
		if err != nil {
			return nil, nil, fmt.Errorf("initializing openai provider: %w", err)
		}
		registry.Register(p)
	}

	bridge := llmbridge.NewBridge(registry, llmbridge.Config{
		MaxRetries:     cfg.LLMBridge.MaxRetries,
		InitialBackoff: durationMs(cfg.LLMBridge.InitialBackoffMs),
		MaxBackoff:     durationMs(cfg.LLMBridge.MaxBackoffMs),
	})

	bus := event.NewBus()
	editor := editorbridge.New(cfg.EditorURL)
	broker := toolbroker.NewDefault(toolbroker.Dependencies{
		Editor:      editor,
		LLM:         bridge,
		Permissions: permission.DefaultAgentPermissions(),
		Bus:         bus,
	})
	box := toolbox.New(broker)
	store := storage.NewSessionStore(cfg.StorageRoot)

	agentConfig := symbolagent.Config{MaxAgentSteps: cfg.MaxAgentSteps, Model: cfg.Model}
	svc := sessionservice.New(store, box, bridge, bus, agentConfig, cfg.Model)
	return svc, bus, nil
}

func durationMs(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
