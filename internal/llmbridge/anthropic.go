package llmbridge

import (
	"context"
	"os"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"
)

// AnthropicConfig holds the credentials and tunables for the Claude provider.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	UseBedrock bool
	Region    string
	Profile   string
}

// AnthropicProvider serves Claude models over the Anthropic API (or
// AnthropicConfig.BaseURL). AnthropicConfig.UseBedrock only waives the
// API-key requirement; Region and Profile are not passed to the chat
// model, and no Bedrock client is configured.
type AnthropicProvider struct {
	chatModel model.ToolCallingChatModel
	models    []ModelInfo
}

// NewAnthropicProvider constructs the Claude chat model, falling back to
// ANTHROPIC_API_KEY when config.APIKey is empty.
func NewAnthropicProvider(ctx context.Context, config AnthropicConfig) (*AnthropicProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" && !config.UseBedrock {
		return nil, newError(ErrWrongApiKeyType, "ANTHROPIC_API_KEY not set", nil)
	}

	modelID := config.Model
	if modelID == "" {
		modelID = "claude-sonnet-4-20250514"
	}
	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	cfg := &claude.Config{
		APIKey:    apiKey,
		Model:     modelID,
		MaxTokens: maxTokens,
	}
	if config.BaseURL != "" {
		cfg.BaseURL = &config.BaseURL
	}

	chatModel, err := claude.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, newError(ErrFailedToGetResponse, "constructing claude chat model", err)
	}

	return &AnthropicProvider{chatModel: chatModel, models: anthropicModels(modelID)}, nil
}

func (p *AnthropicProvider) ID() string          { return "anthropic" }
func (p *AnthropicProvider) Models() []ModelInfo { return p.models }

func (p *AnthropicProvider) StreamCompletion(ctx context.Context, req CompletionRequest, sink DeltaSink) (string, error) {
	return streamWithChatModel(ctx, p.chatModel, req, sink)
}

func anthropicModels(selected string) []ModelInfo {
	catalog := []ModelInfo{
		{ID: "claude-sonnet-4-20250514", ProviderID: "anthropic", ContextLength: 200000, MaxOutputTokens: 8192, SupportsTools: true},
		{ID: "claude-opus-4-20250514", ProviderID: "anthropic", ContextLength: 200000, MaxOutputTokens: 8192, SupportsTools: true},
		{ID: "claude-3-5-sonnet-20241022", ProviderID: "anthropic", ContextLength: 200000, MaxOutputTokens: 8192, SupportsTools: true},
		{ID: "claude-3-5-haiku-20241022", ProviderID: "anthropic", ContextLength: 200000, MaxOutputTokens: 8192, SupportsTools: true},
	}
	for _, m := range catalog {
		if m.ID == selected {
			return catalog
		}
	}
	return append(catalog, ModelInfo{ID: selected, ProviderID: "anthropic", ContextLength: 200000, MaxOutputTokens: 8192, SupportsTools: true})
}
