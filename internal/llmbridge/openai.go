package llmbridge

import (
	"context"
	"os"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// OpenAIConfig holds the credentials and tunables for the OpenAI provider.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	UseAzure  bool
	APIVersion string
}

// OpenAIProvider serves GPT models over the OpenAI API (or
// OpenAIConfig.BaseURL). OpenAIConfig.UseAzure and APIVersion are not
// passed to the chat model, and no Azure OpenAI client is configured.
type OpenAIProvider struct {
	chatModel model.ToolCallingChatModel
	models    []ModelInfo
	modelID   string
}

// NewOpenAIProvider constructs the GPT chat model, falling back to
// OPENAI_API_KEY when config.APIKey is empty.
func NewOpenAIProvider(ctx context.Context, config OpenAIConfig) (*OpenAIProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, newError(ErrWrongApiKeyType, "OPENAI_API_KEY not set", nil)
	}

	modelID := config.Model
	if modelID == "" {
		modelID = "gpt-4o"
	}
	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	cfg := &openai.ChatModelConfig{
		APIKey: apiKey,
		Model:  modelID,
	}
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}
	// GPT-5 rejects MaxTokens in favor of MaxCompletionTokens.
	if isMaxCompletionTokensModel(modelID) {
		cfg.MaxCompletionTokens = &maxTokens
	} else {
		cfg.MaxTokens = &maxTokens
	}

	chatModel, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, newError(ErrFailedToGetResponse, "constructing openai chat model", err)
	}

	return &OpenAIProvider{chatModel: chatModel, models: openAIModels(modelID), modelID: modelID}, nil
}

func (p *OpenAIProvider) ID() string          { return "openai" }
func (p *OpenAIProvider) Models() []ModelInfo { return p.models }

func (p *OpenAIProvider) StreamCompletion(ctx context.Context, req CompletionRequest, sink DeltaSink) (string, error) {
	return streamWithChatModel(ctx, p.chatModel, req, sink)
}

func isMaxCompletionTokensModel(modelID string) bool {
	switch modelID {
	case "gpt-5", "gpt-5-mini", "gpt-5-nano", "o1", "o1-mini":
		return true
	default:
		return false
	}
}

func openAIModels(selected string) []ModelInfo {
	catalog := []ModelInfo{
		{ID: "gpt-5", ProviderID: "openai", ContextLength: 400000, MaxOutputTokens: 128000, SupportsTools: true},
		{ID: "gpt-5-mini", ProviderID: "openai", ContextLength: 400000, MaxOutputTokens: 128000, SupportsTools: true},
		{ID: "gpt-5-nano", ProviderID: "openai", ContextLength: 400000, MaxOutputTokens: 128000, SupportsTools: true},
		{ID: "gpt-4o", ProviderID: "openai", ContextLength: 128000, MaxOutputTokens: 16384, SupportsTools: true},
		{ID: "gpt-4o-mini", ProviderID: "openai", ContextLength: 128000, MaxOutputTokens: 16384, SupportsTools: true},
		{ID: "o1", ProviderID: "openai", ContextLength: 200000, MaxOutputTokens: 100000, SupportsTools: false},
		{ID: "o1-mini", ProviderID: "openai", ContextLength: 128000, MaxOutputTokens: 65536, SupportsTools: false},
	}
	for _, m := range catalog {
		if m.ID == selected {
			return catalog
		}
	}
	return append(catalog, ModelInfo{ID: selected, ProviderID: "openai", ContextLength: 128000, MaxOutputTokens: 4096, SupportsTools: true})
}
