package llmbridge

import (
	"context"
	"os"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// ArkConfig holds the credentials and tunables for the Volcengine Ark provider.
type ArkConfig struct {
	APIKey    string
	BaseURL   string
	Model     string // endpoint ID on the Ark platform
	MaxTokens int
}

// ArkProvider serves Volcengine Ark endpoint-backed models.
type ArkProvider struct {
	chatModel model.ToolCallingChatModel
	models    []ModelInfo
}

// NewArkProvider constructs the Ark chat model, falling back to
// ARK_API_KEY/ARK_MODEL_ID/ARK_BASE_URL when unset on config.
func NewArkProvider(ctx context.Context, config ArkConfig) (*ArkProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ARK_API_KEY")
	}
	if apiKey == "" {
		return nil, newError(ErrWrongApiKeyType, "ARK_API_KEY not set", nil)
	}

	modelID := config.Model
	if modelID == "" {
		modelID = os.Getenv("ARK_MODEL_ID")
	}
	if modelID == "" {
		return nil, newError(ErrUnsupportedModel, "ARK_MODEL_ID not set", nil)
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("ARK_BASE_URL")
	}

	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	cfg := &ark.ChatModelConfig{
		APIKey:    apiKey,
		Model:     modelID,
		MaxTokens: &maxTokens,
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	chatModel, err := ark.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, newError(ErrFailedToGetResponse, "constructing ark chat model", err)
	}

	return &ArkProvider{chatModel: chatModel, models: arkModels(modelID)}, nil
}

func (p *ArkProvider) ID() string          { return "ark" }
func (p *ArkProvider) Models() []ModelInfo { return p.models }

func (p *ArkProvider) StreamCompletion(ctx context.Context, req CompletionRequest, sink DeltaSink) (string, error) {
	return streamWithChatModel(ctx, p.chatModel, req, sink)
}

func arkModels(endpointID string) []ModelInfo {
	return []ModelInfo{
		{ID: endpointID, ProviderID: "ark", ContextLength: 128000, MaxOutputTokens: 4096, SupportsTools: true},
	}
}
