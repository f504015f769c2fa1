package llmbridge

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ModelInfo describes one model a Provider can serve, kept to the fields
// the bridge itself needs to decide whether a request can be routed.
type ModelInfo struct {
	ID              string
	ProviderID      string
	ContextLength   int
	MaxOutputTokens int
	SupportsTools   bool
}

// Provider is one chat-model backend (Anthropic, OpenAI, Ark, ...). A
// provider owns exactly one eino ToolCallingChatModel and the credential
// plumbing it needs to construct one.
type Provider interface {
	ID() string
	Models() []ModelInfo
	StreamCompletion(ctx context.Context, req CompletionRequest, sink DeltaSink) (string, error)
}

// streamWithChatModel drives one eino chat model to completion, feeding
// each text delta to sink and returning the fully assembled text. Shared
// by every Provider implementation so the streaming/accumulation logic
// lives in exactly one place.
func streamWithChatModel(ctx context.Context, chatModel model.ToolCallingChatModel, req CompletionRequest, sink DeltaSink) (string, error) {
	messages, err := convertToEinoMessages(req.Messages)
	if err != nil {
		return "", newError(ErrSerde, "converting messages", err)
	}

	cm := chatModel
	if len(req.Tools) > 0 {
		toolInfos, err := convertToEinoTools(req.Tools)
		if err != nil {
			return "", newError(ErrSerde, "converting tool schema", err)
		}
		cm, err = cm.WithTools(toolInfos)
		if err != nil {
			return "", newError(ErrFailedToGetResponse, "binding tools", err)
		}
	}

	opts := []model.Option{model.WithTemperature(float32(req.Temperature))}
	if req.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*req.MaxTokens))
	}
	if len(req.StopWords) > 0 {
		opts = append(opts, model.WithStop(req.StopWords))
	}

	stream, err := cm.Stream(ctx, messages, opts...)
	if err != nil {
		return "", newError(ErrTransport, "opening stream", err)
	}
	defer stream.Close()

	var out string
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if err.Error() == "EOF" {
				break
			}
			return out, newError(ErrTransport, "receiving stream chunk", err)
		}
		if chunk.Content == "" {
			continue
		}
		out += chunk.Content
		if sink != nil {
			if err := sink(chunk.Content); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}

func convertToEinoMessages(msgs []Message) ([]*schema.Message, error) {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, schema.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case RoleAssistant:
			msg := schema.AssistantMessage(m.Content, nil)
			if m.FunctionCall != nil {
				msg.ToolCalls = []schema.ToolCall{{
					Function: schema.FunctionCall{
						Name:      m.FunctionCall.Name,
						Arguments: m.FunctionCall.Arguments,
					},
				}}
			}
			out = append(out, msg)
		case RoleFunction:
			name := ""
			if m.FunctionCall != nil {
				name = m.FunctionCall.Name
			}
			out = append(out, &schema.Message{Role: schema.Tool, Content: m.Content, ToolName: name})
		default:
			return nil, fmt.Errorf("unknown role %q", m.Role)
		}
	}
	return out, nil
}

func convertToEinoTools(tools []ToolInfo) ([]*schema.ToolInfo, error) {
	out := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		params := make(map[string]*schema.ParameterInfo, len(t.Parameters))
		for _, p := range t.Parameters {
			params[p.Name] = &schema.ParameterInfo{
				Type:     schema.DataType(p.Type),
				Desc:     p.Description,
				Required: p.Required,
			}
		}
		out = append(out, &schema.ToolInfo{
			Name: t.Name,
			Desc: t.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return out, nil
}
