package llmbridge

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config tunes the bridge's retry behavior. The Open Question of how many
// times a failed completion should be retried is resolved here: 5 by
// default, overridable per deployment.
type Config struct {
	MaxRetries     uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig matches the source tool's retry count.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// Bridge is the single entry point symbol agents use to talk to whichever
// model provider a request names.
type Bridge struct {
	registry *Registry
	config   Config
}

// NewBridge wires a registry of providers behind one retrying façade.
func NewBridge(registry *Registry, config Config) *Bridge {
	if config.MaxRetries == 0 {
		config = DefaultConfig()
	}
	return &Bridge{registry: registry, config: config}
}

// StreamCompletion normalizes req.Messages, resolves req.Model to a
// provider, and streams the completion, retrying only on *Error{Kind:
// ErrTransport} up to config.MaxRetries times with exponential backoff.
// Every other failure — including mid-stream sink errors and context
// cancellation — is returned immediately without retry.
func (b *Bridge) StreamCompletion(ctx context.Context, req CompletionRequest, sink DeltaSink) (string, error) {
	provider, modelID, err := b.registry.Resolve(req.Model)
	if err != nil {
		return "", err
	}
	normalized := req
	normalized.Model = modelID
	normalized.Messages = normalizeMessages(req.Messages)

	var result string
	op := func() error {
		out, err := provider.StreamCompletion(ctx, normalized, sink)
		result = out
		if err == nil {
			return nil
		}
		var bridgeErr *Error
		if errors.As(err, &bridgeErr) && bridgeErr.Kind == ErrTransport {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.WithContext(b.retryPolicy(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return result, permanent.Err
		}
		return result, err
	}
	return result, nil
}

func (b *Bridge) retryPolicy() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = b.config.InitialBackoff
	exp.MaxInterval = b.config.MaxBackoff
	return backoff.WithMaxRetries(exp, b.config.MaxRetries)
}

// normalizeMessages collapses consecutive same-role messages so the
// resulting sequence alternates strictly, which every chat-completion API
// in the registry requires after the leading system segment.
func normalizeMessages(msgs []Message) []Message {
	if len(msgs) == 0 {
		return msgs
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			merged := out[n-1]
			merged.Content = merged.Content + "\n\n" + m.Content
			merged.CacheHint = merged.CacheHint || m.CacheHint
			if merged.FunctionCall == nil {
				merged.FunctionCall = m.FunctionCall
			}
			out[n-1] = merged
			continue
		}
		out = append(out, m)
	}
	return out
}
