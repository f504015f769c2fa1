package testutil

import (
	"context"
	"strings"

	"github.com/skcd-labs/sidecar-core/internal/llmbridge"
)

// ScriptFunc decides what a scripted completion call returns given the
// full rendered request text (every message's content, newline joined),
// so a test can route by substring without hand-rolling a transcript
// parser.
type ScriptFunc func(text string) string

// ScriptedProvider answers every StreamCompletion call by handing the
// rendered request to Script and streaming the result back one rune at a
// time through sink, the way a real provider streams tokens.
type ScriptedProvider struct {
	providerID string
	modelID    string
	Script     ScriptFunc
}

// NewScriptedProvider builds a provider registered under id/model whose
// completions are produced by script.
func NewScriptedProvider(id, model string, script ScriptFunc) *ScriptedProvider {
	return &ScriptedProvider{providerID: id, modelID: model, Script: script}
}

func (p *ScriptedProvider) ID() string { return p.providerID }

func (p *ScriptedProvider) Models() []llmbridge.ModelInfo {
	return []llmbridge.ModelInfo{{ID: p.modelID, ProviderID: p.providerID}}
}

func (p *ScriptedProvider) StreamCompletion(ctx context.Context, req llmbridge.CompletionRequest, sink llmbridge.DeltaSink) (string, error) {
	var b strings.Builder
	for _, m := range req.Messages {
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	text := p.Script(b.String())
	if sink != nil {
		for _, r := range text {
			if err := sink(string(r)); err != nil {
				return "", err
			}
		}
	}
	return text, nil
}
