package symbolagent

import (
	"context"
	"testing"
	"time"

	"github.com/skcd-labs/sidecar-core/internal/event"
	"github.com/skcd-labs/sidecar-core/internal/llmbridge"
	"github.com/skcd-labs/sidecar-core/internal/toolbox"
	"github.com/skcd-labs/sidecar-core/internal/toolbroker"
	"github.com/skcd-labs/sidecar-core/internal/types"
)

type sequencedProvider struct {
	id        string
	model     string
	responses []string
	calls     int
}

func (p *sequencedProvider) ID() string { return p.id }
func (p *sequencedProvider) Models() []llmbridge.ModelInfo {
	return []llmbridge.ModelInfo{{ID: p.model, ProviderID: p.id}}
}

func (p *sequencedProvider) StreamCompletion(ctx context.Context, req llmbridge.CompletionRequest, sink llmbridge.DeltaSink) (string, error) {
	idx := p.calls
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	p.calls++
	text := p.responses[idx]
	if sink != nil {
		if err := sink(text); err != nil {
			return "", err
		}
	}
	return text, nil
}

func newTestBridge(responses []string) *llmbridge.Bridge {
	reg := llmbridge.NewRegistry()
	reg.Register(&sequencedProvider{id: "anthropic", model: "claude-test", responses: responses})
	return llmbridge.NewBridge(reg, llmbridge.Config{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
}

type noRouter struct{}

func (noRouter) Route(ctx context.Context, req types.SymbolEventRequest) (types.SymbolEventResponse, error) {
	return types.OkResponse(), nil
}

func TestStepBudgetExceededReturnsSymbolError(t *testing.T) {
	b := &stepBudget{max: 1}
	if err := b.step(); err != nil {
		t.Fatalf("first step should fit the budget: %v", err)
	}
	err := b.step()
	se, ok := err.(*types.SymbolError)
	if !ok || se.Kind != types.ErrStepBudgetExceeded {
		t.Fatalf("expected StepBudgetExceeded, got %#v", err)
	}
}

func TestHandleOutlineComposesFromThinking(t *testing.T) {
	id := types.SymbolId{Name: "Foo", File: "a.go"}
	thinking := types.NewMechaCodeSymbolThinking(id, types.UserContext{})
	thinking.SetPrimarySnippet(types.Snippet{SymbolName: "Foo", File: "a.go", Range: types.Range{End: types.Position{Line: 3}}})
	thinking.AddImplementation(types.Snippet{SymbolName: "FooImpl", File: "b.go"})

	agent := New(id, thinking, toolbox.New(toolbroker.New()), newTestBridge([]string{""}), noRouter{}, nil, DefaultConfig())

	resp, err := agent.handleOutline(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Outline == nil || resp.Outline.Name != "Foo" || len(resp.Outline.Children) != 1 {
		t.Fatalf("unexpected outline: %+v", resp.Outline)
	}
}

func TestHandleAskQuestionPublishesToBus(t *testing.T) {
	id := types.SymbolId{Name: "Foo", File: "a.go"}
	thinking := types.NewMechaCodeSymbolThinking(id, types.UserContext{})
	bus := event.NewBus()

	var got event.Event
	done := make(chan struct{})
	bus.Subscribe(event.TypeSymbolEvent, func(e event.Event) {
		got = e
		close(done)
	})

	agent := New(id, thinking, toolbox.New(toolbroker.New()), newTestBridge([]string{""}), noRouter{}, bus, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agent.Run(ctx)
	resp, err := agent.Submit(ctx, types.SymbolEvent{Kind: types.EventAskQuestion, Question: "why?"})
	if err != nil || !resp.Ok {
		t.Fatalf("unexpected submit result: %+v err=%v", resp, err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected AskQuestion event to reach the bus")
	}
	if got.Type != event.TypeSymbolEvent {
		t.Fatalf("unexpected event type: %v", got.Type)
	}
}

func TestRunStopsAfterDeleteEvent(t *testing.T) {
	id := types.SymbolId{Name: "Foo", File: "a.go"}
	thinking := types.NewMechaCodeSymbolThinking(id, types.UserContext{})
	agent := New(id, thinking, toolbox.New(toolbroker.New()), newTestBridge([]string{""}), noRouter{}, nil, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agent.Run(ctx)

	resp, err := agent.Submit(ctx, types.SymbolEvent{Kind: types.EventDelete})
	if err != nil || !resp.Ok {
		t.Fatalf("unexpected delete result: %+v err=%v", resp, err)
	}

	select {
	case <-agent.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected agent loop to exit after Delete")
	}
}

func TestHandleInitialRequestRoutesSelfEditThroughRanking(t *testing.T) {
	id := types.SymbolId{Name: "Foo", File: "a.go"}
	thinking := types.NewMechaCodeSymbolThinking(id, types.UserContext{})

	src := "package a\n\nfunc Foo() {\n\treturn\n}\n"
	broker := toolbroker.New()
	toolbroker.Handle(broker, toolbroker.OpenFile, func(ctx context.Context, in toolbroker.OpenFileInput) (toolbroker.OpenFileOutput, error) {
		return toolbroker.OpenFileOutput{Content: src, Exists: true}, nil
	})
	toolbroker.Handle(broker, toolbroker.FindInFile, func(ctx context.Context, in toolbroker.FindInFileInput) (toolbroker.FindInFileOutput, error) {
		pos := types.Position{Line: 2, Character: 5}
		return toolbroker.FindInFileOutput{Position: &pos}, nil
	})
	fooRange := types.Range{Start: types.Position{Line: 2}, End: types.Position{Line: 4}}
	toolbroker.Handle(broker, toolbroker.GotoDefinition, func(ctx context.Context, in toolbroker.GotoInput) (toolbroker.GotoOutput, error) {
		return toolbroker.GotoOutput{Locations: []toolbroker.LocationRef{{Path: "a.go", Range: fooRange}}}, nil
	})
	toolbroker.Handle(broker, toolbroker.DocumentOutline, func(ctx context.Context, in toolbroker.DocumentOutlineInput) (toolbroker.DocumentOutlineOutput, error) {
		return toolbroker.DocumentOutlineOutput{Nodes: []types.OutlineNode{{Name: "Foo", Range: fooRange, File: "a.go"}}}, nil
	})
	toolbroker.Handle(broker, toolbroker.GotoImplementation, func(ctx context.Context, in toolbroker.GotoInput) (toolbroker.GotoOutput, error) {
		return toolbroker.GotoOutput{}, nil
	})
	applyEvents := 0
	toolbroker.Handle(broker, toolbroker.ApplyEditStream, func(ctx context.Context, in toolbroker.ApplyEditStreamInput) (toolbroker.ApplyEditStreamOutput, error) {
		applyEvents++
		return toolbroker.ApplyEditStreamOutput{}, nil
	})
	toolbroker.Handle(broker, toolbroker.LSPDiagnostics, func(ctx context.Context, in toolbroker.LSPDiagnosticsInput) (toolbroker.LSPDiagnosticsOutput, error) {
		return toolbroker.LSPDiagnosticsOutput{}, nil
	})

	editBlock := "a.go\n```go\n<<<<<<< SEARCH\n\treturn\n=======\n\treturn nil\n>>>>>>> REPLACE\n```\n"
	bridge := newTestBridge([]string{"0: add a nil return", editBlock})

	box := toolbox.New(broker)
	agent := New(id, thinking, box, bridge, noRouter{}, nil, DefaultConfig())

	err := agent.handleInitialRequest(context.Background(), types.SymbolEvent{Kind: types.EventInitialRequest, PlanSteps: []string{"add a safe return"}}, &stepBudget{max: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if thinking.PrimarySnippet == nil || thinking.PrimarySnippet.SymbolName != "Foo" {
		t.Fatalf("expected primary snippet to be populated")
	}
	if applyEvents == 0 {
		t.Fatalf("expected the ranked self-edit to stream at least one ApplyEditStream event")
	}
}
