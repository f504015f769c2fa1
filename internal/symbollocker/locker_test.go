package symbollocker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/skcd-labs/sidecar-core/internal/llmbridge"
	"github.com/skcd-labs/sidecar-core/internal/symbolagent"
	"github.com/skcd-labs/sidecar-core/internal/toolbox"
	"github.com/skcd-labs/sidecar-core/internal/toolbroker"
	"github.com/skcd-labs/sidecar-core/internal/types"
)

type stubProvider struct{}

func (stubProvider) ID() string                   { return "anthropic" }
func (stubProvider) Models() []llmbridge.ModelInfo { return []llmbridge.ModelInfo{{ID: "claude-test", ProviderID: "anthropic"}} }
func (stubProvider) StreamCompletion(ctx context.Context, req llmbridge.CompletionRequest, sink llmbridge.DeltaSink) (string, error) {
	return "", nil
}

func newTestLocker(ctx context.Context) *Locker {
	reg := llmbridge.NewRegistry()
	reg.Register(stubProvider{})
	bridge := llmbridge.NewBridge(reg, llmbridge.Config{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	box := toolbox.New(toolbroker.New())
	l := New(ctx, box, bridge, nil, symbolagent.Config{})
	l.SetHub(l)
	return l
}

func TestGetOrCreateReturnsSameAgentConcurrently(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := newTestLocker(ctx)
	id := types.SymbolId{Name: "Foo", File: "a.go"}

	var wg sync.WaitGroup
	var mu sync.Mutex
	agents := make([]*symbolagent.Agent, 20)
	for i := range agents {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := l.getOrCreate(ctx, id)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			mu.Lock()
			agents[i] = a
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	first := agents[0]
	for i, a := range agents {
		if a != first {
			t.Fatalf("agent %d differs from agent 0; expected exactly one agent per SymbolId", i)
		}
	}
	if got := l.Len(); got != 1 {
		t.Fatalf("expected exactly one live agent, got %d", got)
	}
}

func TestRouteDeleteRemovesAgentFromMap(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := newTestLocker(ctx)
	id := types.SymbolId{Name: "Foo", File: "a.go"}

	resp, err := l.Route(ctx, types.SymbolEventRequest{Target: id, Event: types.SymbolEvent{Kind: types.EventAskQuestion, Question: "hi"}})
	if err != nil || !resp.Ok {
		t.Fatalf("unexpected ask-question result: %+v err=%v", resp, err)
	}
	if l.Len() != 1 {
		t.Fatalf("expected agent to be spawned")
	}

	resp, err = l.Route(ctx, types.SymbolEventRequest{Target: id, Event: types.SymbolEvent{Kind: types.EventDelete}})
	if err != nil || !resp.Ok {
		t.Fatalf("unexpected delete result: %+v err=%v", resp, err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if l.Len() == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected agent entry to be removed after Delete, still have %d", l.Len())
}

func TestEnqueueServesAllEventsForOneSymbolWithOneAgent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := newTestLocker(ctx)
	id := types.SymbolId{Name: "Foo", File: "a.go"}

	const n = 10
	futures := make([]<-chan types.SymbolEventResponse, n)
	for i := 0; i < n; i++ {
		f, err := l.Enqueue(ctx, types.SymbolEventRequest{Target: id, Event: types.SymbolEvent{Kind: types.EventAskQuestion, Question: "q"}})
		if err != nil {
			t.Fatalf("enqueue %d failed: %v", i, err)
		}
		futures[i] = f
	}
	for i, f := range futures {
		select {
		case resp := <-f:
			if !resp.Ok {
				t.Fatalf("event %d failed: %+v", i, resp)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d never completed", i)
		}
	}
	if l.Len() != 1 {
		t.Fatalf("expected a single agent to have handled all events, got %d live", l.Len())
	}
}
