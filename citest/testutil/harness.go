package testutil

import (
	"context"
	"os"

	"github.com/skcd-labs/sidecar-core/internal/editorbridge"
	"github.com/skcd-labs/sidecar-core/internal/event"
	"github.com/skcd-labs/sidecar-core/internal/llmbridge"
	"github.com/skcd-labs/sidecar-core/internal/permission"
	"github.com/skcd-labs/sidecar-core/internal/sessionservice"
	"github.com/skcd-labs/sidecar-core/internal/storage"
	"github.com/skcd-labs/sidecar-core/internal/symbolagent"
	"github.com/skcd-labs/sidecar-core/internal/symbolhub"
	"github.com/skcd-labs/sidecar-core/internal/toolbox"
	"github.com/skcd-labs/sidecar-core/internal/toolbroker"
)

// Harness wires the same collaborators cmd/sidecar/commands/bootstrap.go
// assembles into one running Service, but with the editor and the LLM
// provider replaced by this package's fakes so a behavioral spec can drive
// the real session/hub/agent/broker/engine stack without a network or a
// model API key.
type Harness struct {
	Editor  *FakeEditor
	Bus     *event.Bus
	Box     *toolbox.Box
	Bridge  *llmbridge.Bridge
	Store   *storage.SessionStore
	Service *sessionservice.Service

	agentConfig symbolagent.Config
	dir         string
}

// NewHarness builds a Harness whose completions are produced by script.
func NewHarness(script ScriptFunc) *Harness {
	const providerID = "anthropic"
	const modelID = "claude-test"

	editor := NewFakeEditor()

	reg := llmbridge.NewRegistry()
	reg.Register(NewScriptedProvider(providerID, modelID, script))
	bridge := llmbridge.NewBridge(reg, llmbridge.DefaultConfig())

	bus := event.NewBus()
	editorClient := editorbridge.New(editor.URL())
	broker := toolbroker.NewDefault(toolbroker.Dependencies{
		Editor:      editorClient,
		LLM:         bridge,
		Permissions: permission.DefaultAgentPermissions(),
		Bus:         bus,
	})
	box := toolbox.New(broker)

	dir, err := os.MkdirTemp("", "sidecar-e2e-*")
	if err != nil {
		panic(err)
	}
	store := storage.NewSessionStore(dir)

	agentConfig := symbolagent.Config{MaxAgentSteps: 20, Model: providerID + "/" + modelID}
	svc := sessionservice.New(store, box, bridge, bus, agentConfig, providerID+"/"+modelID)

	return &Harness{
		Editor: editor, Bus: bus, Box: box, Bridge: bridge, Store: store, Service: svc,
		agentConfig: agentConfig, dir: dir,
	}
}

// Close tears down the fake editor's HTTP server and scratch storage.
func (h *Harness) Close() {
	h.Editor.Close()
	_ = os.RemoveAll(h.dir)
}

// Context is a convenience for callers that don't need their own deadline.
func (h *Harness) Context() context.Context { return context.Background() }

// NewHub builds a standalone Symbol Hub sharing this Harness's Box, Bridge
// and Bus, for specs that drive symbol routing directly instead of through
// a Session Service exchange (duplicate routing, BFS follow-ups).
func (h *Harness) NewHub(ctx context.Context) *symbolhub.Hub {
	hub := symbolhub.New(ctx, h.Box, h.Bridge, h.Bus, h.agentConfig)
	go hub.Run()
	return hub
}
