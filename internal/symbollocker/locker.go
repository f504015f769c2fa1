// Package symbollocker keeps at most one live Symbol Agent per SymbolId,
// spawning agents on demand and retiring them once they exit. The map
// guard is never held across a suspend on agent I/O: lookups and
// insertions happen under the lock, agent work happens after it is
// released.
package symbollocker

import (
	"context"
	"sync"

	"github.com/skcd-labs/sidecar-core/internal/event"
	"github.com/skcd-labs/sidecar-core/internal/llmbridge"
	"github.com/skcd-labs/sidecar-core/internal/symbolagent"
	"github.com/skcd-labs/sidecar-core/internal/toolbox"
	"github.com/skcd-labs/sidecar-core/internal/types"
)

// Locker owns the SymbolId to Agent map for one session.
type Locker struct {
	rootCtx context.Context

	box    *toolbox.Box
	bridge *llmbridge.Bridge
	bus    *event.Bus
	config symbolagent.Config

	mu     sync.Mutex
	hub    toolbox.EventRouter
	agents map[types.SymbolId]*symbolagent.Agent
}

// New constructs a Locker bound to rootCtx. Spawned agents run under
// rootCtx so a session-wide cancellation reaches every live agent; hub
// may be nil initially and filled in later with SetHub once the Symbol
// Hub that owns this Locker has been constructed, since the two refer
// to each other.
func New(rootCtx context.Context, box *toolbox.Box, bridge *llmbridge.Bridge, bus *event.Bus, config symbolagent.Config) *Locker {
	return &Locker{
		rootCtx: rootCtx,
		box:     box,
		bridge:  bridge,
		bus:     bus,
		config:  config,
		agents:  make(map[types.SymbolId]*symbolagent.Agent),
	}
}

// SetHub wires the router spawned agents use to emit follow-up events to
// other symbols. Call once, before routing any request.
func (l *Locker) SetHub(hub toolbox.EventRouter) {
	l.mu.Lock()
	l.hub = hub
	l.mu.Unlock()
}

// Route satisfies toolbox.EventRouter directly, so a Locker can stand in
// for the Hub in tests or in any wiring that doesn't need the Hub's
// fan-out bookkeeping.
func (l *Locker) Route(ctx context.Context, req types.SymbolEventRequest) (types.SymbolEventResponse, error) {
	agent, err := l.getOrCreate(ctx, req.Target)
	if err != nil {
		return types.SymbolEventResponse{}, err
	}
	return agent.Submit(ctx, req.Event)
}

// Enqueue resolves req's target agent and hands its event to the
// mailbox without waiting for a response, returning a channel that
// eventually carries it. The Hub calls this from its single dispatch
// loop so that events aimed at the same symbol retain their arrival
// order, while the wait for each response happens off that loop.
func (l *Locker) Enqueue(ctx context.Context, req types.SymbolEventRequest) (<-chan types.SymbolEventResponse, error) {
	agent, err := l.getOrCreate(ctx, req.Target)
	if err != nil {
		return nil, err
	}
	return agent.Enqueue(ctx, req.Event)
}

func (l *Locker) getOrCreate(ctx context.Context, id types.SymbolId) (*symbolagent.Agent, error) {
	l.mu.Lock()
	if a, ok := l.agents[id]; ok {
		l.mu.Unlock()
		return a, nil
	}
	hub := l.hub
	l.mu.Unlock()

	thinking := types.NewMechaCodeSymbolThinking(id, types.UserContext{})
	agent := symbolagent.New(id, thinking, l.box, l.bridge, hub, l.bus, l.config)

	l.mu.Lock()
	if existing, ok := l.agents[id]; ok {
		l.mu.Unlock()
		return existing, nil
	}
	l.agents[id] = agent
	l.mu.Unlock()

	go l.run(agent, id)

	return agent, nil
}

func (l *Locker) run(agent *symbolagent.Agent, id types.SymbolId) {
	agent.Run(l.rootCtx)
	l.mu.Lock()
	if l.agents[id] == agent {
		delete(l.agents, id)
	}
	l.mu.Unlock()
}

// Len reports the number of live agents, for tests and diagnostics.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.agents)
}

// Peek returns the currently registered agent for id, if any, without
// spawning one.
func (l *Locker) Peek(id types.SymbolId) (*symbolagent.Agent, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.agents[id]
	return a, ok
}
