// Package symbolagent implements the per-symbol actor: one goroutine and
// mailbox owning the knowledge and in-flight work for exactly one
// SymbolId. Events are drained one at a time, never concurrently, and the
// mailbox is never held locked across a suspend on an external tool.
package symbolagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/skcd-labs/sidecar-core/internal/event"
	"github.com/skcd-labs/sidecar-core/internal/llmbridge"
	"github.com/skcd-labs/sidecar-core/internal/toolbox"
	"github.com/skcd-labs/sidecar-core/internal/types"
)

// Config tunes one agent's bounded behavior.
type Config struct {
	MaxAgentSteps int
	Model         string
}

// DefaultConfig mirrors the teacher's session-loop step budget.
func DefaultConfig() Config {
	return Config{MaxAgentSteps: 50, Model: "anthropic/claude-sonnet-4-20250514"}
}

type mailboxMsg struct {
	event types.SymbolEvent
	reply chan types.SymbolEventResponse
}

// Agent owns one SymbolId's MechaCodeSymbolThinking and processes its
// mailbox serially.
type Agent struct {
	id       types.SymbolId
	thinking *types.MechaCodeSymbolThinking
	box      *toolbox.Box
	bridge   *llmbridge.Bridge
	hub      toolbox.EventRouter
	bus      *event.Bus
	judge    toolbox.RelevanceJudge
	config   Config

	mailbox chan mailboxMsg
	done    chan struct{}
}

// New constructs an agent for id, seeded with thinking, that dispatches
// tool work through box and outbound follow-up events through hub.
func New(id types.SymbolId, thinking *types.MechaCodeSymbolThinking, box *toolbox.Box, bridge *llmbridge.Bridge, hub toolbox.EventRouter, bus *event.Bus, config Config) *Agent {
	if config.MaxAgentSteps <= 0 {
		config.MaxAgentSteps = DefaultConfig().MaxAgentSteps
	}
	if config.Model == "" {
		config.Model = DefaultConfig().Model
	}
	return &Agent{
		id:       id,
		thinking: thinking,
		box:      box,
		bridge:   bridge,
		hub:      hub,
		bus:      bus,
		judge:    toolbox.NewLLMRelevanceJudge(bridge, config.Model),
		config:   config,
		mailbox:  make(chan mailboxMsg, 16),
		done:     make(chan struct{}),
	}
}

// Run drains the mailbox until the context is cancelled or a Delete event
// is processed, at which point it closes done so the Locker can remove
// this agent's entry.
func (a *Agent) Run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-a.mailbox:
			if !ok {
				return
			}
			resp := a.handle(ctx, msg.event)
			msg.reply <- resp
			if msg.event.Kind == types.EventDelete {
				return
			}
		}
	}
}

// Done reports when the agent's loop has exited.
func (a *Agent) Done() <-chan struct{} { return a.done }

// Enqueue sends ev into the mailbox and returns immediately with a
// channel that will carry the event's eventual response. A single-
// threaded router (the Symbol Hub, via the Locker) calls this
// synchronously for every event it pulls so submission order into one
// symbol's mailbox matches the order those events were received in,
// without blocking the router for the full duration of processing.
func (a *Agent) Enqueue(ctx context.Context, ev types.SymbolEvent) (<-chan types.SymbolEventResponse, error) {
	reply := make(chan types.SymbolEventResponse, 1)
	select {
	case a.mailbox <- mailboxMsg{event: ev, reply: reply}:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.done:
		return nil, fmt.Errorf("symbolagent: %s is no longer running", a.id)
	}
}

// Submit enqueues ev and blocks for its response, honoring ctx
// cancellation on both the send and the wait so a caller never blocks
// past the point its own work was cancelled.
func (a *Agent) Submit(ctx context.Context, ev types.SymbolEvent) (types.SymbolEventResponse, error) {
	reply, err := a.Enqueue(ctx, ev)
	if err != nil {
		return types.SymbolEventResponse{}, err
	}
	select {
	case resp := <-reply:
		return resp, nil
	case <-ctx.Done():
		return types.SymbolEventResponse{}, ctx.Err()
	}
}

// stepBudget counts tool round-trips spent on one event.
type stepBudget struct {
	max   int
	spent int
}

func (s *stepBudget) step() error {
	s.spent++
	if s.spent > s.max {
		return &types.SymbolError{Kind: types.ErrStepBudgetExceeded, Message: fmt.Sprintf("exceeded %d tool steps", s.max)}
	}
	return nil
}

func (a *Agent) handle(ctx context.Context, ev types.SymbolEvent) types.SymbolEventResponse {
	budget := &stepBudget{max: a.config.MaxAgentSteps}
	var resp types.SymbolEventResponse
	var err error

	switch ev.Kind {
	case types.EventInitialRequest:
		err = a.handleInitialRequest(ctx, ev, budget)
	case types.EventEdit:
		err = a.handleEdit(ctx, ev, budget)
	case types.EventProbe:
		resp, err = a.handleProbe(ctx, ev, budget)
	case types.EventAskQuestion:
		resp, err = a.handleAskQuestion(ctx, ev)
	case types.EventUserFeedback:
		resp, err = a.handleUserFeedback(ctx, ev)
	case types.EventDelete:
		resp, err = types.OkResponse(), nil
	case types.EventOutline:
		resp, err = a.handleOutline(ctx)
	default:
		err = &types.SymbolError{Kind: types.ErrWrongToolOutput, Message: fmt.Sprintf("unknown event kind %q", ev.Kind)}
	}

	if err != nil {
		se, ok := err.(*types.SymbolError)
		if !ok {
			se = &types.SymbolError{Kind: types.ErrToolError, Message: err.Error(), Inner: err}
		}
		a.thinking.AddStep(fmt.Sprintf("%s failed: %s", ev.Kind, se.Message))
		return types.ErrResponse(se)
	}
	if resp == (types.SymbolEventResponse{}) {
		resp = types.OkResponse()
	}
	return resp
}

func (a *Agent) publishSubStep(kind types.SymbolEventSubStepKind, detail string) {
	if a.bus == nil {
		return
	}
	a.bus.Publish(event.Event{
		Type: event.TypeSymbolSubStep,
		Data: types.SymbolEventSubStep{Kind: kind, SymbolId: a.id, Detail: detail},
	})
}

// parseRankedIndices extracts "idx: reason" tuples the LLM was asked to
// produce, one per line, tolerating stray prose lines by skipping them.
func parseRankedIndices(text string) []rankedIndex {
	var out []rankedIndex
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx, reason, ok := splitIndexLine(line)
		if !ok {
			continue
		}
		out = append(out, rankedIndex{idx: idx, reason: reason})
	}
	return out
}

type rankedIndex struct {
	idx    int
	reason string
}

func splitIndexLine(line string) (int, string, bool) {
	colon := strings.IndexAny(line, ":.)")
	if colon <= 0 {
		return 0, "", false
	}
	var idx int
	if _, err := fmt.Sscanf(line[:colon], "%d", &idx); err != nil {
		return 0, "", false
	}
	return idx, strings.TrimSpace(line[colon+1:]), true
}
