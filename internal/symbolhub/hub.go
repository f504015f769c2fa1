// Package symbolhub implements the single entry point through which
// user input, diagnostics, and agent-to-agent follow-ups all reach a
// session's Symbol Agents. It owns the session's root cancellation
// token and never stops serving requests because one agent failed —
// only an explicit Delete event or the Hub's own Cancel retires work.
package symbolhub

import (
	"context"
	"sync"

	"github.com/skcd-labs/sidecar-core/internal/event"
	"github.com/skcd-labs/sidecar-core/internal/llmbridge"
	"github.com/skcd-labs/sidecar-core/internal/symbolagent"
	"github.com/skcd-labs/sidecar-core/internal/symbollocker"
	"github.com/skcd-labs/sidecar-core/internal/toolbox"
	"github.com/skcd-labs/sidecar-core/internal/types"
)

// request pairs an inbound event with the channel its eventual response
// is delivered on.
type request struct {
	req   types.SymbolEventRequest
	reply chan types.SymbolEventResponse
}

// Hub is the session's single inbound channel. Construct one per
// session; call Run in its own goroutine before routing anything
// through it, and Cancel when the session ends.
type Hub struct {
	ctx    context.Context
	cancel context.CancelFunc
	locker *symbollocker.Locker

	inbound chan request
	wg      sync.WaitGroup
}

// New builds a Hub whose root cancellation token is a child of
// parentCtx, and the Locker it delegates to, already wired back to
// this Hub so spawned agents can emit follow-up events through it.
func New(parentCtx context.Context, box *toolbox.Box, bridge *llmbridge.Bridge, bus *event.Bus, config symbolagent.Config) *Hub {
	ctx, cancel := context.WithCancel(parentCtx)
	h := &Hub{
		ctx:     ctx,
		cancel:  cancel,
		inbound: make(chan request, 64),
	}
	h.locker = symbollocker.New(ctx, box, bridge, bus, config)
	h.locker.SetHub(h)
	return h
}

// Cancel tears down the session's root token, which every in-flight
// agent await observes and returns Cancelled for.
func (h *Hub) Cancel() { h.cancel() }

// Done reports the Hub's root cancellation, for callers waiting out a
// graceful session shutdown.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

// Locker exposes the underlying Locker, e.g. for diagnostics or direct
// agent inspection in tests.
func (h *Hub) Locker() *symbollocker.Locker { return h.locker }

// Run drains the inbound channel until the root token is cancelled.
// Each request is handed off to the Locker's mailbox synchronously (so
// two requests aimed at the same symbol keep their arrival order), then
// awaited in its own goroutine so one symbol's processing time never
// blocks another's.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			h.wg.Wait()
			return
		case r := <-h.inbound:
			h.dispatch(r)
		}
	}
}

func (h *Hub) dispatch(r request) {
	future, err := h.locker.Enqueue(h.ctx, r.req)
	if err != nil {
		r.reply <- types.ErrResponse(&types.SymbolError{Kind: types.ErrToolError, Message: err.Error(), Inner: err})
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		select {
		case resp := <-future:
			r.reply <- resp
		case <-h.ctx.Done():
			r.reply <- types.ErrResponse(&types.SymbolError{Kind: types.ErrCancelled, Message: "session cancelled"})
		}
	}()
}

// Route satisfies toolbox.EventRouter: it submits req to the Hub's
// inbound channel and blocks for the response, honoring both the
// caller's ctx and the Hub's own root cancellation.
func (h *Hub) Route(ctx context.Context, req types.SymbolEventRequest) (types.SymbolEventResponse, error) {
	reply := make(chan types.SymbolEventResponse, 1)
	select {
	case h.inbound <- request{req: req, reply: reply}:
	case <-ctx.Done():
		return types.SymbolEventResponse{}, ctx.Err()
	case <-h.ctx.Done():
		return types.SymbolEventResponse{}, h.ctx.Err()
	}
	select {
	case resp := <-reply:
		return resp, nil
	case <-ctx.Done():
		return types.SymbolEventResponse{}, ctx.Err()
	case <-h.ctx.Done():
		return types.SymbolEventResponse{}, h.ctx.Err()
	}
}
