package sessionservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/skcd-labs/sidecar-core/internal/event"
	"github.com/skcd-labs/sidecar-core/internal/llmbridge"
	"github.com/skcd-labs/sidecar-core/internal/types"
)

// HumanMessagePayload is the payload of a Human exchange.
type HumanMessagePayload struct {
	Text        string            `json:"text"`
	UserContext types.UserContext `json:"user_context"`
}

// HumanMessage appends a Human exchange, creating the session on disk
// first if storagePath names no existing one.
func (s *Service) HumanMessage(ctx context.Context, id types.SessionId, storagePath, repoRef, text string, uc types.UserContext) (*types.Session, *types.Exchange, error) {
	st := s.stateFor(id)
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, _, err := s.loadOrCreate(ctx, id, storagePath, repoRef)
	if err != nil {
		return nil, nil, err
	}

	ex := &types.Exchange{
		Id:      types.NewExchangeId(),
		Kind:    types.ExchangeHuman,
		Payload: HumanMessagePayload{Text: text, UserContext: uc},
		State:   types.ExchangeAccepted,
	}
	sess.AppendExchange(ex)

	if err := s.save(ctx, sess); err != nil {
		return nil, nil, err
	}
	return sess, ex, nil
}

// PlanPayload is the payload of a Plan exchange: the raw LLM plan text,
// stubbed per the distilled spec's "partially stubbed" plan machinery —
// no further sub-exchange decomposition.
type PlanPayload struct {
	Text string `json:"text"`
}

// PlanGeneration appends a Plan exchange carrying the model's raw plan
// text for prompt, driving the Plan engine directly through the Bridge
// rather than through a Symbol Agent, since planning precedes any
// symbol being located.
func (s *Service) PlanGeneration(ctx context.Context, id types.SessionId, prompt string) (*types.Session, *types.Exchange, error) {
	st := s.stateFor(id)
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	var plan strings.Builder
	_, err = s.bridge.StreamCompletion(ctx, llmbridge.CompletionRequest{
		Model: s.model,
		Messages: []llmbridge.Message{
			{Role: llmbridge.RoleSystem, Content: "Produce a concise, numbered implementation plan for the requested change. Do not write code."},
			{Role: llmbridge.RoleUser, Content: prompt},
		},
	}, func(delta string) error {
		plan.WriteString(delta)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("sessionservice: plan generation: %w", err)
	}

	ex := &types.Exchange{
		Id:      types.NewExchangeId(),
		Kind:    types.ExchangePlan,
		Payload: PlanPayload{Text: plan.String()},
		State:   types.ExchangeOpen,
	}
	sess.AppendExchange(ex)

	if err := s.save(ctx, sess); err != nil {
		return nil, nil, err
	}
	return sess, ex, nil
}

// AgenticEditPayload is the payload of an AgenticEdit exchange.
type AgenticEditPayload struct {
	RootSymbol types.SymbolId `json:"root_symbol"`
	PlanSteps  []string       `json:"plan_steps"`
}

// CodeEditAgentic appends an AgenticEdit exchange, spawns an
// InitialRequest against rootSymbol through the session's Hub, and
// tracks a cancellation token for the exchange. The edit itself runs
// asynchronously: this call returns once the exchange is recorded and
// dispatch has started, not once the edit finishes.
func (s *Service) CodeEditAgentic(ctx context.Context, id types.SessionId, rootSymbol types.SymbolId, planSteps []string) (*types.Session, *types.Exchange, error) {
	st := s.stateFor(id)
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	ex := &types.Exchange{
		Id:      types.NewExchangeId(),
		Kind:    types.ExchangeAgenticEdit,
		Payload: AgenticEditPayload{RootSymbol: rootSymbol, PlanSteps: planSteps},
		State:   types.ExchangeOpen,
	}
	sess.AppendExchange(ex)
	sess.MarkRunning(ex.Id)

	hub := s.hubFor(ctx, st)
	editCtx, cancel := context.WithCancel(context.Background())
	s.trackCancel(id, ex.Id, cancel)

	req := types.SymbolEventRequest{
		Target:    rootSymbol,
		Event:     types.SymbolEvent{Kind: types.EventInitialRequest, PlanSteps: planSteps},
		RequestId: types.NewRequestId(),
		Exchange:  ex.Id,
	}
	go s.runTrackedEdit(editCtx, hub, id, ex.Id, req)

	if err := s.save(ctx, sess); err != nil {
		return nil, nil, err
	}
	return sess, ex, nil
}

// AnchoredEditPayload is the payload of an AnchoredEdit exchange.
type AnchoredEditPayload struct {
	Symbol    types.SymbolId `json:"symbol"`
	Selection types.VariableInformation `json:"selection"`
}

// CodeEditAnchored requires a non-empty Selection in uc, appends an
// AnchoredEdit exchange, and issues a targeted Edit event scoped to
// that selection's range.
func (s *Service) CodeEditAnchored(ctx context.Context, id types.SessionId, symbol types.SymbolId, uc types.UserContext) (*types.Session, *types.Exchange, error) {
	selections := uc.Selections()
	if len(selections) == 0 {
		return nil, nil, fmt.Errorf("sessionservice: code_edit_anchored requires a non-empty selection")
	}
	selection := selections[0]

	st := s.stateFor(id)
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	ex := &types.Exchange{
		Id:      types.NewExchangeId(),
		Kind:    types.ExchangeAnchoredEdit,
		Payload: AnchoredEditPayload{Symbol: symbol, Selection: selection},
		State:   types.ExchangeOpen,
	}
	sess.AppendExchange(ex)
	sess.MarkRunning(ex.Id)

	hub := s.hubFor(ctx, st)
	editCtx, cancel := context.WithCancel(context.Background())
	s.trackCancel(id, ex.Id, cancel)

	req := types.SymbolEventRequest{
		Target: symbol,
		Event: types.SymbolEvent{
			Kind: types.EventEdit,
			Edit: &types.SymbolToEditRequest{
				Symbols: []types.SymbolToEdit{{
					Name:    selection.Name,
					Range:   selection.Range(),
					File:    selection.File,
					Reasons: []string{"anchored edit from user selection"},
				}},
			},
		},
		RequestId: types.NewRequestId(),
		Exchange:  ex.Id,
	}
	go s.runTrackedEdit(editCtx, hub, id, ex.Id, req)

	if err := s.save(ctx, sess); err != nil {
		return nil, nil, err
	}
	return sess, ex, nil
}

// runTrackedEdit routes req through hub, clearing the exchange's running
// and cancellation-token bookkeeping once it settles. A routing error
// (including cancellation) marks the exchange Cancelled and publishes an
// exchange-cancelled event; a failed response marks it Rejected and
// publishes a fatal-error event when the response carries an error.
func (s *Service) runTrackedEdit(ctx context.Context, hub interface {
	Route(context.Context, types.SymbolEventRequest) (types.SymbolEventResponse, error)
}, sessionID types.SessionId, exchangeID types.ExchangeId, req types.SymbolEventRequest) {
	resp, err := hub.Route(ctx, req)
	s.popCancel(sessionID, exchangeID)

	saveCtx := context.Background()
	st := s.stateFor(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, loadErr := s.load(saveCtx, sessionID)
	if loadErr != nil {
		return
	}
	sess.ClearRunning(exchangeID)

	ex := sess.FindExchange(exchangeID)
	if ex != nil {
		switch {
		case err != nil:
			ex.State = types.ExchangeCancelled
			s.bus.Publish(event.Event{Type: event.TypeExchangeCancelled, RequestId: string(req.RequestId), Data: exchangeID})
		case !resp.Ok:
			ex.State = types.ExchangeRejected
			if resp.Err != nil {
				s.bus.Publish(event.Event{Type: event.TypeFatalError, RequestId: string(req.RequestId), Data: resp.Err})
			}
		default:
			ex.State = types.ExchangeAccepted
		}
	}
	_ = s.save(saveCtx, sess)
}
