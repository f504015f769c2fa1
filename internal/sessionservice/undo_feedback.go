package sessionservice

import (
	"context"
	"fmt"

	"github.com/skcd-labs/sidecar-core/internal/event"
	"github.com/skcd-labs/sidecar-core/internal/types"
)

// HandleSessionUndo drops every exchange after targetID (targetID itself
// is kept), cancelling the
// running-edit token of any dropped exchange still in flight and
// returning the dropped exchanges so a caller can decide what, if
// anything, needs reverting at the editor.
func (s *Service) HandleSessionUndo(ctx context.Context, id types.SessionId, targetID types.ExchangeId) (*types.Session, []*types.Exchange, error) {
	st := s.stateFor(id)
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	dropped := sess.TruncateAfter(targetID)
	for _, ex := range dropped {
		if sess.IsRunning(ex.Id) {
			if cancel, ok := s.popCancel(id, ex.Id); ok {
				cancel()
			}
			sess.ClearRunning(ex.Id)
		}
	}

	if err := s.save(ctx, sess); err != nil {
		return nil, nil, err
	}
	return sess, dropped, nil
}

// AgentReplyPayload is the payload of an AgentReply exchange produced
// reactively when feedback rejects an exchange with an explanatory
// message.
type AgentReplyPayload struct {
	InReplyTo types.ExchangeId `json:"in_reply_to"`
	Text      string           `json:"text"`
}

// FeedbackForExchange marks exchangeID Accepted or Rejected. A Rejected
// verdict carrying non-empty text always appends a child AgentReply
// exchange quoting that text; an Accepted verdict never does.
func (s *Service) FeedbackForExchange(ctx context.Context, id types.SessionId, exchangeID types.ExchangeId, accepted bool, text string) (*types.Session, *types.Exchange, error) {
	st := s.stateFor(id)
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	ex := sess.FindExchange(exchangeID)
	if ex == nil {
		return nil, nil, fmt.Errorf("sessionservice: exchange %s not found", exchangeID)
	}

	var reply *types.Exchange
	if accepted {
		ex.State = types.ExchangeAccepted
	} else {
		ex.State = types.ExchangeRejected
		if text != "" {
			reply = &types.Exchange{
				Id:      types.NewExchangeId(),
				Kind:    types.ExchangeAgentReply,
				Payload: AgentReplyPayload{InReplyTo: exchangeID, Text: text},
				State:   types.ExchangeAccepted,
			}
			ex.ChildrenExchangeIds = append(ex.ChildrenExchangeIds, reply.Id)
			sess.AppendExchange(reply)
		}
	}

	if err := s.save(ctx, sess); err != nil {
		return nil, nil, err
	}
	return sess, reply, nil
}

// SetExchangeAsCancelled fires exchangeID's cancellation token if it has
// running code edits, reporting whether cancellation actually fired.
func (s *Service) SetExchangeAsCancelled(ctx context.Context, id types.SessionId, exchangeID types.ExchangeId) (bool, error) {
	st := s.stateFor(id)
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}

	if !sess.IsRunning(exchangeID) {
		return false, nil
	}

	cancel, ok := s.popCancel(id, exchangeID)
	if !ok {
		sess.ClearRunning(exchangeID)
		_ = s.save(ctx, sess)
		return false, nil
	}
	cancel()
	sess.ClearRunning(exchangeID)

	if ex := sess.FindExchange(exchangeID); ex != nil {
		ex.State = types.ExchangeCancelled
	}
	s.bus.Publish(event.Event{Type: event.TypeExchangeCancelled, RequestId: string(id), Data: exchangeID})

	if err := s.save(ctx, sess); err != nil {
		return true, err
	}
	return true, nil
}
