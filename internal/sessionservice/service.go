// Package sessionservice persists Session as JSON and drives the
// multi-turn human_message/plan_generation/code_edit_agentic/
// code_edit_anchored/handle_session_undo/feedback_for_exchange/
// set_exchange_as_cancelled operations, tracking a per-exchange
// cancellation token for every running code edit.
package sessionservice

import (
	"context"
	"fmt"
	"sync"

	"github.com/skcd-labs/sidecar-core/internal/event"
	"github.com/skcd-labs/sidecar-core/internal/llmbridge"
	"github.com/skcd-labs/sidecar-core/internal/storage"
	"github.com/skcd-labs/sidecar-core/internal/symbolagent"
	"github.com/skcd-labs/sidecar-core/internal/symbolhub"
	"github.com/skcd-labs/sidecar-core/internal/toolbox"
	"github.com/skcd-labs/sidecar-core/internal/types"
)

type cancelKey struct {
	session  types.SessionId
	exchange types.ExchangeId
}

// sessionState bundles the in-process bookkeeping a live session needs
// beyond its persisted Session document: its own Hub (so its symbol
// agents run under a session-scoped root token) and a lock serializing
// operations against it, matching the Ownership rule that a session's
// in-memory state has exactly one holder at a time.
type sessionState struct {
	mu  sync.Mutex
	hub *symbolhub.Hub
}

// Service is the single entry point for every session-scoped operation.
type Service struct {
	storage     *storage.SessionStore
	box         *toolbox.Box
	bridge      *llmbridge.Bridge
	bus         *event.Bus
	agentConfig symbolagent.Config
	model       string

	mu            sync.Mutex
	sessions      map[types.SessionId]*sessionState
	cancellations map[cancelKey]context.CancelFunc
}

// New builds a Service. box and bridge are shared across every session
// this service manages; bus fans out UI events for all of them.
func New(store *storage.SessionStore, box *toolbox.Box, bridge *llmbridge.Bridge, bus *event.Bus, agentConfig symbolagent.Config, model string) *Service {
	return &Service{
		storage:       store,
		box:           box,
		bridge:        bridge,
		bus:           bus,
		agentConfig:   agentConfig,
		model:         model,
		sessions:      make(map[types.SessionId]*sessionState),
		cancellations: make(map[cancelKey]context.CancelFunc),
	}
}

func (s *Service) stateFor(id types.SessionId) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		st = &sessionState{}
		s.sessions[id] = st
	}
	return st
}

// hubFor returns the session's Hub, starting it on first use. Callers
// must already hold the sessionState's lock.
func (s *Service) hubFor(ctx context.Context, st *sessionState) *symbolhub.Hub {
	if st.hub == nil {
		st.hub = symbolhub.New(ctx, s.box, s.bridge, s.bus, s.agentConfig)
		go st.hub.Run()
	}
	return st.hub
}

func (s *Service) load(ctx context.Context, id types.SessionId) (*types.Session, error) {
	var sess types.Session
	err := s.storage.Load(ctx, id, &sess)
	if err == nil {
		return &sess, nil
	}
	if err == storage.ErrNotFound {
		return nil, err
	}
	return nil, fmt.Errorf("sessionservice: loading %s: %w", id, err)
}

func (s *Service) save(ctx context.Context, sess *types.Session) error {
	if err := s.storage.Save(ctx, sess.SessionId, sess); err != nil {
		return fmt.Errorf("sessionservice: saving %s: %w", sess.SessionId, err)
	}
	s.bus.Publish(event.Event{Type: event.TypeSessionUpdated, RequestId: string(sess.SessionId), Data: sess})
	return nil
}

// loadOrCreate implements human_message's "if file missing, create new
// session" clause; every other operation requires the session to
// already exist and propagates storage.ErrNotFound otherwise.
func (s *Service) loadOrCreate(ctx context.Context, id types.SessionId, storagePath, repoRef string) (*types.Session, bool, error) {
	sess, err := s.load(ctx, id)
	if err == nil {
		return sess, false, nil
	}
	if err != storage.ErrNotFound {
		return nil, false, err
	}
	sess = types.NewSession(id, storagePath, repoRef)
	s.bus.Publish(event.Event{Type: event.TypeSessionCreated, RequestId: string(id), Data: sess})
	return sess, true, nil
}

func (s *Service) trackCancel(sessionID types.SessionId, exchangeID types.ExchangeId, cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancellations[cancelKey{sessionID, exchangeID}] = cancel
	s.mu.Unlock()
}

func (s *Service) popCancel(sessionID types.SessionId, exchangeID types.ExchangeId) (context.CancelFunc, bool) {
	key := cancelKey{sessionID, exchangeID}
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.cancellations[key]
	if ok {
		delete(s.cancellations, key)
	}
	return cancel, ok
}
