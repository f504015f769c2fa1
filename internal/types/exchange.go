package types

// ExchangeKind discriminates the kind of turn an Exchange represents.
type ExchangeKind string

const (
	ExchangeHuman       ExchangeKind = "human"
	ExchangePlan        ExchangeKind = "plan"
	ExchangeAgenticEdit ExchangeKind = "agentic_edit"
	ExchangeAnchoredEdit ExchangeKind = "anchored_edit"
	ExchangeToolCall    ExchangeKind = "tool_call"
	ExchangeAgentReply  ExchangeKind = "agent_reply"
)

// ExchangeState is the lifecycle state of an Exchange.
type ExchangeState string

const (
	ExchangeOpen       ExchangeState = "open"
	ExchangeAccepted   ExchangeState = "accepted"
	ExchangeRejected   ExchangeState = "rejected"
	ExchangeCancelled  ExchangeState = "cancelled"
	ExchangeRolledBack ExchangeState = "rolled_back"
)

// Exchange is one atomic turn within a Session.
type Exchange struct {
	Id                ExchangeId    `json:"id"`
	Kind              ExchangeKind  `json:"kind"`
	Payload           any           `json:"payload"`
	State             ExchangeState `json:"state"`
	ChildrenExchangeIds []ExchangeId `json:"children_exchange_ids,omitempty"`
}

// SessionSummary tracks aggregate edit counters across a session, matching
// the shape the editor UI renders alongside a session's title.
type SessionSummary struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
	Files     int `json:"files"`
}

// Session is the durable, persisted conversation state for one repo-rooted
// editing session. It is loaded lazily by storage path and rewritten to disk
// in full after every state transition.
type Session struct {
	SessionId               SessionId      `json:"session_id"`
	StoragePath             string         `json:"storage_path"`
	RepoRef                 string         `json:"repo_ref"`
	ProjectLabels           []string       `json:"project_labels"`
	GlobalUserContext       UserContext    `json:"global_user_context"`
	Exchanges               []*Exchange    `json:"exchanges"`
	RunningCodeEditExchangeIds []ExchangeId `json:"running_code_edit_exchange_ids"`
	Summary                 SessionSummary `json:"summary"`
}

// NewSession creates an empty session rooted at storagePath.
func NewSession(id SessionId, storagePath, repoRef string) *Session {
	return &Session{
		SessionId:   id,
		StoragePath: storagePath,
		RepoRef:     repoRef,
	}
}

// FindExchange returns the exchange with the given id, or nil.
func (s *Session) FindExchange(id ExchangeId) *Exchange {
	for _, ex := range s.Exchanges {
		if ex.Id == id {
			return ex
		}
	}
	return nil
}

// AppendExchange appends ex to the ordered exchange list.
func (s *Session) AppendExchange(ex *Exchange) {
	s.Exchanges = append(s.Exchanges, ex)
}

// TruncateAfter drops every exchange after (and not including) targetId,
// used by handle_session_undo; returns the dropped exchanges so the caller
// can revert any edits they made.
func (s *Session) TruncateAfter(targetId ExchangeId) []*Exchange {
	idx := -1
	for i, ex := range s.Exchanges {
		if ex.Id == targetId {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil
	}
	dropped := append([]*Exchange(nil), s.Exchanges[idx+1:]...)
	s.Exchanges = s.Exchanges[:idx+1]
	return dropped
}

// MarkRunning records that exchange id has a live code-edit in flight.
func (s *Session) MarkRunning(id ExchangeId) {
	for _, existing := range s.RunningCodeEditExchangeIds {
		if existing == id {
			return
		}
	}
	s.RunningCodeEditExchangeIds = append(s.RunningCodeEditExchangeIds, id)
}

// ClearRunning removes id from the running set.
func (s *Session) ClearRunning(id ExchangeId) {
	out := s.RunningCodeEditExchangeIds[:0]
	for _, existing := range s.RunningCodeEditExchangeIds {
		if existing != id {
			out = append(out, existing)
		}
	}
	s.RunningCodeEditExchangeIds = out
}

// IsRunning reports whether id has a live code-edit tracked.
func (s *Session) IsRunning(id ExchangeId) bool {
	for _, existing := range s.RunningCodeEditExchangeIds {
		if existing == id {
			return true
		}
	}
	return false
}
