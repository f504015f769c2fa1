package types

// SymbolEventKind discriminates the variant carried by a SymbolEvent.
type SymbolEventKind string

const (
	EventInitialRequest SymbolEventKind = "initial_request"
	EventAskQuestion    SymbolEventKind = "ask_question"
	EventEdit           SymbolEventKind = "edit"
	EventProbe          SymbolEventKind = "probe"
	EventOutline        SymbolEventKind = "outline"
	EventDelete         SymbolEventKind = "delete"
	EventUserFeedback   SymbolEventKind = "user_feedback"
)

// SymbolToEdit names one region an Edit event asks the agent to change.
type SymbolToEdit struct {
	Name       string `json:"name"`
	Range      Range  `json:"range"`
	File       string `json:"file"`
	Reasons    []string `json:"reasons"`
	OutlineOnly bool   `json:"outline_only"`
}

// SymbolToEditRequest is the payload of an Edit event.
type SymbolToEditRequest struct {
	Symbols []SymbolToEdit `json:"symbols"`
}

// SymbolToProbeRequest is the payload of a Probe event.
type SymbolToProbeRequest struct {
	Query          string   `json:"query"`
	HistorySymbols []SymbolId `json:"history_symbols,omitempty"`
}

// SymbolEvent is one message variant delivered to a Symbol Agent's mailbox.
type SymbolEvent struct {
	Kind           SymbolEventKind       `json:"kind"`
	PlanSteps      []string              `json:"plan_steps,omitempty"`
	Edit           *SymbolToEditRequest  `json:"edit,omitempty"`
	Probe          *SymbolToProbeRequest `json:"probe,omitempty"`
	Question       string                `json:"question,omitempty"`
	Feedback       string                `json:"feedback,omitempty"`
}

// SymbolEventRequest is the cross-agent or external envelope routed through
// the Symbol Hub to the Symbol Locker.
type SymbolEventRequest struct {
	Target    SymbolId      `json:"target"`
	Event     SymbolEvent   `json:"event"`
	RequestId RequestId     `json:"request_id"`
	Exchange  ExchangeId    `json:"exchange_id"`
	Props     LLMProperties `json:"-"`
}

// SymbolErrorKind enumerates the fatal-per-event failure classes an agent can
// return on its reply channel.
type SymbolErrorKind string

const (
	ErrToolError          SymbolErrorKind = "tool_error"
	ErrWrongToolOutput    SymbolErrorKind = "wrong_tool_output"
	ErrIOError            SymbolErrorKind = "io_error"
	ErrLLMError           SymbolErrorKind = "llm_error"
	ErrUserContextError   SymbolErrorKind = "user_context_error"
	ErrStepBudgetExceeded SymbolErrorKind = "step_budget_exceeded"
	ErrCancelled          SymbolErrorKind = "cancelled"
)

// SymbolError is the fatal, per-event error an agent can surface on its reply channel.
type SymbolError struct {
	Kind    SymbolErrorKind
	Message string
	Inner   error
}

func (e *SymbolError) Error() string {
	if e.Inner != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Inner.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *SymbolError) Unwrap() error { return e.Inner }

// SymbolEventResponse is the reply every SymbolEvent must receive before the
// agent drains its next mailbox message.
type SymbolEventResponse struct {
	Ok      bool         `json:"ok"`
	Outline *OutlineNode `json:"outline,omitempty"`
	Answer  string       `json:"answer,omitempty"`
	Err     *SymbolError `json:"-"`
}

// OkResponse builds a successful response.
func OkResponse() SymbolEventResponse { return SymbolEventResponse{Ok: true} }

// ErrResponse builds a failed response carrying err.
func ErrResponse(err *SymbolError) SymbolEventResponse {
	return SymbolEventResponse{Ok: false, Err: err}
}
