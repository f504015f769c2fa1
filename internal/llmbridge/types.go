// Package llmbridge is the provider-agnostic streaming completion gateway.
// It normalizes the message history into strict role alternation, resolves
// a model string to one registered provider, and retries transient
// transport failures with backoff, surfacing every other failure untouched.
package llmbridge

import "fmt"

// Role discriminates one message's speaker in a completion request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
)

// FunctionCall is an assistant-issued call to a named tool, or (on a
// RoleFunction message) the result being fed back to the model.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one turn of conversation history, independent of any
// provider SDK's wire shape.
type Message struct {
	Role         Role          `json:"role"`
	Content      string        `json:"content"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
	CacheHint    bool          `json:"cache_hint,omitempty"`
}

// ToolParameter describes one named argument of a ToolInfo.
type ToolParameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// ToolInfo describes one function the model may call, independent of the
// broker's own ToolKind vocabulary.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  []ToolParameter `json:"parameters,omitempty"`
}

// CompletionRequest is the provider-agnostic request shape a symbol agent
// builds once and hands to the bridge.
type CompletionRequest struct {
	Model       string         `json:"model"`
	Messages    []Message      `json:"messages"`
	Temperature float64        `json:"temperature"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
	StopWords   []string       `json:"stop_words,omitempty"`
	Tools       []ToolInfo     `json:"tools,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// DeltaSink receives each streamed text fragment as it arrives. Returning
// an error aborts the stream.
type DeltaSink func(delta string) error

// ErrorKind discriminates the failure taxonomy an LLMError carries.
type ErrorKind string

const (
	ErrFailedToGetResponse ErrorKind = "failed_to_get_response"
	ErrUnsupportedModel    ErrorKind = "unsupported_model"
	ErrWrongApiKeyType     ErrorKind = "wrong_api_key_type"
	ErrTransport           ErrorKind = "transport"
	ErrSerde               ErrorKind = "serde"
)

// Error is the bridge's error taxonomy. Transport is the only kind the
// bridge itself retries; every other kind is returned to the caller as-is.
type Error struct {
	Kind    ErrorKind
	Message string
	Inner   error
}

func (e *Error) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("llm bridge: %s: %s: %v", e.Kind, e.Message, e.Inner)
	}
	return fmt.Sprintf("llm bridge: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Inner }

func newError(kind ErrorKind, message string, inner error) *Error {
	return &Error{Kind: kind, Message: message, Inner: inner}
}
