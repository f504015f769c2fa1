package types

import "sync"

// OutlineKind classifies the structural role of a Snippet.
type OutlineKind string

const (
	OutlineClass          OutlineKind = "class"
	OutlineFunction       OutlineKind = "function"
	OutlineClassDefinition OutlineKind = "class_definition"
	OutlineOther          OutlineKind = "other"
)

// Snippet is an immutable, owned region of source bound to a symbol at a
// point in time. Content is never mutated in place; a change produces a new Snippet.
type Snippet struct {
	SymbolName  string      `json:"symbol_name"`
	Range       Range       `json:"range"`
	File        string      `json:"file"`
	Content     string      `json:"content"`
	Language    string      `json:"language"`
	OutlineKind OutlineKind `json:"outline_kind"`
}

// OutlineNode is a structural region of a file (class/function/method),
// produced by the editor bridge's document-outline response and consumed
// read-only by the core; it is never mutated after construction.
type OutlineNode struct {
	Name     string        `json:"name"`
	Kind     OutlineKind   `json:"kind"`
	Range    Range         `json:"range"`
	File     string        `json:"file"`
	Children []OutlineNode `json:"children,omitempty"`
}

// MechaCodeSymbolThinking is the per-agent working state for exactly one
// symbol. The owning Symbol Agent is the sole writer; mailbox serialization
// is the only synchronization this struct needs, so its mutex merely guards
// against accidental cross-goroutine reads during tests/inspection.
type MechaCodeSymbolThinking struct {
	mu sync.Mutex

	SymbolName      string       `json:"symbol_name"`
	File            string       `json:"file"`
	IsNew           bool         `json:"is_new"`
	Steps           []string     `json:"steps"`
	PrimarySnippet  *Snippet     `json:"primary_snippet,omitempty"`
	Implementations []Snippet    `json:"implementations"`
	UserContext     UserContext  `json:"user_context"`
}

// NewMechaCodeSymbolThinking creates the initial per-symbol thinking state.
func NewMechaCodeSymbolThinking(id SymbolId, uc UserContext) *MechaCodeSymbolThinking {
	return &MechaCodeSymbolThinking{
		SymbolName:  id.Name,
		File:        id.File,
		IsNew:       id.IsNew(),
		UserContext: uc,
	}
}

// AddStep appends a rationale entry; steps are append-only.
func (m *MechaCodeSymbolThinking) AddStep(step string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Steps = append(m.Steps, step)
}

// SetPrimarySnippet replaces the primary snippet (never mutates the old one).
func (m *MechaCodeSymbolThinking) SetPrimarySnippet(s Snippet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PrimarySnippet = &s
}

// AddImplementation appends a newly discovered implementation snippet.
func (m *MechaCodeSymbolThinking) AddImplementation(s Snippet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Implementations = append(m.Implementations, s)
}

// Snapshot returns a value copy safe to serialize or hand to read-only callers.
func (m *MechaCodeSymbolThinking) Snapshot() MechaCodeSymbolThinking {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m
	cp.Steps = append([]string(nil), m.Steps...)
	cp.Implementations = append([]Snippet(nil), m.Implementations...)
	return cp
}

// VariableKind classifies a UserContext variable.
type VariableKind string

const (
	VariableFile      VariableKind = "file"
	VariableCodeSymbol VariableKind = "code_symbol"
	VariableSelection VariableKind = "selection"
)

// VariableInformation is one user-provided context item.
type VariableInformation struct {
	Kind     VariableKind `json:"kind"`
	File     string       `json:"file"`
	Start    Position     `json:"start"`
	End      Position     `json:"end"`
	Name     string       `json:"name"`
	Content  string       `json:"content"`
	Language string       `json:"language"`
}

// Range reconstructs the span this variable covers.
func (v VariableInformation) Range() Range { return Range{Start: v.Start, End: v.End} }

// FileContentEntry is one file supplied verbatim as part of a UserContext.
type FileContentEntry struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// UserContext bundles everything the user attached to a request.
type UserContext struct {
	Variables         []VariableInformation `json:"variables"`
	FileContentMap    []FileContentEntry    `json:"file_content_map"`
	FolderPaths       []string              `json:"folder_paths"`
	TerminalSelection *string               `json:"terminal_selection,omitempty"`
}

// Selections returns the Selection-kind variables with a non-empty range;
// zero-length selections are ignored per the anchored-edit contract.
func (u UserContext) Selections() []VariableInformation {
	var out []VariableInformation
	for _, v := range u.Variables {
		if v.Kind == VariableSelection && !v.Range().Empty() {
			out = append(out, v)
		}
	}
	return out
}

// LLMProvider enumerates supported completion providers.
type LLMProvider string

const (
	ProviderAnthropic LLMProvider = "anthropic"
	ProviderOpenAI    LLMProvider = "openai"
	ProviderArk       LLMProvider = "ark"
)

// LLMProviderApiKey carries the credential matched to an LLMProvider variant.
type LLMProviderApiKey struct {
	Provider LLMProvider `json:"provider"`
	Key      string      `json:"-"`
}

// LLMProperties pins the provider/model/credential triple for one exchange,
// threaded through SymbolEventMessageProperties end to end.
type LLMProperties struct {
	Provider LLMProvider       `json:"provider"`
	ApiKey   LLMProviderApiKey `json:"-"`
	Model    string            `json:"model"`
}

// ToolUseAgentProperties is a free-form metadata bag threaded into prompts
// for additional context (repo name, root request id).
type ToolUseAgentProperties struct {
	RepoName      string `json:"repo_name,omitempty"`
	RootRequestId string `json:"root_request_id,omitempty"`
}
