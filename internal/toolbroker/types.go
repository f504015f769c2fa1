// Package toolbroker is the single dispatch point for every external
// capability a symbol agent can invoke: editor RPCs, LLM completions, the
// shell, and local filesystem search. ToolKind is a closed enum; Invoke
// table-dispatches on it rather than through virtual method calls.
package toolbroker

import (
	"github.com/skcd-labs/sidecar-core/internal/llmbridge"
	"github.com/skcd-labs/sidecar-core/internal/types"
)

// Kind enumerates every capability the broker exposes.
type Kind string

const (
	OpenFile               Kind = "open_file"
	FindInFile             Kind = "find_in_file"
	GotoDefinition         Kind = "goto_definition"
	GotoImplementation     Kind = "goto_implementation"
	GotoReference          Kind = "goto_reference"
	DocumentOutline        Kind = "document_outline"
	ApplyEditStream        Kind = "apply_edit_stream"
	ListFiles              Kind = "list_files"
	SearchFileContentRegex Kind = "search_file_content_regex"
	LSPDiagnostics         Kind = "lsp_diagnostics"
	TerminalCommand        Kind = "terminal_command"
	LLMCompletion          Kind = "llm_completion"
	LLMStreamingCompletion Kind = "llm_streaming_completion"
	CodeCorrectnessAction  Kind = "code_correctness_action"
	AttemptCompletion      Kind = "attempt_completion"
	AskFollowup            Kind = "ask_followup"
)

// --- Input/output payloads, one pair per Kind ---

type OpenFileInput struct{ Path string }
type OpenFileOutput struct {
	Content  string
	Language string
	Exists   bool
}

type FindInFileInput struct{ Content, Symbol string }
type FindInFileOutput struct{ Position *types.Position }

type GotoInput struct {
	Path     string
	Position types.Position
}
type GotoOutput struct{ Locations []LocationRef }

// LocationRef is a file+range pair returned by the goto-* family.
type LocationRef struct {
	Path  string
	Range types.Range
}

type DocumentOutlineInput struct{ Path string }
type DocumentOutlineOutput struct{ Nodes []types.OutlineNode }

type ApplyEditStreamInput struct {
	EditRequestId types.EditRequestId
	Path          string
	Range         types.Range
	Event         types.EditApplyEventKind
	Text          string
	ApplyDirectly bool
}
type ApplyEditStreamOutput struct{}

type ListFilesInput struct {
	Root    string
	Pattern string
}
type ListFilesOutput struct{ Paths []string }

type SearchFileContentRegexInput struct {
	Root    string
	Pattern string
}
type SearchMatch struct {
	Path string
	Line int
	Text string
}
type SearchFileContentRegexOutput struct{ Matches []SearchMatch }

type LSPDiagnosticsInput struct{ Path string }
type LSPDiagnosticsOutput struct {
	Diagnostics []Diagnostic
}
type Diagnostic struct {
	Range    types.Range
	Message  string
	Severity string
}

type TerminalCommandInput struct {
	Command string
	Cwd     string
}
type TerminalCommandOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

type LLMCompletionInput struct {
	Request llmbridge.CompletionRequest
}
type LLMCompletionOutput struct{ Text string }

type LLMStreamingCompletionInput struct {
	Request llmbridge.CompletionRequest
	Sink    llmbridge.DeltaSink
}
type LLMStreamingCompletionOutput struct{ Text string }

type CodeCorrectnessActionInput struct {
	Path        string
	Diagnostics []Diagnostic
}
type CodeCorrectnessActionOutput struct{ FollowupEdits []types.SymbolToEdit }

type AttemptCompletionInput struct{ Summary string }
type AttemptCompletionOutput struct{}

type AskFollowupInput struct{ Question string }
type AskFollowupOutput struct{ Answer string }
