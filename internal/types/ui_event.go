package types

// SymbolEventSubStepKind discriminates the UI-visible sub-steps an agent
// reports while working an event, grounded on the source's ui_event substep union.
type SymbolEventSubStepKind string

const (
	SubStepProbe          SymbolEventSubStepKind = "probe"
	SubStepGoToDefinition SymbolEventSubStepKind = "go_to_definition"
	SubStepEdit           SymbolEventSubStepKind = "edit"
)

// SymbolEventSubStep is one UI-visible progress notch within a larger event.
type SymbolEventSubStep struct {
	Kind     SymbolEventSubStepKind `json:"kind"`
	SymbolId SymbolId               `json:"symbol_id"`
	Detail   string                 `json:"detail,omitempty"`
}

// EditApplyEventKind discriminates the phase of a streamed apply-edit.
type EditApplyEventKind string

const (
	ApplyStart EditApplyEventKind = "start"
	ApplyDelta EditApplyEventKind = "delta"
	ApplyEnd   EditApplyEventKind = "end"
)

// EditRequestFinished summarizes one edit-request id whose blocks have all
// been processed (successfully or not). Nothing in this module builds or
// publishes one; the search/replace engine reports through its Result.
type EditRequestFinished struct {
	EditRequestId EditRequestId `json:"edit_request_id"`
	File          string        `json:"file"`
	Succeeded     int           `json:"succeeded"`
	Failed        int           `json:"failed"`
}

// FrameworkEventKind enumerates the coarse framework-level progress notches
// surfaced to the UI alongside symbol-scoped events.
type FrameworkEventKind string

const (
	FrameworkInitialSearchSymbols     FrameworkEventKind = "initial_search_symbols"
	FrameworkOpenFile                 FrameworkEventKind = "open_file"
	FrameworkReferenceFound           FrameworkEventKind = "reference_found"
	FrameworkReferenceRelevant        FrameworkEventKind = "reference_relevant"
	FrameworkGroupedReferences        FrameworkEventKind = "grouped_references"
	FrameworkRepoMapGenerationStart   FrameworkEventKind = "repo_map_generation_start"
	FrameworkRepoMapGenerationFinished FrameworkEventKind = "repo_map_generation_finished"
	FrameworkLongContextSearchStart   FrameworkEventKind = "long_context_search_start"
	FrameworkLongContextSearchFinished FrameworkEventKind = "long_context_search_finished"
	FrameworkCodeIterationFinished    FrameworkEventKind = "code_iteration_finished"
)

// FrameworkEvent is a coarse progress notification not scoped to one symbol.
type FrameworkEvent struct {
	Kind    FrameworkEventKind `json:"kind"`
	Symbols []SymbolId         `json:"symbols,omitempty"`
	File    string             `json:"file,omitempty"`
	Detail  string             `json:"detail,omitempty"`
}
