// Package searchreplace implements the streaming SEARCH/REPLACE block
// parser and applier: a line-buffered state machine that consumes LLM
// delta text, streams only the REPLACE content to the editor as it
// arrives, and validates+applies each block against the file it targets
// once its closing marker is seen.
package searchreplace

import (
	"context"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/skcd-labs/sidecar-core/internal/types"
)

const (
	markerSearchOpen  = "<<<<<<< SEARCH"
	markerDivider     = "======="
	markerReplaceClose = ">>>>>>> REPLACE"
	fencePrefix       = "```"
)

type state int

const (
	stateOutside state = iota
	stateInPath
	stateInFence
	stateInSearch
	stateInReplace
	stateDone
)

// FailureKind discriminates why a block could not be applied.
type FailureKind string

const (
	MatchMissing FailureKind = "match_missing"
	Ambiguous    FailureKind = "ambiguous"
)

// Failure is one structured block-apply failure; the block is skipped and
// the stream continues. Suggestion is the existing span in the file
// closest to SEARCH by Levenshtein distance, offered as a near-miss
// diagnostic for both MatchMissing (nothing matched) and Ambiguous
// (more than one place matched) — empty when the file had no lines to
// compare against.
type Failure struct {
	Path       string
	Block      int
	Kind       FailureKind
	Suggestion string
}

// FileLoader reads the current content of path the first time a block
// targets it; subsequent blocks in the same stream see prior blocks'
// edits via the engine's internal cache, not another Load call.
type FileLoader func(ctx context.Context, path string) (string, error)

// EditEvent is one frame the engine emits toward the editor.
type EditEvent struct {
	EditRequestId types.EditRequestId
	Path          string
	Event         types.EditApplyEventKind
	Text          string
}

// Sink receives each EditEvent as it's produced.
type Sink func(ctx context.Context, ev EditEvent) error

// Result summarizes one Engine run.
type Result struct {
	AppliedBlocks int
	Failures      []Failure
	FinalContent  map[string]string
	Cancelled     bool
}

// Engine drives one streamed apply-edit run. It is not safe for concurrent
// use; one Engine serves exactly one EditRequestId.
type Engine struct {
	editRequestId types.EditRequestId
	loader        FileLoader
	sink          Sink
	isCancelled   func() bool

	st          state
	lineBuf     strings.Builder
	path        string
	lang        string
	searchLines []string
	replaceLines []string
	blockIndex  int

	fileCache map[string]string
	result    Result
	cancelled bool
	streamOpen bool
}

// New creates an Engine for one edit request. isCancelled is polled at
// each delta and before each block apply per the cancellation contract.
func New(editRequestId types.EditRequestId, loader FileLoader, sink Sink, isCancelled func() bool) *Engine {
	return &Engine{
		editRequestId: editRequestId,
		loader:        loader,
		sink:          sink,
		isCancelled:   isCancelled,
		fileCache:     make(map[string]string),
		result:        Result{FinalContent: make(map[string]string)},
	}
}

// Feed appends one chunk of streamed LLM text and processes every
// complete line it now contains; a trailing partial line remains
// buffered until the next Feed or Flush.
func (e *Engine) Feed(ctx context.Context, delta string) error {
	if e.checkCancelled(ctx) {
		return nil
	}
	e.lineBuf.WriteString(delta)
	buf := e.lineBuf.String()
	lines := strings.Split(buf, "\n")
	// Keep the last (possibly partial) line buffered.
	e.lineBuf.Reset()
	e.lineBuf.WriteString(lines[len(lines)-1])
	for _, line := range lines[:len(lines)-1] {
		if e.checkCancelled(ctx) {
			return nil
		}
		if err := e.processLine(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

// Flush processes any remaining buffered partial line; call once the
// underlying LLM stream has ended.
func (e *Engine) Flush(ctx context.Context) (Result, error) {
	if !e.cancelled && e.lineBuf.Len() > 0 {
		line := e.lineBuf.String()
		e.lineBuf.Reset()
		if err := e.processLine(ctx, line); err != nil {
			return e.result, err
		}
	}
	for path, content := range e.fileCache {
		e.result.FinalContent[path] = content
	}
	return e.result, nil
}

func (e *Engine) checkCancelled(ctx context.Context) bool {
	if e.cancelled {
		return true
	}
	if (e.isCancelled != nil && e.isCancelled()) || ctx.Err() != nil {
		e.cancelled = true
		e.result.Cancelled = true
		if e.streamOpen {
			e.emit(ctx, types.ApplyEnd, "")
			e.streamOpen = false
		}
		return true
	}
	return false
}

func (e *Engine) processLine(ctx context.Context, line string) error {
	switch e.st {
	case stateDone:
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			return nil
		}
		if strings.HasPrefix(trimmed, fencePrefix) {
			// Closing fence of the just-finished block; await the next path line.
			e.st = stateOutside
			return nil
		}
		// No closing fence observed; be lenient and treat this as the next block's path.
		e.path = trimmed
		e.st = stateInPath
	case stateOutside:
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			return nil
		}
		e.path = trimmed
		e.st = stateInPath
	case stateInPath:
		if strings.HasPrefix(strings.TrimSpace(line), fencePrefix) {
			e.lang = strings.TrimPrefix(strings.TrimSpace(line), fencePrefix)
			e.st = stateInFence
		}
	case stateInFence:
		if strings.TrimSpace(line) == markerSearchOpen {
			e.searchLines = nil
			e.replaceLines = nil
			e.st = stateInSearch
			e.streamOpen = true
			return e.emit(ctx, types.ApplyStart, "")
		}
	case stateInSearch:
		if strings.TrimSpace(line) == markerDivider {
			e.st = stateInReplace
			return nil
		}
		e.searchLines = append(e.searchLines, line)
	case stateInReplace:
		if strings.TrimSpace(line) == markerReplaceClose {
			e.st = stateDone
			e.streamOpen = false
			if err := e.closeBlock(ctx); err != nil {
				return err
			}
			return e.emit(ctx, types.ApplyEnd, "")
		}
		e.replaceLines = append(e.replaceLines, line)
		return e.emit(ctx, types.ApplyDelta, line+"\n")
	}
	return nil
}

func (e *Engine) closeBlock(ctx context.Context) error {
	if e.checkCancelled(ctx) {
		return nil
	}
	e.blockIndex++

	search := strings.Join(e.searchLines, "\n")
	replace := strings.Join(e.replaceLines, "\n")

	content, ok := e.fileCache[e.path]
	if !ok {
		loaded, err := e.loader(ctx, e.path)
		if err != nil {
			loaded = ""
		}
		content = loaded
	}

	if search == "" {
		// Empty SEARCH + path creates a new file.
		e.fileCache[e.path] = replace
		e.result.AppliedBlocks++
		return nil
	}

	count := strings.Count(content, search)
	switch {
	case count == 0:
		e.result.Failures = append(e.result.Failures, Failure{Path: e.path, Block: e.blockIndex, Kind: MatchMissing, Suggestion: closestSpan(content, search)})
	case count > 1:
		e.result.Failures = append(e.result.Failures, Failure{Path: e.path, Block: e.blockIndex, Kind: Ambiguous, Suggestion: closestSpan(content, search)})
	default:
		e.fileCache[e.path] = strings.Replace(content, search, replace, 1)
		e.result.AppliedBlocks++
	}
	return nil
}

// closestSpan slides a window the height of search over content's lines
// and returns the window with the smallest Levenshtein distance to
// search, giving the caller a concrete "did you mean this?" span instead
// of a bare failure kind.
func closestSpan(content, search string) string {
	if content == "" || search == "" {
		return ""
	}
	contentLines := strings.Split(content, "\n")
	searchLines := strings.Split(search, "\n")
	window := len(searchLines)
	if window == 0 || window > len(contentLines) {
		window = len(contentLines)
	}

	var best string
	bestDist := -1
	for i := 0; i+window <= len(contentLines); i++ {
		candidate := strings.Join(contentLines[i:i+window], "\n")
		if dist := levenshtein.ComputeDistance(search, candidate); bestDist == -1 || dist < bestDist {
			bestDist = dist
			best = candidate
		}
	}
	return best
}

func (e *Engine) emit(ctx context.Context, kind types.EditApplyEventKind, text string) error {
	if e.sink == nil {
		return nil
	}
	return e.sink(ctx, EditEvent{EditRequestId: e.editRequestId, Path: e.path, Event: kind, Text: text})
}
