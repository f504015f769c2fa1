// Package toolbox implements the higher-level, multi-step compositions
// symbol agents reuse: locating a symbol's snippet, anchoring a user's
// selections to enclosing symbols, diffing a changed file down to the set
// of symbols it touched, and walking references to decide follow-up
// edits. Every composition is built from toolbroker.Broker invocations;
// none of them talk to the editor directly. The one LLM caller here is the
// relevance judge built by NewLLMRelevanceJudge, which calls
// llmbridge.Bridge itself rather than going through the broker.
package toolbox

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/skcd-labs/sidecar-core/internal/llmbridge"
	"github.com/skcd-labs/sidecar-core/internal/logging"
	"github.com/skcd-labs/sidecar-core/internal/searchreplace"
	"github.com/skcd-labs/sidecar-core/internal/toolbroker"
	"github.com/skcd-labs/sidecar-core/internal/types"
)

// Box bundles the broker every composition dispatches through.
type Box struct {
	Broker *toolbroker.Broker
}

// New creates a Box wrapping broker.
func New(broker *toolbroker.Broker) *Box {
	return &Box{Broker: broker}
}

func (b *Box) invoke(ctx context.Context, kind toolbroker.Kind, payload any) (any, error) {
	out, err := b.Broker.Invoke(ctx, toolbroker.Input{Kind: kind, Payload: payload})
	if err != nil {
		return nil, err
	}
	return out.Payload, nil
}

// FindSnippetForSymbol opens file, locates name's position, resolves its
// definition, and selects the matching outline node to build a Snippet.
func (b *Box) FindSnippetForSymbol(ctx context.Context, file, name string) (*types.Snippet, error) {
	openedAny, err := b.invoke(ctx, toolbroker.OpenFile, toolbroker.OpenFileInput{Path: file})
	if err != nil {
		return nil, fmt.Errorf("find_snippet_for_symbol: open %s: %w", file, err)
	}
	opened := openedAny.(toolbroker.OpenFileOutput)
	if !opened.Exists {
		return nil, &toolbroker.Error{Kind: toolbroker.ErrSymbolNotFound, Message: fmt.Sprintf("file not found: %s", file)}
	}

	foundAny, err := b.invoke(ctx, toolbroker.FindInFile, toolbroker.FindInFileInput{Content: opened.Content, Symbol: name})
	if err != nil {
		return nil, fmt.Errorf("find_snippet_for_symbol: find-in-file %s: %w", name, err)
	}
	found := foundAny.(toolbroker.FindInFileOutput)
	if found.Position == nil {
		return nil, &toolbroker.Error{Kind: toolbroker.ErrSymbolNotFound, Message: fmt.Sprintf("%s not found in %s", name, file)}
	}

	defAny, err := b.invoke(ctx, toolbroker.GotoDefinition, toolbroker.GotoInput{Path: file, Position: *found.Position})
	if err != nil {
		return nil, fmt.Errorf("find_snippet_for_symbol: goto-definition %s: %w", name, err)
	}
	def := defAny.(toolbroker.GotoOutput)

	defPath, defRange := file, types.Range{Start: *found.Position, End: *found.Position}
	if len(def.Locations) > 0 {
		defPath = def.Locations[0].Path
		defRange = def.Locations[0].Range
	}

	outlineAny, err := b.invoke(ctx, toolbroker.DocumentOutline, toolbroker.DocumentOutlineInput{Path: defPath})
	if err != nil {
		return nil, fmt.Errorf("find_snippet_for_symbol: document-outline %s: %w", defPath, err)
	}
	outline := outlineAny.(toolbroker.DocumentOutlineOutput)

	node := selectOutlineNodeByName(outline.Nodes, name)
	if node == nil {
		return &types.Snippet{SymbolName: name, File: defPath, Range: defRange}, nil
	}

	content, err := contentAtRange(ctx, b, defPath, node.Range)
	if err != nil {
		return nil, err
	}

	return &types.Snippet{
		SymbolName: name,
		Range:      node.Range,
		File:       defPath,
		Content:    content,
		OutlineKind: node.Kind,
	}, nil
}

// selectOutlineNodeByName picks the first outline node named name, in the
// editor's own document-outline response order. When more than one node
// shares the name, that policy still applies unchanged, but the ambiguity
// is logged so the choice stays observable.
func selectOutlineNodeByName(nodes []types.OutlineNode, name string) *types.OutlineNode {
	var candidates []*types.OutlineNode
	var walk func(ns []types.OutlineNode)
	walk = func(ns []types.OutlineNode) {
		for i := range ns {
			if ns[i].Name == name {
				candidates = append(candidates, &ns[i])
			}
			walk(ns[i].Children)
		}
	}
	walk(nodes)
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) > 1 {
		logging.Debug().Str("name", name).Int("candidates", len(candidates)).Msg("find_snippet_for_symbol: multiple outline matches, using the first")
	}
	return candidates[0]
}

// SnippetAt builds a Snippet directly from a known file+range, used when a
// caller already has a location (e.g. from goto-implementation) and only
// needs the backing text, not a fresh name lookup.
func (b *Box) SnippetAt(ctx context.Context, name, path string, r types.Range) (types.Snippet, error) {
	content, err := contentAtRange(ctx, b, path, r)
	if err != nil {
		return types.Snippet{}, err
	}
	return types.Snippet{SymbolName: name, File: path, Range: r, Content: content}, nil
}

func contentAtRange(ctx context.Context, b *Box, path string, r types.Range) (string, error) {
	openedAny, err := b.invoke(ctx, toolbroker.OpenFile, toolbroker.OpenFileInput{Path: path})
	if err != nil {
		return "", err
	}
	opened := openedAny.(toolbroker.OpenFileOutput)
	return sliceLines(opened.Content, r), nil
}

func sliceLines(content string, r types.Range) string {
	lines := strings.Split(content, "\n")
	start, end := r.Start.Line, r.End.Line
	if start < 0 {
		start = 0
	}
	if end >= len(lines) {
		end = len(lines) - 1
	}
	if start > end || start >= len(lines) {
		return ""
	}
	return strings.Join(lines[start:end+1], "\n")
}

// AnchoredSymbol is one Selection variable resolved to its enclosing symbol.
type AnchoredSymbol struct {
	SymbolId types.SymbolId
	Reasons  []string
}

// SymbolsToAnchor resolves every Selection variable in uc to the outline
// node enclosing it.
func (b *Box) SymbolsToAnchor(ctx context.Context, uc types.UserContext) ([]AnchoredSymbol, error) {
	var out []AnchoredSymbol
	for _, sel := range uc.Selections() {
		outlineAny, err := b.invoke(ctx, toolbroker.DocumentOutline, toolbroker.DocumentOutlineInput{Path: sel.File})
		if err != nil {
			return nil, fmt.Errorf("symbols_to_anchor: document-outline %s: %w", sel.File, err)
		}
		outline := outlineAny.(toolbroker.DocumentOutlineOutput)

		node := enclosingOutlineNode(outline.Nodes, sel.Range())
		if node == nil {
			continue
		}
		out = append(out, AnchoredSymbol{
			SymbolId: types.SymbolId{Name: node.Name, File: sel.File},
			Reasons:  []string{fmt.Sprintf("selection at %s:%d-%d", sel.File, sel.Start.Line, sel.End.Line)},
		})
	}
	return out, nil
}

func enclosingOutlineNode(nodes []types.OutlineNode, r types.Range) *types.OutlineNode {
	var best *types.OutlineNode
	var walk func(ns []types.OutlineNode)
	walk = func(ns []types.OutlineNode) {
		for i := range ns {
			n := &ns[i]
			if n.Range.Start.Line <= r.Start.Line && r.End.Line <= n.Range.End.Line {
				best = n
				walk(n.Children)
			}
		}
	}
	walk(nodes)
	return best
}

// brokerLoader adapts Box.invoke(OpenFile) into a searchreplace.FileLoader.
func (b *Box) brokerLoader() searchreplace.FileLoader {
	return func(ctx context.Context, path string) (string, error) {
		outAny, err := b.invoke(ctx, toolbroker.OpenFile, toolbroker.OpenFileInput{Path: path})
		if err != nil {
			return "", err
		}
		return outAny.(toolbroker.OpenFileOutput).Content, nil
	}
}

// brokerSink adapts a searchreplace.EditEvent stream into ApplyEditStream
// broker calls, so the editor sees the same Start/Delta/End envelope
// regardless of which caller drove the engine.
func (b *Box) brokerSink() searchreplace.Sink {
	return func(ctx context.Context, ev searchreplace.EditEvent) error {
		_, err := b.invoke(ctx, toolbroker.ApplyEditStream, toolbroker.ApplyEditStreamInput{
			EditRequestId: ev.EditRequestId,
			Path:          ev.Path,
			Event:         ev.Event,
			Text:          ev.Text,
		})
		return err
	}
}

// ApplySearchReplace drives the streamed SEARCH/REPLACE engine over text
// (a complete or partial LLM response containing one or more blocks),
// routing every Start/Delta/End frame through ApplyEditStream and
// returning the engine's summary once text is fully consumed.
func (b *Box) ApplySearchReplace(ctx context.Context, editRequestId types.EditRequestId, text string, isCancelled func() bool) (searchreplace.Result, error) {
	engine := searchreplace.New(editRequestId, b.brokerLoader(), b.brokerSink(), isCancelled)
	if err := engine.Feed(ctx, text); err != nil {
		return searchreplace.Result{}, fmt.Errorf("apply_search_replace: %w", err)
	}
	return engine.Flush(ctx)
}

// NewSearchReplaceEngine builds an Engine wired to this Box's broker, for
// callers (a Symbol Agent handling an Edit event) that need to feed LLM
// output to it delta-by-delta rather than as one complete string.
func (b *Box) NewSearchReplaceEngine(editRequestId types.EditRequestId, isCancelled func() bool) *searchreplace.Engine {
	return searchreplace.New(editRequestId, b.brokerLoader(), b.brokerSink(), isCancelled)
}

// ChangedSymbol is one outline node whose content differs between two
// file versions.
type ChangedSymbol struct {
	Name   string
	Range  types.Range
	Reason string
}

// GetSymbolChangeSet diffs oldContent against newContent and reports which
// outline nodes in newOutline cover a changed line.
func GetSymbolChangeSet(oldContent, newContent string, newOutline []types.OutlineNode) []ChangedSymbol {
	dmp := diffmatchpatch.New()
	a, bb, lineArray := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, bb, false), lineArray)

	changedLines := map[int]bool{}
	line := 0
	for _, d := range diffs {
		n := strings.Count(d.Text, "\n")
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			line += n
		case diffmatchpatch.DiffInsert:
			for i := 0; i < n; i++ {
				changedLines[line+i] = true
			}
			line += n
		case diffmatchpatch.DiffDelete:
			changedLines[line] = true
		}
	}

	var out []ChangedSymbol
	var walk func(ns []types.OutlineNode)
	walk = func(ns []types.OutlineNode) {
		for _, n := range ns {
			for l := n.Range.Start.Line; l <= n.Range.End.Line; l++ {
				if changedLines[l] {
					out = append(out, ChangedSymbol{Name: n.Name, Range: n.Range, Reason: "content changed"})
					break
				}
			}
			walk(n.Children)
		}
	}
	walk(newOutline)

	sort.Slice(out, func(i, j int) bool { return out[i].Range.Start.Line < out[j].Range.Start.Line })
	return out
}

// EventRouter is the subset of the Symbol Hub that check_for_followups_bfs
// needs: route one event and await its response. Kept as a narrow
// interface here so toolbox never imports the hub package that, in turn,
// constructs a Box.
type EventRouter interface {
	Route(ctx context.Context, req types.SymbolEventRequest) (types.SymbolEventResponse, error)
}

// RelevanceJudge decides whether a referring symbol must be edited given
// why its referenced symbol changed.
type RelevanceJudge func(ctx context.Context, referencing types.SymbolId, reason string) (bool, error)

// CheckForFollowupsBFS walks references out from seeds breadth-first,
// asking judge whether each referring symbol needs editing; symbols
// judged relevant receive an Edit request via router. Visited symbols are
// never re-queued, which bounds the walk against reference cycles.
func (b *Box) CheckForFollowupsBFS(ctx context.Context, seeds []ChangedSymbol, file string, router EventRouter, judge RelevanceJudge) error {
	type queued struct {
		symbol types.SymbolId
		pos    types.Position
		reason string
	}
	visited := map[types.SymbolId]bool{}
	queue := make([]queued, 0, len(seeds))
	for _, s := range seeds {
		id := types.SymbolId{Name: s.Name, File: file}
		queue = append(queue, queued{symbol: id, pos: s.Range.Start, reason: s.Reason})
		visited[id] = true
	}

	for len(queue) > 0 {
		head := queue[0]
		queue = queue[1:]

		refsAny, err := b.invoke(ctx, toolbroker.GotoReference, toolbroker.GotoInput{Path: head.symbol.File, Position: head.pos})
		if err != nil {
			continue
		}
		refs := refsAny.(toolbroker.GotoOutput)

		for _, loc := range refs.Locations {
			name, err := b.nameAtLocation(ctx, loc)
			if err != nil || name == "" {
				continue
			}
			referencing := types.SymbolId{Name: name, File: loc.Path}
			if visited[referencing] {
				continue
			}
			visited[referencing] = true

			relevant, err := judge(ctx, referencing, head.reason)
			if err != nil || !relevant {
				continue
			}

			req := types.SymbolEventRequest{
				Target: referencing,
				Event: types.SymbolEvent{
					Kind: types.EventEdit,
					Edit: &types.SymbolToEditRequest{Symbols: []types.SymbolToEdit{{
						Name:    referencing.Name,
						File:    referencing.File,
						Reasons: []string{head.reason},
					}}},
				},
			}
			if _, err := router.Route(ctx, req); err != nil {
				continue
			}
			queue = append(queue, queued{symbol: referencing, pos: loc.Range.Start, reason: head.reason})
		}
	}
	return nil
}

// nameAtLocation resolves loc to the name of the outline node enclosing its
// range, the same lookup SymbolsToAnchor uses for user selections, so a
// referencing location gets a real symbol identity instead of loc.Path
// standing in for both the Name and the File.
func (b *Box) nameAtLocation(ctx context.Context, loc toolbroker.LocationRef) (string, error) {
	outlineAny, err := b.invoke(ctx, toolbroker.DocumentOutline, toolbroker.DocumentOutlineInput{Path: loc.Path})
	if err != nil {
		return "", err
	}
	outline := outlineAny.(toolbroker.DocumentOutlineOutput)
	node := enclosingOutlineNode(outline.Nodes, loc.Range)
	if node == nil {
		return "", nil
	}
	return node.Name, nil
}

// llmRelevanceJudge grounds RelevanceJudge in an actual completion call,
// kept here rather than in symbolagent since it is pure Tool Box wiring.
func llmRelevanceJudge(bridge *llmbridge.Bridge, model string) RelevanceJudge {
	return func(ctx context.Context, referencing types.SymbolId, reason string) (bool, error) {
		req := llmbridge.CompletionRequest{
			Model: model,
			Messages: []llmbridge.Message{
				{Role: llmbridge.RoleSystem, Content: "Answer only yes or no."},
				{Role: llmbridge.RoleUser, Content: fmt.Sprintf(
					"Symbol %s in %s references a symbol that changed because: %s. Must %s also change?",
					referencing.Name, referencing.File, reason, referencing.Name)},
			},
			Temperature: 0,
		}
		text, err := bridge.StreamCompletion(ctx, req, nil)
		if err != nil {
			return false, err
		}
		return strings.Contains(strings.ToLower(text), "yes"), nil
	}
}

// NewLLMRelevanceJudge exposes llmRelevanceJudge to callers assembling a
// Symbol Agent's dependencies.
func NewLLMRelevanceJudge(bridge *llmbridge.Bridge, model string) RelevanceJudge {
	return llmRelevanceJudge(bridge, model)
}
