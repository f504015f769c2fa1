package symbolagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/skcd-labs/sidecar-core/internal/event"
	"github.com/skcd-labs/sidecar-core/internal/llmbridge"
	"github.com/skcd-labs/sidecar-core/internal/toolbroker"
	"github.com/skcd-labs/sidecar-core/internal/types"
)

// candidateRegion is one numbered entry in the sub-symbol ranking list:
// the primary snippet, an implementation block, or (not yet subdivided
// into inner function ranges, a documented simplification) an
// implementation's whole body.
type candidateRegion struct {
	idx      int
	name     string
	file     string
	rng      types.Range
	isOutline bool
}

func (a *Agent) handleInitialRequest(ctx context.Context, ev types.SymbolEvent, budget *stepBudget) error {
	if err := budget.step(); err != nil {
		return err
	}
	snippet, err := a.box.FindSnippetForSymbol(ctx, a.id.File, a.id.Name)
	if err != nil {
		return &types.SymbolError{Kind: types.ErrToolError, Message: "locating symbol failed", Inner: err}
	}
	a.thinking.SetPrimarySnippet(*snippet)
	a.publishSubStep(types.SubStepGoToDefinition, fmt.Sprintf("located %s in %s", a.id.Name, snippet.File))

	if err := budget.step(); err != nil {
		return err
	}
	implsAny, err := a.box.Broker.Invoke(ctx, toolbroker.Input{
		Kind:    toolbroker.GotoImplementation,
		Payload: toolbroker.GotoInput{Path: snippet.File, Position: snippet.Range.Start},
	})
	if err == nil {
		impls := implsAny.Payload.(toolbroker.GotoOutput)
		for _, loc := range impls.Locations {
			implSnippet, err := a.box.SnippetAt(ctx, a.id.Name, loc.Path, loc.Range)
			if err != nil {
				continue
			}
			a.thinking.AddImplementation(implSnippet)
		}
	}

	candidates := a.buildCandidateRegions()
	if len(candidates) == 0 {
		return nil
	}

	ranked, err := a.rankCandidates(ctx, ev.PlanSteps, candidates)
	if err != nil {
		return &types.SymbolError{Kind: types.ErrLLMError, Message: "ranking sub-symbols failed", Inner: err}
	}

	byIdx := make(map[int]candidateRegion, len(candidates))
	for _, c := range candidates {
		byIdx[c.idx] = c
	}

	for _, r := range ranked {
		if err := budget.step(); err != nil {
			return err
		}
		cand, ok := byIdx[r.idx]
		if !ok {
			continue
		}
		toEdit := types.SymbolToEdit{
			Name:        cand.name,
			Range:       cand.rng,
			File:        cand.file,
			Reasons:     []string{r.reason},
			OutlineOnly: cand.isOutline,
		}
		target := types.SymbolId{Name: cand.name, File: cand.file}
		editEvent := types.SymbolEvent{Kind: types.EventEdit, Edit: &types.SymbolToEditRequest{Symbols: []types.SymbolToEdit{toEdit}}}

		if target == a.id {
			if err := a.handleEdit(ctx, editEvent, budget); err != nil {
				return err
			}
			continue
		}
		req := types.SymbolEventRequest{Target: target, Event: editEvent, RequestId: types.NewRequestId()}
		if _, err := a.hub.Route(ctx, req); err != nil {
			a.thinking.AddStep(fmt.Sprintf("follow-up edit to %s failed: %v", target, err))
		}
	}
	return nil
}

func (a *Agent) buildCandidateRegions() []candidateRegion {
	idx := 0
	var out []candidateRegion
	if a.thinking.PrimarySnippet != nil {
		out = append(out, candidateRegion{idx: idx, name: a.thinking.PrimarySnippet.SymbolName, file: a.thinking.PrimarySnippet.File, rng: a.thinking.PrimarySnippet.Range})
		idx++
	}
	for _, impl := range a.thinking.Implementations {
		out = append(out, candidateRegion{idx: idx, name: impl.SymbolName, file: impl.File, rng: impl.Range})
		idx++
	}
	return out
}

func (a *Agent) rankCandidates(ctx context.Context, planSteps []string, candidates []candidateRegion) ([]rankedIndex, error) {
	var b strings.Builder
	b.WriteString("Plan:\n")
	for _, s := range planSteps {
		b.WriteString("- " + s + "\n")
	}
	b.WriteString("\nCandidate regions (idx: file: name):\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "%d: %s: %s\n", c.idx, c.file, c.name)
	}
	b.WriteString("\nReturn one line per region that needs editing, formatted as \"idx: reason\". Omit regions that do not need changes.")

	req := llmbridge.CompletionRequest{
		Model: a.config.Model,
		Messages: []llmbridge.Message{
			{Role: llmbridge.RoleSystem, Content: "You select which code regions must change to satisfy a plan."},
			{Role: llmbridge.RoleUser, Content: b.String()},
		},
		Temperature: 0,
	}
	text, err := a.bridge.StreamCompletion(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	return parseRankedIndices(text), nil
}

func (a *Agent) handleEdit(ctx context.Context, ev types.SymbolEvent, budget *stepBudget) error {
	if ev.Edit == nil {
		return nil
	}
	for _, toEdit := range ev.Edit.Symbols {
		if err := budget.step(); err != nil {
			return err
		}
		a.publishSubStep(types.SubStepEdit, fmt.Sprintf("editing %s in %s: %s", toEdit.Name, toEdit.File, strings.Join(toEdit.Reasons, "; ")))

		editRequestId := types.NewEditRequestId()
		engine := a.box.NewSearchReplaceEngine(editRequestId, func() bool { return ctx.Err() != nil })

		req := a.buildEditCompletionRequest(toEdit)
		_, err := a.bridge.StreamCompletion(ctx, req, func(delta string) error {
			return engine.Feed(ctx, delta)
		})
		if err != nil {
			a.thinking.AddStep(fmt.Sprintf("edit generation failed for %s: %v", toEdit.Name, err))
			continue
		}
		result, err := engine.Flush(ctx)
		if err != nil {
			return &types.SymbolError{Kind: types.ErrToolError, Message: "applying search/replace failed", Inner: err}
		}
		for _, f := range result.Failures {
			if f.Suggestion != "" {
				a.thinking.AddStep(fmt.Sprintf("block for %s skipped: %s (closest existing span: %q)", f.Path, f.Kind, f.Suggestion))
			} else {
				a.thinking.AddStep(fmt.Sprintf("block for %s skipped: %s", f.Path, f.Kind))
			}
		}
		if result.Cancelled {
			return &types.SymbolError{Kind: types.ErrCancelled, Message: "edit cancelled mid-stream"}
		}
		if result.AppliedBlocks == 0 {
			continue
		}

		if err := budget.step(); err != nil {
			return err
		}
		diagAny, err := a.box.Broker.Invoke(ctx, toolbroker.Input{Kind: toolbroker.LSPDiagnostics, Payload: toolbroker.LSPDiagnosticsInput{Path: toEdit.File}})
		if err != nil {
			continue
		}
		diags := diagAny.Payload.(toolbroker.LSPDiagnosticsOutput)
		if len(diags.Diagnostics) == 0 {
			continue
		}
		a.followUpFromDiagnostics(ctx, toEdit, diags.Diagnostics)
	}
	return nil
}

func (a *Agent) buildEditCompletionRequest(toEdit types.SymbolToEdit) llmbridge.CompletionRequest {
	return llmbridge.CompletionRequest{
		Model: a.config.Model,
		Messages: []llmbridge.Message{
			{Role: llmbridge.RoleSystem, Content: "Emit one or more SEARCH/REPLACE blocks to satisfy the requested change. Use the exact wire format: a path line, a fenced code block, then <<<<<<< SEARCH / ======= / >>>>>>> REPLACE markers."},
			{Role: llmbridge.RoleUser, Content: fmt.Sprintf("File: %s\nSymbol: %s\nReasons: %s", toEdit.File, toEdit.Name, strings.Join(toEdit.Reasons, "; "))},
		},
		Temperature: 0,
	}
}

func (a *Agent) followUpFromDiagnostics(ctx context.Context, toEdit types.SymbolToEdit, diags []toolbroker.Diagnostic) {
	outAny, err := a.box.Broker.Invoke(ctx, toolbroker.Input{
		Kind:    toolbroker.CodeCorrectnessAction,
		Payload: toolbroker.CodeCorrectnessActionInput{Path: toEdit.File, Diagnostics: diags},
	})
	if err != nil {
		return
	}
	out := outAny.Payload.(toolbroker.CodeCorrectnessActionOutput)
	for _, followup := range out.FollowupEdits {
		target := types.SymbolId{Name: followup.Name, File: followup.File}
		req := types.SymbolEventRequest{
			Target:    target,
			Event:     types.SymbolEvent{Kind: types.EventEdit, Edit: &types.SymbolToEditRequest{Symbols: []types.SymbolToEdit{followup}}},
			RequestId: types.NewRequestId(),
		}
		if target == a.id {
			_ = a.handleEdit(ctx, req.Event, &stepBudget{max: a.config.MaxAgentSteps})
			continue
		}
		if _, err := a.hub.Route(ctx, req); err != nil {
			a.thinking.AddStep(fmt.Sprintf("diagnostic follow-up to %s failed: %v", target, err))
		}
	}
}

func (a *Agent) handleProbe(ctx context.Context, ev types.SymbolEvent, budget *stepBudget) (types.SymbolEventResponse, error) {
	if ev.Probe == nil || a.thinking.PrimarySnippet == nil {
		return types.OkResponse(), nil
	}
	a.publishSubStep(types.SubStepProbe, ev.Probe.Query)

	if err := budget.step(); err != nil {
		return types.SymbolEventResponse{}, err
	}
	own, err := a.answerProbe(ctx, ev.Probe.Query, a.thinking.PrimarySnippet.Content)
	if err != nil {
		return types.SymbolEventResponse{}, &types.SymbolError{Kind: types.ErrLLMError, Message: "probe answer failed", Inner: err}
	}

	needsDeeper, refName := a.probeNeedsDeeper(own)
	if !needsDeeper || refName == "" || containsHistory(ev.Probe.HistorySymbols, a.id) {
		return types.SymbolEventResponse{Ok: true, Answer: own}, nil
	}

	if err := budget.step(); err != nil {
		return types.SymbolEventResponse{}, err
	}
	defAny, err := a.box.Broker.Invoke(ctx, toolbroker.Input{
		Kind:    toolbroker.GotoDefinition,
		Payload: toolbroker.GotoInput{Path: a.thinking.File, Position: a.thinking.PrimarySnippet.Range.Start},
	})
	if err != nil || len(defAny.Payload.(toolbroker.GotoOutput).Locations) == 0 {
		return types.SymbolEventResponse{Ok: true, Answer: own}, nil
	}
	loc := defAny.Payload.(toolbroker.GotoOutput).Locations[0]
	target := types.SymbolId{Name: refName, File: loc.Path}

	subReq := types.SymbolEventRequest{
		Target: target,
		Event: types.SymbolEvent{
			Kind:  types.EventProbe,
			Probe: &types.SymbolToProbeRequest{Query: ev.Probe.Query, HistorySymbols: append(append([]types.SymbolId{}, ev.Probe.HistorySymbols...), a.id)},
		},
		RequestId: types.NewRequestId(),
	}
	subResp, err := a.hub.Route(ctx, subReq)
	if err != nil || !subResp.Ok {
		return types.SymbolEventResponse{Ok: true, Answer: own}, nil
	}
	return types.SymbolEventResponse{Ok: true, Answer: own + "\n" + subResp.Answer}, nil
}

func containsHistory(history []types.SymbolId, id types.SymbolId) bool {
	for _, h := range history {
		if h == id {
			return true
		}
	}
	return false
}

func (a *Agent) answerProbe(ctx context.Context, query, content string) (string, error) {
	req := llmbridge.CompletionRequest{
		Model: a.config.Model,
		Messages: []llmbridge.Message{
			{Role: llmbridge.RoleSystem, Content: "Answer the question about this code snippet concisely."},
			{Role: llmbridge.RoleUser, Content: fmt.Sprintf("Snippet:\n%s\n\nQuestion: %s", content, query)},
		},
		Temperature: 0,
	}
	return a.bridge.StreamCompletion(ctx, req, nil)
}

func (a *Agent) probeNeedsDeeper(answer string) (bool, string) {
	lower := strings.ToLower(answer)
	if !strings.Contains(lower, "see ") && !strings.Contains(lower, "refer to ") {
		return false, ""
	}
	for _, marker := range []string{"see ", "refer to "} {
		if i := strings.Index(lower, marker); i >= 0 {
			rest := strings.Fields(answer[i+len(marker):])
			if len(rest) > 0 {
				return true, strings.Trim(rest[0], ".,;:")
			}
		}
	}
	return false, ""
}

func (a *Agent) handleAskQuestion(ctx context.Context, ev types.SymbolEvent) (types.SymbolEventResponse, error) {
	if a.bus != nil {
		a.bus.Publish(event.Event{Type: event.TypeSymbolEvent, Data: ev})
	}
	return types.OkResponse(), nil
}

func (a *Agent) handleUserFeedback(ctx context.Context, ev types.SymbolEvent) (types.SymbolEventResponse, error) {
	if a.bus != nil {
		a.bus.Publish(event.Event{Type: event.TypeSymbolEvent, Data: ev})
	}
	return types.OkResponse(), nil
}

func (a *Agent) handleOutline(ctx context.Context) (types.SymbolEventResponse, error) {
	snap := a.thinking.Snapshot()
	if snap.PrimarySnippet == nil {
		return types.SymbolEventResponse{}, &types.SymbolError{Kind: types.ErrToolError, Message: "no primary snippet to build an outline from"}
	}
	node := types.OutlineNode{
		Name:  snap.PrimarySnippet.SymbolName,
		Kind:  snap.PrimarySnippet.OutlineKind,
		Range: snap.PrimarySnippet.Range,
		File:  snap.PrimarySnippet.File,
	}
	for _, impl := range snap.Implementations {
		node.Children = append(node.Children, types.OutlineNode{
			Name:  impl.SymbolName,
			Kind:  impl.OutlineKind,
			Range: impl.Range,
			File:  impl.File,
		})
	}
	return types.SymbolEventResponse{Ok: true, Outline: &node}, nil
}
