package toolbroker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/skcd-labs/sidecar-core/internal/editorbridge"
	"github.com/skcd-labs/sidecar-core/internal/event"
	"github.com/skcd-labs/sidecar-core/internal/llmbridge"
	"github.com/skcd-labs/sidecar-core/internal/permission"
	"github.com/skcd-labs/sidecar-core/internal/types"
)

// Dependencies bundles every collaborator the standard handler set needs.
// Wire fewer of them and call Register yourself for a narrower broker
// (tests commonly do this).
type Dependencies struct {
	Editor      *editorbridge.Client
	LLM         *llmbridge.Bridge
	Permissions permission.AgentPermissions
	Bus         *event.Bus
}

// NewDefault builds a Broker with every standard Kind wired against deps.
func NewDefault(deps Dependencies) *Broker {
	b := New()

	b.Register(OpenFile, handlerFor(func(ctx context.Context, in OpenFileInput) (OpenFileOutput, error) {
		res, err := deps.Editor.OpenFile(ctx, in.Path)
		if err != nil {
			return OpenFileOutput{}, wrapEditorErr(err)
		}
		return OpenFileOutput{Content: res.Content, Language: res.Language, Exists: res.Exists}, nil
	}))

	b.Register(FindInFile, handlerFor(func(ctx context.Context, in FindInFileInput) (FindInFileOutput, error) {
		res, err := deps.Editor.FindInFile(ctx, in.Content, in.Symbol)
		if err != nil {
			return FindInFileOutput{}, wrapEditorErr(err)
		}
		return FindInFileOutput{Position: res.Position}, nil
	}))

	b.Register(GotoDefinition, handlerFor(func(ctx context.Context, in GotoInput) (GotoOutput, error) {
		res, err := deps.Editor.GotoDefinition(ctx, in.Path, in.Position)
		if err != nil {
			return GotoOutput{}, wrapEditorErr(err)
		}
		return GotoOutput{Locations: convertLocations(res.Definitions)}, nil
	}))

	b.Register(GotoImplementation, handlerFor(func(ctx context.Context, in GotoInput) (GotoOutput, error) {
		res, err := deps.Editor.GotoImplementation(ctx, in.Path, in.Position)
		if err != nil {
			return GotoOutput{}, wrapEditorErr(err)
		}
		return GotoOutput{Locations: convertLocations(res.Implementations)}, nil
	}))

	b.Register(GotoReference, handlerFor(func(ctx context.Context, in GotoInput) (GotoOutput, error) {
		res, err := deps.Editor.GotoReference(ctx, in.Path, in.Position)
		if err != nil {
			return GotoOutput{}, wrapEditorErr(err)
		}
		return GotoOutput{Locations: convertLocations(res.References)}, nil
	}))

	b.Register(DocumentOutline, handlerFor(func(ctx context.Context, in DocumentOutlineInput) (DocumentOutlineOutput, error) {
		res, err := deps.Editor.DocumentOutline(ctx, in.Path)
		if err != nil {
			return DocumentOutlineOutput{}, wrapEditorErr(err)
		}
		return DocumentOutlineOutput{Nodes: res.Nodes}, nil
	}))

	b.Register(LSPDiagnostics, handlerFor(func(ctx context.Context, in LSPDiagnosticsInput) (LSPDiagnosticsOutput, error) {
		res, err := deps.Editor.Diagnostics(ctx, in.Path)
		if err != nil {
			return LSPDiagnosticsOutput{}, wrapEditorErr(err)
		}
		out := make([]Diagnostic, len(res.Diagnostics))
		for i, d := range res.Diagnostics {
			out[i] = Diagnostic{Range: d.Range, Message: d.Message, Severity: d.Severity}
		}
		return LSPDiagnosticsOutput{Diagnostics: out}, nil
	}))

	b.Register(ApplyEditStream, handlerFor(func(ctx context.Context, in ApplyEditStreamInput) (ApplyEditStreamOutput, error) {
		err := deps.Editor.ApplyEditStream(ctx, editorbridge.ApplyEditStreamRequest{
			EditRequestId: in.EditRequestId,
			Path:          in.Path,
			Range:         in.Range,
			Event:         in.Event,
			Text:          in.Text,
			ApplyDirectly: in.ApplyDirectly,
		})
		if err != nil {
			return ApplyEditStreamOutput{}, wrapEditorErr(err)
		}
		return ApplyEditStreamOutput{}, nil
	}))

	b.Register(ListFiles, handlerFor(func(ctx context.Context, in ListFilesInput) (ListFilesOutput, error) {
		return listFiles(in)
	}))

	b.Register(SearchFileContentRegex, handlerFor(func(ctx context.Context, in SearchFileContentRegexInput) (SearchFileContentRegexOutput, error) {
		return searchFileContentRegex(in)
	}))

	b.Register(TerminalCommand, handlerFor(func(ctx context.Context, in TerminalCommandInput) (TerminalCommandOutput, error) {
		return runTerminalCommand(ctx, deps.Permissions, in)
	}))

	b.Register(LLMCompletion, handlerFor(func(ctx context.Context, in LLMCompletionInput) (LLMCompletionOutput, error) {
		text, err := deps.LLM.StreamCompletion(ctx, in.Request, nil)
		if err != nil {
			return LLMCompletionOutput{}, err
		}
		return LLMCompletionOutput{Text: text}, nil
	}))

	b.Register(LLMStreamingCompletion, handlerFor(func(ctx context.Context, in LLMStreamingCompletionInput) (LLMStreamingCompletionOutput, error) {
		text, err := deps.LLM.StreamCompletion(ctx, in.Request, in.Sink)
		if err != nil {
			return LLMStreamingCompletionOutput{}, err
		}
		return LLMStreamingCompletionOutput{Text: text}, nil
	}))

	b.Register(CodeCorrectnessAction, handlerFor(func(ctx context.Context, in CodeCorrectnessActionInput) (CodeCorrectnessActionOutput, error) {
		edits := make([]types.SymbolToEdit, 0, len(in.Diagnostics))
		for _, d := range in.Diagnostics {
			edits = append(edits, types.SymbolToEdit{
				Range:   d.Range,
				File:    in.Path,
				Reasons: []string{fmt.Sprintf("diagnostic: %s", d.Message)},
			})
		}
		return CodeCorrectnessActionOutput{FollowupEdits: edits}, nil
	}))

	b.Register(AttemptCompletion, handlerFor(func(ctx context.Context, in AttemptCompletionInput) (AttemptCompletionOutput, error) {
		if deps.Bus != nil {
			deps.Bus.Publish(event.Event{Type: event.TypeCodeIterationFinished, Data: in.Summary})
		}
		return AttemptCompletionOutput{}, nil
	}))

	b.Register(AskFollowup, handlerFor(func(ctx context.Context, in AskFollowupInput) (AskFollowupOutput, error) {
		if deps.Bus != nil {
			deps.Bus.Publish(event.Event{Type: event.TypeSymbolSubStep, Data: in.Question})
		}
		// No synchronous human-in-the-loop channel exists on this core's
		// one-way event stream; the question surfaces as a UI event and
		// the agent proceeds without blocking on an answer.
		return AskFollowupOutput{}, nil
	}))

	return b
}

func wrapEditorErr(err error) error {
	var te *editorbridge.TransportError
	if errors.As(err, &te) {
		return &Error{Kind: ErrTransport, Message: te.Error(), Inner: err}
	}
	var pe *editorbridge.ProtocolError
	if errors.As(err, &pe) {
		return &Error{Kind: ErrProtocol, Message: pe.Error(), Inner: err}
	}
	return &Error{Kind: ErrProtocol, Message: err.Error(), Inner: err}
}

func convertLocations(refs []editorbridge.LocationRef) []LocationRef {
	out := make([]LocationRef, len(refs))
	for i, r := range refs {
		out[i] = LocationRef{Path: r.Path, Range: r.Range}
	}
	return out
}

func listFiles(in ListFilesInput) (ListFilesOutput, error) {
	root := in.Root
	if root == "" {
		root = "."
	}
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if in.Pattern == "" {
			paths = append(paths, rel)
			return nil
		}
		if ok, _ := doublestar.Match(in.Pattern, rel); ok {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return ListFilesOutput{}, &Error{Kind: ErrProtocol, Message: "walking " + root, Inner: err}
	}
	return ListFilesOutput{Paths: paths}, nil
}

func searchFileContentRegex(in SearchFileContentRegexInput) (SearchFileContentRegexOutput, error) {
	root := in.Root
	if root == "" {
		root = "."
	}
	re, err := regexp.Compile(in.Pattern)
	if err != nil {
		return SearchFileContentRegexOutput{}, &Error{Kind: ErrProtocol, Message: "invalid regex", Inner: err}
	}

	var matches []SearchMatch
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		line := 0
		for scanner.Scan() {
			line++
			text := scanner.Text()
			if re.MatchString(text) {
				matches = append(matches, SearchMatch{Path: path, Line: line, Text: text})
			}
		}
		return nil
	})
	if walkErr != nil {
		return SearchFileContentRegexOutput{}, &Error{Kind: ErrProtocol, Message: "walking " + root, Inner: walkErr}
	}
	return SearchFileContentRegexOutput{Matches: matches}, nil
}

func runTerminalCommand(ctx context.Context, perms permission.AgentPermissions, in TerminalCommandInput) (TerminalCommandOutput, error) {
	parsed, err := permission.ParseBashCommand(in.Command)
	if err != nil {
		return TerminalCommandOutput{}, &Error{Kind: ErrProtocol, Message: "parsing command", Inner: err}
	}
	for _, cmd := range parsed {
		if err := permission.Evaluate(perms, cmd); err != nil {
			return TerminalCommandOutput{}, err
		}
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", in.Command)
	cmd.Dir = in.Cwd
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return TerminalCommandOutput{}, &Error{Kind: ErrTransport, Message: "executing command", Inner: runErr}
		}
	}
	return TerminalCommandOutput{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, nil
}
