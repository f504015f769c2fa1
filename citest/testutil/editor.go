// Package testutil provides the fixtures the S1-S6 behavioral suite wires
// up in place of a real editor and a real LLM provider: an in-process HTTP
// server implementing the editor bridge's wire contract over an in-memory
// file set, and a scripted llmbridge.Provider driven by request content.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/skcd-labs/sidecar-core/internal/types"
)

// AppliedEdit is one recorded apply-edit-stream call, kept in arrival order
// so a test can assert on the Start/Delta/End envelope a streamed edit
// produced.
type AppliedEdit struct {
	EditRequestId types.EditRequestId
	Path          string
	Event         types.EditApplyEventKind
	Text          string
	Range         types.Range
}

// FakeEditor is an httptest-backed stand-in for the real editor process:
// it answers every route editorbridge.Client calls against an in-memory
// file map and outline/reference fixtures a test seeds ahead of time.
type FakeEditor struct {
	Server *httptest.Server

	mu         sync.Mutex
	files      map[string]string
	outlines   map[string][]types.OutlineNode
	references map[refKey][]locationFixture
	applied    []AppliedEdit
}

type refKey struct {
	path string
	pos  types.Position
}

type locationFixture struct {
	Path  string
	Range types.Range
}

// NewFakeEditor starts the fake editor's HTTP server. Call Close when done.
func NewFakeEditor() *FakeEditor {
	fe := &FakeEditor{
		files:      make(map[string]string),
		outlines:   make(map[string][]types.OutlineNode),
		references: make(map[refKey][]locationFixture),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/open-file", fe.handleOpenFile)
	mux.HandleFunc("/find-in-file", fe.handleFindInFile)
	mux.HandleFunc("/goto-definition", fe.handleGotoLocations(func(k refKey) []locationFixture { return fe.references[k] }))
	mux.HandleFunc("/goto-implementation", fe.handleGotoLocations(func(k refKey) []locationFixture { return nil }))
	mux.HandleFunc("/goto-reference", fe.handleGotoLocations(func(k refKey) []locationFixture { return fe.references[k] }))
	mux.HandleFunc("/document-outline", fe.handleDocumentOutline)
	mux.HandleFunc("/diagnostics", fe.handleDiagnostics)
	mux.HandleFunc("/apply-edit-stream", fe.handleApplyEditStream)
	fe.Server = httptest.NewServer(mux)
	return fe
}

// Close shuts down the underlying HTTP server.
func (fe *FakeEditor) Close() { fe.Server.Close() }

// URL is the base URL to hand to editorbridge.New.
func (fe *FakeEditor) URL() string { return fe.Server.URL }

// SetFile seeds path's content, as if already open in the editor.
func (fe *FakeEditor) SetFile(path, content string) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	fe.files[path] = content
}

// SetOutline seeds path's document-outline response.
func (fe *FakeEditor) SetOutline(path string, nodes []types.OutlineNode) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	fe.outlines[path] = nodes
}

// SetReferences seeds the goto-reference (and goto-definition) response for
// a symbol located at path/pos.
func (fe *FakeEditor) SetReferences(path string, pos types.Position, locations ...locationFixture) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	fe.references[refKey{path: path, pos: pos}] = locations
}

// Location builds a locationFixture for SetReferences.
func Location(path string, r types.Range) locationFixture {
	return locationFixture{Path: path, Range: r}
}

// AppliedEdits returns every apply-edit-stream call recorded so far.
func (fe *FakeEditor) AppliedEdits() []AppliedEdit {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	out := make([]AppliedEdit, len(fe.applied))
	copy(out, fe.applied)
	return out
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (fe *FakeEditor) handleOpenFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fe.mu.Lock()
	content, exists := fe.files[req.Path]
	fe.mu.Unlock()
	writeJSON(w, map[string]any{
		"path":     req.Path,
		"content":  content,
		"language": "go",
		"exists":   exists,
	})
}

func (fe *FakeEditor) handleFindInFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
		Symbol  string `json:"symbol"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{"position": nil})
}

func (fe *FakeEditor) handleGotoLocations(lookup func(refKey) []locationFixture) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Path     string        `json:"path"`
			Position types.Position `json:"position"`
		}
		if err := decode(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fe.mu.Lock()
		locs := lookup(refKey{path: req.Path, pos: req.Position})
		fe.mu.Unlock()

		refs := make([]map[string]any, 0, len(locs))
		for _, l := range locs {
			refs = append(refs, map[string]any{"path": l.Path, "range": l.Range})
		}
		writeJSON(w, map[string]any{"definitions": refs, "implementations": refs, "references": refs})
	}
}

func (fe *FakeEditor) handleDocumentOutline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fe.mu.Lock()
	nodes := fe.outlines[req.Path]
	fe.mu.Unlock()
	writeJSON(w, map[string]any{"nodes": nodes})
}

func (fe *FakeEditor) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"diagnostics": []any{}})
}

func (fe *FakeEditor) handleApplyEditStream(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EditRequestId types.EditRequestId       `json:"edit_request_id"`
		Path          string                    `json:"path"`
		Range         types.Range               `json:"range"`
		Event         types.EditApplyEventKind  `json:"event"`
		Text          string                    `json:"text"`
		ApplyDirectly bool                      `json:"apply_directly"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fe.mu.Lock()
	fe.applied = append(fe.applied, AppliedEdit{
		EditRequestId: req.EditRequestId,
		Path:          req.Path,
		Event:         req.Event,
		Text:          req.Text,
		Range:         req.Range,
	})
	fe.mu.Unlock()
	writeJSON(w, map[string]any{})
}
