// Package editorbridge is the thin RPC client to the editor: JSON over HTTP
// against an editor-provided URL, retargeting the teacher's stdio-LSP client
// shape (internal/lsp) onto the transport this specification actually calls for.
package editorbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skcd-labs/sidecar-core/internal/types"
)

// Client is a connection-pooled, thread-safe RPC client to one editor instance.
// It carries no per-request locking; concurrent callers share the same
// underlying http.Client the way the teacher's bridges were connection-pooled.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client talking to the editor at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// OpenFileResult is the response to open-file.
type OpenFileResult struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language"`
	Exists   bool   `json:"exists"`
}

// OpenFile asks the editor to read path and report its current content.
func (c *Client) OpenFile(ctx context.Context, path string) (*OpenFileResult, error) {
	var out OpenFileResult
	if err := c.post(ctx, "open-file", map[string]any{"path": path}, &out); err != nil {
		return nil, fmt.Errorf("open-file %s: %w", path, err)
	}
	return &out, nil
}

// FindInFileResult is the response to find-in-file.
type FindInFileResult struct {
	Position *types.Position `json:"position"`
}

// FindInFile searches content for the first occurrence of symbol's name and
// returns its position, or nil if not found.
func (c *Client) FindInFile(ctx context.Context, content, symbol string) (*FindInFileResult, error) {
	var out FindInFileResult
	req := map[string]any{"content": content, "symbol": symbol}
	if err := c.post(ctx, "find-in-file", req, &out); err != nil {
		return nil, fmt.Errorf("find-in-file %s: %w", symbol, err)
	}
	return &out, nil
}

// LocationRef is a file+range pair returned by the goto-* family.
type LocationRef struct {
	Path  string      `json:"path"`
	Range types.Range `json:"range"`
}

// GotoDefinitionResult is the response to goto-definition.
type GotoDefinitionResult struct {
	Definitions []LocationRef `json:"definitions"`
}

// GotoDefinition resolves the definition(s) of the symbol at position in path.
func (c *Client) GotoDefinition(ctx context.Context, path string, pos types.Position) (*GotoDefinitionResult, error) {
	var out GotoDefinitionResult
	req := map[string]any{"path": path, "position": pos}
	if err := c.post(ctx, "goto-definition", req, &out); err != nil {
		return nil, fmt.Errorf("goto-definition %s: %w", path, err)
	}
	return &out, nil
}

// GotoImplementationResult is the response to goto-implementation.
type GotoImplementationResult struct {
	Implementations []LocationRef `json:"implementations"`
}

// GotoImplementation resolves implementation sites of the symbol at position in path.
func (c *Client) GotoImplementation(ctx context.Context, path string, pos types.Position) (*GotoImplementationResult, error) {
	var out GotoImplementationResult
	req := map[string]any{"path": path, "position": pos}
	if err := c.post(ctx, "goto-implementation", req, &out); err != nil {
		return nil, fmt.Errorf("goto-implementation %s: %w", path, err)
	}
	return &out, nil
}

// GotoReferenceResult is the response to goto-reference.
type GotoReferenceResult struct {
	References []LocationRef `json:"references"`
}

// GotoReference resolves references to the symbol at position in path.
func (c *Client) GotoReference(ctx context.Context, path string, pos types.Position) (*GotoReferenceResult, error) {
	var out GotoReferenceResult
	req := map[string]any{"path": path, "position": pos}
	if err := c.post(ctx, "goto-reference", req, &out); err != nil {
		return nil, fmt.Errorf("goto-reference %s: %w", path, err)
	}
	return &out, nil
}

// DocumentOutlineResult is the response to the supplemental document-outline
// endpoint, added because the chunking/grammar layer that would otherwise
// produce OutlineNode values is an out-of-scope external collaborator.
type DocumentOutlineResult struct {
	Nodes []types.OutlineNode `json:"nodes"`
}

// DocumentOutline asks the editor for the structural outline of path.
func (c *Client) DocumentOutline(ctx context.Context, path string) (*DocumentOutlineResult, error) {
	var out DocumentOutlineResult
	if err := c.post(ctx, "document-outline", map[string]any{"path": path}, &out); err != nil {
		return nil, fmt.Errorf("document-outline %s: %w", path, err)
	}
	return &out, nil
}

// QuickFix is one editor-proposed fix attached to a diagnostic.
type QuickFix struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

// Diagnostic is one editor-reported problem at a range.
type Diagnostic struct {
	Range      types.Range `json:"range"`
	Message    string      `json:"message"`
	Severity   string      `json:"severity"`
	QuickFixes []QuickFix  `json:"quick_fixes,omitempty"`
}

// DiagnosticsResult is the response to diagnostics.
type DiagnosticsResult struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Diagnostics fetches the current diagnostics for path.
func (c *Client) Diagnostics(ctx context.Context, path string) (*DiagnosticsResult, error) {
	var out DiagnosticsResult
	if err := c.post(ctx, "diagnostics", map[string]any{"path": path}, &out); err != nil {
		return nil, fmt.Errorf("diagnostics %s: %w", path, err)
	}
	return &out, nil
}

// ApplyEditEventKind mirrors types.EditApplyEventKind over the wire.
type ApplyEditEventKind = types.EditApplyEventKind

// ApplyEditStreamRequest is one frame of a streamed apply-edit; Text is only
// populated for ApplyDelta frames, per the wire contract in §6.
type ApplyEditStreamRequest struct {
	EditRequestId types.EditRequestId    `json:"edit_request_id"`
	Path          string                 `json:"path"`
	Range         types.Range            `json:"range"`
	Event         ApplyEditEventKind     `json:"event"`
	Text          string                 `json:"text,omitempty"`
	ApplyDirectly bool                   `json:"apply_directly,omitempty"`
}

// ApplyEditStream sends one frame of a streaming edit. The editor bridge
// interleaves frames by EditRequestId, never by file, so concurrent streamed
// edits to the same file remain individually attributable.
func (c *Client) ApplyEditStream(ctx context.Context, req ApplyEditStreamRequest) error {
	if err := c.post(ctx, "apply-edit-stream", req, nil); err != nil {
		return fmt.Errorf("apply-edit-stream %s (%s): %w", req.Path, req.Event, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := c.baseURL + "/" + endpoint
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &TransportError{Endpoint: endpoint, Inner: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Endpoint: endpoint, Inner: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProtocolError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &ProtocolError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(respBody), Inner: err}
	}
	return nil
}

// TransportError represents a retryable failure to reach the editor.
type TransportError struct {
	Endpoint string
	Inner    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("editor bridge transport error on %s: %v", e.Endpoint, e.Inner)
}
func (e *TransportError) Unwrap() error { return e.Inner }

// ProtocolError represents a malformed/unexpected editor response.
type ProtocolError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Inner      error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("editor bridge protocol error on %s (status %d): %s", e.Endpoint, e.StatusCode, e.Body)
}
func (e *ProtocolError) Unwrap() error { return e.Inner }
