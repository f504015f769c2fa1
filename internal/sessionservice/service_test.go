package sessionservice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skcd-labs/sidecar-core/internal/event"
	"github.com/skcd-labs/sidecar-core/internal/llmbridge"
	"github.com/skcd-labs/sidecar-core/internal/storage"
	"github.com/skcd-labs/sidecar-core/internal/symbolagent"
	"github.com/skcd-labs/sidecar-core/internal/toolbox"
	"github.com/skcd-labs/sidecar-core/internal/toolbroker"
	"github.com/skcd-labs/sidecar-core/internal/types"
)

type stubProvider struct {
	planText string
}

func (s stubProvider) ID() string { return "anthropic" }
func (s stubProvider) Models() []llmbridge.ModelInfo {
	return []llmbridge.ModelInfo{{ID: "claude-test", ProviderID: "anthropic"}}
}
func (s stubProvider) StreamCompletion(ctx context.Context, req llmbridge.CompletionRequest, sink llmbridge.DeltaSink) (string, error) {
	if s.planText != "" {
		_ = sink(s.planText)
		return s.planText, nil
	}
	return "", nil
}

func newTestService(t *testing.T, planText string) *Service {
	t.Helper()
	reg := llmbridge.NewRegistry()
	reg.Register(stubProvider{planText: planText})
	bridge := llmbridge.NewBridge(reg, llmbridge.Config{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	box := toolbox.New(toolbroker.New())
	store := storage.NewSessionStore(t.TempDir())
	bus := event.NewBus()
	return New(store, box, bridge, bus, symbolagent.Config{}, "anthropic/claude-test")
}

func TestHumanMessageCreatesSessionOnFirstCall(t *testing.T) {
	svc := newTestService(t, "")
	id := types.NewSessionId()

	sess, ex, err := svc.HumanMessage(context.Background(), id, "/tmp/s.json", "repo", "hello", types.UserContext{})
	require.NoError(t, err)
	assert.Equal(t, types.ExchangeHuman, ex.Kind)
	assert.Len(t, sess.Exchanges, 1)

	sess2, ex2, err := svc.HumanMessage(context.Background(), id, "/tmp/s.json", "repo", "again", types.UserContext{})
	require.NoError(t, err)
	assert.Len(t, sess2.Exchanges, 2)
	assert.NotEqual(t, ex.Id, ex2.Id)
}

func TestPlanGenerationAppendsPlanExchange(t *testing.T) {
	svc := newTestService(t, "1. do the thing")
	id := types.NewSessionId()
	_, _, err := svc.HumanMessage(context.Background(), id, "/tmp/s.json", "repo", "do the thing", types.UserContext{})
	require.NoError(t, err)

	sess, ex, err := svc.PlanGeneration(context.Background(), id, "do the thing")
	require.NoError(t, err)
	payload, ok := ex.Payload.(PlanPayload)
	require.True(t, ok)
	assert.Equal(t, "1. do the thing", payload.Text)
	assert.Len(t, sess.Exchanges, 2)
}

func TestCodeEditAnchoredRequiresSelection(t *testing.T) {
	svc := newTestService(t, "")
	id := types.NewSessionId()
	_, _, err := svc.HumanMessage(context.Background(), id, "/tmp/s.json", "repo", "edit", types.UserContext{})
	require.NoError(t, err)

	_, _, err = svc.CodeEditAnchored(context.Background(), id, types.SymbolId{Name: "Foo"}, types.UserContext{})
	assert.Error(t, err)
}

func TestCodeEditAgenticTracksRunningThenSettles(t *testing.T) {
	svc := newTestService(t, "")
	id := types.NewSessionId()
	_, _, err := svc.HumanMessage(context.Background(), id, "/tmp/s.json", "repo", "edit", types.UserContext{})
	require.NoError(t, err)

	sess, ex, err := svc.CodeEditAgentic(context.Background(), id, types.SymbolId{Name: "Foo", File: "a.go"}, []string{"step 1"})
	require.NoError(t, err)
	assert.True(t, sess.IsRunning(ex.Id))

	require.Eventually(t, func() bool {
		sess, err := svc.load(context.Background(), id)
		if err != nil {
			return false
		}
		return !sess.IsRunning(ex.Id)
	}, time.Second, 10*time.Millisecond)
}

func TestHandleSessionUndoTruncatesAndCancelsRunning(t *testing.T) {
	svc := newTestService(t, "")
	id := types.NewSessionId()
	_, first, err := svc.HumanMessage(context.Background(), id, "/tmp/s.json", "repo", "one", types.UserContext{})
	require.NoError(t, err)
	_, _, err = svc.HumanMessage(context.Background(), id, "/tmp/s.json", "repo", "two", types.UserContext{})
	require.NoError(t, err)

	sess, dropped, err := svc.HandleSessionUndo(context.Background(), id, first.Id)
	require.NoError(t, err)
	assert.Len(t, dropped, 1)
	assert.Len(t, sess.Exchanges, 1)
}

func TestFeedbackForExchangeRejectedWithTextAppendsAgentReply(t *testing.T) {
	svc := newTestService(t, "")
	id := types.NewSessionId()
	_, ex, err := svc.HumanMessage(context.Background(), id, "/tmp/s.json", "repo", "one", types.UserContext{})
	require.NoError(t, err)

	sess, reply, err := svc.FeedbackForExchange(context.Background(), id, ex.Id, false, "not what I wanted")
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, types.ExchangeAgentReply, reply.Kind)
	assert.Len(t, sess.Exchanges, 2)
	assert.Equal(t, types.ExchangeRejected, sess.FindExchange(ex.Id).State)
}

func TestFeedbackForExchangeAcceptedNeverAppendsReply(t *testing.T) {
	svc := newTestService(t, "")
	id := types.NewSessionId()
	_, ex, err := svc.HumanMessage(context.Background(), id, "/tmp/s.json", "repo", "one", types.UserContext{})
	require.NoError(t, err)

	sess, reply, err := svc.FeedbackForExchange(context.Background(), id, ex.Id, true, "")
	require.NoError(t, err)
	assert.Nil(t, reply)
	assert.Len(t, sess.Exchanges, 1)
	assert.Equal(t, types.ExchangeAccepted, sess.FindExchange(ex.Id).State)
}

func TestSetExchangeAsCancelledReturnsFalseWhenNotRunning(t *testing.T) {
	svc := newTestService(t, "")
	id := types.NewSessionId()
	_, ex, err := svc.HumanMessage(context.Background(), id, "/tmp/s.json", "repo", "one", types.UserContext{})
	require.NoError(t, err)

	fired, err := svc.SetExchangeAsCancelled(context.Background(), id, ex.Id)
	require.NoError(t, err)
	assert.False(t, fired)
}
