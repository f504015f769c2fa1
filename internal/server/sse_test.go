package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skcd-labs/sidecar-core/internal/event"
)

func TestEventsStreamsMatchingRequestId(t *testing.T) {
	bus := event.NewBus()
	s := New(DefaultConfig(), bus)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/events?request_id=req-1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.router.ServeHTTP(rec, req)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	bus.PublishSync(event.Event{Type: event.TypeSessionCreated, RequestId: "req-2", Data: "ignored"})
	bus.PublishSync(event.Event{Type: event.TypeSessionCreated, RequestId: "req-1", Data: "wanted"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	cancel()
	<-done

	body := rec.Body.String()
	assert.Contains(t, body, "wanted")
	assert.NotContains(t, body, "ignored")
}

func TestEventsStreamsAllWhenRequestIdEmpty(t *testing.T) {
	bus := event.NewBus()
	s := New(DefaultConfig(), bus)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.router.ServeHTTP(rec, req)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	bus.PublishSync(event.Event{Type: event.TypeSessionCreated, RequestId: "any", Data: "payload"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	cancel()
	<-done

	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	var sawEvent bool
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "event: message") {
			sawEvent = true
		}
	}
	require.True(t, sawEvent)
}
