package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/research-reports/internal/platform/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func recvMessage(t *testing.T, ch <-chan Message, timeout time.Duration) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for message")
	}
	return Message{}
}

func TestHubOrderingAndReconnect(t *testing.T) {
	hub := NewHub(mustTestLogger(t))
	channel := ReportChannel(uuid.New())

	clientA := hub.NewClient()
	hub.AddChannel(clientA, channel)

	hub.Broadcast(Message{Channel: channel, Event: EventGenerationStarted})
	hub.Broadcast(Message{Channel: channel, Event: EventSectionCompleted, Data: map[string]any{"index": 0}})

	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != EventGenerationStarted {
		t.Fatalf("first event: want=%s got=%s", EventGenerationStarted, got.Event)
	}
	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != EventSectionCompleted {
		t.Fatalf("second event: want=%s got=%s", EventSectionCompleted, got.Event)
	}

	hub.CloseClient(clientA)
	hub.CloseClient(clientA)
	if _, ok := <-clientA.Outbound; ok {
		t.Fatalf("outbound should be closed after disconnect")
	}
	if n := hub.Subscribers(channel); n != 0 {
		t.Fatalf("subscribers after close: want=0 got=%d", n)
	}

	clientB := hub.NewClient()
	hub.AddChannel(clientB, channel)
	hub.Broadcast(Message{Channel: channel, Event: EventReportCompleted})
	if got := recvMessage(t, clientB.Outbound, time.Second); got.Event != EventReportCompleted {
		t.Fatalf("reconnect event: want=%s got=%s", EventReportCompleted, got.Event)
	}
}

func TestHubIgnoresOtherChannels(t *testing.T) {
	hub := NewHub(mustTestLogger(t))
	client := hub.NewClient()
	hub.AddChannel(client, ReportChannel(uuid.New()))

	hub.Broadcast(Message{Channel: ReportChannel(uuid.New()), Event: EventReportFailed})
	hub.Broadcast(Message{Event: EventReportFailed})
	select {
	case msg := <-client.Outbound:
		t.Fatalf("unexpected message %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubServeHTTPStreamsEvents(t *testing.T) {
	hub := NewHub(mustTestLogger(t))
	channel := ReportChannel(uuid.New())
	client := hub.NewClient()
	hub.AddChannel(client, channel)
	hub.Broadcast(Message{Channel: channel, Event: EventReportCompleted, Data: map[string]any{"status": "completed"}})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, req, client)

	body := rec.Body.String()
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: got=%s", ct)
	}
	if !strings.Contains(body, "event: ReportCompleted\n") || !strings.Contains(body, `"status":"completed"`) {
		t.Fatalf("unexpected stream body: %q", body)
	}
}
