package bus

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/research-reports/internal/platform/logger"
	"github.com/yungbote/research-reports/internal/realtime"
)

func TestLocalBusForwardsUntilCancelled(t *testing.T) {
	b := NewLocalBus()
	defer b.Close()

	got := make(chan realtime.Message, 4)
	ctx, cancel := context.WithCancel(context.Background())
	if err := b.StartForwarder(ctx, func(m realtime.Message) { got <- m }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}

	channel := realtime.ReportChannel(uuid.New())
	if err := b.Publish(context.Background(), realtime.Message{Channel: channel, Event: realtime.EventGenerationStarted}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case m := <-got:
		if m.Event != realtime.EventGenerationStarted || m.Channel != channel {
			t.Fatalf("unexpected message %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for forwarded message")
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		_ = b.Publish(context.Background(), realtime.Message{Channel: channel, Event: realtime.EventReportCompleted})
		select {
		case <-got:
			time.Sleep(5 * time.Millisecond)
			continue
		default:
		}
		return
	}
	t.Fatalf("forwarder still delivering after cancel")
}

func TestLocalBusRejectsAfterClose(t *testing.T) {
	b := NewLocalBus()
	_ = b.Close()
	if err := b.Publish(context.Background(), realtime.Message{Channel: "c", Event: realtime.EventReportFailed}); err == nil {
		t.Fatalf("expected publish on closed bus to fail")
	}
}

func TestDecodeMessage(t *testing.T) {
	msg, err := decodeMessage(`{"channel":"report:1","event":"ReportCompleted","data":{"status":"completed"}}`)
	if err != nil {
		t.Fatalf("decodeMessage: %v", err)
	}
	if msg.Event != realtime.EventReportCompleted || msg.Channel != "report:1" {
		t.Fatalf("unexpected message %+v", msg)
	}
	for _, bad := range []string{`not json`, `{"event":"ReportCompleted"}`, `{"channel":"x"}`} {
		if _, err := decodeMessage(bad); err == nil {
			t.Fatalf("decodeMessage(%q): expected error", bad)
		}
	}
}

func TestNewRedisBusRequiresAddr(t *testing.T) {
	if _, err := NewRedisBus(logger.Nop(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for missing addr")
	}
}
