package bus

import (
	"context"
	"testing"
	"time"

	"github.com/kandev/agora/internal/common/logger"
)

func newTestBus() *MemoryBus {
	return NewMemoryBus(logger.Default())
}

func TestPublishSubscribe(t *testing.T) {
	b := newTestBus()
	received := make(chan *Event, 1)

	_, err := b.Subscribe("discussion.events", func(ctx context.Context, e *Event) error {
		received <- e
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	event := NewEvent("MessageSent", "test", map[string]interface{}{"a": 1})
	if err := b.Publish(context.Background(), "discussion.events", event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.ID != event.ID {
			t.Errorf("expected event id %s, got %s", event.ID, got.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestWildcardSubscribe(t *testing.T) {
	b := newTestBus()
	received := make(chan *Event, 1)

	_, err := b.Subscribe("discussion.*.joined", func(ctx context.Context, e *Event) error {
		received <- e
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	event := NewEvent("ParticipantJoined", "test", nil)
	if err := b.Publish(context.Background(), "discussion.abc123.joined", event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("wildcard subscription did not receive matching event")
	}
}

func TestQueueSubscribeLoadBalances(t *testing.T) {
	b := newTestBus()
	counts := make(chan string, 10)

	for _, name := range []string{"worker-1", "worker-2"} {
		name := name
		_, err := b.QueueSubscribe("agent.response", "workers", func(ctx context.Context, e *Event) error {
			counts <- name
			return nil
		})
		if err != nil {
			t.Fatalf("QueueSubscribe failed: %v", err)
		}
	}

	for i := 0; i < 4; i++ {
		_ = b.Publish(context.Background(), "agent.response", NewEvent("LLMCompletion", "test", nil))
	}

	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		select {
		case name := <-counts:
			seen[name]++
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for queue delivery")
		}
	}
	if len(seen) != 2 {
		t.Errorf("expected both queue workers to receive deliveries, got %v", seen)
	}
}

func TestRequestTimeout(t *testing.T) {
	b := newTestBus()

	event := NewEvent("discussion.command.create", "test", nil)
	_, err := b.Request(context.Background(), "discussion.command.create", event, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if _, ok := err.(*RequestTimeoutError); !ok {
		t.Errorf("expected *RequestTimeoutError, got %T: %v", err, err)
	}
}

func TestRequestResponse(t *testing.T) {
	b := newTestBus()

	_, err := b.Subscribe("discussion.command.create", func(ctx context.Context, e *Event) error {
		replySubject, _ := e.Data["_reply"].(string)
		if replySubject == "" {
			return nil
		}
		reply := NewEvent("discussion.response", "test", map[string]interface{}{"ok": true})
		return b.Publish(ctx, replySubject, reply)
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	req := NewEvent("discussion.command.create", "test", nil)
	resp, err := b.Request(context.Background(), "discussion.command.create", req, time.Second)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if ok, _ := resp.Data["ok"].(bool); !ok {
		t.Errorf("expected response data ok=true, got %v", resp.Data)
	}
}

func TestCloseRejectsFurtherUse(t *testing.T) {
	b := newTestBus()
	b.Close()

	if b.IsConnected() {
		t.Error("expected IsConnected() == false after Close")
	}
	if err := b.Publish(context.Background(), "x", NewEvent("x", "test", nil)); err == nil {
		t.Error("expected Publish to fail after Close")
	}
}
