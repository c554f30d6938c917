package websocket

import (
	"context"
	"testing"

	"github.com/kandev/agora/internal/common/apperr"
	"github.com/kandev/agora/internal/common/logger"
	"github.com/kandev/agora/internal/discussion/models"
	"github.com/kandev/agora/internal/discussion/orchestrator"
	"github.com/kandev/agora/internal/discussion/repository"
	"github.com/kandev/agora/internal/discussion/scheduler"
	"github.com/kandev/agora/internal/events/bus"
	"github.com/kandev/agora/pkg/ws"
)

func newTestOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	repo := repository.NewMemoryRepository()
	eventBus := bus.NewMemoryBus(logger.Default())
	sched := scheduler.New(logger.Default())
	sched.Start()
	t.Cleanup(sched.Stop)
	return orchestrator.New(repo, eventBus, sched, logger.Default())
}

func TestDispatchSendMessageRoundTrips(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	d, err := o.CreateDiscussion(ctx, models.CreateSpec{
		Strategy: models.StrategyConfig{Kind: models.StrategyFreeForm},
		Settings: models.Settings{MaxParticipants: 5},
	}, "creator-1")
	if err != nil {
		t.Fatalf("CreateDiscussion failed: %v", err)
	}
	p, _, err := o.AddParticipant(ctx, d.ID, models.ParticipantSpec{
		UserID:      "user-1",
		Permissions: []models.Permission{models.PermissionCanSendMessages},
	}, "creator-1")
	if err != nil {
		t.Fatalf("AddParticipant failed: %v", err)
	}
	if _, _, err := o.StartDiscussion(ctx, d.ID, "creator-1"); err != nil {
		// Free-form discussions don't require a second participant to make
		// sense of turn order, but StartDiscussion still enforces the
		// 2-participant floor; add a second participant and retry.
		if _, _, addErr := o.AddParticipant(ctx, d.ID, models.ParticipantSpec{UserID: "user-2"}, "creator-1"); addErr != nil {
			t.Fatalf("AddParticipant (second) failed: %v", addErr)
		}
		if _, _, err := o.StartDiscussion(ctx, d.ID, "creator-1"); err != nil {
			t.Fatalf("StartDiscussion failed: %v", err)
		}
	}

	handler := NewOrchestratorFrameHandler(o, logger.Default())
	frame, _ := ws.NewFrame(ws.FrameType(actionSendMessage), "req-1", ws.SendMessageData{Content: "hello"})

	resp, err := handler(ctx, d.ID, p.ID, frame)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if resp == nil {
		t.Fatal("expected a response frame")
	}
	if resp.MessageID != "req-1" {
		t.Fatalf("expected messageId to be echoed, got %q", resp.MessageID)
	}
}

func TestDispatchUnknownFrameTypeIsDropped(t *testing.T) {
	o := newTestOrchestrator(t)
	handler := NewOrchestratorFrameHandler(o, logger.Default())

	frame := &ws.Frame{Type: "not.a.real.action"}
	resp, err := handler(context.Background(), "disc-1", "p-1", frame)
	if err != nil {
		t.Fatalf("expected unknown frame types to be dropped silently, got error: %v", err)
	}
	if resp != nil {
		t.Fatal("expected no response for an unknown frame type")
	}
}

func TestDispatchSendMessageRejectsWrongTurn(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	d, err := o.CreateDiscussion(ctx, models.CreateSpec{
		Strategy: models.StrategyConfig{Kind: models.StrategyRoundRobin, TurnTimeoutSeconds: 60},
		Settings: models.Settings{MaxParticipants: 5},
	}, "creator-1")
	if err != nil {
		t.Fatalf("CreateDiscussion failed: %v", err)
	}
	p1, _, _ := o.AddParticipant(ctx, d.ID, models.ParticipantSpec{UserID: "user-1"}, "creator-1")
	_, _, _ = o.AddParticipant(ctx, d.ID, models.ParticipantSpec{UserID: "user-2"}, "creator-1")
	d, _, err = o.StartDiscussion(ctx, d.ID, "creator-1")
	if err != nil {
		t.Fatalf("StartDiscussion failed: %v", err)
	}

	other := p1.ID
	if d.State.CurrentTurn.ParticipantID == p1.ID {
		other = "does-not-hold-the-turn"
	}

	handler := NewOrchestratorFrameHandler(o, logger.Default())
	frame, _ := ws.NewFrame(ws.FrameType(actionSendMessage), "", ws.SendMessageData{Content: "hi"})
	_, err = handler(ctx, d.ID, other, frame)
	if err == nil {
		t.Fatal("expected a policy violation for a participant out of turn")
	}
	if !apperr.Is(err, apperr.CodePolicyViolation) {
		t.Fatalf("expected PolicyViolation, got %v", err)
	}
}
