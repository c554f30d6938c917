package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kandev/agora/internal/common/apperr"
	"github.com/kandev/agora/internal/common/logger"
	"github.com/kandev/agora/internal/discussion/models"
	"github.com/kandev/agora/internal/discussion/repository"
	"github.com/kandev/agora/internal/discussion/scheduler"
	"github.com/kandev/agora/internal/events/bus"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, func()) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	eventBus := bus.NewMemoryBus(logger.Default())
	sched := scheduler.New(logger.Default())
	sched.Start()
	o := New(repo, eventBus, sched, logger.Default())
	return o, func() { sched.Stop() }
}

func mustCreate(t *testing.T, o *Orchestrator, cfg models.StrategyConfig) *models.Discussion {
	t.Helper()
	d, err := o.CreateDiscussion(context.Background(), models.CreateSpec{
		Strategy: cfg,
		Settings: models.Settings{MaxParticipants: 10, Strategy: cfg},
	}, "creator-1")
	if err != nil {
		t.Fatalf("CreateDiscussion failed: %v", err)
	}
	return d
}

func mustAddParticipant(t *testing.T, o *Orchestrator, discussionID, userID string, role models.Role) *models.Participant {
	t.Helper()
	p, _, err := o.AddParticipant(context.Background(), discussionID, models.ParticipantSpec{
		UserID:      userID,
		Role:        role,
		Permissions: []models.Permission{models.PermissionCanSendMessages, models.PermissionCanRequestTurn, models.PermissionCanReact},
	}, "creator-1")
	if err != nil {
		t.Fatalf("AddParticipant failed: %v", err)
	}
	return p
}

func TestRoundRobinHappyPath(t *testing.T) {
	o, stop := newTestOrchestrator(t)
	defer stop()
	ctx := context.Background()

	d := mustCreate(t, o, models.StrategyConfig{Kind: models.StrategyRoundRobin, TurnTimeoutSeconds: 60})
	p1 := mustAddParticipant(t, o, d.ID, "user-1", models.RoleParticipant)
	p2 := mustAddParticipant(t, o, d.ID, "user-2", models.RoleParticipant)

	d, _, err := o.StartDiscussion(ctx, d.ID, "creator-1")
	if err != nil {
		t.Fatalf("StartDiscussion failed: %v", err)
	}
	if d.Status != models.StatusActive {
		t.Fatalf("expected Active status, got %s", d.Status)
	}
	first := d.State.CurrentTurn.ParticipantID
	if first != p1.ID && first != p2.ID {
		t.Fatalf("expected turn assigned to one of the two participants, got %q", first)
	}

	if _, _, err := o.SendMessage(ctx, d.ID, first, "hello", models.MessageTypeText); err != nil {
		t.Fatalf("SendMessage from current turn holder failed: %v", err)
	}

	other := p1.ID
	if first == p1.ID {
		other = p2.ID
	}
	if _, _, err := o.SendMessage(ctx, d.ID, other, "not my turn", models.MessageTypeText); err == nil {
		t.Fatal("expected SendMessage from non-current participant to fail")
	} else if !apperr.Is(err, apperr.CodePolicyViolation) {
		t.Fatalf("expected PolicyViolation, got %v", err)
	}

	resolution, _, err := o.AdvanceTurn(ctx, d.ID, other, 1)
	if err != nil {
		t.Fatalf("AdvanceTurn failed: %v", err)
	}
	if resolution.TurnNumber != 2 {
		t.Fatalf("expected turnNumber 2, got %d", resolution.TurnNumber)
	}
	if resolution.NextParticipantID != other {
		t.Fatalf("expected round-robin to hand the turn to %q, got %q", other, resolution.NextParticipantID)
	}
}

func TestModeratedGating(t *testing.T) {
	o, stop := newTestOrchestrator(t)
	defer stop()
	ctx := context.Background()

	d := mustCreate(t, o, models.StrategyConfig{Kind: models.StrategyModerated, RequireApproval: true})
	moderator := mustAddParticipant(t, o, d.ID, "mod-1", models.RoleModerator)
	participant := mustAddParticipant(t, o, d.ID, "user-1", models.RoleParticipant)

	d, _, err := o.StartDiscussion(ctx, d.ID, "creator-1")
	if err != nil {
		t.Fatalf("StartDiscussion failed: %v", err)
	}
	if d.State.CurrentTurn.ParticipantID != moderator.ID {
		t.Fatalf("expected moderated strategy to open with the moderator, got %q", d.State.CurrentTurn.ParticipantID)
	}

	if _, _, err := o.SendMessage(ctx, d.ID, participant.ID, "may I speak", models.MessageTypeText); err == nil {
		t.Fatal("expected non-moderator to be rejected before the moderator's turn ends")
	}

	if _, _, err := o.EndTurn(ctx, d.ID, moderator.ID); err != nil {
		t.Fatalf("EndTurn failed: %v", err)
	}

	if _, err := o.SelectNextSpeaker(ctx, d.ID, participant.ID, participant.ID); err == nil {
		t.Fatal("expected a non-moderator to be rejected from selecting the next speaker")
	} else if !apperr.Is(err, apperr.CodePolicyViolation) {
		t.Fatalf("expected PolicyViolation, got %v", err)
	}

	if _, err := o.SelectNextSpeaker(ctx, d.ID, moderator.ID, participant.ID); err != nil {
		t.Fatalf("SelectNextSpeaker failed: %v", err)
	}

	if _, _, err := o.AdvanceTurnAsModerator(ctx, d.ID, participant.ID); err == nil {
		t.Fatal("expected a non-moderator to be rejected from advancing the turn")
	} else if !apperr.Is(err, apperr.CodePolicyViolation) {
		t.Fatalf("expected PolicyViolation, got %v", err)
	}

	resolution, events, err := o.AdvanceTurnAsModerator(ctx, d.ID, moderator.ID)
	if err != nil {
		t.Fatalf("AdvanceTurnAsModerator failed: %v", err)
	}
	if resolution.NextParticipantID != participant.ID {
		t.Fatalf("expected moderator selection to hand the turn to %q, got %q", participant.ID, resolution.NextParticipantID)
	}
	if len(events) != 1 || events[0].Type != models.EventTurnChanged {
		t.Fatalf("expected a single TurnChanged event, got %v", events)
	}

	d, err = o.GetDiscussion(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDiscussion failed: %v", err)
	}
	if d.State.CurrentTurn.ParticipantID != participant.ID {
		t.Fatalf("expected currentTurn.participantId to be %q, got %q", participant.ID, d.State.CurrentTurn.ParticipantID)
	}
}

func TestPauseResumePreservesRemainingDuration(t *testing.T) {
	o, stop := newTestOrchestrator(t)
	defer stop()
	ctx := context.Background()

	d := mustCreate(t, o, models.StrategyConfig{Kind: models.StrategyRoundRobin, TurnTimeoutSeconds: 120})
	mustAddParticipant(t, o, d.ID, "user-1", models.RoleParticipant)
	mustAddParticipant(t, o, d.ID, "user-2", models.RoleParticipant)

	d, _, err := o.StartDiscussion(ctx, d.ID, "creator-1")
	if err != nil {
		t.Fatalf("StartDiscussion failed: %v", err)
	}
	if !o.scheduler.Armed(d.ID) {
		t.Fatal("expected a turn timer to be armed after StartDiscussion")
	}

	d, _, err = o.PauseDiscussion(ctx, d.ID, "creator-1", "taking a break")
	if err != nil {
		t.Fatalf("PauseDiscussion failed: %v", err)
	}
	if d.Status != models.StatusPaused {
		t.Fatalf("expected Paused status, got %s", d.Status)
	}
	if o.scheduler.Armed(d.ID) {
		t.Fatal("expected the turn timer to be cancelled while paused")
	}
	remaining, ok := d.Metadata["pausedRemainingSeconds"].(float64)
	if !ok || remaining <= 0 {
		t.Fatalf("expected a positive remaining duration recorded, got %v", d.Metadata["pausedRemainingSeconds"])
	}

	d, _, err = o.ResumeDiscussion(ctx, d.ID, "creator-1")
	if err != nil {
		t.Fatalf("ResumeDiscussion failed: %v", err)
	}
	if d.Status != models.StatusActive {
		t.Fatalf("expected Active status after resume, got %s", d.Status)
	}
	if !o.scheduler.Armed(d.ID) {
		t.Fatal("expected the turn timer to be re-armed after resume")
	}
	if _, ok := d.Metadata["pausedRemainingSeconds"]; ok {
		t.Fatal("expected pausedRemainingSeconds to be cleared after resume")
	}
}

func TestEventFanOutBroadcastsToListeners(t *testing.T) {
	o, stop := newTestOrchestrator(t)
	defer stop()
	ctx := context.Background()

	d := mustCreate(t, o, models.StrategyConfig{Kind: models.StrategyRoundRobin, TurnTimeoutSeconds: 60})

	var mu sync.Mutex
	var received []*models.DiscussionEvent
	unregister := o.AddListener(d.ID, func(event *models.DiscussionEvent) {
		mu.Lock()
		received = append(received, event)
		mu.Unlock()
	})
	defer unregister()

	mustAddParticipant(t, o, d.ID, "user-1", models.RoleParticipant)
	mustAddParticipant(t, o, d.ID, "user-2", models.RoleParticipant)

	if _, _, err := o.StartDiscussion(ctx, d.ID, "creator-1"); err != nil {
		t.Fatalf("StartDiscussion failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) == 0 {
		t.Fatal("expected at least one event fanned out to the registered listener")
	}
	var sawTurnChanged bool
	for _, e := range received {
		if e.Type == models.EventTurnChanged {
			sawTurnChanged = true
		}
	}
	if !sawTurnChanged {
		t.Fatal("expected a TurnChanged event to be fanned out on StartDiscussion")
	}
}

func TestStartDiscussionRequiresTwoActiveParticipants(t *testing.T) {
	o, stop := newTestOrchestrator(t)
	defer stop()
	ctx := context.Background()

	d := mustCreate(t, o, models.StrategyConfig{Kind: models.StrategyRoundRobin, TurnTimeoutSeconds: 60})
	mustAddParticipant(t, o, d.ID, "user-1", models.RoleParticipant)

	_, _, err := o.StartDiscussion(ctx, d.ID, "creator-1")
	if err == nil {
		t.Fatal("expected StartDiscussion with a single participant to fail")
	}
	if !apperr.Is(err, apperr.CodePolicyViolation) {
		t.Fatalf("expected PolicyViolation, got %v", err)
	}
}

func TestAdvanceTurnIgnoresStaleTimerFire(t *testing.T) {
	o, stop := newTestOrchestrator(t)
	defer stop()
	ctx := context.Background()

	d := mustCreate(t, o, models.StrategyConfig{Kind: models.StrategyRoundRobin, TurnTimeoutSeconds: 60})
	mustAddParticipant(t, o, d.ID, "user-1", models.RoleParticipant)
	mustAddParticipant(t, o, d.ID, "user-2", models.RoleParticipant)

	d, _, err := o.StartDiscussion(ctx, d.ID, "creator-1")
	if err != nil {
		t.Fatalf("StartDiscussion failed: %v", err)
	}
	current := d.State.CurrentTurn.ParticipantID

	if _, _, err := o.AdvanceTurn(ctx, d.ID, current, 1); err != nil {
		t.Fatalf("manual AdvanceTurn failed: %v", err)
	}

	resolution, events, err := o.AdvanceTurn(ctx, d.ID, "system", 1)
	if err != nil {
		t.Fatalf("stale timer fire should be a no-op, not an error: %v", err)
	}
	if resolution != nil || events != nil {
		t.Fatal("expected a stale timer fire to return nothing")
	}
}

func TestVerifyParticipantAccess(t *testing.T) {
	o, stop := newTestOrchestrator(t)
	defer stop()
	ctx := context.Background()

	d := mustCreate(t, o, models.StrategyConfig{Kind: models.StrategyFreeForm})
	mustAddParticipant(t, o, d.ID, "user-1", models.RoleParticipant)

	if !o.VerifyParticipantAccess(ctx, d.ID, "user-1") {
		t.Fatal("expected known participant to be verified")
	}
	if o.VerifyParticipantAccess(ctx, d.ID, "user-unknown") {
		t.Fatal("expected unknown user to fail verification")
	}
	if o.VerifyParticipantAccess(ctx, "missing-discussion", "user-1") {
		t.Fatal("expected unknown discussion to fail verification")
	}
}

func TestFreeFormAdmitsMessagesFromAnyParticipant(t *testing.T) {
	o, stop := newTestOrchestrator(t)
	defer stop()
	ctx := context.Background()

	d := mustCreate(t, o, models.StrategyConfig{Kind: models.StrategyFreeForm})
	p1 := mustAddParticipant(t, o, d.ID, "user-1", models.RoleParticipant)
	p2 := mustAddParticipant(t, o, d.ID, "user-2", models.RoleParticipant)

	if _, _, err := o.StartDiscussion(ctx, d.ID, "creator-1"); err != nil {
		t.Fatalf("StartDiscussion failed: %v", err)
	}
	if o.scheduler.Armed(d.ID) {
		t.Fatal("expected no turn timer for a free-form discussion")
	}

	if _, _, err := o.SendMessage(ctx, d.ID, p1.ID, "hi", models.MessageTypeText); err != nil {
		t.Fatalf("SendMessage from p1 failed: %v", err)
	}
	if _, _, err := o.SendMessage(ctx, d.ID, p2.ID, "hi back", models.MessageTypeText); err != nil {
		t.Fatalf("SendMessage from p2 failed: %v", err)
	}
}

func TestEndDiscussionDropsCacheAndTimer(t *testing.T) {
	o, stop := newTestOrchestrator(t)
	defer stop()
	ctx := context.Background()

	d := mustCreate(t, o, models.StrategyConfig{Kind: models.StrategyRoundRobin, TurnTimeoutSeconds: 60})
	mustAddParticipant(t, o, d.ID, "user-1", models.RoleParticipant)
	mustAddParticipant(t, o, d.ID, "user-2", models.RoleParticipant)

	if _, _, err := o.StartDiscussion(ctx, d.ID, "creator-1"); err != nil {
		t.Fatalf("StartDiscussion failed: %v", err)
	}

	d, _, err := o.EndDiscussion(ctx, d.ID, "creator-1", "wrapped up")
	if err != nil {
		t.Fatalf("EndDiscussion failed: %v", err)
	}
	if d.Status != models.StatusCompleted {
		t.Fatalf("expected Completed status, got %s", d.Status)
	}
	if o.scheduler.Armed(d.ID) {
		t.Fatal("expected turn timer to be cancelled on EndDiscussion")
	}
	if _, ok := o.cacheGet(d.ID); ok {
		t.Fatal("expected completed discussion to be dropped from the active cache")
	}
}

func TestAddReactionRequiresMembership(t *testing.T) {
	o, stop := newTestOrchestrator(t)
	defer stop()
	ctx := context.Background()

	d := mustCreate(t, o, models.StrategyConfig{Kind: models.StrategyFreeForm})
	p1 := mustAddParticipant(t, o, d.ID, "user-1", models.RoleParticipant)

	if _, _, err := o.StartDiscussion(ctx, d.ID, "creator-1"); err == nil {
		t.Fatal("expected StartDiscussion with one participant to fail before testing reactions")
	}
	mustAddParticipant(t, o, d.ID, "user-2", models.RoleParticipant)
	if _, _, err := o.StartDiscussion(ctx, d.ID, "creator-1"); err != nil {
		t.Fatalf("StartDiscussion failed: %v", err)
	}

	msg, _, err := o.SendMessage(ctx, d.ID, p1.ID, "hello", models.MessageTypeText)
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if _, _, err := o.AddReaction(ctx, d.ID, msg.ID, "not-a-member", "thumbsup"); err == nil {
		t.Fatal("expected AddReaction from a non-member to fail")
	} else if !apperr.Is(err, apperr.CodePolicyViolation) {
		t.Fatalf("expected PolicyViolation, got %v", err)
	}

	if _, _, err := o.AddReaction(ctx, d.ID, msg.ID, p1.ID, "thumbsup"); err != nil {
		t.Fatalf("expected AddReaction from a member to succeed: %v", err)
	}
}

func TestRequestTurnRejectsInactiveParticipant(t *testing.T) {
	o, stop := newTestOrchestrator(t)
	defer stop()
	ctx := context.Background()

	d := mustCreate(t, o, models.StrategyConfig{Kind: models.StrategyRoundRobin, TurnTimeoutSeconds: 60})
	mustAddParticipant(t, o, d.ID, "user-1", models.RoleParticipant)
	mustAddParticipant(t, o, d.ID, "user-2", models.RoleParticipant)

	if _, err := o.RequestTurn(ctx, d.ID, "unknown-participant"); err == nil {
		t.Fatal("expected RequestTurn for an unknown participant to fail")
	}
}

func TestArmTurnTimerClampsNegativeDuration(t *testing.T) {
	o, stop := newTestOrchestrator(t)
	defer stop()

	o.armTurnTimer("d-negative", 1, -5)
	time.Sleep(10 * time.Millisecond)
	if o.scheduler.Armed("d-negative") {
		t.Fatal("expected an immediately-fired zero-delay timer to no longer be armed")
	}
}

func TestGetDiscussionReturnsCurrentState(t *testing.T) {
	o, stop := newTestOrchestrator(t)
	defer stop()
	ctx := context.Background()

	d := mustCreate(t, o, models.StrategyConfig{Kind: models.StrategyFreeForm})
	got, err := o.GetDiscussion(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDiscussion failed: %v", err)
	}
	if got.ID != d.ID {
		t.Fatalf("expected discussion %q, got %q", d.ID, got.ID)
	}
}

func TestDeleteDiscussionRequiresTerminalStatus(t *testing.T) {
	o, stop := newTestOrchestrator(t)
	defer stop()
	ctx := context.Background()

	d := mustCreate(t, o, models.StrategyConfig{Kind: models.StrategyRoundRobin, TurnTimeoutSeconds: 60})
	mustAddParticipant(t, o, d.ID, "user-1", models.RoleParticipant)
	mustAddParticipant(t, o, d.ID, "user-2", models.RoleParticipant)
	if _, _, err := o.StartDiscussion(ctx, d.ID, "creator-1"); err != nil {
		t.Fatalf("StartDiscussion failed: %v", err)
	}

	if err := o.DeleteDiscussion(ctx, d.ID, "creator-1"); err == nil {
		t.Fatal("expected DeleteDiscussion to fail while the discussion is Active")
	} else if !apperr.Is(err, apperr.CodeInvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}

	if _, _, err := o.EndDiscussion(ctx, d.ID, "creator-1", ""); err != nil {
		t.Fatalf("EndDiscussion failed: %v", err)
	}
	if err := o.DeleteDiscussion(ctx, d.ID, "creator-1"); err != nil {
		t.Fatalf("expected DeleteDiscussion to succeed once ended: %v", err)
	}
	if _, err := o.GetDiscussion(ctx, d.ID); err == nil {
		t.Fatal("expected GetDiscussion to fail after deletion")
	}
}

func TestRemoveParticipantAdvancesTurnIfHeld(t *testing.T) {
	o, stop := newTestOrchestrator(t)
	defer stop()
	ctx := context.Background()

	d := mustCreate(t, o, models.StrategyConfig{Kind: models.StrategyRoundRobin, TurnTimeoutSeconds: 60})
	p1 := mustAddParticipant(t, o, d.ID, "user-1", models.RoleParticipant)
	p2 := mustAddParticipant(t, o, d.ID, "user-2", models.RoleParticipant)
	d, _, err := o.StartDiscussion(ctx, d.ID, "creator-1")
	if err != nil {
		t.Fatalf("StartDiscussion failed: %v", err)
	}

	holder := p1
	if d.State.CurrentTurn.ParticipantID == p2.ID {
		holder = p2
	}

	removed, events, err := o.RemoveParticipant(ctx, d.ID, holder.ID, "creator-1")
	if err != nil {
		t.Fatalf("RemoveParticipant failed: %v", err)
	}
	if removed.IsActive {
		t.Fatal("expected the removed participant to be marked inactive")
	}
	if len(events) != 2 {
		t.Fatalf("expected a ParticipantLeft event plus a forced TurnChanged event, got %d", len(events))
	}

	if _, _, err := o.RemoveParticipant(ctx, d.ID, holder.ID, "creator-1"); err == nil {
		t.Fatal("expected removing an already-inactive participant to fail")
	}
}

func TestChangeStrategyRejectsInvalidConfig(t *testing.T) {
	o, stop := newTestOrchestrator(t)
	defer stop()
	ctx := context.Background()

	d := mustCreate(t, o, models.StrategyConfig{Kind: models.StrategyRoundRobin, TurnTimeoutSeconds: 60})

	if _, _, err := o.ChangeStrategy(ctx, d.ID, models.StrategyConfig{Kind: models.StrategyModerated, TurnTimeoutSeconds: -1}, "creator-1"); err == nil {
		t.Fatal("expected an invalid strategy configuration to be rejected")
	}

	updated, _, err := o.ChangeStrategy(ctx, d.ID, models.StrategyConfig{Kind: models.StrategyModerated, TurnTimeoutSeconds: 30, RequireApproval: true}, "creator-1")
	if err != nil {
		t.Fatalf("ChangeStrategy failed: %v", err)
	}
	if updated.TurnStrategy.Kind != models.StrategyModerated {
		t.Fatalf("expected strategy kind to change to moderated, got %q", updated.TurnStrategy.Kind)
	}
}
