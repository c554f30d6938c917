package strategy

import (
	"testing"
	"time"

	"github.com/kandev/agora/internal/discussion/models"
)

func participant(id string, joinedAt time.Time) *models.Participant {
	return &models.Participant{
		ID:          id,
		IsActive:    true,
		Permissions: []models.Permission{models.PermissionCanSendMessages},
		JoinedAt:    joinedAt,
	}
}

func TestRoundRobinNextParticipantCyclesByTurnNumber(t *testing.T) {
	base := time.Now()
	p1 := participant("p1", base)
	p2 := participant("p2", base.Add(time.Second))
	p3 := participant("p3", base.Add(2*time.Second))
	active := []*models.Participant{p2, p3, p1} // deliberately unordered

	d := &models.Discussion{}
	rr := RoundRobin{}

	d.State.CurrentTurn.TurnNumber = 0
	if got := rr.NextParticipant(d, active, models.StrategyConfig{}); got.ID != "p1" {
		t.Errorf("turn 0: expected p1, got %s", got.ID)
	}
	d.State.CurrentTurn.TurnNumber = 1
	if got := rr.NextParticipant(d, active, models.StrategyConfig{}); got.ID != "p2" {
		t.Errorf("turn 1: expected p2, got %s", got.ID)
	}
	d.State.CurrentTurn.TurnNumber = 3
	if got := rr.NextParticipant(d, active, models.StrategyConfig{}); got.ID != "p1" {
		t.Errorf("turn 3 (wraps): expected p1, got %s", got.ID)
	}
}

func TestRoundRobinNextParticipantExcludesIneligible(t *testing.T) {
	base := time.Now()
	p1 := participant("p1", base)
	p1.IsActive = false
	p2 := participant("p2", base.Add(time.Second))

	d := &models.Discussion{}
	rr := RoundRobin{}
	got := rr.NextParticipant(d, []*models.Participant{p1, p2}, models.StrategyConfig{})
	if got == nil || got.ID != "p2" {
		t.Errorf("expected only eligible participant p2, got %v", got)
	}
}

func TestRoundRobinNextParticipantNoneEligible(t *testing.T) {
	base := time.Now()
	p1 := participant("p1", base)
	p1.IsActive = false

	d := &models.Discussion{}
	rr := RoundRobin{}
	if got := rr.NextParticipant(d, []*models.Participant{p1}, models.StrategyConfig{}); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestRoundRobinShouldAdvanceTurnOnTimeout(t *testing.T) {
	started := time.Now().Add(-31 * time.Second)
	d := &models.Discussion{State: models.State{CurrentTurn: models.CurrentTurn{StartedAt: &started}}}
	rr := RoundRobin{}
	if !rr.ShouldAdvanceTurn(d, nil, models.StrategyConfig{TurnTimeoutSeconds: 30}) {
		t.Error("expected ShouldAdvanceTurn true after timeout elapsed")
	}
}

func TestRoundRobinShouldAdvanceTurnBeforeTimeout(t *testing.T) {
	started := time.Now()
	d := &models.Discussion{State: models.State{CurrentTurn: models.CurrentTurn{StartedAt: &started}}}
	rr := RoundRobin{}
	if rr.ShouldAdvanceTurn(d, nil, models.StrategyConfig{TurnTimeoutSeconds: 30}) {
		t.Error("expected ShouldAdvanceTurn false before timeout elapses")
	}
}

func TestRoundRobinEstimateTurnDurationDefault(t *testing.T) {
	rr := RoundRobin{}
	got := rr.EstimateTurnDuration(nil, &models.Discussion{}, models.StrategyConfig{})
	if got != DefaultTurnTimeoutSeconds {
		t.Errorf("expected default %v, got %v", DefaultTurnTimeoutSeconds, got)
	}
}

func TestResolveFallsBackToRoundRobinForUnknownKind(t *testing.T) {
	s, fellBack := Resolve(models.StrategyKind("nonexistent"))
	if !fellBack {
		t.Error("expected fellBack=true for unknown strategy kind")
	}
	if _, ok := s.(*RoundRobin); !ok {
		t.Errorf("expected fallback to *RoundRobin, got %T", s)
	}
}

func TestResolveReturnsRegisteredStrategy(t *testing.T) {
	s, fellBack := Resolve(models.StrategyModerated)
	if fellBack {
		t.Error("expected fellBack=false for registered strategy")
	}
	if _, ok := s.(*Moderated); !ok {
		t.Errorf("expected *Moderated, got %T", s)
	}
}
