package strategy

import (
	"testing"
	"time"

	"github.com/kandev/agora/internal/discussion/models"
)

func TestContextAwareNextParticipantPrefersExpertOnTopic(t *testing.T) {
	now := time.Now()
	d := &models.Discussion{
		TurnStrategy: models.StrategyConfig{Kind: models.StrategyContextAware, Topic: "databases"},
	}
	expert := &models.Participant{
		ID: "expert", Role: models.RoleExpert, IsActive: true,
		Permissions:  []models.Permission{models.PermissionCanSendMessages},
		LastActiveAt: now,
		Preferences:  map[string]interface{}{"topicExpertise": "databases"},
	}
	novice := &models.Participant{
		ID: "novice", Role: models.RoleParticipant, IsActive: true,
		Permissions:  []models.Permission{models.PermissionCanSendMessages},
		LastActiveAt: now.Add(-time.Hour),
	}

	ca := NewContextAware()
	got := ca.NextParticipant(d, []*models.Participant{novice, expert}, d.TurnStrategy)
	if got == nil || got.ID != "expert" {
		t.Errorf("expected expert to win on topic relevance, got %v", got)
	}
}

func TestContextAwareCachesAnalysisWithinTTL(t *testing.T) {
	d := &models.Discussion{ID: "d1"}
	p := &models.Participant{ID: "p1", IsActive: true, LastActiveAt: time.Now()}

	ca := NewContextAware()
	first := ca.analyze(d, p)
	p.MessageCount = 100 // mutate input; cached result should not change
	second := ca.analyze(d, p)
	if first.score != second.score {
		t.Errorf("expected cached analysis to be reused within TTL, got %+v vs %+v", first, second)
	}
}

func TestContextAwareCanParticipantTakeTurnRequiresThresholds(t *testing.T) {
	d := &models.Discussion{}
	inactive := &models.Participant{ID: "p1", IsActive: false}
	ca := NewContextAware()
	if ca.CanParticipantTakeTurn(inactive, d, models.StrategyConfig{}) {
		t.Error("expected inactive participant to be ineligible")
	}
	stale := &models.Participant{
		ID: "p2", IsActive: true,
		Permissions:  []models.Permission{models.PermissionCanSendMessages},
		LastActiveAt: time.Now().Add(-time.Hour),
	}
	if ca.CanParticipantTakeTurn(stale, d, models.StrategyConfig{}) {
		t.Error("expected participant with engagement below 0.2 to be ineligible")
	}
}

func TestContextAwareEstimateTurnDurationScalesWithRelevance(t *testing.T) {
	d := &models.Discussion{TurnStrategy: models.StrategyConfig{Topic: "go"}}
	p := &models.Participant{
		ID: "p1", Role: models.RoleExpert,
		Preferences: map[string]interface{}{"topicExpertise": "go"},
	}
	ca := NewContextAware()
	base := turnTimeout(models.StrategyConfig{}).Seconds()
	got := ca.EstimateTurnDuration(p, d, models.StrategyConfig{})
	if got <= base {
		t.Errorf("expected scaled-up duration for high relevance/expertise, got %v (base %v)", got, base)
	}
}
