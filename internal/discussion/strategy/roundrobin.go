package strategy

import (
	"sort"
	"time"

	"github.com/kandev/agora/internal/discussion/models"
)

// RoundRobin selects the next eligible participant in join order, cycling
// by turn number.
type RoundRobin struct{}

// ordered returns active participants sorted by JoinedAt ascending, id as
// tiebreak.
func ordered(active []*models.Participant) []*models.Participant {
	out := append([]*models.Participant(nil), active...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// NextParticipant selects position (currentTurnNumber mod N) among the
// ordered active participants eligible to send messages.
func (RoundRobin) NextParticipant(d *models.Discussion, active []*models.Participant, cfg models.StrategyConfig) *models.Participant {
	eligible := make([]*models.Participant, 0, len(active))
	for _, p := range ordered(active) {
		if p.IsActive && p.HasPermission(models.PermissionCanSendMessages) {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	idx := d.State.CurrentTurn.TurnNumber % len(eligible)
	return eligible[idx]
}

// CanParticipantTakeTurn reports active + CanSendMessages.
func (RoundRobin) CanParticipantTakeTurn(p *models.Participant, d *models.Discussion, cfg models.StrategyConfig) bool {
	return p.IsActive && p.HasPermission(models.PermissionCanSendMessages)
}

// ShouldAdvanceTurn fires on timeout or an explicit end-of-turn signal.
func (RoundRobin) ShouldAdvanceTurn(d *models.Discussion, current *models.Participant, cfg models.StrategyConfig) bool {
	ct := d.State.CurrentTurn
	if ct.StartedAt == nil {
		return false
	}
	if time.Since(*ct.StartedAt) >= turnTimeout(cfg) {
		return true
	}
	return hasEndOfTurnSignal(d)
}

// EstimateTurnDuration returns the configured (or default) turn timeout.
func (RoundRobin) EstimateTurnDuration(p *models.Participant, d *models.Discussion, cfg models.StrategyConfig) float64 {
	return turnTimeout(cfg).Seconds()
}
