package strategy

import (
	"time"

	"github.com/kandev/agora/internal/discussion/models"
)

const (
	// DefaultModeratedTurnTimeoutSeconds backs ShouldAdvanceTurn's timeout
	// branch when cfg.TurnTimeoutSeconds is unset.
	DefaultModeratedTurnTimeoutSeconds = 600

	metadataPendingSelection = "pendingModeratorSelection"
	metadataApprovedList     = "approvedParticipants"
	metadataAdvanceFlag      = "moderatorAdvance"
	metadataCompletionFlag   = "participantTurnComplete"
)

// Moderated defers speaker selection to a Moderator participant. Absent a
// pending selection, NextParticipant returns the primary Moderator so the
// application can prompt for one.
type Moderated struct{}

func primaryModerator(active []*models.Participant) *models.Participant {
	for _, p := range active {
		if p.Role == models.RoleModerator {
			return p
		}
	}
	return nil
}

// NextParticipant returns the pending selection if one is recorded in
// Discussion.Metadata, otherwise the primary Moderator.
func (Moderated) NextParticipant(d *models.Discussion, active []*models.Participant, cfg models.StrategyConfig) *models.Participant {
	if pendingID, ok := d.Metadata[metadataPendingSelection].(string); ok && pendingID != "" {
		if p := d.FindParticipant(pendingID); p != nil {
			return p
		}
	}
	return primaryModerator(active)
}

func isApproved(d *models.Discussion, participantID string) bool {
	list, _ := d.Metadata[metadataApprovedList].([]interface{})
	for _, v := range list {
		if id, ok := v.(string); ok && id == participantID {
			return true
		}
	}
	return false
}

func isPendingSelection(d *models.Discussion, participantID string) bool {
	id, _ := d.Metadata[metadataPendingSelection].(string)
	return id == participantID
}

// CanParticipantTakeTurn allows Moderators always; other participants only
// when explicitly approved or currently selected.
func (Moderated) CanParticipantTakeTurn(p *models.Participant, d *models.Discussion, cfg models.StrategyConfig) bool {
	if !p.IsActive {
		return false
	}
	if p.Role == models.RoleModerator {
		return true
	}
	return isApproved(d, p.ID) || isPendingSelection(d, p.ID)
}

// ShouldAdvanceTurn fires on an explicit moderator advance flag, timeout, or
// a participant completion flag.
func (Moderated) ShouldAdvanceTurn(d *models.Discussion, current *models.Participant, cfg models.StrategyConfig) bool {
	if advance, _ := d.Metadata[metadataAdvanceFlag].(bool); advance {
		return true
	}
	if complete, _ := d.Metadata[metadataCompletionFlag].(bool); complete {
		return true
	}
	ct := d.State.CurrentTurn
	if ct.StartedAt == nil {
		return false
	}
	timeout := cfg.TurnTimeoutSeconds
	if timeout <= 0 {
		timeout = DefaultModeratedTurnTimeoutSeconds
	}
	return time.Since(*ct.StartedAt) >= time.Duration(timeout)*time.Second
}

// EstimateTurnDuration returns the configured (or moderated default) turn
// timeout.
func (Moderated) EstimateTurnDuration(p *models.Participant, d *models.Discussion, cfg models.StrategyConfig) float64 {
	timeout := cfg.TurnTimeoutSeconds
	if timeout <= 0 {
		timeout = DefaultModeratedTurnTimeoutSeconds
	}
	return float64(timeout)
}

// SelectNextParticipant records moderatorId's pending selection of
// participantId. Callers (Orchestrator.SelectNextSpeaker) must already have
// verified moderatorId carries the Moderator role on the discussion.
func SelectNextParticipant(d *models.Discussion, moderatorID, participantID string) {
	if d.Metadata == nil {
		d.Metadata = map[string]interface{}{}
	}
	d.Metadata[metadataPendingSelection] = participantID
}

// AdvanceTurn records moderatorId's explicit advance flag. Callers
// (Orchestrator.AdvanceTurnAsModerator) must already have verified
// moderatorId carries the Moderator role on the discussion.
func AdvanceTurn(d *models.Discussion, moderatorID string) {
	if d.Metadata == nil {
		d.Metadata = map[string]interface{}{}
	}
	d.Metadata[metadataAdvanceFlag] = true
}

// ClearTurnFlags resets the per-turn moderator metadata once a turn
// transition has been applied.
func ClearTurnFlags(d *models.Discussion) {
	if d.Metadata == nil {
		return
	}
	delete(d.Metadata, metadataPendingSelection)
	delete(d.Metadata, metadataAdvanceFlag)
	delete(d.Metadata, metadataCompletionFlag)
}
