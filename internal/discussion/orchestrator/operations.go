package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/agora/internal/common/apperr"
	"github.com/kandev/agora/internal/discussion/models"
	"github.com/kandev/agora/internal/discussion/repository"
	"github.com/kandev/agora/internal/discussion/strategy"
)

const minActiveParticipantsToStart = 2

func toData(v interface{}) map[string]interface{} {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{}
	}
	var m map[string]interface{}
	_ = json.Unmarshal(b, &m)
	return m
}

// CreateDiscussion creates a new Discussion in Draft status. It fails when
// the requested strategy configuration is invalid.
func (o *Orchestrator) CreateDiscussion(ctx context.Context, spec models.CreateSpec, creatorID string) (*models.Discussion, error) {
	if err := strategy.ValidateConfig(spec.Strategy); err != nil {
		return nil, apperr.PolicyViolation(err.Error())
	}
	d, err := o.repo.CreateDiscussion(ctx, spec)
	if err != nil {
		return nil, apperr.TransientDependency("failed to create discussion", err)
	}
	return d, nil
}

// StartDiscussion transitions a Draft discussion to Active and assigns
// turn #1. It fails when the discussion is not Draft or has fewer than 2
// active participants.
func (o *Orchestrator) StartDiscussion(ctx context.Context, discussionID, actorID string) (*models.Discussion, []*models.DiscussionEvent, error) {
	lock := o.lockFor(discussionID)
	lock.Lock()
	defer lock.Unlock()

	d, err := o.loadDiscussion(ctx, discussionID)
	if err != nil {
		return nil, nil, err
	}
	if d.Status != models.StatusDraft {
		return nil, nil, apperr.InvalidState("discussion is not in Draft status")
	}
	active := d.ActiveParticipants()
	if len(active) < minActiveParticipantsToStart {
		return nil, nil, apperr.PolicyViolation("at least 2 active participants are required to start a discussion")
	}

	previousStatus := d.Status
	d.Status = models.StatusActive
	d.State.Phase = models.PhaseDiscussion

	events := []*models.DiscussionEvent{
		newEvent(discussionID, models.EventStatusChanged, toData(models.StatusChangedData{
			PreviousStatus: previousStatus,
			NewStatus:      d.Status,
		})),
	}

	if !d.IsFreeForm() {
		turnEvent, err := o.beginTurn(d, active)
		if err != nil {
			return nil, nil, err
		}
		if turnEvent != nil {
			events = append(events, turnEvent)
		}
	}

	if err := o.persist(ctx, d); err != nil {
		return nil, nil, err
	}
	o.emit(ctx, discussionID, events...)
	return d, events, nil
}

// beginTurn resolves and writes the discussion's next turn (the previous
// turnNumber + 1, so turn 1 on a fresh discussion), returning the
// TurnChanged event. Caller holds the per-discussion lock.
func (o *Orchestrator) beginTurn(d *models.Discussion, active []*models.Participant) (*models.DiscussionEvent, error) {
	s := o.resolveStrategy(d)
	cfg := d.TurnStrategy
	resolution := s.NextParticipant(d, active, cfg)

	previous := d.State.CurrentTurn.ParticipantID
	now := time.Now().UTC()
	turnNumber := d.State.CurrentTurn.TurnNumber + 1

	var duration float64
	var nextID string
	if resolution != nil {
		nextID = resolution.ID
		duration = s.EstimateTurnDuration(resolution, d, cfg)
	}

	expectedEnd := now.Add(time.Duration(duration * float64(time.Second)))
	d.State.CurrentTurn = models.CurrentTurn{
		ParticipantID: nextID,
		StartedAt:     &now,
		ExpectedEndAt: &expectedEnd,
		TurnNumber:    turnNumber,
	}
	d.State.LastActivity = now

	if nextID != "" {
		o.armTurnTimer(d.ID, turnNumber, duration)
	}

	return newEvent(d.ID, models.EventTurnChanged, toData(models.TurnChangedData{
		PreviousParticipantID: previous,
		NewParticipantID:      nextID,
		TurnNumber:            turnNumber,
		DurationSeconds:       int(duration),
	})), nil
}

func (o *Orchestrator) persist(ctx context.Context, d *models.Discussion) error {
	status := d.Status
	settings := d.Settings
	turnStrategy := d.TurnStrategy
	state := d.State
	metadata := d.Metadata
	_, err := o.repo.UpdateDiscussion(ctx, d.ID, models.UpdatePatch{
		Status:       &status,
		Settings:     &settings,
		TurnStrategy: &turnStrategy,
		State:        &state,
		Metadata:     metadata,
	})
	if err != nil {
		return apperr.TransientDependency("failed to persist discussion", err)
	}
	o.cachePut(d)
	return nil
}

// AddParticipant adds a new participant to the discussion. It fails when
// the discussion has reached capacity, or the spec carries neither a
// userId nor an agentId identifying the participant.
func (o *Orchestrator) AddParticipant(ctx context.Context, discussionID string, spec models.ParticipantSpec, actorID string) (*models.Participant, []*models.DiscussionEvent, error) {
	lock := o.lockFor(discussionID)
	lock.Lock()
	defer lock.Unlock()

	d, err := o.loadDiscussion(ctx, discussionID)
	if err != nil {
		return nil, nil, err
	}
	if spec.UserID == "" && spec.AgentID == "" {
		return nil, nil, apperr.PolicyViolation("participant spec must set userId or agentId")
	}
	if d.Settings.MaxParticipants > 0 && len(d.Participants) >= d.Settings.MaxParticipants {
		return nil, nil, apperr.PolicyViolation("discussion has reached its participant capacity")
	}

	p, err := o.repo.AddParticipant(ctx, discussionID, spec)
	if err != nil {
		return nil, nil, apperr.TransientDependency("failed to add participant", err)
	}
	d.Participants = append(d.Participants, *p)
	d.UpdatedAt = time.Now().UTC()
	o.cachePut(d)

	events := []*models.DiscussionEvent{
		newEvent(discussionID, models.EventParticipantJoined, toData(models.ParticipantJoinedData{Participant: *p})),
	}
	o.emit(ctx, discussionID, events...)
	return p, events, nil
}

// SendMessage admits a message from a participant. It fails when the
// discussion is unknown, the participant is inactive, or (for non-free-form
// strategies) it is not the participant's turn.
func (o *Orchestrator) SendMessage(ctx context.Context, discussionID, participantID, content string, msgType models.MessageType) (*models.Message, []*models.DiscussionEvent, error) {
	lock := o.lockFor(discussionID)
	lock.Lock()
	defer lock.Unlock()

	d, err := o.loadDiscussion(ctx, discussionID)
	if err != nil {
		return nil, nil, err
	}
	p := d.FindParticipant(participantID)
	if p == nil || !p.IsActive {
		return nil, nil, apperr.PolicyViolation("participant is not active in this discussion")
	}
	if !d.IsFreeForm() && d.State.CurrentTurn.ParticipantID != participantID {
		return nil, nil, apperr.PolicyViolation("it is not this participant's turn")
	}

	msg, err := o.repo.SendMessage(ctx, discussionID, participantID, content, msgType)
	if err != nil {
		return nil, nil, apperr.TransientDependency("failed to persist message", err)
	}

	now := time.Now().UTC()
	d.State.MessageCount++
	d.State.LastActivity = now
	for i := range d.Participants {
		if d.Participants[i].ID == participantID {
			d.Participants[i].MessageCount++
			d.Participants[i].LastActiveAt = now
		}
	}
	o.cachePut(d)

	events := []*models.DiscussionEvent{
		newEvent(discussionID, models.EventMessageSent, toData(models.MessageSentData{Message: *msg})),
	}
	o.emit(ctx, discussionID, events...)
	return msg, events, nil
}

// AdvanceTurn resolves and writes the next turn. It fails when the
// discussion is not Active.
func (o *Orchestrator) AdvanceTurn(ctx context.Context, discussionID, actorID string, expectedTurnNumber int) (*models.TurnResolution, []*models.DiscussionEvent, error) {
	lock := o.lockFor(discussionID)
	lock.Lock()
	defer lock.Unlock()

	d, err := o.loadDiscussion(ctx, discussionID)
	if err != nil {
		return nil, nil, err
	}
	if actorID == "system" && d.State.CurrentTurn.TurnNumber != expectedTurnNumber {
		// Timer fired against a turn number that has since advanced —
		// a concurrent manual AdvanceTurn already won. No-op.
		o.logger.Debug("stale timer fire ignored",
			zap.String("discussion_id", discussionID),
			zap.Int("expected_turn_number", expectedTurnNumber),
			zap.Int("current_turn_number", d.State.CurrentTurn.TurnNumber))
		return nil, nil, nil
	}
	if d.Status != models.StatusActive {
		return nil, nil, apperr.InvalidState("discussion is not Active")
	}

	active := d.ActiveParticipants()
	turnEvent, err := o.beginTurn(d, active)
	if err != nil {
		return nil, nil, err
	}
	if err := o.persist(ctx, d); err != nil {
		return nil, nil, err
	}

	strategy.ClearTurnFlags(d)
	resolution := &models.TurnResolution{
		NextParticipantID:        d.State.CurrentTurn.ParticipantID,
		TurnNumber:               d.State.CurrentTurn.TurnNumber,
		EstimatedDurationSeconds: turnDurationFromEvent(turnEvent),
	}

	events := []*models.DiscussionEvent{turnEvent}
	o.emit(ctx, discussionID, events...)
	return resolution, events, nil
}

func turnDurationFromEvent(event *models.DiscussionEvent) float64 {
	if v, ok := event.Data["durationSeconds"]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return 0
}

// RequestTurnOutcome is the outcome of a RequestTurn call.
type RequestTurnOutcome string

const (
	RequestTurnActive   RequestTurnOutcome = "active"
	RequestTurnQueued   RequestTurnOutcome = "queued"
	RequestTurnRejected RequestTurnOutcome = "rejected"
)

// RequestTurn lets a participant ask to speak. It fails when the
// participant is inactive or the configured strategy forbids the request.
func (o *Orchestrator) RequestTurn(ctx context.Context, discussionID, participantID string) (RequestTurnOutcome, error) {
	lock := o.lockFor(discussionID)
	lock.Lock()
	defer lock.Unlock()

	d, err := o.loadDiscussion(ctx, discussionID)
	if err != nil {
		return RequestTurnRejected, err
	}
	p := d.FindParticipant(participantID)
	if p == nil || !p.IsActive {
		return RequestTurnRejected, apperr.PolicyViolation("participant is not active in this discussion")
	}
	if !p.HasPermission(models.PermissionCanRequestTurn) {
		return RequestTurnRejected, apperr.PolicyViolation("participant is not permitted to request a turn")
	}
	if d.State.CurrentTurn.ParticipantID == participantID {
		return RequestTurnActive, nil
	}

	s := o.resolveStrategy(d)
	if !s.CanParticipantTakeTurn(p, d, d.TurnStrategy) {
		return RequestTurnRejected, apperr.PolicyViolation("strategy forbids this participant from taking a turn")
	}

	// Under the moderated strategy, eligibility alone (approved or already
	// pending) does not hand the floor to this participant — only a
	// Moderator's SelectNextSpeaker/AdvanceTurnAsModerator call does that.
	// The request is simply acknowledged as queued.
	return RequestTurnQueued, nil
}

// verifyModerator returns actorID's Participant record, failing unless it
// is active and carries the Moderator role on the discussion.
func verifyModerator(d *models.Discussion, actorID string) (*models.Participant, error) {
	p := d.FindParticipant(actorID)
	if p == nil || !p.IsActive || p.Role != models.RoleModerator {
		return nil, apperr.PolicyViolation("actor does not hold the moderator role on this discussion")
	}
	return p, nil
}

// SelectNextSpeaker records a Moderator's selection of participantID as the
// next speaker under the moderated strategy. It does not itself transition
// the turn — call AdvanceTurnAsModerator to apply the selection. Fails when
// actorID is not a Moderator or the strategy is not Moderated.
func (o *Orchestrator) SelectNextSpeaker(ctx context.Context, discussionID, actorID, participantID string) (*models.Discussion, error) {
	lock := o.lockFor(discussionID)
	lock.Lock()
	defer lock.Unlock()

	d, err := o.loadDiscussion(ctx, discussionID)
	if err != nil {
		return nil, err
	}
	if d.TurnStrategy.Kind != models.StrategyModerated {
		return nil, apperr.InvalidState("discussion is not using the moderated strategy")
	}
	if _, err := verifyModerator(d, actorID); err != nil {
		return nil, err
	}
	target := d.FindParticipant(participantID)
	if target == nil || !target.IsActive {
		return nil, apperr.NotFound("participant not found in this discussion")
	}

	strategy.SelectNextParticipant(d, actorID, participantID)
	if err := o.persist(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// AdvanceTurnAsModerator applies a Moderator's pending selection (or simply
// forces a turn change if none is pending) by invoking the moderated
// strategy's turn resolution. Fails when actorID is not a Moderator or the
// discussion is not Active.
func (o *Orchestrator) AdvanceTurnAsModerator(ctx context.Context, discussionID, actorID string) (*models.TurnResolution, []*models.DiscussionEvent, error) {
	lock := o.lockFor(discussionID)
	lock.Lock()
	defer lock.Unlock()

	d, err := o.loadDiscussion(ctx, discussionID)
	if err != nil {
		return nil, nil, err
	}
	if d.TurnStrategy.Kind != models.StrategyModerated {
		return nil, nil, apperr.InvalidState("discussion is not using the moderated strategy")
	}
	if _, err := verifyModerator(d, actorID); err != nil {
		return nil, nil, err
	}
	if d.Status != models.StatusActive {
		return nil, nil, apperr.InvalidState("discussion is not Active")
	}

	strategy.AdvanceTurn(d, actorID)
	o.scheduler.Cancel(discussionID)
	active := d.ActiveParticipants()
	turnEvent, err := o.beginTurn(d, active)
	if err != nil {
		return nil, nil, err
	}
	if err := o.persist(ctx, d); err != nil {
		return nil, nil, err
	}
	strategy.ClearTurnFlags(d)

	resolution := &models.TurnResolution{
		NextParticipantID:        d.State.CurrentTurn.ParticipantID,
		TurnNumber:               d.State.CurrentTurn.TurnNumber,
		EstimatedDurationSeconds: turnDurationFromEvent(turnEvent),
	}
	events := []*models.DiscussionEvent{turnEvent}
	o.emit(ctx, discussionID, events...)
	return resolution, events, nil
}

// EndTurn ends the calling participant's turn and advances to the next.
// It fails when it is not this participant's turn.
func (o *Orchestrator) EndTurn(ctx context.Context, discussionID, participantID string) (*models.TurnResolution, []*models.DiscussionEvent, error) {
	lock := o.lockFor(discussionID)
	lock.Lock()
	defer lock.Unlock()

	d, err := o.loadDiscussion(ctx, discussionID)
	if err != nil {
		return nil, nil, err
	}
	if !d.IsFreeForm() && d.State.CurrentTurn.ParticipantID != participantID {
		return nil, nil, apperr.PolicyViolation("it is not this participant's turn")
	}
	if d.Status != models.StatusActive {
		return nil, nil, apperr.InvalidState("discussion is not Active")
	}

	o.scheduler.Cancel(discussionID)
	active := d.ActiveParticipants()
	turnEvent, err := o.beginTurn(d, active)
	if err != nil {
		return nil, nil, err
	}
	if err := o.persist(ctx, d); err != nil {
		return nil, nil, err
	}
	strategy.ClearTurnFlags(d)

	resolution := &models.TurnResolution{
		NextParticipantID:        d.State.CurrentTurn.ParticipantID,
		TurnNumber:               d.State.CurrentTurn.TurnNumber,
		EstimatedDurationSeconds: turnDurationFromEvent(turnEvent),
	}
	events := []*models.DiscussionEvent{turnEvent}
	o.emit(ctx, discussionID, events...)
	return resolution, events, nil
}

// PauseDiscussion suspends an Active discussion and cancels its turn
// timer, recording the remaining duration for Resume. It fails when the
// discussion is not Active.
func (o *Orchestrator) PauseDiscussion(ctx context.Context, discussionID, actorID, reason string) (*models.Discussion, []*models.DiscussionEvent, error) {
	lock := o.lockFor(discussionID)
	lock.Lock()
	defer lock.Unlock()

	d, err := o.loadDiscussion(ctx, discussionID)
	if err != nil {
		return nil, nil, err
	}
	if d.Status != models.StatusActive {
		return nil, nil, apperr.InvalidState("discussion is not Active")
	}

	o.scheduler.Cancel(discussionID)
	if ct := d.State.CurrentTurn; ct.ExpectedEndAt != nil {
		remaining := time.Until(*ct.ExpectedEndAt)
		if d.Metadata == nil {
			d.Metadata = map[string]interface{}{}
		}
		d.Metadata["pausedRemainingSeconds"] = remaining.Seconds()
	}
	if reason != "" {
		if d.Metadata == nil {
			d.Metadata = map[string]interface{}{}
		}
		d.Metadata["pauseReason"] = reason
	}

	previousStatus := d.Status
	d.Status = models.StatusPaused

	if err := o.persist(ctx, d); err != nil {
		return nil, nil, err
	}
	events := []*models.DiscussionEvent{
		newEvent(discussionID, models.EventStatusChanged, toData(models.StatusChangedData{
			PreviousStatus: previousStatus,
			NewStatus:      d.Status,
		})),
	}
	o.emit(ctx, discussionID, events...)
	return d, events, nil
}

// ResumeDiscussion re-arms the turn timer for the remaining duration (or
// advances immediately if none remains) and returns the discussion to
// Active. It fails when the discussion is not Paused.
func (o *Orchestrator) ResumeDiscussion(ctx context.Context, discussionID, actorID string) (*models.Discussion, []*models.DiscussionEvent, error) {
	lock := o.lockFor(discussionID)
	lock.Lock()
	defer lock.Unlock()

	d, err := o.loadDiscussion(ctx, discussionID)
	if err != nil {
		return nil, nil, err
	}
	if d.Status != models.StatusPaused {
		return nil, nil, apperr.InvalidState("discussion is not Paused")
	}

	previousStatus := d.Status
	d.Status = models.StatusActive

	remaining := 0.0
	if d.Metadata != nil {
		if v, ok := d.Metadata["pausedRemainingSeconds"].(float64); ok {
			remaining = v
		}
		delete(d.Metadata, "pausedRemainingSeconds")
	}

	events := []*models.DiscussionEvent{
		newEvent(discussionID, models.EventStatusChanged, toData(models.StatusChangedData{
			PreviousStatus: previousStatus,
			NewStatus:      d.Status,
		})),
	}

	if !d.IsFreeForm() && d.State.CurrentTurn.ParticipantID != "" {
		if remaining <= 0 {
			if err := o.persist(ctx, d); err != nil {
				return nil, nil, err
			}
			active := d.ActiveParticipants()
			turnEvent, err := o.beginTurn(d, active)
			if err != nil {
				return nil, nil, err
			}
			events = append(events, turnEvent)
		} else {
			now := time.Now().UTC()
			expectedEnd := now.Add(time.Duration(remaining * float64(time.Second)))
			d.State.CurrentTurn.ExpectedEndAt = &expectedEnd
			o.armTurnTimer(discussionID, d.State.CurrentTurn.TurnNumber, remaining)
		}
	}

	if err := o.persist(ctx, d); err != nil {
		return nil, nil, err
	}
	o.emit(ctx, discussionID, events...)
	return d, events, nil
}

// EndDiscussion transitions an Active or Paused discussion to Completed and
// clears its turn timer. It fails when the discussion is in neither state.
func (o *Orchestrator) EndDiscussion(ctx context.Context, discussionID, actorID, reason string) (*models.Discussion, []*models.DiscussionEvent, error) {
	lock := o.lockFor(discussionID)
	lock.Lock()
	defer lock.Unlock()

	d, err := o.loadDiscussion(ctx, discussionID)
	if err != nil {
		return nil, nil, err
	}
	if d.Status != models.StatusActive && d.Status != models.StatusPaused {
		return nil, nil, apperr.InvalidState("discussion is not Active or Paused")
	}

	o.scheduler.Cancel(discussionID)
	previousStatus := d.Status
	d.Status = models.StatusCompleted
	d.State.Phase = models.PhaseConclusion
	if reason != "" {
		if d.Metadata == nil {
			d.Metadata = map[string]interface{}{}
		}
		d.Metadata["endReason"] = reason
	}

	if err := o.persist(ctx, d); err != nil {
		return nil, nil, err
	}
	o.cacheDrop(discussionID)

	events := []*models.DiscussionEvent{
		newEvent(discussionID, models.EventStatusChanged, toData(models.StatusChangedData{
			PreviousStatus: previousStatus,
			NewStatus:      d.Status,
		})),
	}
	o.emit(ctx, discussionID, events...)
	return d, events, nil
}

// AddReaction records a reaction to a message. It fails when the
// participant is not a member of the discussion.
func (o *Orchestrator) AddReaction(ctx context.Context, discussionID, messageID, participantID, emoji string) (*models.Reaction, []*models.DiscussionEvent, error) {
	lock := o.lockFor(discussionID)
	lock.Lock()
	defer lock.Unlock()

	d, err := o.loadDiscussion(ctx, discussionID)
	if err != nil {
		return nil, nil, err
	}
	if d.FindParticipant(participantID) == nil {
		return nil, nil, apperr.PolicyViolation("participant is not in this discussion")
	}

	reaction, err := o.repo.AddReaction(ctx, discussionID, messageID, participantID, emoji)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, nil, apperr.NotFound("message not found")
		}
		return nil, nil, apperr.TransientDependency("failed to add reaction", err)
	}

	events := []*models.DiscussionEvent{
		newEvent(discussionID, models.EventReactionAdded, toData(models.ReactionAddedData{Reaction: *reaction})),
	}
	o.emit(ctx, discussionID, events...)
	return reaction, events, nil
}

// GetDiscussion returns the current state of a discussion, preferring the
// active-discussion cache over a repository round-trip.
func (o *Orchestrator) GetDiscussion(ctx context.Context, discussionID string) (*models.Discussion, error) {
	lock := o.lockFor(discussionID)
	lock.Lock()
	defer lock.Unlock()
	return o.loadDiscussion(ctx, discussionID)
}

// DeleteDiscussion permanently removes a discussion's record. It fails when
// the discussion is Active or Paused; end it first.
func (o *Orchestrator) DeleteDiscussion(ctx context.Context, discussionID, actorID string) error {
	lock := o.lockFor(discussionID)
	lock.Lock()
	defer lock.Unlock()

	d, err := o.loadDiscussion(ctx, discussionID)
	if err != nil {
		return err
	}
	if d.Status == models.StatusActive || d.Status == models.StatusPaused {
		return apperr.InvalidState("discussion must be ended before it can be deleted")
	}

	o.scheduler.Cancel(discussionID)
	if err := o.repo.DeleteDiscussion(ctx, discussionID); err != nil {
		return apperr.TransientDependency("failed to delete discussion", err)
	}
	o.cacheDrop(discussionID)
	return nil
}

// RemoveParticipant marks a participant inactive rather than deleting its
// record, preserving message and reaction history. It fails when the
// participant is unknown or already inactive.
func (o *Orchestrator) RemoveParticipant(ctx context.Context, discussionID, participantID, actorID string) (*models.Participant, []*models.DiscussionEvent, error) {
	lock := o.lockFor(discussionID)
	lock.Lock()
	defer lock.Unlock()

	d, err := o.loadDiscussion(ctx, discussionID)
	if err != nil {
		return nil, nil, err
	}
	p := d.FindParticipant(participantID)
	if p == nil || !p.IsActive {
		return nil, nil, apperr.NotFound("participant is not active in this discussion")
	}
	p.IsActive = false

	if err := o.repo.UpdateParticipant(ctx, discussionID, p); err != nil {
		return nil, nil, apperr.TransientDependency("failed to update participant", err)
	}
	d.UpdatedAt = time.Now().UTC()

	events := []*models.DiscussionEvent{
		newEvent(discussionID, models.EventParticipantLeft, toData(models.ParticipantLeftData{ParticipantID: participantID})),
	}

	if !d.IsFreeForm() && d.Status == models.StatusActive && d.State.CurrentTurn.ParticipantID == participantID {
		o.scheduler.Cancel(discussionID)
		active := d.ActiveParticipants()
		turnEvent, err := o.beginTurn(d, active)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, turnEvent)
	}

	if err := o.persist(ctx, d); err != nil {
		return nil, nil, err
	}
	o.cachePut(d)
	o.emit(ctx, discussionID, events...)
	return p, events, nil
}

// ChangeStrategy replaces the discussion's turn strategy configuration. It
// fails when the new configuration is invalid; in-progress turns are left
// untouched and take effect on the next AdvanceTurn.
func (o *Orchestrator) ChangeStrategy(ctx context.Context, discussionID string, cfg models.StrategyConfig, actorID string) (*models.Discussion, []*models.DiscussionEvent, error) {
	lock := o.lockFor(discussionID)
	lock.Lock()
	defer lock.Unlock()

	if err := strategy.ValidateConfig(cfg); err != nil {
		return nil, nil, apperr.PolicyViolation(err.Error())
	}

	d, err := o.loadDiscussion(ctx, discussionID)
	if err != nil {
		return nil, nil, err
	}
	d.TurnStrategy = cfg
	d.Settings.Strategy = cfg
	d.UpdatedAt = time.Now().UTC()

	if err := o.persist(ctx, d); err != nil {
		return nil, nil, err
	}
	return d, nil, nil
}

// VerifyParticipantAccess reports whether userId is a participant of
// discussionId. It never fails; an unknown discussion simply yields false.
func (o *Orchestrator) VerifyParticipantAccess(ctx context.Context, discussionID, userID string) bool {
	d, err := o.loadDiscussion(ctx, discussionID)
	if err != nil {
		return false
	}
	for i := range d.Participants {
		if d.Participants[i].UserID == userID {
			return true
		}
	}
	return false
}
