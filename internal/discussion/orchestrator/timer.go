package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// armTurnTimer cancels any outstanding timer for the discussion and
// schedules a new one for durationSeconds, firing AdvanceTurn with
// actorId="system" against the given turnNumber. A non-positive duration
// fires immediately (a turn timer scheduled for 0s advances the turn before
// any user message can land).
func (o *Orchestrator) armTurnTimer(discussionID string, turnNumber int, durationSeconds float64) {
	delay := time.Duration(durationSeconds * float64(time.Second))
	if delay < 0 {
		delay = 0
	}
	o.scheduler.Arm(discussionID, turnNumber, delay, o.onTurnTimerFired)
}

// onTurnTimerFired is the Scheduler's FireFunc. It is only invoked when the
// timer was not superseded (Scheduler.Arm's single-flight guarantee) — the
// staleness check against the discussion's live turnNumber still happens
// inside AdvanceTurn itself, since a manual AdvanceTurn can race the timer
// between firing and acquiring the per-discussion lock.
func (o *Orchestrator) onTurnTimerFired(discussionID string, turnNumber int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _, err := o.AdvanceTurn(ctx, discussionID, "system", turnNumber)
	if err != nil {
		o.logger.Warn("timer-driven AdvanceTurn failed",
			zap.String("discussion_id", discussionID),
			zap.Int("turn_number", turnNumber),
			zap.Error(err))
	}
}
