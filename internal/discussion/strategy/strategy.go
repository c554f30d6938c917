// Package strategy implements the Turn Strategy Engine: algorithms that decide who speaks next in a Discussion, whether a participant may
// take a turn, whether the current turn should end, and how long a turn is
// expected to last.
package strategy

import (
	"time"

	"github.com/kandev/agora/internal/discussion/models"
)

// Strategy is the four-function contract every turn strategy implements.
// Implementations keep no turn state of their own; all mutable turn context
// lives in the Discussion passed to each call. ContextAware does keep a
// 30-second cache of its per-participant analyses.
type Strategy interface {
	// NextParticipant returns the participant who should speak next, or nil
	// if none is eligible.
	NextParticipant(d *models.Discussion, active []*models.Participant, cfg models.StrategyConfig) *models.Participant

	// CanParticipantTakeTurn reports whether p is currently eligible to
	// speak under cfg.
	CanParticipantTakeTurn(p *models.Participant, d *models.Discussion, cfg models.StrategyConfig) bool

	// ShouldAdvanceTurn reports whether the current turn should end now.
	ShouldAdvanceTurn(d *models.Discussion, current *models.Participant, cfg models.StrategyConfig) bool

	// EstimateTurnDuration returns the expected duration, in seconds, of a
	// turn about to be taken by p.
	EstimateTurnDuration(p *models.Participant, d *models.Discussion, cfg models.StrategyConfig) float64
}

// DefaultTurnTimeoutSeconds is used when a StrategyConfig omits a timeout.
const DefaultTurnTimeoutSeconds = 300

// registry holds every strategy available at runtime, keyed by kind. It is
// populated once at package init and never mutated afterward.
var registry = map[models.StrategyKind]Strategy{
	models.StrategyRoundRobin:   &RoundRobin{},
	models.StrategyModerated:    &Moderated{},
	models.StrategyContextAware: NewContextAware(),
}

// Resolve returns the Strategy registered for kind, falling back to
// round-robin (and reporting fellBack=true) for any kind not registered,
// including free-form — free-form message admission is handled by the
// Orchestrator directly and does not consult a Strategy.
func Resolve(kind models.StrategyKind) (s Strategy, fellBack bool) {
	if s, ok := registry[kind]; ok {
		return s, false
	}
	return registry[models.StrategyRoundRobin], true
}

func turnTimeout(cfg models.StrategyConfig) time.Duration {
	seconds := cfg.TurnTimeoutSeconds
	if seconds <= 0 {
		seconds = DefaultTurnTimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

func hasEndOfTurnSignal(d *models.Discussion) bool {
	if d.Metadata == nil {
		return false
	}
	v, _ := d.Metadata["endOfTurnSignal"].(bool)
	return v
}
