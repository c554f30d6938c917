// Package models defines the Discussion Orchestrator's data model: the
// entities a Discussion Repository implementation must persist and the
// Turn Strategy Engine and Session Fan-Out Layer exchange.
package models

import "time"

// Status is the lifecycle state of a Discussion.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusArchived  Status = "archived"
)

// Phase is the conversational phase of an active Discussion.
type Phase string

const (
	PhaseSetup      Phase = "setup"
	PhaseDiscussion Phase = "discussion"
	PhaseConclusion Phase = "conclusion"
)

// StrategyKind names a registered Turn Strategy. Unknown values fall back to
// round-robin at the Strategy Engine (see internal/discussion/strategy).
type StrategyKind string

const (
	StrategyRoundRobin   StrategyKind = "round_robin"
	StrategyModerated    StrategyKind = "moderated"
	StrategyContextAware StrategyKind = "context_aware"
	StrategyFreeForm     StrategyKind = "free_form"
)

// StrategyConfig configures the selected turn strategy. Unused fields for a
// given strategy are ignored.
type StrategyConfig struct {
	Kind               StrategyKind           `json:"kind"`
	TurnTimeoutSeconds int                    `json:"turnTimeoutSeconds"`
	RequireApproval    bool                   `json:"requireApproval"`
	CooldownSeconds    int                    `json:"cooldownSeconds"`
	MaxMessagesPerTurn int                    `json:"maxMessagesPerTurn"`
	Topic              string                 `json:"topic,omitempty"`
	Extra              map[string]interface{} `json:"extra,omitempty"`
}

// Settings holds per-Discussion configuration.
type Settings struct {
	MaxParticipants int            `json:"maxParticipants"`
	Strategy        StrategyConfig `json:"strategy"`
}

// CurrentTurn describes the in-progress turn, if any.
type CurrentTurn struct {
	ParticipantID string     `json:"participantId,omitempty"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	ExpectedEndAt *time.Time `json:"expectedEndAt,omitempty"`
	TurnNumber    int        `json:"turnNumber"`
}

// State is the Discussion's mutable runtime state, embedded in Discussion.
type State struct {
	CurrentTurn    CurrentTurn `json:"currentTurn"`
	Phase          Phase       `json:"phase"`
	MessageCount   int         `json:"messageCount"`
	LastActivity   time.Time   `json:"lastActivity"`
	ConsensusLevel *float64    `json:"consensusLevel,omitempty"`
}

// Discussion is the aggregate root owned by the Discussion Orchestrator.
type Discussion struct {
	ID           string                 `json:"id"`
	Status       Status                 `json:"status"`
	TurnStrategy StrategyConfig         `json:"turnStrategy"`
	Settings     Settings               `json:"settings"`
	State        State                  `json:"state"`
	Participants []Participant          `json:"participants"`
	Metadata     map[string]interface{} `json:"metadata"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// ActiveParticipants returns participants with IsActive == true, in stable
// order (the order they appear in Discussion.Participants).
func (d *Discussion) ActiveParticipants() []*Participant {
	var active []*Participant
	for i := range d.Participants {
		if d.Participants[i].IsActive {
			active = append(active, &d.Participants[i])
		}
	}
	return active
}

// FindParticipant returns a pointer to the participant with the given id, or
// nil if not present.
func (d *Discussion) FindParticipant(id string) *Participant {
	for i := range d.Participants {
		if d.Participants[i].ID == id {
			return &d.Participants[i]
		}
	}
	return nil
}

// IsFreeForm reports whether message admission is unrestricted for this
// Discussion's configured strategy.
func (d *Discussion) IsFreeForm() bool {
	return d.TurnStrategy.Kind == StrategyFreeForm
}

// CreateSpec is the input to CreateDiscussion.
type CreateSpec struct {
	Strategy StrategyConfig
	Settings Settings
	Metadata map[string]interface{}
}

// UpdatePatch is a partial update applied by UpdateDiscussion. Nil fields are
// left unchanged.
type UpdatePatch struct {
	Status       *Status
	Settings     *Settings
	TurnStrategy *StrategyConfig
	State        *State
	Metadata     map[string]interface{}
}
