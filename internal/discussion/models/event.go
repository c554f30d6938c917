package models

import "time"

// EventType tags a DiscussionEvent variant. The Data field's shape is
// variant-specific (see the *Data types below) rather than open-ended.
type EventType string

const (
	EventStatusChanged     EventType = "StatusChanged"
	EventTurnChanged       EventType = "TurnChanged"
	EventParticipantJoined EventType = "ParticipantJoined"
	EventParticipantLeft   EventType = "ParticipantLeft"
	EventMessageSent       EventType = "MessageSent"
	EventReactionAdded     EventType = "ReactionAdded"
)

// EventMetadata carries event provenance.
type EventMetadata struct {
	Source string `json:"source"`
}

// DiscussionEvent is a value type describing a completed state transition.
// It is published to the Event Bus and broadcast to subscribed Sessions.
type DiscussionEvent struct {
	ID           string                 `json:"id"`
	Type         EventType              `json:"type"`
	DiscussionID string                 `json:"discussionId"`
	Data         map[string]interface{} `json:"data"`
	Timestamp    time.Time              `json:"timestamp"`
	Metadata     EventMetadata          `json:"metadata"`
}

// StatusChangedData is the Data payload for EventStatusChanged.
type StatusChangedData struct {
	PreviousStatus Status `json:"previousStatus"`
	NewStatus      Status `json:"newStatus"`
}

// TurnChangedData is the Data payload for EventTurnChanged.
type TurnChangedData struct {
	PreviousParticipantID string `json:"previousParticipantId,omitempty"`
	NewParticipantID      string `json:"newParticipantId,omitempty"`
	TurnNumber            int    `json:"turnNumber"`
	DurationSeconds       int    `json:"durationSeconds"`
}

// ParticipantJoinedData is the Data payload for EventParticipantJoined.
type ParticipantJoinedData struct {
	Participant Participant `json:"participant"`
}

// ParticipantLeftData is the Data payload for EventParticipantLeft.
type ParticipantLeftData struct {
	ParticipantID string `json:"participantId"`
}

// MessageSentData is the Data payload for EventMessageSent.
type MessageSentData struct {
	Message Message `json:"message"`
}

// ReactionAddedData is the Data payload for EventReactionAdded.
type ReactionAddedData struct {
	Reaction Reaction `json:"reaction"`
}
