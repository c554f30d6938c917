package models

import "time"

// MessageType classifies a Message's content.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeSystem MessageType = "system"
	MessageTypeAction MessageType = "action"
)

// MaxMessageContentBytes bounds Message.Content's size.
const MaxMessageContentBytes = 32 * 1024

// Message is an append-only record authored by a Participant.
type Message struct {
	ID            string      `json:"id"`
	DiscussionID  string      `json:"discussionId"`
	ParticipantID string      `json:"participantId"`
	Content       string      `json:"content"`
	MessageType   MessageType `json:"messageType"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// Reaction is a lightweight emoji annotation on a Message.
type Reaction struct {
	ID            string    `json:"id"`
	MessageID     string    `json:"messageId"`
	DiscussionID  string    `json:"discussionId"`
	ParticipantID string    `json:"participantId"`
	Emoji         string    `json:"emoji"`
	CreatedAt     time.Time `json:"createdAt"`
}
