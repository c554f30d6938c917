package models

import "time"

// Session is the Session Fan-Out Layer's record of one authenticated
// websocket connection. It is owned by the Session Store, not by the
// Discussion Orchestrator or Repository.
type Session struct {
	ConnectionID     string    `json:"connectionId"`
	DiscussionID     string    `json:"discussionId"`
	UserID           string    `json:"userId"`
	ParticipantID    string    `json:"participantId,omitempty"`
	Authenticated    bool      `json:"authenticated"`
	SecurityLevel    string    `json:"securityLevel,omitempty"`
	MessageCount     int       `json:"messageCount"`
	LastActivity     time.Time `json:"lastActivity"`
	RateLimitResetAt time.Time `json:"rateLimitResetAt"`
	IsAlive          bool      `json:"isAlive"`
	CreatedAt        time.Time `json:"createdAt"`
}
