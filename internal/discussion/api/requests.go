// Package api provides the HTTP command surface for the Discussion
// Orchestrator: create/get/delete discussion, add/remove participant, send
// message, request/end turn, change strategy, add reaction.
package api

import "github.com/kandev/agora/internal/discussion/models"

// CreateDiscussionRequest is the body of POST /discussions.
type CreateDiscussionRequest struct {
	Strategy models.StrategyConfig  `json:"strategy"`
	Settings models.Settings        `json:"settings"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// AddParticipantRequest is the body of POST /discussions/:discussionId/participants.
type AddParticipantRequest struct {
	UserID      string                 `json:"userId,omitempty"`
	AgentID     string                 `json:"agentId,omitempty"`
	PersonaID   string                 `json:"personaId,omitempty"`
	Role        models.Role            `json:"role"`
	Permissions []models.Permission    `json:"permissions,omitempty"`
	Preferences map[string]interface{} `json:"preferences,omitempty"`
}

// SendMessageRequest is the body of POST /discussions/:discussionId/messages.
type SendMessageRequest struct {
	ParticipantID string             `json:"participantId" binding:"required"`
	Content       string             `json:"content" binding:"required"`
	Type          models.MessageType `json:"type,omitempty"`
}

// RequestTurnRequest is the body of POST /discussions/:discussionId/turn/request.
type RequestTurnRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
}

// EndTurnRequest is the body of POST /discussions/:discussionId/turn/end.
type EndTurnRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
}

// SelectNextSpeakerRequest is the body of POST /discussions/:discussionId/turn/select.
type SelectNextSpeakerRequest struct {
	ModeratorID   string `json:"moderatorId" binding:"required"`
	ParticipantID string `json:"participantId" binding:"required"`
}

// ActorRequest carries the acting user for operations with no other body
// fields (start/pause/resume/end discussion).
type ActorRequest struct {
	ActorID string `json:"actorId" binding:"required"`
	Reason  string `json:"reason,omitempty"`
}

// ChangeStrategyRequest is the body of PUT /discussions/:discussionId/strategy.
type ChangeStrategyRequest struct {
	ActorID  string                `json:"actorId" binding:"required"`
	Strategy models.StrategyConfig `json:"strategy"`
}

// AddReactionRequest is the body of POST /discussions/:discussionId/messages/:messageId/reactions.
type AddReactionRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
	Emoji         string `json:"emoji" binding:"required"`
}
