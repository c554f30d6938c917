package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kandev/agora/internal/common/apperr"
	"github.com/kandev/agora/internal/common/logger"
	"github.com/kandev/agora/internal/discussion/models"
	"github.com/kandev/agora/internal/discussion/orchestrator"
)

// envelope is the standard response shape for every command endpoint:
// success responses carry the updated entity, failures carry a
// human-readable error, and neither mutates state on the other's path.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Events  interface{} `json:"events,omitempty"`
}

// Handler contains the HTTP handlers for the Discussion Orchestrator's
// command surface.
type Handler struct {
	orchestrator *orchestrator.Orchestrator
	logger       *logger.Logger
}

// NewHandler creates a Handler bound to the given Orchestrator.
func NewHandler(o *orchestrator.Orchestrator, log *logger.Logger) *Handler {
	return &Handler{orchestrator: o, logger: log.WithFields(zap.String("component", "discussion_api"))}
}

func (h *Handler) ok(c *gin.Context, status int, data, events interface{}) {
	c.JSON(status, envelope{Success: true, Data: data, Events: events})
}

func (h *Handler) fail(c *gin.Context, err error) {
	appErr := apperr.Wrap(err, "request failed")
	h.logger.Warn("request failed", zap.String("code", string(appErr.Code)), zap.Error(appErr))
	c.JSON(appErr.HTTPStatus(), envelope{Success: false, Error: appErr.Message})
}

func (h *Handler) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, envelope{Success: false, Error: message})
}

// CreateDiscussion handles POST /discussions.
func (h *Handler) CreateDiscussion(c *gin.Context) {
	var req CreateDiscussionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	creatorID := c.GetString("user_id")

	d, err := h.orchestrator.CreateDiscussion(c.Request.Context(), models.CreateSpec{
		Strategy: req.Strategy,
		Settings: req.Settings,
		Metadata: req.Metadata,
	}, creatorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, d, nil)
}

// GetDiscussion handles GET /discussions/:discussionId.
func (h *Handler) GetDiscussion(c *gin.Context) {
	d, err := h.orchestrator.GetDiscussion(c.Request.Context(), c.Param("discussionId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, d, nil)
}

// StartDiscussion handles POST /discussions/:discussionId/start.
func (h *Handler) StartDiscussion(c *gin.Context) {
	var req ActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	d, events, err := h.orchestrator.StartDiscussion(c.Request.Context(), c.Param("discussionId"), req.ActorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, d, events)
}

// PauseDiscussion handles POST /discussions/:discussionId/pause.
func (h *Handler) PauseDiscussion(c *gin.Context) {
	var req ActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	d, events, err := h.orchestrator.PauseDiscussion(c.Request.Context(), c.Param("discussionId"), req.ActorID, req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, d, events)
}

// ResumeDiscussion handles POST /discussions/:discussionId/resume.
func (h *Handler) ResumeDiscussion(c *gin.Context) {
	var req ActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	d, events, err := h.orchestrator.ResumeDiscussion(c.Request.Context(), c.Param("discussionId"), req.ActorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, d, events)
}

// EndDiscussion handles POST /discussions/:discussionId/end.
func (h *Handler) EndDiscussion(c *gin.Context) {
	var req ActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	d, events, err := h.orchestrator.EndDiscussion(c.Request.Context(), c.Param("discussionId"), req.ActorID, req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, d, events)
}

// DeleteDiscussion handles DELETE /discussions/:discussionId.
func (h *Handler) DeleteDiscussion(c *gin.Context) {
	actorID := c.GetString("user_id")
	if err := h.orchestrator.DeleteDiscussion(c.Request.Context(), c.Param("discussionId"), actorID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ChangeStrategy handles PUT /discussions/:discussionId/strategy.
func (h *Handler) ChangeStrategy(c *gin.Context) {
	var req ChangeStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	d, events, err := h.orchestrator.ChangeStrategy(c.Request.Context(), c.Param("discussionId"), req.Strategy, req.ActorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, d, events)
}

// AddParticipant handles POST /discussions/:discussionId/participants.
func (h *Handler) AddParticipant(c *gin.Context) {
	var req AddParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	actorID := c.GetString("user_id")

	p, events, err := h.orchestrator.AddParticipant(c.Request.Context(), c.Param("discussionId"), models.ParticipantSpec{
		UserID:      req.UserID,
		AgentID:     req.AgentID,
		PersonaID:   req.PersonaID,
		Role:        req.Role,
		Permissions: req.Permissions,
		Preferences: req.Preferences,
	}, actorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, p, events)
}

// RemoveParticipant handles DELETE /discussions/:discussionId/participants/:participantId.
func (h *Handler) RemoveParticipant(c *gin.Context) {
	actorID := c.GetString("user_id")
	p, events, err := h.orchestrator.RemoveParticipant(c.Request.Context(), c.Param("discussionId"), c.Param("participantId"), actorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, p, events)
}

// SendMessage handles POST /discussions/:discussionId/messages.
func (h *Handler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	msgType := req.Type
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	msg, events, err := h.orchestrator.SendMessage(c.Request.Context(), c.Param("discussionId"), req.ParticipantID, req.Content, msgType)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, msg, events)
}

// RequestTurn handles POST /discussions/:discussionId/turn/request.
func (h *Handler) RequestTurn(c *gin.Context) {
	var req RequestTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	outcome, err := h.orchestrator.RequestTurn(c.Request.Context(), c.Param("discussionId"), req.ParticipantID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, gin.H{"outcome": outcome}, nil)
}

// SelectNextSpeaker handles POST /discussions/:discussionId/turn/select.
// Only a Moderator participant may call this; it records the selection
// without itself transitioning the turn.
func (h *Handler) SelectNextSpeaker(c *gin.Context) {
	var req SelectNextSpeakerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	d, err := h.orchestrator.SelectNextSpeaker(c.Request.Context(), c.Param("discussionId"), req.ModeratorID, req.ParticipantID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, d, nil)
}

// AdvanceTurnAsModerator handles POST /discussions/:discussionId/turn/advance.
// Only a Moderator participant may call this; it applies any pending
// selection (or otherwise forces a turn change) under the moderated
// strategy.
func (h *Handler) AdvanceTurnAsModerator(c *gin.Context) {
	var req ActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	resolution, events, err := h.orchestrator.AdvanceTurnAsModerator(c.Request.Context(), c.Param("discussionId"), req.ActorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, resolution, events)
}

// EndTurn handles POST /discussions/:discussionId/turn/end.
func (h *Handler) EndTurn(c *gin.Context) {
	var req EndTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	resolution, events, err := h.orchestrator.EndTurn(c.Request.Context(), c.Param("discussionId"), req.ParticipantID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, resolution, events)
}

// AddReaction handles POST /discussions/:discussionId/messages/:messageId/reactions.
func (h *Handler) AddReaction(c *gin.Context) {
	var req AddReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	reaction, events, err := h.orchestrator.AddReaction(c.Request.Context(), c.Param("discussionId"), c.Param("messageId"), req.ParticipantID, req.Emoji)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, reaction, events)
}
