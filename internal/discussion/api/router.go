package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kandev/agora/internal/common/logger"
	"github.com/kandev/agora/internal/discussion/orchestrator"
)

// SetupRoutes configures the Discussion Orchestrator's HTTP command surface
// under router.
func SetupRoutes(router *gin.RouterGroup, o *orchestrator.Orchestrator, log *logger.Logger) {
	handler := NewHandler(o, log)

	discussions := router.Group("/discussions")
	{
		discussions.POST("", handler.CreateDiscussion)
		discussions.GET("/:discussionId", handler.GetDiscussion)
		discussions.DELETE("/:discussionId", handler.DeleteDiscussion)

		discussions.POST("/:discussionId/start", handler.StartDiscussion)
		discussions.POST("/:discussionId/pause", handler.PauseDiscussion)
		discussions.POST("/:discussionId/resume", handler.ResumeDiscussion)
		discussions.POST("/:discussionId/end", handler.EndDiscussion)
		discussions.PUT("/:discussionId/strategy", handler.ChangeStrategy)

		discussions.POST("/:discussionId/participants", handler.AddParticipant)
		discussions.DELETE("/:discussionId/participants/:participantId", handler.RemoveParticipant)

		discussions.POST("/:discussionId/messages", handler.SendMessage)
		discussions.POST("/:discussionId/messages/:messageId/reactions", handler.AddReaction)

		discussions.POST("/:discussionId/turn/request", handler.RequestTurn)
		discussions.POST("/:discussionId/turn/end", handler.EndTurn)
		discussions.POST("/:discussionId/turn/select", handler.SelectNextSpeaker)
		discussions.POST("/:discussionId/turn/advance", handler.AdvanceTurnAsModerator)
	}
}
