package websocket

import (
	"context"

	"go.uber.org/zap"

	"github.com/kandev/agora/internal/common/apperr"
	"github.com/kandev/agora/internal/common/logger"
	"github.com/kandev/agora/internal/discussion/models"
	"github.com/kandev/agora/internal/discussion/orchestrator"
	"github.com/kandev/agora/pkg/ws"
)

const (
	actionSendMessage   = "message.send"
	actionRequestTurn   = "turn.request"
	actionEndTurn       = "turn.end"
	actionAddReaction   = "reaction.add"
	actionSelectSpeaker = "turn.select"
	actionAdvanceTurn   = "turn.advance"
)

// NewOrchestratorFrameHandler adapts the Discussion Orchestrator's public
// operations into a FrameHandler: inbound frames map to the operation named
// by their type, and the response is sent only to the originating socket.
// Broadcast of the resulting DiscussionEvents to every subscriber happens
// separately, via the Orchestrator's EventListener fan-out wired at startup.
func NewOrchestratorFrameHandler(o *orchestrator.Orchestrator, log *logger.Logger) FrameHandler {
	log = log.WithFields(zap.String("component", "ws_dispatch"))
	return func(ctx context.Context, discussionID, participantID string, frame *ws.Frame) (*ws.Frame, error) {
		switch frame.Type {
		case actionSendMessage:
			var data ws.SendMessageData
			if err := frame.Decode(&data); err != nil {
				return nil, apperr.PolicyViolation("invalid message.send payload")
			}
			msgType := models.MessageTypeText
			if data.MessageType != "" {
				msgType = models.MessageType(data.MessageType)
			}
			msg, _, err := o.SendMessage(ctx, discussionID, participantID, data.Content, msgType)
			if err != nil {
				return nil, err
			}
			return ws.NewFrame(ws.FrameType(actionSendMessage), frame.MessageID, msg)

		case actionRequestTurn:
			outcome, err := o.RequestTurn(ctx, discussionID, participantID)
			if err != nil {
				return nil, err
			}
			return ws.NewFrame(ws.FrameType(actionRequestTurn), frame.MessageID, map[string]string{"outcome": string(outcome)})

		case actionEndTurn:
			resolution, _, err := o.EndTurn(ctx, discussionID, participantID)
			if err != nil {
				return nil, err
			}
			return ws.NewFrame(ws.FrameType(actionEndTurn), frame.MessageID, resolution)

		case actionAddReaction:
			var data ws.ReactionData
			if err := frame.Decode(&data); err != nil {
				return nil, apperr.PolicyViolation("invalid reaction.add payload")
			}
			reaction, _, err := o.AddReaction(ctx, discussionID, data.MessageID, participantID, data.Emoji)
			if err != nil {
				return nil, err
			}
			return ws.NewFrame(ws.FrameType(actionAddReaction), frame.MessageID, reaction)

		case actionSelectSpeaker:
			var data ws.SelectSpeakerData
			if err := frame.Decode(&data); err != nil {
				return nil, apperr.PolicyViolation("invalid turn.select payload")
			}
			d, err := o.SelectNextSpeaker(ctx, discussionID, participantID, data.ParticipantID)
			if err != nil {
				return nil, err
			}
			return ws.NewFrame(ws.FrameType(actionSelectSpeaker), frame.MessageID, d)

		case actionAdvanceTurn:
			resolution, _, err := o.AdvanceTurnAsModerator(ctx, discussionID, participantID)
			if err != nil {
				return nil, err
			}
			return ws.NewFrame(ws.FrameType(actionAdvanceTurn), frame.MessageID, resolution)

		default:
			log.Info("dropping unknown frame type", zap.String("type", string(frame.Type)))
			return nil, nil
		}
	}
}
