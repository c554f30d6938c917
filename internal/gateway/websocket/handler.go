package websocket

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kandev/agora/internal/common/apperr"
	"github.com/kandev/agora/internal/common/logger"
	"github.com/kandev/agora/internal/discussion/models"
	"github.com/kandev/agora/internal/gateway/session"
	"github.com/kandev/agora/pkg/ws"
)

const defaultMaxConnectionsPerUser = 5

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Authenticator validates the bearer credential presented at handshake and
// returns the authenticated user's id and declared security level.
type Authenticator func(r *http.Request) (userID, securityLevel string, ok bool)

// AccessVerifier asynchronously confirms a user holds a Participant record
// in the target Discussion, mirroring Orchestrator.VerifyParticipantAccess.
type AccessVerifier func(ctx context.Context, discussionID, userID string) bool

// Handler upgrades HTTP connections to Discussion sockets and drives the
// connection lifecycle described in the Session Fan-Out Layer design:
// discussion id validation, authentication, per-user connection capping,
// Session Store registration, and asynchronous access verification.
type Handler struct {
	hub             *Hub
	store           session.Store
	authenticate    Authenticator
	verifyAccess    AccessVerifier
	frameHandler    FrameHandler
	maxConnsPerUser int
	logger          *logger.Logger
}

// NewHandler builds a Handler. maxConnsPerUser <= 0 uses the default of 5.
func NewHandler(hub *Hub, store session.Store, authenticate Authenticator, verifyAccess AccessVerifier, frameHandler FrameHandler, maxConnsPerUser int, log *logger.Logger) *Handler {
	if maxConnsPerUser <= 0 {
		maxConnsPerUser = defaultMaxConnectionsPerUser
	}
	return &Handler{
		hub:             hub,
		store:           store,
		authenticate:    authenticate,
		verifyAccess:    verifyAccess,
		frameHandler:    frameHandler,
		maxConnsPerUser: maxConnsPerUser,
		logger:          log.WithFields(zap.String("component", "ws_handler")),
	}
}

// HandleConnection implements step 1-7 of the Session Fan-Out Layer's
// connection lifecycle for the path `<base>/discussions/{discussionId}/ws`.
func (h *Handler) HandleConnection(c *gin.Context) {
	discussionID := c.Param("discussionId")
	if !isValidDiscussionID(discussionID) {
		h.reject(c, http.StatusBadRequest, "Invalid discussion ID")
		return
	}

	userID, securityLevel, ok := h.authenticate(c.Request)
	if !ok {
		h.reject(c, http.StatusUnauthorized, "Authentication failed")
		return
	}

	if count, err := h.store.CountForUser(c.Request.Context(), userID); err != nil {
		h.reject(c, http.StatusInternalServerError, "Session store unavailable")
		return
	} else if count >= h.maxConnsPerUser {
		h.reject(c, http.StatusTooManyRequests, "Too many connections")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	connectionID := newConnectionID()
	participantID := c.Query("participantId")
	now := time.Now().UTC()
	sess := &models.Session{
		ConnectionID:     connectionID,
		DiscussionID:     discussionID,
		UserID:           userID,
		ParticipantID:    participantID,
		Authenticated:    true,
		SecurityLevel:    securityLevel,
		IsAlive:          true,
		LastActivity:     now,
		RateLimitResetAt: now.Add(time.Minute),
		CreatedAt:        now,
	}
	if err := h.store.Create(c.Request.Context(), sess, h.maxConnsPerUser); err != nil {
		_ = conn.WriteControl(gorillaws.CloseMessage,
			gorillaws.FormatCloseMessage(1008, "Too many connections"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	client := NewClient(connectionID, discussionID, participantID, userID, conn, h.hub, h.store, h.frameHandler, h.logger)
	h.hub.Register(client)

	established, _ := ws.NewFrame(ws.FrameConnectionEstablished, "", ws.ConnectionEstablishedData{
		DiscussionID:  discussionID,
		ConnectionID:  connectionID,
		SecurityLevel: securityLevel,
		RateLimits: ws.RateLimits{
			MessagesPerMinute:     framesPerMinute,
			MaxMessageSize:        maxFrameBytes,
			MaxConnectionsPerUser: h.maxConnsPerUser,
		},
		Timestamp: now,
	})
	client.sendFrame(established)

	go h.verifyAccessAsync(client, discussionID, userID, participantID)

	go client.WritePump()
	client.ReadPump(c.Request.Context())
}

// verifyAccessAsync confirms the connecting user holds a Participant record
// in the Discussion; access denial closes the socket with code 1008.
func (h *Handler) verifyAccessAsync(client *Client, discussionID, userID, participantID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if !h.verifyAccess(ctx, discussionID, userID) {
		client.closeWithCode(1008, "Access denied")
		return
	}
	verified, _ := ws.NewFrame(ws.FrameAccessVerified, "", ws.AccessVerifiedData{
		DiscussionID:  discussionID,
		ParticipantID: participantID,
	})
	client.sendFrame(verified)
}

func (h *Handler) reject(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}

// isValidDiscussionID accepts any non-empty opaque identifier; Discussion
// ids are UUIDs in practice but the transport does not assume a format
// beyond non-emptiness and a sane length bound.
func isValidDiscussionID(id string) bool {
	return id != "" && len(id) <= 128
}

func newConnectionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().UTC().String()))
	}
	return hex.EncodeToString(b)
}

// apperrToFrame converts an apperr.Error into an error-frame-friendly
// message, falling back to err.Error() for anything else.
func apperrToFrame(err error) string {
	if appErr, ok := err.(*apperr.Error); ok {
		return appErr.Message
	}
	return err.Error()
}
