package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kandev/agora/internal/common/logger"
	"github.com/kandev/agora/internal/gateway/session"
	"github.com/kandev/agora/pkg/ws"
)

const (
	writeWait       = 10 * time.Second
	maxFrameBytes   = 32 * 1024
	framesPerMinute = 60
)

// FrameHandler processes an inbound frame from a client socket and returns
// the frame to send back to the originating socket only (state changes it
// produces reach every subscriber through Hub.BroadcastToDiscussion instead).
type FrameHandler func(ctx context.Context, discussionID, participantID string, frame *ws.Frame) (*ws.Frame, error)

// Client is a single Discussion socket connection.
type Client struct {
	ID            string // connectionId
	discussionID  string
	participantID string
	userID        string

	conn    *websocket.Conn
	hub     *Hub
	store   session.Store
	handler FrameHandler
	logger  *logger.Logger

	send chan []byte

	mu     sync.Mutex
	closed bool

	rateMu         sync.Mutex
	frameCount     int
	rateWindowEnds time.Time
	violations     int

	livenessMu   sync.Mutex
	lastPong     time.Time
	awaitingPong bool
}

// NewClient creates a Client bound to one Discussion socket connection.
func NewClient(id, discussionID, participantID, userID string, conn *websocket.Conn, hub *Hub, store session.Store, handler FrameHandler, log *logger.Logger) *Client {
	now := time.Now().UTC()
	return &Client{
		ID:             id,
		discussionID:   discussionID,
		participantID:  participantID,
		userID:         userID,
		conn:           conn,
		hub:            hub,
		store:          store,
		handler:        handler,
		logger:         log.WithFields(zap.String("connection_id", id), zap.String("discussion_id", discussionID)),
		send:           make(chan []byte, 256),
		rateWindowEnds: now.Add(time.Minute),
		lastPong:       now,
	}
}

// ReadPump pumps inbound frames from the socket until it closes or ctx is
// cancelled. The caller is expected to also start WritePump.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.store.Remove(context.Background(), c.ID)
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("failed to close websocket connection", zap.Error(err))
		}
	}()

	c.conn.SetReadLimit(maxFrameBytes)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		if len(raw) > maxFrameBytes {
			c.onRateViolation("frame exceeds maximum size")
			continue
		}
		if !c.admitFrame() {
			c.onRateViolation("rate limit exceeded")
			continue
		}

		var frame ws.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.sendError("invalid frame format")
			continue
		}
		_ = c.store.Touch(context.Background(), c.ID)
		c.handleFrame(ctx, &frame)
	}
}

// admitFrame enforces the 60-frame cap per one-minute window, returning false
// when the cap is exceeded. The window is fixed, not rolling: it restarts with
// the first frame that arrives after it lapses, so up to twice the cap can be
// admitted across a window boundary.
func (c *Client) admitFrame() bool {
	c.rateMu.Lock()
	defer c.rateMu.Unlock()

	now := time.Now().UTC()
	if now.After(c.rateWindowEnds) {
		c.frameCount = 0
		c.rateWindowEnds = now.Add(time.Minute)
	}
	c.frameCount++
	return c.frameCount <= framesPerMinute
}

// onRateViolation sends an error frame for each violation; the second
// violation on the connection, however long after the first (the count is
// never reset), also closes it with 1008.
func (c *Client) onRateViolation(reason string) {
	c.rateMu.Lock()
	c.violations++
	violations := c.violations
	c.rateMu.Unlock()

	c.sendError(reason)
	if violations > 1 {
		c.closeWithCode(1008, "Rate limit exceeded")
	}
}

func (c *Client) handleFrame(ctx context.Context, frame *ws.Frame) {
	if frame.Type == ws.FramePing {
		pong, _ := ws.NewFrame(ws.FramePong, frame.MessageID, ws.PongData{Timestamp: time.Now().UTC()})
		c.sendFrame(pong)
		return
	}

	response, err := c.handler(ctx, c.discussionID, c.participantID, frame)
	if err != nil {
		c.logger.Warn("frame handler failed", zap.String("type", string(frame.Type)), zap.Error(err))
		c.sendError(apperrToFrame(err))
		return
	}
	if response != nil {
		c.sendFrame(response)
	}
}

func (c *Client) sendFrame(frame *ws.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("failed to marshal frame", zap.Error(err))
		return
	}
	c.enqueue(data)
}

func (c *Client) sendError(message string) {
	frame, err := ws.NewFrame(ws.FrameError, "", ws.ErrorData{Message: message})
	if err != nil {
		return
	}
	c.sendFrame(frame)
}

func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.logger.Warn("client send buffer full")
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// closeWithCode sends a close frame with code/reason and unregisters the
// client. Safe to call from any goroutine except the Hub's Run loop, which
// is the only reader of the unregister channel it sends on.
func (c *Client) closeWithCode(code int, reason string) {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	c.hub.Unregister(c)
}

// checkLiveness is invoked by the Hub's 30s heartbeat sweep. A socket whose
// last pong is older than pongGracePeriod is pinged; if it is still stale on
// the next sweep it is marked non-live and closed.
func (c *Client) checkLiveness() {
	c.livenessMu.Lock()
	stale := time.Since(c.lastPong) > pongGracePeriod
	awaiting := c.awaitingPong
	if stale {
		c.awaitingPong = true
	}
	c.livenessMu.Unlock()

	if !stale {
		return
	}
	if awaiting {
		c.logger.Warn("socket failed liveness check, closing")
		_ = c.store.MarkDead(context.Background(), c.ID)
		c.closeWithCode(1011, "Liveness check failed")
		return
	}

	deadline := time.Now().Add(writeWait)
	_ = c.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

// onPong records a received pong, clearing the outstanding-ping flag.
func (c *Client) onPong() {
	c.livenessMu.Lock()
	defer c.livenessMu.Unlock()
	c.lastPong = time.Now().UTC()
	c.awaitingPong = false
}

// WritePump pumps queued frames from send to the socket until it is closed.
func (c *Client) WritePump() {
	c.conn.SetPongHandler(func(string) error {
		c.onPong()
		return nil
	})

	defer func() {
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("failed to close websocket connection", zap.Error(err))
		}
	}()

	for message := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			c.logger.Debug("failed to set write deadline", zap.Error(err))
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.logger.Debug("failed to write websocket message", zap.Error(err))
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
