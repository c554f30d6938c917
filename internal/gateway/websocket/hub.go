// Package websocket implements the Session Fan-Out Layer's socket transport:
// it accepts persistent client connections scoped to one Discussion each,
// enforces connection and rate limits, and relays Orchestrator-emitted
// events to every socket subscribed to a Discussion.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kandev/agora/internal/common/logger"
	"github.com/kandev/agora/internal/discussion/models"
	"github.com/kandev/agora/internal/discussion/orchestrator"
	"github.com/kandev/agora/internal/gateway/session"
	"github.com/kandev/agora/pkg/ws"
)

const (
	heartbeatInterval = 30 * time.Second
	pongGracePeriod   = 60 * time.Second
	reconcileInterval = 60 * time.Second
)

// EventSource is the subset of the Discussion Orchestrator the Hub needs to
// subscribe to a discussion's events. Satisfied by *orchestrator.Orchestrator.
type EventSource interface {
	AddListener(discussionID string, listener orchestrator.EventListener) func()
}

// Hub owns every live socket, grouped by the Discussion it is subscribed to.
type Hub struct {
	mu           sync.RWMutex
	byDiscussion map[string]map[*Client]bool
	unsubscribe  map[string]func()

	register   chan *Client
	unregister chan *Client

	store  session.Store
	events EventSource
	logger *logger.Logger
}

// NewHub creates a Hub backed by store for connection bookkeeping. events may
// be nil, in which case Orchestrator-emitted events are never broadcast (only
// useful in tests that exercise BroadcastToDiscussion directly).
func NewHub(store session.Store, events EventSource, log *logger.Logger) *Hub {
	return &Hub{
		byDiscussion: make(map[string]map[*Client]bool),
		unsubscribe:  make(map[string]func()),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		store:        store,
		events:       events,
		logger:       log.WithFields(zap.String("component", "ws_hub")),
	}
}

// Run drives the hub's registration loop and heartbeat/reconcile sweeps
// until ctx is cancelled, at which point every socket is closed with code
// 1001 ("Server shutting down").
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("websocket hub started")
	defer h.logger.Info("websocket hub stopped")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	reconcile := time.NewTicker(reconcileInterval)
	defer reconcile.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-heartbeat.C:
			go h.sweepHeartbeats()
		case <-reconcile.C:
			go h.reconcileWithStore(ctx)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	set, ok := h.byDiscussion[client.discussionID]
	if !ok {
		set = make(map[*Client]bool)
		h.byDiscussion[client.discussionID] = set
	}
	set[client] = true
	firstSubscriber := len(set) == 1
	h.mu.Unlock()

	if firstSubscriber && h.events != nil {
		discussionID := client.discussionID
		unsubscribe := h.events.AddListener(discussionID, func(event *models.DiscussionEvent) {
			frame, err := ws.NewFrame(ws.FrameDiscussionEvent, "", event)
			if err != nil {
				h.logger.Error("failed to encode discussion event frame", zap.Error(err))
				return
			}
			h.BroadcastToDiscussion(discussionID, frame)
		})
		h.mu.Lock()
		h.unsubscribe[discussionID] = unsubscribe
		h.mu.Unlock()
	}

	h.logger.Debug("client registered",
		zap.String("connection_id", client.ID),
		zap.String("discussion_id", client.discussionID))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	var lastSubscriberLeft bool
	if set, ok := h.byDiscussion[client.discussionID]; ok {
		if _, present := set[client]; present {
			delete(set, client)
			client.closeSend()
			if len(set) == 0 {
				delete(h.byDiscussion, client.discussionID)
				lastSubscriberLeft = true
			}
		}
	}
	var unsubscribe func()
	if lastSubscriberLeft {
		unsubscribe = h.unsubscribe[client.discussionID]
		delete(h.unsubscribe, client.discussionID)
	}
	h.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	h.logger.Debug("client unregistered", zap.String("connection_id", client.ID))
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	for _, unsubscribe := range h.unsubscribe {
		unsubscribe()
	}
	h.unsubscribe = make(map[string]func())
	for _, set := range h.byDiscussion {
		for client := range set {
			// Not closeWithCode: its Unregister would block this Run goroutine.
			msg := websocket.FormatCloseMessage(1001, "Server shutting down")
			_ = client.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			client.closeSend()
		}
	}
	h.byDiscussion = make(map[string]map[*Client]bool)
	h.mu.Unlock()
}

// Register adds client to the hub.
func (h *Hub) Register(client *Client) { h.register <- client }

// Unregister removes client from the hub.
func (h *Hub) Unregister(client *Client) { h.unregister <- client }

// BroadcastToDiscussion writes frame to every socket currently subscribed to
// discussionID whose transport is open. Disconnected sockets are skipped and
// scheduled for removal by their own read/write pumps.
func (h *Hub) BroadcastToDiscussion(discussionID string, frame *ws.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to marshal broadcast frame", zap.Error(err))
		return
	}

	h.mu.RLock()
	set := h.byDiscussion[discussionID]
	clients := make([]*Client, 0, len(set))
	for client := range set {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.enqueue(data)
	}
}

// ClientCount returns the number of sockets currently subscribed to
// discussionID.
func (h *Hub) ClientCount(discussionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byDiscussion[discussionID])
}

func (h *Hub) sweepHeartbeats() {
	h.mu.RLock()
	var clients []*Client
	for _, set := range h.byDiscussion {
		for client := range set {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.checkLiveness()
	}
}

// reconcileWithStore compares the in-memory socket set against the Session
// Store and logs any divergence; the Store remains the cross-process source
// of truth for connection caps.
func (h *Hub) reconcileWithStore(ctx context.Context) {
	h.mu.RLock()
	discussionIDs := make([]string, 0, len(h.byDiscussion))
	for id := range h.byDiscussion {
		discussionIDs = append(discussionIDs, id)
	}
	h.mu.RUnlock()

	for _, discussionID := range discussionIDs {
		sessions, err := h.store.ListForDiscussion(ctx, discussionID)
		if err != nil {
			h.logger.Warn("reconcile: failed to list sessions",
				zap.String("discussion_id", discussionID), zap.Error(err))
			continue
		}

		h.mu.RLock()
		liveCount := len(h.byDiscussion[discussionID])
		h.mu.RUnlock()

		if liveCount != len(sessions) {
			h.logger.Warn("session store diverged from in-memory socket set",
				zap.String("discussion_id", discussionID),
				zap.Int("store_sessions", len(sessions)),
				zap.Int("live_sockets", liveCount))
		}
	}
}
