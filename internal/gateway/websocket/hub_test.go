package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kandev/agora/internal/common/logger"
	"github.com/kandev/agora/internal/discussion/models"
	"github.com/kandev/agora/internal/discussion/orchestrator"
	"github.com/kandev/agora/internal/gateway/session"
	"github.com/kandev/agora/pkg/ws"
)

// fakeEventSource stands in for the Orchestrator in tests that only need to
// observe how the Hub subscribes/unsubscribes, without a real discussion.
type fakeEventSource struct {
	mu        sync.Mutex
	listeners map[string]orchestrator.EventListener
}

func newFakeEventSource() *fakeEventSource {
	return &fakeEventSource{listeners: make(map[string]orchestrator.EventListener)}
}

func (f *fakeEventSource) AddListener(discussionID string, listener orchestrator.EventListener) func() {
	f.mu.Lock()
	f.listeners[discussionID] = listener
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.listeners, discussionID)
		f.mu.Unlock()
	}
}

func (f *fakeEventSource) emit(discussionID string, event *models.DiscussionEvent) {
	f.mu.Lock()
	listener := f.listeners[discussionID]
	f.mu.Unlock()
	if listener != nil {
		listener(event)
	}
}

func (f *fakeEventSource) subscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// dialClient upgrades an httptest server connection into a registered Client,
// returning the Client and the caller-side *websocket.Conn used to drive it.
func dialClient(t *testing.T, hub *Hub, store session.Store, discussionID, participantID, userID string) (*Client, *websocket.Conn) {
	t.Helper()

	serverReady := make(chan *Client, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("server upgrade failed: %v", err)
			return
		}
		client := NewClient(discussionID+"-"+userID, discussionID, participantID, userID, conn, hub, store, noopHandler, logger.Default())
		hub.Register(client)
		go client.WritePump()
		go client.ReadPump(context.Background())
		serverReady <- client
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("client dial failed: %v", err)
	}
	t.Cleanup(func() { _ = clientConn.Close() })

	select {
	case sc := <-serverReady:
		return sc, clientConn
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server-side client registration")
		return nil, nil
	}
}

func noopHandler(ctx context.Context, discussionID, participantID string, frame *ws.Frame) (*ws.Frame, error) {
	return nil, nil
}

func newTestHub(t *testing.T) (*Hub, session.Store) {
	t.Helper()
	store := session.NewMemoryStore(time.Minute, time.Minute, logger.Default())
	t.Cleanup(func() { _ = store.Close() })
	hub := NewHub(store, nil, logger.Default())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub, store
}

func TestHubRegisterTracksClientCount(t *testing.T) {
	hub, store := newTestHub(t)
	_, conn := dialClient(t, hub, store, "disc-1", "p-1", "user-1")
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount("disc-1") != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := hub.ClientCount("disc-1"); got != 1 {
		t.Fatalf("expected 1 registered client, got %d", got)
	}
}

func TestHubBroadcastReachesSubscribedSockets(t *testing.T) {
	hub, store := newTestHub(t)
	_, conn := dialClient(t, hub, store, "disc-2", "p-1", "user-1")
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount("disc-2") != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	frame, _ := ws.NewFrame(ws.FrameDiscussionEvent, "", map[string]string{"hello": "world"})
	hub.BroadcastToDiscussion("disc-2", frame)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected to receive the broadcast frame, got error: %v", err)
	}

	var got ws.Frame
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("failed to unmarshal received frame: %v", err)
	}
	if got.Type != ws.FrameDiscussionEvent {
		t.Fatalf("expected a discussion.event frame, got %q", got.Type)
	}
}

func TestHubUnregisterDropsClientCount(t *testing.T) {
	hub, store := newTestHub(t)
	_, conn := dialClient(t, hub, store, "disc-3", "p-1", "user-1")

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount("disc-3") != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for hub.ClientCount("disc-3") != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := hub.ClientCount("disc-3"); got != 0 {
		t.Fatalf("expected client count to drop to 0 after disconnect, got %d", got)
	}
}

func TestHubSubscribesToOrchestratorEventsOnFirstClient(t *testing.T) {
	store := session.NewMemoryStore(time.Minute, time.Minute, logger.Default())
	t.Cleanup(func() { _ = store.Close() })
	events := newFakeEventSource()
	hub := NewHub(store, events, logger.Default())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	_, conn := dialClient(t, hub, store, "disc-4", "p-1", "user-1")
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for events.subscriberCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := events.subscriberCount(); got != 1 {
		t.Fatalf("expected the hub to subscribe once the first client joined, got %d subscribers", got)
	}

	events.emit("disc-4", &models.DiscussionEvent{
		ID:           "evt-1",
		Type:         models.EventMessageSent,
		DiscussionID: "disc-4",
		Data:         map[string]interface{}{"foo": "bar"},
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected the orchestrator event to be relayed as a frame: %v", err)
	}
	var frame ws.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("failed to unmarshal relayed frame: %v", err)
	}
	if frame.Type != ws.FrameDiscussionEvent {
		t.Fatalf("expected a discussion.event frame, got %q", frame.Type)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for events.subscriberCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := events.subscriberCount(); got != 0 {
		t.Fatalf("expected the hub to unsubscribe once the last client left, got %d subscribers", got)
	}
}
