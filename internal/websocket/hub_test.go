package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nevexa-app/nevexa/internal/models"
)

// stubStore persists messages in memory for hub tests
type stubStore struct {
	mu      sync.Mutex
	fail    bool
	created []*models.Message
}

func (s *stubStore) CreateMessage(senderID, receiverID uuid.UUID, content string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail {
		return nil, errors.New("store unavailable")
	}

	msg := &models.Message{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	s.created = append(s.created, msg)
	return msg, nil
}

func (s *stubStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}

// setupHubServer runs a hub behind a test server whose /ws route trusts the
// uid query parameter in place of the JWT middleware
func setupHubServer(t *testing.T, store MessageStore) (*httptest.Server, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(store)
	go hub.Run()

	router := gin.New()
	router.GET("/ws", func(c *gin.Context) {
		uid, err := uuid.Parse(c.Query("uid"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad uid"})
			return
		}
		c.Set("userID", uid)
		hub.HandleWebSocket(c)
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, hub
}

func dialAs(t *testing.T, srv *httptest.Server, userID uuid.UUID) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?uid=" + userID.String()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Give the hub a moment to process registration
	time.Sleep(100 * time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	// Queued frames may be coalesced newline-separated; take the first
	if i := strings.IndexByte(string(raw), '\n'); i >= 0 {
		raw = raw[:i]
	}

	var event Event
	require.NoError(t, json.Unmarshal(raw, &event))
	return event
}

func expectNoEvent(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "expected no frame before the deadline")
}

func TestSendMessageFansOutToBothChannels(t *testing.T) {
	store := &stubStore{}
	srv, _ := setupHubServer(t, store)

	senderID := uuid.New()
	receiverID := uuid.New()
	sender := dialAs(t, srv, senderID)
	receiver := dialAs(t, srv, receiverID)

	err := sender.WriteJSON(Event{
		Type:       EventSendMessage,
		ReceiverID: receiverID,
		Content:    "hello",
	})
	require.NoError(t, err)

	got := readEvent(t, receiver)
	assert.Equal(t, EventReceiveMessage, got.Type)
	assert.Equal(t, senderID, got.SenderID)
	assert.Equal(t, "hello", got.Content)
	assert.NotEqual(t, uuid.Nil, got.ID, "fan-out carries the persisted id")

	// The sender's own channel gets the confirmed copy too
	echo := readEvent(t, sender)
	assert.Equal(t, EventReceiveMessage, echo.Type)
	assert.Equal(t, got.ID, echo.ID)

	assert.Equal(t, 1, store.count())
}

func TestSenderSecondSessionObservesConfirmedMessage(t *testing.T) {
	store := &stubStore{}
	srv, _ := setupHubServer(t, store)

	senderID := uuid.New()
	receiverID := uuid.New()
	tabOne := dialAs(t, srv, senderID)
	tabTwo := dialAs(t, srv, senderID)
	receiver := dialAs(t, srv, receiverID)

	require.NoError(t, tabOne.WriteJSON(Event{
		Type:       EventSendMessage,
		ReceiverID: receiverID,
		Content:    "from tab one",
	}))

	for _, conn := range []*websocket.Conn{tabOne, tabTwo, receiver} {
		got := readEvent(t, conn)
		assert.Equal(t, EventReceiveMessage, got.Type)
		assert.Equal(t, "from tab one", got.Content)
	}
}

func TestSendMessageSpoofedSenderIsOverridden(t *testing.T) {
	store := &stubStore{}
	srv, _ := setupHubServer(t, store)

	senderID := uuid.New()
	receiverID := uuid.New()
	sender := dialAs(t, srv, senderID)
	receiver := dialAs(t, srv, receiverID)

	require.NoError(t, sender.WriteJSON(Event{
		Type:       EventSendMessage,
		SenderID:   uuid.New(), // claimed sender is ignored
		ReceiverID: receiverID,
		Content:    "hi",
	}))

	got := readEvent(t, receiver)
	assert.Equal(t, senderID, got.SenderID, "sender is the authenticated connection owner")
}

func TestPersistFailureDropsIntentSilently(t *testing.T) {
	store := &stubStore{fail: true}
	srv, _ := setupHubServer(t, store)

	senderID := uuid.New()
	receiverID := uuid.New()
	sender := dialAs(t, srv, senderID)
	receiver := dialAs(t, srv, receiverID)

	require.NoError(t, sender.WriteJSON(Event{
		Type:       EventSendMessage,
		ReceiverID: receiverID,
		Content:    "doomed",
	}))

	// No receive event and no error event on either side
	expectNoEvent(t, receiver)
	expectNoEvent(t, sender)
}

func TestTypingIndicatorRelay(t *testing.T) {
	store := &stubStore{}
	srv, _ := setupHubServer(t, store)

	senderID := uuid.New()
	receiverID := uuid.New()
	sender := dialAs(t, srv, senderID)
	receiver := dialAs(t, srv, receiverID)

	require.NoError(t, sender.WriteJSON(Event{
		Type:       EventTyping,
		ReceiverID: receiverID,
		IsTyping:   true,
	}))

	got := readEvent(t, receiver)
	assert.Equal(t, EventTyping, got.Type)
	assert.Equal(t, senderID, got.SenderID)
	assert.True(t, got.IsTyping)

	assert.Equal(t, 0, store.count(), "typing indicators are not persisted")
}

func TestMalformedFrameGetsErrorEvent(t *testing.T) {
	srv, _ := setupHubServer(t, &stubStore{})

	conn := dialAs(t, srv, uuid.New())
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	got := readEvent(t, conn)
	assert.Equal(t, EventError, got.Type)
}

func TestEmptyContentRejected(t *testing.T) {
	for _, content := range []string{"", "   ", "\n\t "} {
		store := &stubStore{}
		srv, _ := setupHubServer(t, store)

		conn := dialAs(t, srv, uuid.New())
		require.NoError(t, conn.WriteJSON(Event{
			Type:       EventSendMessage,
			ReceiverID: uuid.New(),
			Content:    content,
		}))

		got := readEvent(t, conn)
		assert.Equal(t, EventError, got.Type, "content %q", content)
		assert.Equal(t, 0, store.count(), "content %q must never reach the store", content)
	}
}

func TestEvictedClientWriteDoesNotPanic(t *testing.T) {
	store := &stubStore{}
	srv, hub := setupHubServer(t, store)

	slowID := uuid.New()
	slow := dialAs(t, srv, slowID)

	// Flood a connection that never reads until its send buffer overflows
	// and the hub evicts it.
	payload := []byte(strings.Repeat("x", 1024))
	require.Eventually(t, func() bool {
		for i := 0; i < 512; i++ {
			hub.SendToUser(slowID, payload)
		}
		hub.mutex.Lock()
		defer hub.mutex.Unlock()
		_, live := hub.clients[slowID]
		return !live
	}, 10*time.Second, 50*time.Millisecond, "slow connection was never evicted")

	// The evicted connection's read pump is still running; a bad frame from
	// it must be answered (or dropped) without crashing the hub.
	require.NoError(t, slow.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, slow.WriteJSON(Event{Type: "presence"}))
	time.Sleep(200 * time.Millisecond)

	// A fresh pair still gets normal delivery afterwards.
	senderID := uuid.New()
	receiverID := uuid.New()
	sender := dialAs(t, srv, senderID)
	receiver := dialAs(t, srv, receiverID)

	require.NoError(t, sender.WriteJSON(Event{
		Type:       EventSendMessage,
		ReceiverID: receiverID,
		Content:    "still alive",
	}))

	got := readEvent(t, receiver)
	assert.Equal(t, EventReceiveMessage, got.Type)
	assert.Equal(t, "still alive", got.Content)
}

func TestUnknownEventType(t *testing.T) {
	srv, _ := setupHubServer(t, &stubStore{})

	conn := dialAs(t, srv, uuid.New())
	require.NoError(t, conn.WriteJSON(Event{Type: "presence"}))

	got := readEvent(t, conn)
	assert.Equal(t, EventError, got.Type)
}

func TestUnauthenticatedConnectionRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(&stubStore{})
	go hub.Run()

	router := gin.New()
	router.GET("/ws", hub.HandleWebSocket)
	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	assert.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}
