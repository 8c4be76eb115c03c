package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nevexa-app/nevexa/internal/logger"
	"github.com/nevexa-app/nevexa/internal/metrics"
	"github.com/nevexa-app/nevexa/internal/models"
)

// Event types on the realtime channel
const (
	EventSendMessage    = "send-message"
	EventReceiveMessage = "receive-message"
	EventTyping         = "typing"
	EventError          = "error"
)

var log = logger.New("websocket")

// MessageStore is the slice of the database the hub needs: persisting a
// message before fan-out.
type MessageStore interface {
	CreateMessage(senderID, receiverID uuid.UUID, content string) (*models.Message, error)
}

// Event is the wire format for frames in both directions. A client sends
// send-message and typing frames; the server publishes receive-message
// frames carrying the persisted record's id and timestamp.
type Event struct {
	Type       string    `json:"type"`
	ID         uuid.UUID `json:"id,omitempty"`
	SenderID   uuid.UUID `json:"sender_id,omitempty"`
	ReceiverID uuid.UUID `json:"receiver_id,omitempty"`
	Content    string    `json:"content,omitempty"`
	IsTyping   bool      `json:"is_typing,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Client represents one websocket connection of a user. A user with several
// open tabs has several clients registered under the same id.
type Client struct {
	ID      uuid.UUID
	Socket  *websocket.Conn
	limiter *rate.Limiter

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// trySend queues a frame for the write pump without blocking. It reports
// false once the client is closed or its buffer is full; the read pump may
// still be processing frames after an eviction, so every write to the send
// channel has to go through here.
func (c *Client) trySend(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub maintains the registry of live connections keyed by user id. A
// connection is registered under its authenticated user id on connect, which
// is what subscribes it to that user's channel; membership is dropped on
// disconnect and rebuilt from scratch when the client reconnects.
type Hub struct {
	store      MessageStore
	clients    map[uuid.UUID]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	mutex      sync.Mutex
}

// NewHub creates a hub that persists via the given store
func NewHub(store MessageStore) *Hub {
	return &Hub{
		store:      store,
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run processes registration and deregistration. Call it in its own
// goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			if h.clients[client.ID] == nil {
				h.clients[client.ID] = make(map[*Client]struct{})
			}
			h.clients[client.ID][client] = struct{}{}
			h.mutex.Unlock()
			metrics.WSConnections.Inc()
			log.Info("Client connected: %s", client.ID)
		case client := <-h.unregister:
			h.mutex.Lock()
			if conns, ok := h.clients[client.ID]; ok {
				if _, ok := conns[client]; ok {
					delete(conns, client)
					client.closeSend()
					if len(conns) == 0 {
						delete(h.clients, client.ID)
					}
					metrics.WSConnections.Dec()
					log.Info("Client disconnected: %s", client.ID)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// SendToUser delivers a frame to every live connection of a user. Slow
// connections with a full send buffer are evicted.
func (h *Hub) SendToUser(userID uuid.UUID, message []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	conns, ok := h.clients[userID]
	if !ok {
		log.Debug("User %s not connected", userID)
		return
	}

	for client := range conns {
		if !client.trySend(message) {
			client.closeSend()
			delete(conns, client)
			if len(conns) == 0 {
				delete(h.clients, userID)
			}
			metrics.WSConnections.Dec()
			log.Warn("Send buffer full for user %s, evicting connection", userID)
		}
	}
}

// HandleWebSocket upgrades an authenticated request and registers the
// connection under the caller's user id.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		log.Warn("No userID in context, rejecting connection from %s", c.Request.RemoteAddr)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	userUUID, ok := userID.(uuid.UUID)
	if !ok {
		log.Error("Invalid UUID in context from %s", c.Request.RemoteAddr)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user identification"})
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			log.Debug("WebSocket origin: %s", origin)
			// TODO: restrict to ALLOWED_ORIGINS once the web client's deploy
			// origin is stable
			return true
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		ID:     userUUID,
		Socket: conn,
		send:   make(chan []byte, 256),
		// Sustained 1 msg/s with bursts of 20
		limiter: rate.NewLimiter(rate.Every(time.Second), 20),
	}

	h.register <- client

	go client.readPump(h)
	go client.writePump()
	log.Info("Client %s connected and ready", client.ID)
}

// readPump pumps frames from the websocket connection into the hub
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.Socket.Close()
	}()

	c.Socket.SetReadLimit(64 * 1024)
	c.Socket.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Socket.SetPongHandler(func(string) error {
		c.Socket.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.Socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error("Error reading from client %s: %v", c.ID, err)
			} else {
				log.Info("Client %s closed connection: %v", c.ID, err)
			}
			break
		}

		if !c.limiter.Allow() {
			log.Warn("Rate limit exceeded for client %s, dropping frame", c.ID)
			continue
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			log.Error("Error unmarshaling frame from %s: %v", c.ID, err)
			c.sendError("Invalid message format")
			continue
		}

		// The sender is always the authenticated connection owner, never
		// whatever the frame claims.
		event.SenderID = c.ID

		switch event.Type {
		case EventSendMessage:
			c.handleSendMessage(h, event)
		case EventTyping:
			c.handleTyping(h, event)
		default:
			log.Warn("Unknown frame type '%s' from client %s", event.Type, c.ID)
			c.sendError("Unknown message type")
		}
	}
}

// handleSendMessage persists the intent and, only on success, fans the
// confirmed record out to both participants' channels. The frame delivered
// to the sender's own channel doubles as the implicit acknowledgement; when
// persistence fails the intent is dropped with a log line and a metric, and
// the client's provisional entry is left for its own reconciliation to deal
// with.
func (c *Client) handleSendMessage(h *Hub, event Event) {
	if strings.TrimSpace(event.Content) == "" {
		log.Debug("Empty message content from client %s", c.ID)
		c.sendError("Message content is required")
		return
	}
	if event.ReceiverID == uuid.Nil {
		log.Warn("Invalid receiver ID from client %s", c.ID)
		c.sendError("Invalid receiver ID")
		return
	}

	msg, err := h.store.CreateMessage(c.ID, event.ReceiverID, event.Content)
	if err != nil {
		metrics.WSSendFailures.Inc()
		log.Error("Failed to persist message from %s to %s: %v", c.ID, event.ReceiverID, err)
		return
	}
	metrics.MessagesSent.Inc()

	out, err := json.Marshal(Event{
		Type:       EventReceiveMessage,
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		Timestamp:  msg.CreatedAt,
	})
	if err != nil {
		log.Error("Failed to marshal receive event: %v", err)
		return
	}

	h.SendToUser(msg.ReceiverID, out)
	if msg.SenderID != msg.ReceiverID {
		// Sender's other open sessions observe the confirmed message too
		h.SendToUser(msg.SenderID, out)
	}
}

// handleTyping relays a typing indicator to the recipient; nothing is
// persisted.
func (c *Client) handleTyping(h *Hub, event Event) {
	if event.ReceiverID == uuid.Nil {
		log.Debug("Invalid receiver ID in typing indicator from client %s", c.ID)
		return
	}

	out, err := json.Marshal(Event{
		Type:       EventTyping,
		SenderID:   c.ID,
		ReceiverID: event.ReceiverID,
		IsTyping:   event.IsTyping,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		return
	}
	h.SendToUser(event.ReceiverID, out)
}

func (c *Client) sendError(reason string) {
	out, err := json.Marshal(Event{
		Type:      EventError,
		Content:   reason,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if !c.trySend(out) {
		log.Debug("Dropping error frame for client %s", c.ID)
	}
}

// writePump pumps frames from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Socket.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// The hub closed the channel
				c.Socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Socket.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush any queued frames into the same websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Socket.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
