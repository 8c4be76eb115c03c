package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nevexa-app/nevexa/internal/database"
	"github.com/nevexa-app/nevexa/internal/metrics"
	"github.com/nevexa-app/nevexa/internal/models"
	internalWs "github.com/nevexa-app/nevexa/internal/websocket"
)

// MessageNotifier pushes a frame to all live connections of a user. The hub
// satisfies it; tests substitute a mock.
type MessageNotifier interface {
	SendToUser(userID uuid.UUID, message []byte)
}

// MessageHandler handles message-related routes
type MessageHandler struct {
	DB       database.DBInterface
	Notifier MessageNotifier
}

// NewMessageHandler creates a new message handler. The notifier lets the
// REST send path fan out over the realtime channel the same way
// socket-originated sends do; nil disables fan-out.
func NewMessageHandler(db database.DBInterface, notifier MessageNotifier) *MessageHandler {
	return &MessageHandler{DB: db, Notifier: notifier}
}

// SendMessage handles the creation of a new message over REST. The created
// record is also pushed to both participants' realtime channels when a hub
// is attached.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	senderID := userID.(uuid.UUID)

	message, err := h.DB.CreateMessage(senderID, req.ReceiverID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrEmptyContent):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, database.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Receiver not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	metrics.MessagesSent.Inc()

	h.notifyParticipants(message)

	c.JSON(http.StatusCreated, message)
}

func (h *MessageHandler) notifyParticipants(message *models.Message) {
	if h.Notifier == nil {
		return
	}

	out, err := json.Marshal(internalWs.Event{
		Type:       internalWs.EventReceiveMessage,
		ID:         message.ID,
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
		Content:    message.Content,
		Timestamp:  message.CreatedAt,
	})
	if err != nil {
		return
	}

	h.Notifier.SendToUser(message.ReceiverID, out)
	if message.SenderID != message.ReceiverID {
		h.Notifier.SendToUser(message.SenderID, out)
	}
}

// GetMessages returns the raw ordered message history between two users,
// oldest first. The caller must be one of the two named users.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	callerID := userID.(uuid.UUID)

	user1, err := uuid.Parse(c.Query("user1"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user1"})
		return
	}

	user2, err := uuid.Parse(c.Query("user2"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user2"})
		return
	}

	if callerID != user1 && callerID != user2 {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant in this conversation"})
		return
	}

	messages, err := h.DB.GetConversation(user1, user2)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}

	c.JSON(http.StatusOK, messages)
}
