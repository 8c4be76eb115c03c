package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nevexa-app/nevexa/internal/chat"
	"github.com/nevexa-app/nevexa/internal/database"
)

// ConversationHandler serves the derived conversation list and the
// read-state transition.
type ConversationHandler struct {
	DB         database.DBInterface
	Aggregator *chat.Aggregator
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(db database.DBInterface) *ConversationHandler {
	return &ConversationHandler{DB: db, Aggregator: chat.NewAggregator(db)}
}

// GetConversations returns the caller's conversation list, one entry per
// counterpart, most recently active first.
func (h *ConversationHandler) GetConversations(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	userUUID := userID.(uuid.UUID)

	conversations, err := h.Aggregator.ConversationsFor(userUUID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// MarkConversationRead marks all messages from the counterpart to the caller
// as read and returns how many were cleared. Safe to call when nothing is
// unread; the repeat call reports 0.
func (h *ConversationHandler) MarkConversationRead(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	userUUID := userID.(uuid.UUID)

	counterpartID, err := uuid.Parse(c.Param("counterpartID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid counterpart ID"})
		return
	}

	cleared, err := h.DB.MarkConversationRead(userUUID, counterpartID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}
