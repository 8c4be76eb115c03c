package chat

import (
	"errors"

	"github.com/google/uuid"

	"github.com/nevexa-app/nevexa/internal/database"
	"github.com/nevexa-app/nevexa/internal/logger"
	"github.com/nevexa-app/nevexa/internal/models"
)

var log = logger.New("chat")

// Aggregator builds per-user conversation lists from the flat message store.
type Aggregator struct {
	db database.DBInterface
}

// NewAggregator creates an aggregator backed by the given store
func NewAggregator(db database.DBInterface) *Aggregator {
	return &Aggregator{db: db}
}

// ConversationsFor returns one conversation per counterpart the user has
// exchanged messages with, ordered most-recently-active first. Each entry
// carries the counterpart's identity (nil if the account no longer
// resolves), the latest message, the unread count, and the full ordered
// history with that counterpart.
//
// Fetching full history per counterpart is O(conversations x messages); fine
// at current volumes, revisit with pagination if that changes.
func (a *Aggregator) ConversationsFor(userID uuid.UUID) ([]*models.Conversation, error) {
	msgs, err := a.db.GetMessagesByUser(userID)
	if err != nil {
		return nil, err
	}

	// Messages arrive newest first, so the first message seen for a
	// counterpart is that conversation's latest, and first-appearance order
	// is already most-recent-first.
	var order []uuid.UUID
	latest := make(map[uuid.UUID]*models.Message)
	for _, m := range msgs {
		other := m.OtherParty(userID)
		if _, seen := latest[other]; !seen {
			latest[other] = m
			order = append(order, other)
		}
	}

	conversations := make([]*models.Conversation, 0, len(order))
	for _, other := range order {
		conv := &models.Conversation{ID: other}

		user, err := a.db.GetUserByID(other)
		switch {
		case err == nil:
			conv.User = user.Summary()
		case errors.Is(err, database.ErrUserNotFound):
			// Counterpart account is gone; keep the conversation with a
			// null identity rather than dropping it.
			log.Warn("Counterpart %s not resolvable, returning conversation without identity", other)
		default:
			return nil, err
		}

		unread, err := a.db.CountUnreadFrom(other, userID)
		if err != nil {
			return nil, err
		}
		conv.UnreadCount = unread

		history, err := a.db.GetConversation(userID, other)
		if err != nil {
			return nil, err
		}
		if history == nil {
			history = []*models.Message{}
		}
		conv.Messages = history

		lm := latest[other]
		conv.LastMessage = models.LastMessage{
			Content:   lm.Content,
			Timestamp: lm.CreatedAt,
			SenderID:  lm.SenderID,
		}

		conversations = append(conversations, conv)
	}

	return conversations, nil
}
