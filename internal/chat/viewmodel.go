package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nevexa-app/nevexa/internal/models"
)

// Client-side conversation state. A connected client keeps a View of its
// conversations, appends a provisional entry as soon as the user hits send,
// and reconciles it against the authoritative copy that comes back over the
// realtime channel. All transitions are pure functions on View so they can
// be tested without a transport.

const provisionalPrefix = "temp-"

// NewProvisionalID returns a temporary message id a client assigns to a
// message it has sent but not yet seen confirmed.
func NewProvisionalID() string {
	return provisionalPrefix + uuid.NewString()
}

// IsProvisionalID reports whether id is a client-assigned temporary id.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, provisionalPrefix)
}

// ViewMessage is a message as held by the client: either a confirmed record
// (ID is the server uuid) or a provisional one (ID is a temp id).
type ViewMessage struct {
	ID          string    `json:"id"`
	SenderID    uuid.UUID `json:"senderId"`
	ReceiverID  uuid.UUID `json:"receiverId"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Provisional bool      `json:"provisional,omitempty"`
}

// ViewConversation mirrors one conversation on the client.
type ViewConversation struct {
	Counterpart uuid.UUID           `json:"counterpart"`
	User        *models.UserSummary `json:"user"`
	Messages    []ViewMessage       `json:"messages"`
	Unread      int                 `json:"unread"`
}

// LastMessage returns the newest message of the conversation, or a zero
// value for a placeholder conversation with no messages yet.
func (c *ViewConversation) LastMessage() ViewMessage {
	if len(c.Messages) == 0 {
		return ViewMessage{}
	}
	return c.Messages[len(c.Messages)-1]
}

// View is the client's mirror of its conversation list.
type View struct {
	Self          uuid.UUID
	Conversations []ViewConversation
	UnreadTotal   int
}

// NewView builds a client view from a server conversation list response.
func NewView(self uuid.UUID, conversations []*models.Conversation) View {
	v := View{Self: self}
	for _, conv := range conversations {
		vc := ViewConversation{
			Counterpart: conv.ID,
			User:        conv.User,
			Unread:      conv.UnreadCount,
			Messages:    make([]ViewMessage, 0, len(conv.Messages)),
		}
		for _, m := range conv.Messages {
			vc.Messages = append(vc.Messages, fromModel(m))
		}
		v.Conversations = append(v.Conversations, vc)
		v.UnreadTotal += conv.UnreadCount
	}
	return v
}

func fromModel(m *models.Message) ViewMessage {
	return ViewMessage{
		ID:         m.ID.String(),
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Timestamp:  m.CreatedAt,
	}
}

// EnsureConversation materializes an empty placeholder conversation for a
// counterpart picked from user search, before any message is exchanged. It
// is a no-op if a conversation with that counterpart already exists.
func EnsureConversation(v View, user *models.UserSummary) View {
	if idx := findConversation(v.Conversations, user.ID); idx >= 0 {
		return v
	}
	out := cloneView(v)
	out.Conversations = append([]ViewConversation{{
		Counterpart: user.ID,
		User:        user,
		Messages:    []ViewMessage{},
	}}, out.Conversations...)
	return out
}

// ApplySend appends a provisional message to the conversation with the
// receiver and moves that conversation to the top of the list. The returned
// ViewMessage carries the temp id to reconcile against later.
func ApplySend(v View, receiver uuid.UUID, content string, now time.Time) (View, ViewMessage) {
	msg := ViewMessage{
		ID:          NewProvisionalID(),
		SenderID:    v.Self,
		ReceiverID:  receiver,
		Content:     content,
		Timestamp:   now,
		Provisional: true,
	}

	out := cloneView(v)
	idx := findConversation(out.Conversations, receiver)
	if idx < 0 {
		out.Conversations = append(out.Conversations, ViewConversation{
			Counterpart: receiver,
			Messages:    []ViewMessage{},
		})
		idx = len(out.Conversations) - 1
	}
	out.Conversations[idx].Messages = append(out.Conversations[idx].Messages, msg)
	out.Conversations = bubbleToTop(out.Conversations, idx)
	return out, msg
}

// ApplyReceive reconciles an authoritative message from the realtime channel
// into the view: provisional entries for that conversation are superseded,
// the message is appended unless its id is already present, the conversation
// moves to the top, and the unread counters grow when the message is inbound
// from the counterpart.
func ApplyReceive(v View, m *models.Message) View {
	if !m.Involves(v.Self) {
		return v
	}
	counterpart := m.OtherParty(v.Self)

	out := cloneView(v)
	idx := findConversation(out.Conversations, counterpart)
	if idx < 0 {
		out.Conversations = append(out.Conversations, ViewConversation{
			Counterpart: counterpart,
			Messages:    []ViewMessage{},
		})
		idx = len(out.Conversations) - 1
	}

	conv := &out.Conversations[idx]
	id := m.ID.String()

	kept := conv.Messages[:0:0]
	duplicate := false
	for _, existing := range conv.Messages {
		if existing.ID == id {
			duplicate = true
		}
		// A provisional entry from us for this conversation is superseded by
		// the confirmed copy; everything else stays.
		if existing.Provisional && existing.SenderID == v.Self && m.SenderID == v.Self {
			continue
		}
		kept = append(kept, existing)
	}
	if !duplicate {
		kept = append(kept, fromModel(m))
	}
	conv.Messages = kept

	if m.ReceiverID == v.Self && m.SenderID != v.Self && !duplicate {
		conv.Unread++
		out.UnreadTotal++
	}

	out.Conversations = bubbleToTop(out.Conversations, idx)
	return out
}

// MarkRead clears the local unread count for a conversation and returns the
// amount cleared so the caller can mirror it against the server. The local
// decrement is not reverted if the server call later fails; the view already
// shows the conversation as read.
func MarkRead(v View, counterpart uuid.UUID) (View, int) {
	idx := findConversation(v.Conversations, counterpart)
	if idx < 0 || v.Conversations[idx].Unread == 0 {
		return v, 0
	}

	out := cloneView(v)
	cleared := out.Conversations[idx].Unread
	out.Conversations[idx].Unread = 0
	out.UnreadTotal -= cleared
	return out, cleared
}

func findConversation(conversations []ViewConversation, counterpart uuid.UUID) int {
	for i := range conversations {
		if conversations[i].Counterpart == counterpart {
			return i
		}
	}
	return -1
}

func bubbleToTop(conversations []ViewConversation, idx int) []ViewConversation {
	if idx <= 0 {
		return conversations
	}
	moved := conversations[idx]
	copy(conversations[1:idx+1], conversations[:idx])
	conversations[0] = moved
	return conversations
}

func cloneView(v View) View {
	out := View{Self: v.Self, UnreadTotal: v.UnreadTotal}
	out.Conversations = make([]ViewConversation, len(v.Conversations))
	copy(out.Conversations, v.Conversations)
	for i := range out.Conversations {
		msgs := make([]ViewMessage, len(out.Conversations[i].Messages))
		copy(msgs, out.Conversations[i].Messages)
		out.Conversations[i].Messages = msgs
	}
	return out
}
