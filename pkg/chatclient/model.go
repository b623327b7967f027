// Package chatclient is the client-side reconciliation layer for the chat
// gateway: it merges REST snapshots with the live WebSocket event stream
// into a deduplicated, ordered per-conversation view, and recovers state
// after a reconnect.
package chatclient

import "time"

// Message mirrors the server's wire representation of a chat message.
type Message struct {
	ID          string     `json:"id"`
	SenderID    string     `json:"sender_id"`
	ReceiverID  string     `json:"receiver_id,omitempty"`
	GroupID     string     `json:"group_id,omitempty"`
	Content     string     `json:"content,omitempty"`
	MediaURL    string     `json:"media_url,omitempty"`
	MessageType string     `json:"message_type"`
	CreatedAt   time.Time  `json:"created_at"`
	IsDelivered bool       `json:"is_delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	IsSeen      bool       `json:"is_seen"`
	SeenAt      *time.Time `json:"seen_at,omitempty"`
	Edited      bool       `json:"edited"`
	Deleted     bool       `json:"deleted"`
	Reactions   []Reaction `json:"reactions,omitempty"`
}

// Reaction is a single (user, emoji) pair on a message.
type Reaction struct {
	UserID string `json:"user_id"`
	Emoji  string `json:"emoji"`
}

// Event mirrors the server's broadcast envelope.
type Event struct {
	Type            string    `json:"type"`
	ConversationKey string    `json:"conversation_key,omitempty"`
	GroupID         string    `json:"group_id,omitempty"`
	SenderID        string    `json:"sender_id,omitempty"`
	ReceiverID      string    `json:"receiver_id,omitempty"`
	UserID          string    `json:"user_id,omitempty"`
	Username        string    `json:"username,omitempty"`
	MessageID       string    `json:"message_id,omitempty"`
	Emoji           string    `json:"emoji,omitempty"`
	Message         *Message  `json:"message,omitempty"`
	Error           string    `json:"error,omitempty"`
	Timestamp       time.Time `json:"timestamp,omitempty"`
}

// Event types, matching the server vocabulary.
const (
	EventTypeMessage       = "new-message"
	EventTypeGroupMessage  = "new-group-message"
	EventTypeMessageAck    = "message-ack"
	EventTypeStatusUpdated = "message-status-updated"
	EventTypeReaction      = "message-reaction"
	EventTypeEdited        = "message-edited"
	EventTypeDeleted       = "message-deleted"
	EventTypeUserOnline    = "user-online"
	EventTypeUserOffline   = "user-offline"
	EventTypeTyping        = "typing"
	EventTypeStopTyping    = "stop-typing"
	EventTypeError         = "error"
)

// DeletedPlaceholder is the tombstone content of a deleted message.
const DeletedPlaceholder = "This message was deleted"

// DirectConversationKey derives the key of a direct conversation from the
// unordered participant pair.
func DirectConversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "direct:" + a + ":" + b
}

// GroupConversationKey derives the key of a group conversation.
func GroupConversationKey(groupID string) string {
	return "group:" + groupID
}

// ConversationKeyOf resolves the conversation a message belongs to.
func ConversationKeyOf(m *Message) string {
	if m.GroupID != "" {
		return GroupConversationKey(m.GroupID)
	}
	return DirectConversationKey(m.SenderID, m.ReceiverID)
}
