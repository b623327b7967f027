package services

import (
	"time"

	"github.com/learnova/learnova-backend/internal/models"
)

// Chat event types sent to clients over the WebSocket gateway (and across
// instances over the Redis bridge).
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

// ChatEvent is the payload broadcast over the WebSocket gateway. The routing
// fields (GroupID, SenderID/ReceiverID, ConversationKey) are always populated
// by the emitter so the hub can resolve recipients without inspecting the
// embedded message.
type ChatEvent struct {
	Type            string          `json:"type"`
	ConversationKey string          `json:"conversation_key,omitempty"`
	GroupID         string          `json:"group_id,omitempty"`
	SenderID        string          `json:"sender_id,omitempty"`
	ReceiverID      string          `json:"receiver_id,omitempty"`
	UserID          string          `json:"user_id,omitempty"`
	Username        string          `json:"username,omitempty"`
	MessageID       string          `json:"message_id,omitempty"`
	Emoji           string          `json:"emoji,omitempty"`
	Message         *models.Message `json:"message,omitempty"`
	Error           string          `json:"error,omitempty"`
	Timestamp       time.Time       `json:"timestamp,omitempty"`
}

// MessageEvent builds the broadcast event for a freshly persisted message,
// with routing fields copied from the message itself.
func MessageEvent(msg *models.Message) ChatEvent {
	evt := ChatEvent{
		ConversationKey: msg.ConversationKey(),
		GroupID:         msg.GroupID,
		SenderID:        msg.SenderID,
		ReceiverID:      msg.ReceiverID,
		MessageID:       msg.ID.Hex(),
		Message:         msg,
		Timestamp:       time.Now().UTC(),
	}
	if msg.GroupID != "" {
		evt.Type = EventTypeGroupMessage
	} else {
		evt.Type = EventTypeMessage
	}
	return evt
}

// MutationEvent builds the broadcast event for a status/reaction/edit/delete
// mutation on an existing message.
func MutationEvent(eventType string, msg *models.Message, actorID string) ChatEvent {
	return ChatEvent{
		Type:            eventType,
		ConversationKey: msg.ConversationKey(),
		GroupID:         msg.GroupID,
		SenderID:        msg.SenderID,
		ReceiverID:      msg.ReceiverID,
		UserID:          actorID,
		MessageID:       msg.ID.Hex(),
		Message:         msg,
		Timestamp:       time.Now().UTC(),
	}
}
