package models

import (
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MessageType identifies the payload kind of a chat message.
// Valid values: "text", "image", "voice".
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeVoice MessageType = "voice"
)

// DeletedPlaceholder replaces the content of a deleted message.
const DeletedPlaceholder = "This message was deleted"

var (
	ErrInvalidTarget      = errors.New("message must target exactly one of a receiver or a group")
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrContentRequired    = errors.New("text messages require content")
	ErrMediaRequired      = errors.New("image and voice messages require a media url")
	ErrMessageDeleted     = errors.New("message has been deleted")
)

// TargetKind discriminates direct from group targets.
type TargetKind string

const (
	TargetDirect TargetKind = "direct"
	TargetGroup  TargetKind = "group"
)

// Target is the tagged destination of a message: either a single receiving
// user or a group. Constructing it through DirectTarget/GroupTarget makes the
// "both set" and "neither set" states unrepresentable.
type Target struct {
	Kind TargetKind
	ID   string
}

func DirectTarget(receiverID string) Target {
	return Target{Kind: TargetDirect, ID: receiverID}
}

func GroupTarget(groupID string) Target {
	return Target{Kind: TargetGroup, ID: groupID}
}

func (t Target) Validate() error {
	if t.ID == "" {
		return ErrInvalidTarget
	}
	switch t.Kind {
	case TargetDirect, TargetGroup:
		return nil
	default:
		return ErrInvalidTarget
	}
}

// Reaction is a single (user, emoji) pair on a message. A user may hold at
// most one reaction per emoji; re-toggling the same pair removes it.
type Reaction struct {
	UserID string `bson:"user_id" json:"user_id"`
	Emoji  string `bson:"emoji" json:"emoji"`
}

// Message is stored in MongoDB, one document per message. The target is
// persisted as receiver_id XOR group_id so both sides of a direct pair and a
// group timeline stay efficiently queryable.
type Message struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SenderID    string             `bson:"sender_id" json:"sender_id"`
	ReceiverID  string             `bson:"receiver_id,omitempty" json:"receiver_id,omitempty"`
	GroupID     string             `bson:"group_id,omitempty" json:"group_id,omitempty"`
	Content     string             `bson:"content,omitempty" json:"content,omitempty"`
	MediaURL    string             `bson:"media_url,omitempty" json:"media_url,omitempty"`
	MessageType MessageType        `bson:"message_type" json:"message_type"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	IsDelivered bool               `bson:"is_delivered" json:"is_delivered"`
	DeliveredAt *time.Time         `bson:"delivered_at,omitempty" json:"delivered_at,omitempty"`
	IsSeen      bool               `bson:"is_seen" json:"is_seen"`
	SeenAt      *time.Time         `bson:"seen_at,omitempty" json:"seen_at,omitempty"`
	Edited      bool               `bson:"edited" json:"edited"`
	Deleted     bool               `bson:"deleted" json:"deleted"`
	Reactions   []Reaction         `bson:"reactions,omitempty" json:"reactions,omitempty"`
}

// NewMessage validates and builds an unsaved message. The target is fixed
// here and never changes afterwards.
func NewMessage(senderID string, target Target, msgType MessageType, content, mediaURL string) (*Message, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if senderID == "" {
		return nil, errors.New("sender id is required")
	}
	content = strings.TrimSpace(content)
	switch msgType {
	case MessageTypeText:
		if content == "" {
			return nil, ErrContentRequired
		}
	case MessageTypeImage, MessageTypeVoice:
		if mediaURL == "" {
			return nil, ErrMediaRequired
		}
	default:
		return nil, ErrInvalidMessageType
	}

	m := &Message{
		SenderID:    senderID,
		Content:     content,
		MediaURL:    mediaURL,
		MessageType: msgType,
		CreatedAt:   time.Now().UTC(),
	}
	switch target.Kind {
	case TargetDirect:
		m.ReceiverID = target.ID
	case TargetGroup:
		m.GroupID = target.ID
	}
	return m, nil
}

// Target reconstructs the tagged target from the stored fields.
func (m *Message) Target() Target {
	if m.GroupID != "" {
		return GroupTarget(m.GroupID)
	}
	return DirectTarget(m.ReceiverID)
}

// IsDirect reports whether the message belongs to a two-party conversation.
func (m *Message) IsDirect() bool {
	return m.ReceiverID != ""
}

// ConversationKey returns the routing key of the conversation this message
// belongs to.
func (m *Message) ConversationKey() string {
	if m.GroupID != "" {
		return GroupConversationKey(m.GroupID)
	}
	return DirectConversationKey(m.SenderID, m.ReceiverID)
}

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

// MarkDelivered applies the sent→delivered transition. Returns false when the
// message was already delivered (idempotent; the flag never resets).
func (m *Message) MarkDelivered(at time.Time) bool {
	if m.IsDelivered {
		return false
	}
	m.IsDelivered = true
	t := at.UTC()
	m.DeliveredAt = &t
	return true
}

// MarkSeen applies the delivered→seen transition. Seen implies delivered, so
// a message seen straight from a snapshot gains both flags.
func (m *Message) MarkSeen(at time.Time) bool {
	if m.IsSeen {
		return false
	}
	m.MarkDelivered(at)
	m.IsSeen = true
	t := at.UTC()
	m.SeenAt = &t
	return true
}

// Edit replaces the content of a live message. Deletion takes precedence:
// editing a deleted message fails with ErrMessageDeleted.
func (m *Message) Edit(content string) error {
	if m.Deleted {
		return ErrMessageDeleted
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrContentRequired
	}
	m.Content = content
	m.Edited = true
	return nil
}

// Delete tombstones the message. Idempotent; returns false when it was
// already deleted.
func (m *Message) Delete() bool {
	if m.Deleted {
		return false
	}
	m.Deleted = true
	m.Content = DeletedPlaceholder
	m.MediaURL = ""
	return true
}

// ToggleReaction adds the (userID, emoji) reaction if absent and removes it
// if present. Returns true when the reaction was added.
func (m *Message) ToggleReaction(userID, emoji string) bool {
	for i, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			return false
		}
	}
	m.Reactions = append(m.Reactions, Reaction{UserID: userID, Emoji: emoji})
	return true
}
