package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/learnova/learnova-backend/internal/models"
	"github.com/learnova/learnova-backend/internal/services"
)

// chatUpgrader is the shared upgrader for chat WebSocket connections.
var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS for WebSocket is handled at the HTTP layer already.
		return true
	},
}

// ChatClientFrame represents frames coming from the frontend over WebSocket.
type ChatClientFrame struct {
	Type            string `json:"type"` // "send-message", "join-group", "leave-group", "typing", "stop-typing", "mark-delivered", "mark-seen", "toggle-reaction", "edit-message", "delete-message", "ping"
	ReceiverID      string `json:"receiver_id,omitempty"`
	GroupID         string `json:"group_id,omitempty"`
	MessageID       string `json:"message_id,omitempty"`
	MessageType     string `json:"message_type,omitempty"`
	Content         string `json:"content,omitempty"`
	MediaURL        string `json:"media_url,omitempty"`
	Emoji           string `json:"emoji,omitempty"`
	ConversationKey string `json:"conversation_key,omitempty"`
}

func extractBearerToken(header string) string {
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// ChatWebSocket handles the real-time chat gateway. Authentication is done
// via the session token (Authorization: Bearer <token>, or ?token= for
// browser WebSocket clients). A connection serves all of the user's
// conversations; group room subscriptions are established per connection
// with join-group frames and must be re-issued after a reconnect.
func ChatWebSocket(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing session token", http.StatusUnauthorized)
			return
		}
	}

	userID, ok, err := services.ValidateSession(token)
	if err != nil || !ok {
		http.Error(w, "invalid session token", http.StatusUnauthorized)
		return
	}

	username, _ := services.GetUsernameByID(userID.String())

	conn, err := chatUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := services.DefaultHub.Connect(userID.String())
	defer services.DefaultHub.Disconnect(client)

	// Writer goroutine: the only writer on this connection. Drains the hub
	// queue until Disconnect closes it.
	go func() {
		for evt := range client.Events() {
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}()

	conn.SetReadLimit(64 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	conn.SetPongHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// Disconnect (deferred) unregisters presence and room subscriptions.
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))

		var frame ChatClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case "send-message":
			handleSendMessage(r.Context(), client, userID, frame)
		case "join-group":
			handleJoinGroup(client, userID, frame.GroupID)
		case "leave-group":
			if frame.GroupID != "" {
				services.DefaultHub.LeaveGroup(client, frame.GroupID)
			}
		case "typing", "stop-typing":
			handleTypingSignal(client, userID, username, frame)
		case "mark-delivered", "mark-seen":
			handleReceipt(r.Context(), client, userID, frame)
		case "toggle-reaction":
			handleToggleReaction(r.Context(), client, userID, frame)
		case "edit-message":
			handleEditMessage(r.Context(), client, userID, frame)
		case "delete-message":
			handleDeleteMessage(r.Context(), client, userID, frame)
		case "ping":
			// Keepalive; read deadline already refreshed above.
		default:
			// Ignore unknown types
		}
	}
}

// sendError reports a failed operation back to the originating connection
// only. Sends must never fail silently: the client uses these to retry.
func sendError(client *services.ClientConn, message string) {
	client.Send(services.ChatEvent{
		Type:      services.EventTypeError,
		Error:     message,
		Timestamp: time.Now().UTC(),
	})
}

// handleSendMessage validates, persists to MongoDB, then fans out. The
// persist must complete before any broadcast so a live event never precedes
// its durable record.
func handleSendMessage(ctx context.Context, client *services.ClientConn, userID uuid.UUID, frame ChatClientFrame) {
	if (frame.ReceiverID == "") == (frame.GroupID == "") {
		sendError(client, "message must target exactly one of a receiver or a group")
		return
	}

	var target models.Target
	if frame.GroupID != "" {
		if !services.IsGroupMember(userID, frame.GroupID) {
			sendError(client, "you must be a member of this group")
			return
		}
		target = models.GroupTarget(frame.GroupID)
	} else {
		target = models.DirectTarget(frame.ReceiverID)
	}

	msgType := models.MessageType(frame.MessageType)
	if msgType == "" {
		msgType = models.MessageTypeText
	}

	msg, err := models.NewMessage(userID.String(), target, msgType, frame.Content, frame.MediaURL)
	if err != nil {
		sendError(client, err.Error())
		return
	}

	saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	saved, err := services.SaveMessage(saveCtx, msg)
	if err != nil {
		sendError(client, "failed to persist message")
		return
	}

	services.PushMessageToRecentCache(saved)
	services.DefaultHub.Route(services.MessageEvent(saved))

	// Acknowledge to the sender with the assigned id.
	ack := services.MutationEvent(services.EventTypeMessageAck, saved, userID.String())
	client.Send(ack)
}

func handleJoinGroup(client *services.ClientConn, userID uuid.UUID, groupID string) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return
	}
	if !services.IsGroupMember(userID, groupID) {
		sendError(client, "you must be a member of this group")
		return
	}
	services.DefaultHub.JoinGroup(client, groupID)
}

// typingConversationKey resolves the conversation a typing signal is scoped
// to and rejects frames targeting conversations the user is not a party of.
// Direct keys must contain the caller's id; group keys surface the group id
// so the handler can check membership. The returned key is canonical.
func typingConversationKey(userID string, frame ChatClientFrame) (key, groupID string, ok bool) {
	switch {
	case frame.ConversationKey != "":
		if rest, isGroup := strings.CutPrefix(frame.ConversationKey, "group:"); isGroup {
			if rest == "" {
				return "", "", false
			}
			return frame.ConversationKey, rest, true
		}
		parts := strings.Split(frame.ConversationKey, ":")
		if len(parts) != 3 || parts[0] != "direct" || parts[1] == "" || parts[2] == "" {
			return "", "", false
		}
		if parts[1] != userID && parts[2] != userID {
			return "", "", false
		}
		return models.DirectConversationKey(parts[1], parts[2]), "", true
	case frame.GroupID != "":
		return models.GroupConversationKey(frame.GroupID), frame.GroupID, true
	case frame.ReceiverID != "":
		return models.DirectConversationKey(userID, frame.ReceiverID), "", true
	default:
		return "", "", false
	}
}

// handleTypingSignal broadcasts an ephemeral typing indicator scoped to a
// conversation. Nothing is persisted. Like every other frame, the signal is
// only routed into conversations the sender participates in.
func handleTypingSignal(client *services.ClientConn, userID uuid.UUID, username string, frame ChatClientFrame) {
	key, groupID, ok := typingConversationKey(userID.String(), frame)
	if !ok {
		return
	}
	if groupID != "" && !services.IsGroupMember(userID, groupID) {
		sendError(client, "you must be a member of this group")
		return
	}

	eventType := services.EventTypeTyping
	if frame.Type == "stop-typing" {
		eventType = services.EventTypeStopTyping
	}

	services.DefaultHub.Route(services.ChatEvent{
		Type:            eventType,
		ConversationKey: key,
		UserID:          userID.String(),
		Username:        username,
		Timestamp:       time.Now().UTC(),
	})
}

// handleReceipt applies a delivered/seen acknowledgement from the recipient.
// Both transitions are monotonic and idempotent; repeats broadcast nothing.
func handleReceipt(ctx context.Context, client *services.ClientConn, userID uuid.UUID, frame ChatClientFrame) {
	id, err := primitive.ObjectIDFromHex(frame.MessageID)
	if err != nil {
		sendError(client, "invalid message id")
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var msg *models.Message
	var changed bool
	if frame.Type == "mark-seen" {
		msg, changed, err = services.MarkSeen(opCtx, id, userID.String())
	} else {
		msg, changed, err = services.MarkDelivered(opCtx, id, userID.String())
	}
	if err != nil {
		sendError(client, err.Error())
		return
	}
	if !changed {
		return
	}

	services.InvalidateRecentCache(msg.ConversationKey())
	services.DefaultHub.Route(services.MutationEvent(services.EventTypeStatusUpdated, msg, userID.String()))
}

func handleToggleReaction(ctx context.Context, client *services.ClientConn, userID uuid.UUID, frame ChatClientFrame) {
	if frame.Emoji == "" {
		sendError(client, "emoji is required")
		return
	}
	id, err := primitive.ObjectIDFromHex(frame.MessageID)
	if err != nil {
		sendError(client, "invalid message id")
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	existing, err := services.GetMessage(opCtx, id)
	if err != nil {
		sendError(client, err.Error())
		return
	}
	if !canAccessMessage(userID, existing) {
		sendError(client, "not a participant of this conversation")
		return
	}

	msg, _, err := services.ToggleReaction(opCtx, id, userID.String(), frame.Emoji)
	if err != nil {
		sendError(client, err.Error())
		return
	}

	services.InvalidateRecentCache(msg.ConversationKey())
	evt := services.MutationEvent(services.EventTypeReaction, msg, userID.String())
	evt.Emoji = frame.Emoji
	services.DefaultHub.Route(evt)
}

func handleEditMessage(ctx context.Context, client *services.ClientConn, userID uuid.UUID, frame ChatClientFrame) {
	id, err := primitive.ObjectIDFromHex(frame.MessageID)
	if err != nil {
		sendError(client, "invalid message id")
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg, err := services.EditMessage(opCtx, id, userID.String(), frame.Content)
	if err != nil {
		sendError(client, err.Error())
		return
	}

	services.InvalidateRecentCache(msg.ConversationKey())
	services.DefaultHub.Route(services.MutationEvent(services.EventTypeEdited, msg, userID.String()))
}

func handleDeleteMessage(ctx context.Context, client *services.ClientConn, userID uuid.UUID, frame ChatClientFrame) {
	id, err := primitive.ObjectIDFromHex(frame.MessageID)
	if err != nil {
		sendError(client, "invalid message id")
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg, changed, err := services.DeleteMessage(opCtx, id, userID.String())
	if err != nil {
		sendError(client, err.Error())
		return
	}
	if !changed {
		return
	}

	services.InvalidateRecentCache(msg.ConversationKey())
	services.DefaultHub.Route(services.MutationEvent(services.EventTypeDeleted, msg, userID.String()))
}

// canAccessMessage reports whether the user participates in the message's
// conversation: a party of the direct pair, or a member of the group.
func canAccessMessage(userID uuid.UUID, msg *models.Message) bool {
	uid := userID.String()
	if msg.GroupID != "" {
		return services.IsGroupMember(userID, msg.GroupID)
	}
	return msg.SenderID == uid || msg.ReceiverID == uid
}
