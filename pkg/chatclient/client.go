package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// typingIdleTimeout is how long after the last Typing call a
	// stop-typing signal is emitted automatically.
	typingIdleTimeout = 4 * time.Second

	reconnectMinBackoff = time.Second
	reconnectMaxBackoff = 30 * time.Second
)

// frame is an outgoing client frame, mirroring the gateway's vocabulary.
type frame struct {
	Type            string `json:"type"`
	ReceiverID      string `json:"receiver_id,omitempty"`
	GroupID         string `json:"group_id,omitempty"`
	MessageID       string `json:"message_id,omitempty"`
	MessageType     string `json:"message_type,omitempty"`
	Content         string `json:"content,omitempty"`
	MediaURL        string `json:"media_url,omitempty"`
	Emoji           string `json:"emoji,omitempty"`
	ConversationKey string `json:"conversation_key,omitempty"`
}

// Client maintains one long-lived gateway connection and the reconciled
// conversation views behind it. All conversations share the single
// subscription; events are routed to views by conversation key.
type Client struct {
	BaseURL string
	Token   string
	SelfID  string

	HTTPClient *http.Client
	Dialer     *websocket.Dialer

	// Optional observers. Called from the read loop; must not block.
	OnPresence func(userID string, online bool)
	OnTyping   func(conversationKey, userID, username string, typing bool)
	OnError    func(message string)

	mu           sync.Mutex
	conn         *websocket.Conn
	convs        map[string]*Conversation
	joined       map[string]struct{}
	typingTimers map[string]*time.Timer
	closed       bool
}

// New builds a client for the given gateway. selfID is the authenticated
// user's id; the client needs it to avoid acknowledging its own messages.
func New(baseURL, token, selfID string) *Client {
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Token:        token,
		SelfID:       selfID,
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
		Dialer:       websocket.DefaultDialer,
		convs:        make(map[string]*Conversation),
		joined:       make(map[string]struct{}),
		typingTimers: make(map[string]*time.Timer),
	}
}

// Connect dials the gateway and starts the read loop. On transport drops the
// client reconnects with backoff, re-joins every group room (subscriptions
// are connection-scoped on the server) and re-fetches snapshots to recover
// anything missed while disconnected.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// Close shuts the client down; no reconnect is attempted afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	for key, t := range c.typingTimers {
		t.Stop()
		delete(c.typingTimers, key)
	}
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Conversation returns (creating if needed) the view for a conversation key.
func (c *Client) Conversation(key string) *Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationLocked(key)
}

func (c *Client) conversationLocked(key string) *Conversation {
	conv, ok := c.convs[key]
	if !ok {
		conv = NewConversation(key)
		c.convs[key] = conv
	}
	return conv
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	wsURL := strings.Replace(c.BaseURL, "http", "ws", 1) + "/ws/chat?token=" + url.QueryEscape(c.Token)
	conn, resp, err := c.Dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial chat gateway: %w", err)
	}
	return conn, nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var evt Event
		if err := conn.ReadJSON(&evt); err != nil {
			break
		}
		c.dispatch(evt)
	}
	conn.Close()
	c.reconnect()
}

func (c *Client) reconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	backoff := reconnectMinBackoff
	for {
		time.Sleep(backoff)

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		conn, err := c.dial(context.Background())
		if err != nil {
			backoff *= 2
			if backoff > reconnectMaxBackoff {
				backoff = reconnectMaxBackoff
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		go c.readLoop(conn)
		c.resubscribe()
		return
	}
}

// resubscribe restores connection-scoped server state after a reconnect:
// every group room is re-joined and every open conversation's snapshot is
// re-fetched, since the live channel has no replay.
func (c *Client) resubscribe() {
	c.mu.Lock()
	groups := make([]string, 0, len(c.joined))
	for g := range c.joined {
		groups = append(groups, g)
	}
	keys := make([]string, 0, len(c.convs))
	for k := range c.convs {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	for _, g := range groups {
		_ = c.writeFrame(frame{Type: "join-group", GroupID: g})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, key := range keys {
		var err error
		switch {
		case strings.HasPrefix(key, "group:"):
			err = c.FetchGroupSnapshot(ctx, strings.TrimPrefix(key, "group:"))
		case strings.HasPrefix(key, "direct:"):
			parts := strings.Split(key, ":")
			if len(parts) == 3 {
				peer := parts[1]
				if peer == c.SelfID {
					peer = parts[2]
				}
				err = c.FetchDirectSnapshot(ctx, peer)
			}
		}
		if err != nil {
			log.Printf("chatclient: snapshot refetch for %s failed: %v", key, err)
		}
	}
}

func (c *Client) writeFrame(f frame) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil || c.closed {
		c.mu.Unlock()
		return errors.New("not connected")
	}
	// Serialize writers; gorilla connections allow one writer at a time.
	err := conn.WriteJSON(f)
	c.mu.Unlock()
	return err
}

// dispatch routes one live event into the reconciled state.
func (c *Client) dispatch(evt Event) {
	switch evt.Type {
	case EventTypeMessage, EventTypeGroupMessage, EventTypeMessageAck:
		if evt.Message == nil {
			return
		}
		conv := c.Conversation(ConversationKeyOf(evt.Message))
		inserted := conv.ApplyNew(*evt.Message)
		// The recipient acknowledges delivery; never the sender.
		if inserted && evt.Message.SenderID != c.SelfID &&
			evt.Message.ReceiverID == c.SelfID && !evt.Message.IsDelivered {
			_ = c.writeFrame(frame{Type: "mark-delivered", MessageID: evt.Message.ID})
		}
	case EventTypeStatusUpdated, EventTypeReaction, EventTypeEdited, EventTypeDeleted:
		if evt.Message == nil {
			return
		}
		conv := c.Conversation(ConversationKeyOf(evt.Message))
		conv.ApplyMutation(*evt.Message)
	case EventTypeUserOnline, EventTypeUserOffline:
		if c.OnPresence != nil {
			c.OnPresence(evt.UserID, evt.Type == EventTypeUserOnline)
		}
	case EventTypeTyping, EventTypeStopTyping:
		if c.OnTyping != nil && evt.UserID != c.SelfID {
			c.OnTyping(evt.ConversationKey, evt.UserID, evt.Username, evt.Type == EventTypeTyping)
		}
	case EventTypeError:
		if c.OnError != nil {
			c.OnError(evt.Error)
		}
	}
}

// JoinGroup subscribes this connection to a group room and remembers it for
// re-subscription after reconnects.
func (c *Client) JoinGroup(groupID string) error {
	c.mu.Lock()
	c.joined[groupID] = struct{}{}
	c.mu.Unlock()
	return c.writeFrame(frame{Type: "join-group", GroupID: groupID})
}

// LeaveGroup unsubscribes from a group room.
func (c *Client) LeaveGroup(groupID string) error {
	c.mu.Lock()
	delete(c.joined, groupID)
	c.mu.Unlock()
	return c.writeFrame(frame{Type: "leave-group", GroupID: groupID})
}

// SendDirectText sends a text message to a single user.
func (c *Client) SendDirectText(receiverID, content string) error {
	return c.writeFrame(frame{Type: "send-message", ReceiverID: receiverID, MessageType: "text", Content: content})
}

// SendGroupText sends a text message to a group.
func (c *Client) SendGroupText(groupID, content string) error {
	return c.writeFrame(frame{Type: "send-message", GroupID: groupID, MessageType: "text", Content: content})
}

// SendDirectMedia sends an image or voice message; mediaURL comes from the
// upload endpoint.
func (c *Client) SendDirectMedia(receiverID, messageType, mediaURL string) error {
	return c.writeFrame(frame{Type: "send-message", ReceiverID: receiverID, MessageType: messageType, MediaURL: mediaURL})
}

// SendGroupMedia sends an image or voice message to a group.
func (c *Client) SendGroupMedia(groupID, messageType, mediaURL string) error {
	return c.writeFrame(frame{Type: "send-message", GroupID: groupID, MessageType: messageType, MediaURL: mediaURL})
}

// MarkSeen reports that a message was rendered as read.
func (c *Client) MarkSeen(messageID string) error {
	return c.writeFrame(frame{Type: "mark-seen", MessageID: messageID})
}

// MarkConversationSeen acknowledges every unread message from the peer in a
// direct conversation, e.g. when the user opens it.
func (c *Client) MarkConversationSeen(key string) {
	conv := c.Conversation(key)
	for _, m := range conv.Messages() {
		if m.SenderID != c.SelfID && m.ReceiverID == c.SelfID && !m.IsSeen {
			_ = c.MarkSeen(m.ID)
		}
	}
}

// ToggleReaction toggles the caller's (emoji) reaction on a message.
func (c *Client) ToggleReaction(messageID, emoji string) error {
	return c.writeFrame(frame{Type: "toggle-reaction", MessageID: messageID, Emoji: emoji})
}

// EditMessage replaces the content of a message the caller sent.
func (c *Client) EditMessage(messageID, content string) error {
	return c.writeFrame(frame{Type: "edit-message", MessageID: messageID, Content: content})
}

// DeleteMessage tombstones a message the caller sent.
func (c *Client) DeleteMessage(messageID string) error {
	return c.writeFrame(frame{Type: "delete-message", MessageID: messageID})
}

// Typing signals that the user is typing in a conversation. A stop-typing
// signal is emitted automatically after the idle timeout unless Typing is
// called again first.
func (c *Client) Typing(conversationKey string) error {
	c.mu.Lock()
	if t, ok := c.typingTimers[conversationKey]; ok {
		t.Stop()
	}
	c.typingTimers[conversationKey] = time.AfterFunc(typingIdleTimeout, func() {
		_ = c.StopTyping(conversationKey)
	})
	c.mu.Unlock()

	return c.writeFrame(frame{Type: "typing", ConversationKey: conversationKey})
}

// StopTyping clears the typing indicator, e.g. when the input is emptied.
func (c *Client) StopTyping(conversationKey string) error {
	c.mu.Lock()
	if t, ok := c.typingTimers[conversationKey]; ok {
		t.Stop()
		delete(c.typingTimers, conversationKey)
	}
	c.mu.Unlock()

	return c.writeFrame(frame{Type: "stop-typing", ConversationKey: conversationKey})
}

type snapshotResponse struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

type myGroupsResponse struct {
	Success bool     `json:"success"`
	Groups  []string `json:"groups"`
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// FetchDirectSnapshot fetches the direct history with a peer and merges it
// into the local view, acknowledging delivery of anything new from the peer.
func (c *Client) FetchDirectSnapshot(ctx context.Context, peerID string) error {
	var snap snapshotResponse
	if err := c.getJSON(ctx, "/api/chat/direct?peer_id="+url.QueryEscape(peerID), &snap); err != nil {
		return err
	}

	conv := c.Conversation(DirectConversationKey(c.SelfID, peerID))
	conv.ApplySnapshot(snap.Messages)
	c.ackSnapshot(snap.Messages)
	return nil
}

// FetchGroupSnapshot fetches a group's history and merges it into the local
// view.
func (c *Client) FetchGroupSnapshot(ctx context.Context, groupID string) error {
	var snap snapshotResponse
	if err := c.getJSON(ctx, "/api/chat/group?group_id="+url.QueryEscape(groupID), &snap); err != nil {
		return err
	}

	conv := c.Conversation(GroupConversationKey(groupID))
	conv.ApplySnapshot(snap.Messages)
	return nil
}

// FetchMyGroups returns the groups the user belongs to, so the caller can
// join their rooms.
func (c *Client) FetchMyGroups(ctx context.Context) ([]string, error) {
	var resp myGroupsResponse
	if err := c.getJSON(ctx, "/api/groups/mine", &resp); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

// ackSnapshot sends delivery receipts for direct messages fetched in a
// snapshot that the sender hasn't had acknowledged yet.
func (c *Client) ackSnapshot(msgs []Message) {
	for _, m := range msgs {
		if m.SenderID != c.SelfID && m.ReceiverID == c.SelfID && !m.IsDelivered {
			_ = c.writeFrame(frame{Type: "mark-delivered", MessageID: m.ID})
		}
	}
}
