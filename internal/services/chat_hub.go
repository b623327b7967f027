package services

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/learnova/learnova-backend/internal/models"
)

// clientSendBuffer is the per-connection event queue depth. A reader that
// falls this far behind starts losing live events; the snapshot fetch on the
// client recovers anything dropped.
const clientSendBuffer = 64

// ClientConn is one live WebSocket connection registered with the hub.
// Events are queued on a buffered channel and written by a single writer
// goroutine, so a slow or dead connection can never block fan-out.
type ClientConn struct {
	ID     uuid.UUID
	UserID string

	mu     sync.Mutex
	send   chan ChatEvent
	closed bool
}

// Events returns the channel the connection's writer goroutine drains. It is
// closed when the connection is disconnected from the hub.
func (c *ClientConn) Events() <-chan ChatEvent {
	return c.send
}

// Send enqueues an event for this connection only, e.g. a send
// acknowledgement or an error report to the originating client.
func (c *ClientConn) Send(evt ChatEvent) {
	c.deliver(evt)
}

// deliver enqueues an event without blocking. Events to a full or closed
// queue are dropped.
func (c *ClientConn) deliver(evt ChatEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- evt:
	default:
		log.Printf("chat hub: dropping %s event for slow connection %s (user %s)", evt.Type, c.ID, c.UserID)
	}
}

func (c *ClientConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ChatHub is the registry of live connections and the room router. Direct
// events go to every connection of both participants; group events go to the
// connections currently subscribed to the group's room. Room subscriptions
// are connection-scoped and vanish with the connection, so clients re-join
// after a reconnect.
type ChatHub struct {
	mu     sync.RWMutex
	byUser map[string]map[uuid.UUID]*ClientConn
	rooms  map[string]map[uuid.UUID]*ClientConn

	presence *PresenceRegistry

	pubMu   sync.RWMutex
	publish func(ChatEvent)
}

// NewChatHub builds a hub with its own presence registry. linger is the
// user-offline broadcast delay (see PresenceRegistry).
func NewChatHub(linger time.Duration) *ChatHub {
	h := &ChatHub{
		byUser: make(map[string]map[uuid.UUID]*ClientConn),
		rooms:  make(map[string]map[uuid.UUID]*ClientConn),
	}
	h.presence = NewPresenceRegistry(linger, h.Route)
	return h
}

// DefaultHub is the process-wide hub, wired in main.
var DefaultHub = NewChatHub(2 * time.Second)

// Presence exposes the hub's presence registry for lookups.
func (h *ChatHub) Presence() *PresenceRegistry {
	return h.presence
}

// SetPublisher routes outgoing events through an external publisher (the
// Redis bridge) instead of delivering to local connections directly. The
// bridge's subscriber feeds events back into Deliver.
func (h *ChatHub) SetPublisher(fn func(ChatEvent)) {
	h.pubMu.Lock()
	h.publish = fn
	h.pubMu.Unlock()
}

// Route sends an event towards every live recipient: through the publisher
// when one is set, directly to local connections otherwise.
func (h *ChatHub) Route(evt ChatEvent) {
	h.pubMu.RLock()
	publish := h.publish
	h.pubMu.RUnlock()
	if publish != nil {
		publish(evt)
		return
	}
	h.Deliver(evt)
}

// Connect registers a new connection for the user and marks them present.
func (h *ChatHub) Connect(userID string) *ClientConn {
	c := &ClientConn{
		ID:     uuid.New(),
		UserID: userID,
		send:   make(chan ChatEvent, clientSendBuffer),
	}

	h.mu.Lock()
	conns, ok := h.byUser[userID]
	if !ok {
		conns = make(map[uuid.UUID]*ClientConn)
		h.byUser[userID] = conns
	}
	conns[c.ID] = c
	h.mu.Unlock()

	h.presence.Register(userID, c.ID)
	return c
}

// Disconnect removes the connection from every room and from the user's
// entry, then closes its event channel. Safe to call more than once.
func (h *ChatHub) Disconnect(c *ClientConn) {
	h.mu.Lock()
	for room, members := range h.rooms {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if conns, ok := h.byUser[c.UserID]; ok {
		delete(conns, c.ID)
		if len(conns) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
	h.mu.Unlock()

	h.presence.Unregister(c.UserID, c.ID)
	c.close()
}

// JoinGroup subscribes the connection to a group room. Idempotent: joining a
// room twice is harmless.
func (h *ChatHub) JoinGroup(c *ClientConn, groupID string) {
	room := models.GroupConversationKey(groupID)
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[uuid.UUID]*ClientConn)
		h.rooms[room] = members
	}
	members[c.ID] = c
	h.mu.Unlock()
}

// LeaveGroup removes the connection from a group room. Unknown rooms and
// non-members are no-ops.
func (h *ChatHub) LeaveGroup(c *ClientConn, groupID string) {
	room := models.GroupConversationKey(groupID)
	h.mu.Lock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
}

// Deliver fans an event out to the local connections it resolves to. A
// target with no live connections is the expected "recipient offline" case,
// not an error: the message is already persisted and the next snapshot fetch
// recovers it.
func (h *ChatHub) Deliver(evt ChatEvent) {
	switch {
	case evt.Type == EventTypeUserOnline || evt.Type == EventTypeUserOffline:
		h.broadcastAll(evt)
	case evt.GroupID != "":
		h.broadcastRoom(models.GroupConversationKey(evt.GroupID), evt)
	case evt.ReceiverID != "":
		h.broadcastUsers(evt, evt.SenderID, evt.ReceiverID)
	case evt.ConversationKey != "":
		// Ephemeral signals (typing) carry only the conversation key.
		if strings.HasPrefix(evt.ConversationKey, "group:") {
			h.broadcastRoom(evt.ConversationKey, evt)
		} else if a, b, ok := splitDirectKey(evt.ConversationKey); ok {
			h.broadcastUsers(evt, a, b)
		}
	default:
		log.Printf("chat hub: event %q has no routable target, dropped", evt.Type)
	}
}

func (h *ChatHub) broadcastAll(evt ChatEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conns := range h.byUser {
		for _, c := range conns {
			c.deliver(evt)
		}
	}
}

func (h *ChatHub) broadcastRoom(room string, evt ChatEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[room] {
		c.deliver(evt)
	}
}

// broadcastUsers delivers to every connection of the given users. The sender
// is included on purpose so their other devices see outgoing messages too.
func (h *ChatHub) broadcastUsers(evt ChatEvent, userIDs ...string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]struct{}, len(userIDs))
	for _, userID := range userIDs {
		if userID == "" {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		for _, c := range h.byUser[userID] {
			c.deliver(evt)
		}
	}
}

func splitDirectKey(key string) (a, b string, ok bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "direct" || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
