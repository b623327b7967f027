package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PresenceRegistry tracks which users currently have at least one live
// WebSocket connection. Connections are reference counted per user so a
// second device (or a reconnect racing a stale disconnect) never flips a
// still-connected user offline.
//
// The offline broadcast is additionally delayed by a linger window and
// cancelled if the user reconnects within it, so rapid connect/disconnect
// cycles don't flap online/offline events at other clients. IsOnline itself
// is exact and unaffected by the linger.
type PresenceRegistry struct {
	mu      sync.Mutex
	entries map[string]map[uuid.UUID]struct{}
	pending map[string]*time.Timer // scheduled user-offline broadcasts
	linger  time.Duration
	notify  func(ChatEvent)
}

// NewPresenceRegistry builds a registry. notify receives the user-online /
// user-offline events to broadcast; it must not block.
func NewPresenceRegistry(linger time.Duration, notify func(ChatEvent)) *PresenceRegistry {
	return &PresenceRegistry{
		entries: make(map[string]map[uuid.UUID]struct{}),
		pending: make(map[string]*time.Timer),
		linger:  linger,
		notify:  notify,
	}
}

// Register adds a connection to the user's entry, creating it if absent.
// The user-online event is emitted only on the 0→1 transition, and suppressed
// when the user reconnects inside the offline linger window (other clients
// never saw them leave).
func (p *PresenceRegistry) Register(userID string, connID uuid.UUID) {
	p.mu.Lock()
	conns, ok := p.entries[userID]
	if !ok {
		conns = make(map[uuid.UUID]struct{})
		p.entries[userID] = conns
	}
	conns[connID] = struct{}{}

	announce := false
	if len(conns) == 1 {
		if t, pending := p.pending[userID]; pending {
			t.Stop()
			delete(p.pending, userID)
		} else {
			announce = true
		}
	}
	p.mu.Unlock()

	if announce {
		p.emit(EventTypeUserOnline, userID)
	}
}

// Unregister removes a connection. Removing an unknown connection is a no-op
// so duplicate disconnect signals from the transport are harmless. Only when
// the user's last connection goes away is the user-offline broadcast
// scheduled.
func (p *PresenceRegistry) Unregister(userID string, connID uuid.UUID) {
	p.mu.Lock()
	conns, ok := p.entries[userID]
	if !ok {
		p.mu.Unlock()
		return
	}
	if _, ok := conns[connID]; !ok {
		p.mu.Unlock()
		return
	}
	delete(conns, connID)
	if len(conns) > 0 {
		p.mu.Unlock()
		return
	}
	delete(p.entries, userID)

	if p.linger <= 0 {
		p.mu.Unlock()
		p.emit(EventTypeUserOffline, userID)
		return
	}

	if t, pending := p.pending[userID]; pending {
		t.Stop()
	}
	p.pending[userID] = time.AfterFunc(p.linger, func() {
		p.mu.Lock()
		_, online := p.entries[userID]
		_, pending := p.pending[userID]
		delete(p.pending, userID)
		p.mu.Unlock()
		if !online && pending {
			p.emit(EventTypeUserOffline, userID)
		}
	})
	p.mu.Unlock()
}

// IsOnline reports whether the user has at least one live connection.
func (p *PresenceRegistry) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries[userID]) > 0
}

// OnlineUsers returns the ids of all users with a live connection.
func (p *PresenceRegistry) OnlineUsers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	users := make([]string, 0, len(p.entries))
	for userID := range p.entries {
		users = append(users, userID)
	}
	return users
}

func (p *PresenceRegistry) emit(eventType, userID string) {
	if p.notify == nil {
		return
	}
	p.notify(ChatEvent{
		Type:      eventType,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	})
}
