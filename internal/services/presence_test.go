package services

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// eventRecorder collects presence broadcasts for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []ChatEvent
}

func (r *eventRecorder) notify(evt ChatEvent) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *eventRecorder) snapshot() []ChatEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ChatEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) count(eventType, userID string) int {
	n := 0
	for _, e := range r.snapshot() {
		if e.Type == eventType && e.UserID == userID {
			n++
		}
	}
	return n
}

func TestPresenceRefcounting(t *testing.T) {
	rec := &eventRecorder{}
	p := NewPresenceRegistry(0, rec.notify)

	connA := uuid.New()
	connB := uuid.New()

	p.Register("alice", connA)
	if !p.IsOnline("alice") {
		t.Fatal("alice should be online after first connection")
	}
	if got := rec.count(EventTypeUserOnline, "alice"); got != 1 {
		t.Fatalf("got %d online events, want 1", got)
	}

	// Second device: no duplicate online event.
	p.Register("alice", connB)
	if got := rec.count(EventTypeUserOnline, "alice"); got != 1 {
		t.Errorf("second device emitted an online event (got %d, want 1)", got)
	}

	// Dropping one of two connections keeps the user online.
	p.Unregister("alice", connA)
	if !p.IsOnline("alice") {
		t.Error("alice should stay online with one connection left")
	}
	if got := rec.count(EventTypeUserOffline, "alice"); got != 0 {
		t.Errorf("got %d offline events, want 0", got)
	}

	// Dropping the last connection emits exactly one offline event.
	p.Unregister("alice", connB)
	if p.IsOnline("alice") {
		t.Error("alice should be offline after last connection drops")
	}
	if got := rec.count(EventTypeUserOffline, "alice"); got != 1 {
		t.Errorf("got %d offline events, want 1", got)
	}
}

func TestPresenceDuplicateUnregister(t *testing.T) {
	rec := &eventRecorder{}
	p := NewPresenceRegistry(0, rec.notify)

	connA := uuid.New()
	connB := uuid.New()

	p.Register("alice", connA)
	p.Register("alice", connB)

	p.Unregister("alice", connA)
	p.Unregister("alice", connA) // duplicate disconnect signal
	if !p.IsOnline("alice") {
		t.Fatal("duplicate unregister must not take the second connection down")
	}

	p.Unregister("alice", connB)
	p.Unregister("alice", connB)
	p.Unregister("bob", uuid.New()) // unknown user is a no-op too
	if got := rec.count(EventTypeUserOffline, "alice"); got != 1 {
		t.Errorf("got %d offline events, want 1", got)
	}
}

func TestPresenceLingerCancelsOnReconnect(t *testing.T) {
	rec := &eventRecorder{}
	p := NewPresenceRegistry(50*time.Millisecond, rec.notify)

	connA := uuid.New()
	p.Register("alice", connA)
	p.Unregister("alice", connA)

	// Reconnect inside the linger window.
	connB := uuid.New()
	p.Register("alice", connB)

	time.Sleep(150 * time.Millisecond)

	if got := rec.count(EventTypeUserOffline, "alice"); got != 0 {
		t.Errorf("got %d offline events, want 0 (reconnect should cancel the pending offline)", got)
	}
	// Other clients never saw alice leave, so no second online either.
	if got := rec.count(EventTypeUserOnline, "alice"); got != 1 {
		t.Errorf("got %d online events, want 1 (reconnect inside linger should be silent)", got)
	}
	if !p.IsOnline("alice") {
		t.Error("alice should be online")
	}
}

func TestPresenceLingerFiresAfterWindow(t *testing.T) {
	rec := &eventRecorder{}
	p := NewPresenceRegistry(20*time.Millisecond, rec.notify)

	conn := uuid.New()
	p.Register("alice", conn)
	p.Unregister("alice", conn)

	// IsOnline is exact; the linger only delays the broadcast.
	if p.IsOnline("alice") {
		t.Error("alice should read as offline immediately")
	}
	if got := rec.count(EventTypeUserOffline, "alice"); got != 0 {
		t.Errorf("offline broadcast before the linger elapsed (got %d)", got)
	}

	time.Sleep(100 * time.Millisecond)
	if got := rec.count(EventTypeUserOffline, "alice"); got != 1 {
		t.Errorf("got %d offline events after linger, want 1", got)
	}
}

func TestOnlineUsers(t *testing.T) {
	p := NewPresenceRegistry(0, nil)

	p.Register("alice", uuid.New())
	p.Register("bob", uuid.New())
	bobSecond := uuid.New()
	p.Register("bob", bobSecond)

	users := p.OnlineUsers()
	if len(users) != 2 {
		t.Fatalf("got %d online users, want 2", len(users))
	}

	p.Unregister("bob", bobSecond)
	if !p.IsOnline("bob") {
		t.Error("bob still has a connection")
	}
}
