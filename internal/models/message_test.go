package models

import (
	"errors"
	"testing"
	"time"
)

func TestNewMessageTargets(t *testing.T) {
	t.Run("direct target sets receiver only", func(t *testing.T) {
		m, err := NewMessage("alice", DirectTarget("bob"), MessageTypeText, "hi", "")
		if err != nil {
			t.Fatalf("NewMessage: %v", err)
		}
		if m.ReceiverID != "bob" || m.GroupID != "" {
			t.Errorf("got receiver=%q group=%q, want receiver=bob group empty", m.ReceiverID, m.GroupID)
		}
		if !m.IsDirect() {
			t.Error("expected IsDirect to be true")
		}
	})

	t.Run("group target sets group only", func(t *testing.T) {
		m, err := NewMessage("alice", GroupTarget("g1"), MessageTypeText, "hi", "")
		if err != nil {
			t.Fatalf("NewMessage: %v", err)
		}
		if m.GroupID != "g1" || m.ReceiverID != "" {
			t.Errorf("got receiver=%q group=%q, want group=g1 receiver empty", m.ReceiverID, m.GroupID)
		}
		if m.IsDirect() {
			t.Error("expected IsDirect to be false")
		}
	})

	t.Run("empty target id rejected", func(t *testing.T) {
		if _, err := NewMessage("alice", DirectTarget(""), MessageTypeText, "hi", ""); !errors.Is(err, ErrInvalidTarget) {
			t.Errorf("got %v, want ErrInvalidTarget", err)
		}
	})

	t.Run("zero-value target rejected", func(t *testing.T) {
		if _, err := NewMessage("alice", Target{}, MessageTypeText, "hi", ""); !errors.Is(err, ErrInvalidTarget) {
			t.Errorf("got %v, want ErrInvalidTarget", err)
		}
	})
}

func TestNewMessageValidation(t *testing.T) {
	t.Run("text requires content", func(t *testing.T) {
		if _, err := NewMessage("alice", DirectTarget("bob"), MessageTypeText, "   ", ""); !errors.Is(err, ErrContentRequired) {
			t.Errorf("got %v, want ErrContentRequired", err)
		}
	})

	t.Run("image requires media url", func(t *testing.T) {
		if _, err := NewMessage("alice", DirectTarget("bob"), MessageTypeImage, "", ""); !errors.Is(err, ErrMediaRequired) {
			t.Errorf("got %v, want ErrMediaRequired", err)
		}
	})

	t.Run("voice requires media url", func(t *testing.T) {
		if _, err := NewMessage("alice", DirectTarget("bob"), MessageTypeVoice, "", ""); !errors.Is(err, ErrMediaRequired) {
			t.Errorf("got %v, want ErrMediaRequired", err)
		}
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		if _, err := NewMessage("alice", DirectTarget("bob"), MessageType("video"), "hi", ""); !errors.Is(err, ErrInvalidMessageType) {
			t.Errorf("got %v, want ErrInvalidMessageType", err)
		}
	})

	t.Run("content trimmed", func(t *testing.T) {
		m, err := NewMessage("alice", DirectTarget("bob"), MessageTypeText, "  hi  ", "")
		if err != nil {
			t.Fatalf("NewMessage: %v", err)
		}
		if m.Content != "hi" {
			t.Errorf("got content %q, want %q", m.Content, "hi")
		}
	})
}

func TestConversationKeys(t *testing.T) {
	t.Run("direct key is order independent", func(t *testing.T) {
		if DirectConversationKey("alice", "bob") != DirectConversationKey("bob", "alice") {
			t.Error("direct keys differ for the same pair")
		}
		if got, want := DirectConversationKey("bob", "alice"), "direct:alice:bob"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("group key", func(t *testing.T) {
		if got, want := GroupConversationKey("g1"), "group:g1"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("message resolves its own key", func(t *testing.T) {
		dm, _ := NewMessage("bob", DirectTarget("alice"), MessageTypeText, "hi", "")
		if got, want := dm.ConversationKey(), "direct:alice:bob"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
		gm, _ := NewMessage("bob", GroupTarget("g1"), MessageTypeText, "hi", "")
		if got, want := gm.ConversationKey(), "group:g1"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})
}

func TestDeliveryTransitions(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("delivered once", func(t *testing.T) {
		m, _ := NewMessage("alice", DirectTarget("bob"), MessageTypeText, "hi", "")
		if !m.MarkDelivered(at) {
			t.Fatal("first MarkDelivered should report a change")
		}
		if m.DeliveredAt == nil || !m.DeliveredAt.Equal(at) {
			t.Errorf("delivered_at = %v, want %v", m.DeliveredAt, at)
		}
		if m.MarkDelivered(at.Add(time.Minute)) {
			t.Error("second MarkDelivered should be a no-op")
		}
		if !m.DeliveredAt.Equal(at) {
			t.Error("delivered_at changed on the idempotent call")
		}
	})

	t.Run("seen implies delivered", func(t *testing.T) {
		m, _ := NewMessage("alice", DirectTarget("bob"), MessageTypeText, "hi", "")
		if !m.MarkSeen(at) {
			t.Fatal("first MarkSeen should report a change")
		}
		if !m.IsDelivered || !m.IsSeen {
			t.Errorf("got delivered=%v seen=%v, want both true", m.IsDelivered, m.IsSeen)
		}
		if m.DeliveredAt == nil || m.SeenAt == nil {
			t.Fatal("timestamps not set")
		}
	})

	t.Run("seen never regresses", func(t *testing.T) {
		m, _ := NewMessage("alice", DirectTarget("bob"), MessageTypeText, "hi", "")
		m.MarkSeen(at)
		if m.MarkSeen(at.Add(time.Minute)) {
			t.Error("second MarkSeen should be a no-op")
		}
		if m.MarkDelivered(at.Add(time.Minute)) {
			t.Error("MarkDelivered after seen should be a no-op")
		}
	})
}

func TestEditAndDelete(t *testing.T) {
	t.Run("edit replaces content and flags", func(t *testing.T) {
		m, _ := NewMessage("alice", DirectTarget("bob"), MessageTypeText, "hi", "")
		if err := m.Edit("hello"); err != nil {
			t.Fatalf("Edit: %v", err)
		}
		if m.Content != "hello" || !m.Edited {
			t.Errorf("got content=%q edited=%v", m.Content, m.Edited)
		}
	})

	t.Run("edit to empty rejected", func(t *testing.T) {
		m, _ := NewMessage("alice", DirectTarget("bob"), MessageTypeText, "hi", "")
		if err := m.Edit("  "); !errors.Is(err, ErrContentRequired) {
			t.Errorf("got %v, want ErrContentRequired", err)
		}
	})

	t.Run("delete tombstones and clears media", func(t *testing.T) {
		m, _ := NewMessage("alice", DirectTarget("bob"), MessageTypeImage, "", "https://cdn/x.png")
		if !m.Delete() {
			t.Fatal("first Delete should report a change")
		}
		if m.Content != DeletedPlaceholder {
			t.Errorf("content = %q, want placeholder", m.Content)
		}
		if m.MediaURL != "" {
			t.Errorf("media_url = %q, want empty", m.MediaURL)
		}
		if m.Delete() {
			t.Error("second Delete should be a no-op")
		}
	})

	t.Run("deletion wins over edit", func(t *testing.T) {
		m, _ := NewMessage("alice", DirectTarget("bob"), MessageTypeText, "hi", "")
		m.Delete()
		if err := m.Edit("hello"); !errors.Is(err, ErrMessageDeleted) {
			t.Errorf("got %v, want ErrMessageDeleted", err)
		}
		if m.Content != DeletedPlaceholder {
			t.Error("edit after delete mutated the tombstone")
		}
	})
}

func TestToggleReaction(t *testing.T) {
	m, _ := NewMessage("alice", DirectTarget("bob"), MessageTypeText, "hi", "")

	if !m.ToggleReaction("bob", "👍") {
		t.Fatal("first toggle should add")
	}
	if len(m.Reactions) != 1 {
		t.Fatalf("got %d reactions, want 1", len(m.Reactions))
	}

	// Same user, different emoji coexists.
	if !m.ToggleReaction("bob", "❤️") {
		t.Fatal("different emoji should add")
	}
	// Different user, same emoji coexists.
	if !m.ToggleReaction("alice", "👍") {
		t.Fatal("different user should add")
	}
	if len(m.Reactions) != 3 {
		t.Fatalf("got %d reactions, want 3", len(m.Reactions))
	}

	// Toggling the exact pair again removes only that pair.
	if m.ToggleReaction("bob", "👍") {
		t.Fatal("second toggle of the same pair should remove")
	}
	if len(m.Reactions) != 2 {
		t.Fatalf("got %d reactions, want 2", len(m.Reactions))
	}
	for _, r := range m.Reactions {
		if r.UserID == "bob" && r.Emoji == "👍" {
			t.Error("removed reaction still present")
		}
	}
}
