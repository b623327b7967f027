package chatclient

import (
	"testing"
	"time"
)

func msgAt(id string, at time.Time) Message {
	return Message{
		ID:          id,
		SenderID:    "alice",
		ReceiverID:  "bob",
		MessageType: "text",
		Content:     "m-" + id,
		CreatedAt:   at,
	}
}

func ids(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestConversationDedupesSnapshotAndLive(t *testing.T) {
	conv := NewConversation(DirectConversationKey("alice", "bob"))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Live event lands while the snapshot fetch is in flight.
	if !conv.ApplyNew(msgAt("7", base.Add(7*time.Second))) {
		t.Fatal("first arrival of id 7 should insert")
	}

	conv.ApplySnapshot([]Message{
		msgAt("5", base.Add(5 * time.Second)),
		msgAt("6", base.Add(6 * time.Second)),
		msgAt("7", base.Add(7 * time.Second)), // also in the snapshot
	})

	if conv.Len() != 3 {
		t.Fatalf("got %d messages, want 3 (id 7 must not duplicate)", conv.Len())
	}

	// The live copy arriving again is merged, not re-inserted.
	if conv.ApplyNew(msgAt("7", base.Add(7*time.Second))) {
		t.Error("second arrival of id 7 should report a duplicate")
	}
	if conv.Len() != 3 {
		t.Fatalf("got %d messages after replay, want 3", conv.Len())
	}
}

func TestConversationOrdering(t *testing.T) {
	conv := NewConversation("direct:alice:bob")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Out of order arrival.
	conv.ApplyNew(msgAt("c", base.Add(3*time.Second)))
	conv.ApplyNew(msgAt("a", base.Add(1*time.Second)))
	conv.ApplyNew(msgAt("b", base.Add(2*time.Second)))

	got := ids(conv.Messages())
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got order %v, want %v", got, want)
		}
	}

	t.Run("ties broken by id", func(t *testing.T) {
		conv.ApplyNew(msgAt("e", base.Add(2*time.Second)))
		conv.ApplyNew(msgAt("d", base.Add(2*time.Second)))

		got := ids(conv.Messages())
		want := []string{"a", "b", "d", "e", "c"}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("got order %v, want %v", got, want)
			}
		}
	})

	t.Run("index survives insertions", func(t *testing.T) {
		for _, id := range []string{"a", "b", "c", "d", "e"} {
			m, ok := conv.Get(id)
			if !ok || m.ID != id {
				t.Errorf("Get(%q) = %+v, %v", id, m, ok)
			}
		}
	})
}

func TestConversationStatusMerge(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("status never regresses", func(t *testing.T) {
		conv := NewConversation("direct:alice:bob")

		seen := msgAt("1", base)
		seenAt := base.Add(time.Minute)
		seen.IsDelivered = true
		seen.IsSeen = true
		seen.DeliveredAt = &seenAt
		seen.SeenAt = &seenAt
		conv.ApplySnapshot([]Message{seen})

		// A stale live copy without the flags arrives afterwards.
		if conv.ApplyNew(msgAt("1", base)) {
			t.Fatal("stale copy should merge as duplicate")
		}

		m, _ := conv.Get("1")
		if !m.IsDelivered || !m.IsSeen {
			t.Errorf("flags regressed: delivered=%v seen=%v", m.IsDelivered, m.IsSeen)
		}
		if m.SeenAt == nil || !m.SeenAt.Equal(seenAt) {
			t.Errorf("seen_at lost in merge: %v", m.SeenAt)
		}
	})

	t.Run("seen implies delivered", func(t *testing.T) {
		conv := NewConversation("direct:alice:bob")
		conv.ApplyNew(msgAt("1", base))

		update := msgAt("1", base)
		update.IsSeen = true
		if !conv.ApplyMutation(update) {
			t.Fatal("mutation for a known id should apply")
		}

		m, _ := conv.Get("1")
		if !m.IsDelivered {
			t.Error("seen message should read as delivered")
		}
	})
}

func TestConversationEditAndDeleteMerge(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("edit updates content", func(t *testing.T) {
		conv := NewConversation("direct:alice:bob")
		conv.ApplyNew(msgAt("1", base))

		edited := msgAt("1", base)
		edited.Content = "fixed"
		edited.Edited = true
		conv.ApplyMutation(edited)

		m, _ := conv.Get("1")
		if m.Content != "fixed" || !m.Edited {
			t.Errorf("got content=%q edited=%v", m.Content, m.Edited)
		}
	})

	t.Run("tombstone wins over stale content", func(t *testing.T) {
		conv := NewConversation("direct:alice:bob")

		deleted := msgAt("1", base)
		deleted.Deleted = true
		deleted.Content = DeletedPlaceholder
		conv.ApplyNew(deleted)

		// Snapshot fetched before the delete replays the original content.
		stale := msgAt("1", base)
		stale.MediaURL = "https://cdn/x.png"
		conv.ApplySnapshot([]Message{stale})

		m, _ := conv.Get("1")
		if !m.Deleted {
			t.Fatal("tombstone flag regressed")
		}
		if m.Content != DeletedPlaceholder {
			t.Errorf("content = %q, want placeholder", m.Content)
		}
		if m.MediaURL != "" {
			t.Errorf("media_url = %q, want empty", m.MediaURL)
		}
	})
}

func TestConversationUnknownMutationDropped(t *testing.T) {
	conv := NewConversation("direct:alice:bob")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conv.ApplyNew(msgAt("1", base))

	update := msgAt("999", base)
	update.IsDelivered = true
	if conv.ApplyMutation(update) {
		t.Fatal("mutation for an unknown id should be dropped")
	}
	if conv.Len() != 1 {
		t.Fatalf("got %d messages, want 1 (dropped mutation must not insert)", conv.Len())
	}
}

func TestConversationIgnoresEmptyID(t *testing.T) {
	conv := NewConversation("direct:alice:bob")
	conv.ApplySnapshot([]Message{{Content: "no id"}})
	if conv.Len() != 0 {
		t.Errorf("got %d messages, want 0", conv.Len())
	}
}

func TestConversationKeyHelpers(t *testing.T) {
	if DirectConversationKey("bob", "alice") != DirectConversationKey("alice", "bob") {
		t.Error("direct key should be order independent")
	}

	dm := Message{SenderID: "bob", ReceiverID: "alice"}
	if got, want := ConversationKeyOf(&dm), "direct:alice:bob"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	gm := Message{SenderID: "bob", GroupID: "g1"}
	if got, want := ConversationKeyOf(&gm), "group:g1"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
