package handlers

import "testing"

func TestTypingConversationKey(t *testing.T) {
	t.Run("receiver id derives the pair key", func(t *testing.T) {
		key, groupID, ok := typingConversationKey("bob", ChatClientFrame{ReceiverID: "alice"})
		if !ok || groupID != "" {
			t.Fatalf("got ok=%v groupID=%q", ok, groupID)
		}
		if key != "direct:alice:bob" {
			t.Errorf("key = %q, want direct:alice:bob", key)
		}
	})

	t.Run("direct key containing the caller is accepted", func(t *testing.T) {
		key, _, ok := typingConversationKey("bob", ChatClientFrame{ConversationKey: "direct:alice:bob"})
		if !ok || key != "direct:alice:bob" {
			t.Errorf("got key=%q ok=%v", key, ok)
		}
	})

	t.Run("direct key is canonicalized", func(t *testing.T) {
		key, _, ok := typingConversationKey("bob", ChatClientFrame{ConversationKey: "direct:bob:alice"})
		if !ok || key != "direct:alice:bob" {
			t.Errorf("got key=%q ok=%v", key, ok)
		}
	})

	t.Run("direct pair of other users is rejected", func(t *testing.T) {
		if _, _, ok := typingConversationKey("mallory", ChatClientFrame{ConversationKey: "direct:alice:bob"}); ok {
			t.Error("caller outside the pair must not resolve a key")
		}
	})

	t.Run("group key surfaces the group id for the membership check", func(t *testing.T) {
		key, groupID, ok := typingConversationKey("mallory", ChatClientFrame{ConversationKey: "group:g1"})
		if !ok || key != "group:g1" || groupID != "g1" {
			t.Errorf("got key=%q groupID=%q ok=%v", key, groupID, ok)
		}
	})

	t.Run("bare group id surfaces it too", func(t *testing.T) {
		key, groupID, ok := typingConversationKey("mallory", ChatClientFrame{GroupID: "g1"})
		if !ok || key != "group:g1" || groupID != "g1" {
			t.Errorf("got key=%q groupID=%q ok=%v", key, groupID, ok)
		}
	})

	t.Run("malformed keys rejected", func(t *testing.T) {
		for _, bad := range []string{"direct:alice", "direct::bob", "group:", "room:g1", "direct:a:b:c"} {
			if _, _, ok := typingConversationKey("bob", ChatClientFrame{ConversationKey: bad}); ok {
				t.Errorf("key %q should be rejected", bad)
			}
		}
	})

	t.Run("empty frame rejected", func(t *testing.T) {
		if _, _, ok := typingConversationKey("bob", ChatClientFrame{}); ok {
			t.Error("frame with no target should be rejected")
		}
	})
}
