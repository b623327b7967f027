package services

import (
	"testing"
	"time"

	"github.com/learnova/learnova-backend/internal/models"
)

func cachedMessages(n int) []models.Message {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := make([]models.Message, n)
	for i := range msgs {
		msgs[i] = models.Message{
			SenderID:    "alice",
			ReceiverID:  "bob",
			MessageType: models.MessageTypeText,
			Content:     "hi",
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}
	}
	return msgs
}

func TestCacheWindow(t *testing.T) {
	t.Run("full conversation cached reports no more", func(t *testing.T) {
		out, hasMore := cacheWindow(cachedMessages(10), false, 50)
		if len(out) != 10 {
			t.Fatalf("got %d messages, want 10", len(out))
		}
		if hasMore {
			t.Error("cache holding the whole conversation must not claim more history")
		}
	})

	t.Run("marker from the store carries through", func(t *testing.T) {
		_, hasMore := cacheWindow(cachedMessages(10), true, 50)
		if !hasMore {
			t.Error("has-more marker lost on the cached path")
		}
	})

	t.Run("limit cutting the window implies more", func(t *testing.T) {
		cached := cachedMessages(10)
		out, hasMore := cacheWindow(cached, false, 5)
		if len(out) != 5 {
			t.Fatalf("got %d messages, want 5", len(out))
		}
		if !hasMore {
			t.Error("entries cut off by the limit are older history")
		}
		// Newest entries are kept.
		if !out[0].CreatedAt.Equal(cached[5].CreatedAt) {
			t.Errorf("window starts at %v, want %v", out[0].CreatedAt, cached[5].CreatedAt)
		}
	})

	t.Run("window exactly at limit defers to the marker", func(t *testing.T) {
		if _, hasMore := cacheWindow(cachedMessages(5), false, 5); hasMore {
			t.Error("exact-size window without marker must not claim more")
		}
		if _, hasMore := cacheWindow(cachedMessages(5), true, 5); !hasMore {
			t.Error("exact-size window with marker must claim more")
		}
	})
}
