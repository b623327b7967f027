package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/learnova/learnova-backend/internal/database"
	"github.com/learnova/learnova-backend/internal/models"
)

const (
	chatRecentKeyPrefix  = "chat:conv:"
	chatRecentKeySuffix  = ":recent"
	chatRecentMoreSuffix = ":more"
	chatRecentMaxLen     = 50
	chatRecentTTL        = 1 * time.Hour
)

func chatRecentKey(conversationKey string) string {
	return chatRecentKeyPrefix + conversationKey + chatRecentKeySuffix
}

// chatRecentMoreKey holds whether Mongo has history older than the cached
// window ("1"/"0"). Stored alongside the window so a cache hit can answer
// has_more without a Mongo roundtrip.
func chatRecentMoreKey(conversationKey string) string {
	return chatRecentKeyPrefix + conversationKey + chatRecentMoreSuffix
}

// PushMessageToRecentCache adds a message to the Redis recent cache for its
// conversation (newest at head). Call after saving to Mongo. LPUSH + LTRIM
// keeps the last 50; once the trim evicts the oldest entry, older history
// exists beyond the window, so the has-more marker flips to true.
func PushMessageToRecentCache(msg *models.Message) {
	if database.RedisClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := chatRecentKey(msg.ConversationKey())
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	pipe := database.RedisClient.Pipeline()
	length := pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, chatRecentMaxLen-1)
	pipe.Expire(ctx, key, chatRecentTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("chat_cache: push failed for %s: %v", msg.ConversationKey(), err)
		return
	}
	if length.Val() > chatRecentMaxLen {
		moreKey := chatRecentMoreKey(msg.ConversationKey())
		if err := database.RedisClient.Set(ctx, moreKey, "1", chatRecentTTL).Err(); err != nil {
			log.Printf("chat_cache: marker update failed for %s: %v", msg.ConversationKey(), err)
		}
	}
}

// InvalidateRecentCache drops the cached window for a conversation. Called
// after any mutation of an existing message (status, reaction, edit, delete)
// so the next snapshot rebuilds from Mongo.
func InvalidateRecentCache(conversationKey string) {
	if database.RedisClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := database.RedisClient.Del(ctx,
		chatRecentKey(conversationKey), chatRecentMoreKey(conversationKey)).Err()
	if err != nil {
		log.Printf("chat_cache: invalidate failed for %s: %v", conversationKey, err)
	}
}

// GetRecentMessagesFromCache returns the cached window for a conversation
// (oldest-first) and whether older history exists beyond it. A window without
// its has-more marker is treated as a miss. Only valid for initial loads
// (before == nil).
func GetRecentMessagesFromCache(ctx context.Context, conversationKey string) ([]models.Message, bool, bool) {
	if database.RedisClient == nil {
		return nil, false, false
	}

	raw, err := database.RedisClient.LRange(ctx, chatRecentKey(conversationKey), 0, -1).Result()
	if err != nil || len(raw) == 0 {
		return nil, false, false
	}
	marker, err := database.RedisClient.Get(ctx, chatRecentMoreKey(conversationKey)).Result()
	if err != nil {
		return nil, false, false
	}

	var msgs []models.Message
	for i := len(raw) - 1; i >= 0; i-- {
		var m models.Message
		if json.Unmarshal([]byte(raw[i]), &m) != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, marker == "1", true
}

// cacheWindow narrows a cached window (oldest-first) to the newest limit
// entries. hasMore is true when older history exists: either beyond the
// cached window itself, or in the part of the window the limit cut off.
func cacheWindow(cached []models.Message, cachedMore bool, limit int64) ([]models.Message, bool) {
	out := cached
	if int64(len(cached)) > limit {
		out = cached[len(cached)-int(limit):]
	}
	return out, cachedMore || int64(len(cached)) > limit
}

// loadWithCache serves an initial snapshot from Redis when possible, falling
// back to the given Mongo loader and warming the cache on a miss.
func loadWithCache(
	ctx context.Context,
	conversationKey string,
	before *time.Time,
	limit int64,
	load func(context.Context, *time.Time, int64) ([]models.Message, bool, error),
) ([]models.Message, bool, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if before == nil && limit <= chatRecentMaxLen {
		if cached, cachedMore, ok := GetRecentMessagesFromCache(ctx, conversationKey); ok {
			out, hasMore := cacheWindow(cached, cachedMore, limit)
			return out, hasMore, nil
		}
	}

	msgs, hasMore, err := load(ctx, before, limit)
	if err != nil {
		return nil, false, err
	}
	if before == nil && len(msgs) > 0 {
		WarmRecentCache(ctx, conversationKey, msgs, hasMore)
	}
	return msgs, hasMore, nil
}

// LoadDirectMessagesWithCache is the cache-aware direct snapshot loader.
func LoadDirectMessagesWithCache(ctx context.Context, userA, userB string, before *time.Time, limit int64) ([]models.Message, bool, error) {
	key := models.DirectConversationKey(userA, userB)
	return loadWithCache(ctx, key, before, limit, func(ctx context.Context, b *time.Time, l int64) ([]models.Message, bool, error) {
		return LoadDirectMessages(ctx, userA, userB, b, l)
	})
}

// LoadGroupMessagesWithCache is the cache-aware group snapshot loader.
func LoadGroupMessagesWithCache(ctx context.Context, groupID string, before *time.Time, limit int64) ([]models.Message, bool, error) {
	key := models.GroupConversationKey(groupID)
	return loadWithCache(ctx, key, before, limit, func(ctx context.Context, b *time.Time, l int64) ([]models.Message, bool, error) {
		return LoadGroupMessages(ctx, groupID, b, l)
	})
}

// WarmRecentCache stores messages in Redis (oldest at tail) together with the
// has-more marker from the Mongo fetch. Called on a Mongo fetch for an
// initial load.
func WarmRecentCache(ctx context.Context, conversationKey string, msgs []models.Message, hasMore bool) {
	if database.RedisClient == nil || len(msgs) == 0 {
		return
	}

	key := chatRecentKey(conversationKey)
	marker := "0"
	if hasMore {
		marker = "1"
	}

	pipe := database.RedisClient.Pipeline()
	pipe.Del(ctx, key)
	for i := len(msgs) - 1; i >= 0; i-- {
		data, err := json.Marshal(msgs[i])
		if err != nil {
			continue
		}
		pipe.RPush(ctx, key, data)
	}
	pipe.LTrim(ctx, key, 0, chatRecentMaxLen-1)
	pipe.Expire(ctx, key, chatRecentTTL)
	pipe.Set(ctx, chatRecentMoreKey(conversationKey), marker, chatRecentTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("chat_cache: warm failed for %s: %v", conversationKey, err)
	}
}
