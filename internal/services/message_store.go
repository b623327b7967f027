package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/learnova/learnova-backend/internal/database"
	"github.com/learnova/learnova-backend/internal/models"
)

const chatMessagesCollection = "chat_messages"

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotRecipient    = errors.New("only the recipient can acknowledge a message")
	ErrNotSender       = errors.New("only the sender can modify a message")
	ErrGroupReceipts   = errors.New("group messages do not track delivery status")
)

func chatMessages() *mongo.Collection {
	return database.DB.Collection(chatMessagesCollection)
}

// EnsureChatIndexes configures indexes for the chat_messages collection.
// Called on startup from main after Mongo has connected.
func EnsureChatIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "group_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_group_created"),
		},
		{
			Keys: bson.D{
				{Key: "sender_id", Value: 1},
				{Key: "receiver_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_pair_created"),
		},
		{
			Keys: bson.D{
				{Key: "receiver_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_receiver_created"),
		},
	}

	for _, m := range indexes {
		if _, err := chatMessages().Indexes().CreateOne(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// SaveMessage persists a validated message and assigns its id. Persistence
// completes before any broadcast is attempted; callers must not fan out a
// message this function rejected.
func SaveMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	if err := msg.Target().Validate(); err != nil {
		return nil, err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	res, err := chatMessages().InsertOne(ctx, msg)
	if err != nil {
		return nil, err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		msg.ID = oid
	}
	return msg, nil
}

// GetMessage loads a single message by id.
func GetMessage(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	var m models.Message
	err := chatMessages().FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadDirectMessages returns paginated history for a direct pair, oldest
// first. Pagination is timestamp + limit (newest-first scrolling), matching
// the group loader.
func LoadDirectMessages(ctx context.Context, userA, userB string, before *time.Time, limit int64) ([]models.Message, bool, error) {
	filter := bson.M{
		"$or": []bson.M{
			{"sender_id": userA, "receiver_id": userB},
			{"sender_id": userB, "receiver_id": userA},
		},
	}
	return loadMessages(ctx, filter, before, limit)
}

// LoadGroupMessages returns paginated history for a group, oldest first.
func LoadGroupMessages(ctx context.Context, groupID string, before *time.Time, limit int64) ([]models.Message, bool, error) {
	return loadMessages(ctx, bson.M{"group_id": groupID}, before, limit)
}

func loadMessages(ctx context.Context, filter bson.M, before *time.Time, limit int64) ([]models.Message, bool, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if before != nil {
		filter["created_at"] = bson.M{"$lt": before.UTC()}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit + 1)

	cur, err := chatMessages().Find(ctx, filter, opts)
	if err != nil {
		return nil, false, err
	}
	defer cur.Close(ctx)

	var msgs []models.Message
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	if err := cur.Err(); err != nil {
		return nil, false, err
	}

	hasMore := int64(len(msgs)) > limit
	if hasMore {
		msgs = msgs[:len(msgs)-1]
	}

	// Reverse to oldest-first for the UI.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	return msgs, hasMore, nil
}

// ListConversationPartners returns the ids of every user this user has a
// direct conversation with.
func ListConversationPartners(ctx context.Context, userID string) ([]string, error) {
	col := chatMessages()

	sentTo, err := col.Distinct(ctx, "receiver_id", bson.M{
		"sender_id":   userID,
		"receiver_id": bson.M{"$exists": true, "$ne": ""},
	})
	if err != nil {
		return nil, err
	}
	receivedFrom, err := col.Distinct(ctx, "sender_id", bson.M{"receiver_id": userID})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var partners []string
	for _, raw := range append(sentTo, receivedFrom...) {
		id, ok := raw.(string)
		if !ok || id == "" || id == userID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		partners = append(partners, id)
	}
	return partners, nil
}

// MarkDelivered applies the sent→delivered transition for a direct message.
// Only the recipient may acknowledge; re-acknowledging is an idempotent
// no-op (changed=false). Delivery status is not tracked for group messages.
func MarkDelivered(ctx context.Context, id primitive.ObjectID, userID string) (*models.Message, bool, error) {
	now := time.Now().UTC()
	filter := bson.M{"_id": id, "receiver_id": userID, "is_delivered": false}
	update := bson.M{"$set": bson.M{"is_delivered": true, "delivered_at": now}}

	var m models.Message
	err := chatMessages().FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&m)
	if err == nil {
		return &m, true, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, false, err
	}
	return receiptNoop(ctx, id, userID)
}

// MarkSeen applies the delivered→seen transition. Seen implies delivered, so
// a message acknowledged straight from a snapshot gains both flags.
func MarkSeen(ctx context.Context, id primitive.ObjectID, userID string) (*models.Message, bool, error) {
	now := time.Now().UTC()
	filter := bson.M{"_id": id, "receiver_id": userID, "is_seen": false}
	update := bson.M{"$set": bson.M{"is_seen": true, "seen_at": now}}

	var m models.Message
	err := chatMessages().FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return receiptNoop(ctx, id, userID)
	}
	if err != nil {
		return nil, false, err
	}

	if !m.IsDelivered {
		_, err = chatMessages().UpdateOne(ctx,
			bson.M{"_id": id, "is_delivered": false},
			bson.M{"$set": bson.M{"is_delivered": true, "delivered_at": now}})
		if err != nil {
			return nil, false, err
		}
		m.IsDelivered = true
		m.DeliveredAt = &now
	}
	return &m, true, nil
}

// receiptNoop resolves why a receipt update matched nothing: missing message,
// wrong target kind, wrong user, or an already-applied (idempotent) ack.
func receiptNoop(ctx context.Context, id primitive.ObjectID, userID string) (*models.Message, bool, error) {
	existing, err := GetMessage(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if existing.GroupID != "" {
		return nil, false, ErrGroupReceipts
	}
	if existing.ReceiverID != userID {
		return nil, false, ErrNotRecipient
	}
	return existing, false, nil
}

// EditMessage replaces the content of a message. Only the sender may edit,
// and deletion takes precedence: a deleted message cannot be edited.
func EditMessage(ctx context.Context, id primitive.ObjectID, senderID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, models.ErrContentRequired
	}

	filter := bson.M{"_id": id, "sender_id": senderID, "deleted": false}
	update := bson.M{"$set": bson.M{"content": content, "edited": true}}

	var m models.Message
	err := chatMessages().FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&m)
	if err == nil {
		return &m, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, err
	}

	existing, err := GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.SenderID != senderID {
		return nil, ErrNotSender
	}
	return nil, models.ErrMessageDeleted
}

// DeleteMessage tombstones a message: content becomes the placeholder and
// the media url is cleared. Idempotent for the sender (changed=false on a
// repeat delete).
func DeleteMessage(ctx context.Context, id primitive.ObjectID, senderID string) (*models.Message, bool, error) {
	filter := bson.M{"_id": id, "sender_id": senderID, "deleted": false}
	update := bson.M{
		"$set":   bson.M{"deleted": true, "content": models.DeletedPlaceholder},
		"$unset": bson.M{"media_url": ""},
	}

	var m models.Message
	err := chatMessages().FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&m)
	if err == nil {
		return &m, true, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, false, err
	}

	existing, err := GetMessage(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if existing.SenderID != senderID {
		return nil, false, ErrNotSender
	}
	return existing, false, nil
}

// ToggleReaction adds the (user, emoji) reaction when absent and removes it
// when present. Returns the updated message and whether the reaction was
// added.
func ToggleReaction(ctx context.Context, id primitive.ObjectID, userID, emoji string) (*models.Message, bool, error) {
	col := chatMessages()

	pull, err := col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$pull": bson.M{"reactions": bson.M{"user_id": userID, "emoji": emoji}},
	})
	if err != nil {
		return nil, false, err
	}
	if pull.MatchedCount == 0 {
		return nil, false, ErrMessageNotFound
	}

	added := pull.ModifiedCount == 0
	if added {
		_, err = col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
			"$addToSet": bson.M{"reactions": models.Reaction{UserID: userID, Emoji: emoji}},
		})
		if err != nil {
			return nil, false, err
		}
	}

	m, err := GetMessage(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return m, added, nil
}
