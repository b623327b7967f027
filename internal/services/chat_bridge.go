package services

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/learnova/learnova-backend/internal/database"
)

// The Redis bridge republishes hub events so that every server instance
// delivers them to its own local connections. A single instance works
// without it; starting it is what makes a multi-instance deployment
// converge.
const chatEventChannelPrefix = "chat:events:"

var bridgeStarted sync.Once

// StartChatBridge wires the default hub's outgoing events through Redis
// Pub/Sub and starts the single shared subscriber for this instance.
func StartChatBridge(ctx context.Context) {
	bridgeStarted.Do(func() {
		if database.RedisClient == nil {
			log.Println("Redis client not initialized; chat bridge not started")
			return
		}
		DefaultHub.SetPublisher(func(evt ChatEvent) {
			if err := PublishChatEvent(context.Background(), evt); err != nil {
				log.Printf("chat bridge: publish failed, delivering locally: %v", err)
				DefaultHub.Deliver(evt)
			}
		})
		go runChatSubscriber(ctx)
	})
}

func runChatSubscriber(ctx context.Context) {
	client := database.RedisClient
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		func() {
			pubsub := client.PSubscribe(ctx, chatEventChannelPrefix+"*")
			defer pubsub.Close()

			log.Printf("✅ Chat Redis subscriber started (pattern: %s*)", chatEventChannelPrefix)

			for {
				msg, err := pubsub.ReceiveMessage(ctx)
				if err != nil {
					log.Printf("Redis subscriber error: %v", err)
					time.Sleep(backoff)
					backoff *= 2
					if backoff > 30*time.Second {
						backoff = 30 * time.Second
					}
					return
				}

				backoff = time.Second

				var event ChatEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("failed to unmarshal chat event: %v", err)
					continue
				}

				DefaultHub.Deliver(event)
			}
		}()
	}
}

// PublishChatEvent publishes an event to Redis for fan-out by every
// instance's subscriber.
func PublishChatEvent(ctx context.Context, event ChatEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	route := event.ConversationKey
	if route == "" {
		route = event.Type
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return database.RedisClient.Publish(ctx, chatEventChannelPrefix+route, data).Err()
}
