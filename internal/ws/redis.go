package ws

import (
	"context"
	"encoding/json"
	"log"
)

const systemEventsChannel = "system_events"

// StartSystemEventSubscriber subscribes to the system_events channel and
// fans incoming notices out to every live connection. Admin broadcasts go
// through Redis so that the notice reaches connections regardless of which
// process accepted the publish.
func (co *Coordinator) StartSystemEventSubscriber(ctx context.Context) {
	if co.rdb == nil {
		log.Println("[WS] Redis client not set; system event subscriber not started")
		return
	}

	pubsub := co.rdb.Subscribe(ctx, systemEventsChannel)
	ch := pubsub.Channel()
	go func() {
		log.Println("[WS] system_events subscriber started")
		for msg := range ch {
			var payload map[string]any
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				log.Printf("[WS] invalid system event payload: %v", err)
				continue
			}

			body, _ := payload["message"].(string)
			if body == "" {
				continue
			}
			log.Printf("[WS] broadcasting system message to %d connections", co.hub.Count())
			co.hub.BroadcastAll(map[string]any{
				"type":    OutSystemMessage,
				"message": body,
			})
		}
	}()

	go func() {
		<-ctx.Done()
		pubsub.Close()
	}()
}

// PublishSystemMessage publishes a notice on the system_events channel.
func (co *Coordinator) PublishSystemMessage(ctx context.Context, message string) error {
	if co.rdb == nil {
		// No Redis: deliver locally only
		co.hub.BroadcastAll(map[string]any{
			"type":    OutSystemMessage,
			"message": message,
		})
		return nil
	}
	payload, _ := json.Marshal(map[string]any{"message": message})
	return co.rdb.Publish(ctx, systemEventsChannel, payload).Err()
}
