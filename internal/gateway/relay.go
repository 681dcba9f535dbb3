package gateway

import (
	"context"
	"encoding/json"
	"log"

	goredis "github.com/go-redis/redis/v8"
)

// Relay broadcasts every results payload received on msgs until ctx is done
// or msgs is closed. Payloads that are not valid JSON are dropped.
func (h *Hub) Relay(ctx context.Context, msgs <-chan *goredis.Message) {
	log.Printf("[gateway] relaying results from redis")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			data := []byte(msg.Payload)
			if !json.Valid(data) {
				log.Printf("[gateway] dropping invalid payload on %s", msg.Channel)
				continue
			}
			h.Broadcast(ChannelResults, data)
		}
	}
}
