package notify

import (
	"context"
	"encoding/json"
	"log"

	"localchat/internal/redis"
)

const redisChangesChannel = "localchat:changes"

type relay struct {
	client *redis.Client
	cancel context.CancelFunc
}

// AttachRedis relays events over redis pub/sub so that processes sharing a
// backend see each other's writes. Events this hub published are not re-delivered.
func (h *Hub) AttachRedis(client *redis.Client) {
	if h == nil || client == nil || client.Raw() == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &relay{client: client, cancel: cancel}
	h.mu.Lock()
	if h.relay != nil {
		h.relay.cancel()
	}
	h.relay = r
	h.mu.Unlock()
	r.listen(ctx, func(ev Event) {
		if ev.Origin == h.id {
			return
		}
		h.deliver(ev)
	})
}

// DetachRedis stops relaying.
func (h *Hub) DetachRedis() {
	h.mu.Lock()
	r := h.relay
	h.relay = nil
	h.mu.Unlock()
	if r != nil {
		r.cancel()
	}
}

// listen subscribes before returning so that no event published afterwards is missed.
func (r *relay) listen(ctx context.Context, handler func(Event)) {
	pubsub, err := r.client.Subscribe(ctx, redisChangesChannel)
	if err != nil {
		log.Printf("notify subscribe failed: %v", err)
		return
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("notify decode failed: %v", err)
					continue
				}
				handler(ev)
			}
		}
	}()
}

func (r *relay) publish(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("notify marshal failed: %v", err)
		return
	}
	if err := r.client.Publish(context.Background(), redisChangesChannel, payload); err != nil {
		log.Printf("notify publish failed: %v", err)
	}
}
