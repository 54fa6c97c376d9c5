package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/helpdeskhq/ticket-messaging/internal/model"
)

// RedisChannel implements Channel on Redis pub/sub so live delivery works
// across replicas. Payloads are the JSON-encoded canonical message.
type RedisChannel struct {
	client *redis.Client

	mu     sync.Mutex
	nextID uint64
	pubsub map[uint64]*redis.PubSub
}

// NewRedisChannel connects using a redis URL ("redis://host:port/db").
func NewRedisChannel(redisURL string) (*RedisChannel, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisChannel{client: c, pubsub: make(map[uint64]*redis.PubSub)}, nil
}

var _ Channel = (*RedisChannel)(nil)

func (r *RedisChannel) Subscribe(topic string, fn Handler) (*Subscription, error) {
	ps := r.client.Subscribe(context.Background(), topic)
	// Force the subscribe round-trip so a dead connection fails here, not
	// silently in the receive loop.
	if _, err := ps.Receive(context.Background()); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis: subscribe %q: %w", topic, err)
	}

	r.mu.Lock()
	r.nextID++
	sub := &Subscription{topic: topic, id: r.nextID}
	r.pubsub[sub.id] = ps
	r.mu.Unlock()

	go func() {
		for m := range ps.Channel() {
			var msg model.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				log.Printf("channel: redis payload on %q: %v", topic, err)
				continue
			}
			fn(msg)
		}
	}()
	return sub, nil
}

func (r *RedisChannel) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	ps, ok := r.pubsub[sub.id]
	delete(r.pubsub, sub.id)
	r.mu.Unlock()
	if ok {
		_ = ps.Close()
	}
}

func (r *RedisChannel) Publish(topic string, msg model.Message) {
	body, err := json.Marshal(msg)
	if err != nil {
		log.Printf("channel: marshal message %d: %v", msg.ID, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.client.Publish(ctx, topic, body).Err(); err != nil {
		log.Printf("channel: redis publish %q: %v", topic, err)
	}
}

func (r *RedisChannel) Close() error {
	r.mu.Lock()
	for id, ps := range r.pubsub {
		_ = ps.Close()
		delete(r.pubsub, id)
	}
	r.mu.Unlock()
	return r.client.Close()
}
