package channel

import (
	"log"
	"sync"

	"github.com/helpdeskhq/ticket-messaging/internal/model"
)

const subscriberBuffer = 32

// Broker is the in-process Channel implementation for single-replica
// deployments. Each subscription owns a buffered channel drained by its own
// goroutine, so a slow handler never blocks publishers; overflowing messages
// are dropped and the subscriber is expected to re-hydrate from the store.
type Broker struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]*Subscription
	closed bool
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[uint64]*Subscription)}
}

var _ Channel = (*Broker)(nil)

func (b *Broker) Subscribe(topic string, fn Handler) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		topic: topic,
		id:    b.nextID,
		ch:    make(chan model.Message, subscriberBuffer),
		done:  make(chan struct{}),
	}
	byID := b.subs[topic]
	if byID == nil {
		byID = make(map[uint64]*Subscription)
		b.subs[topic] = byID
	}
	byID[sub.id] = sub

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case msg := <-sub.ch:
				fn(msg)
			}
		}
	}()
	return sub, nil
}

func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	// Don't close sub.ch here: publishers may have already snapshotted
	// the subscriber set and will send concurrently.
	if byID, ok := b.subs[sub.topic]; ok {
		delete(byID, sub.id)
		if len(byID) == 0 {
			delete(b.subs, sub.topic)
		}
	}
	b.mu.Unlock()
	close(sub.done)
}

func (b *Broker) Publish(topic string, msg model.Message) {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs[topic]))
	for _, sub := range b.subs[topic] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	dropped := 0
	for _, sub := range subs {
		select {
		case sub.ch <- msg:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		log.Printf("channel: dropped %d messages on %q (slow subscribers)", dropped, topic)
	}
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, byID := range b.subs {
		for _, sub := range byID {
			close(sub.done)
		}
	}
	b.subs = make(map[string]map[uint64]*Subscription)
	return nil
}
