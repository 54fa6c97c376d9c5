// Package channel is the event channel for live message delivery: a
// publish/subscribe primitive keyed by topic. Delivery is at-least-once and
// best-effort ordered; clients must treat the message store as the source of
// truth and re-hydrate after reconnects.
package channel

import (
	"fmt"

	"github.com/helpdeskhq/ticket-messaging/internal/model"
)

// Handler receives newly appended messages for a subscribed topic. Handlers
// must be idempotent: the same message may be delivered more than once.
type Handler func(msg model.Message)

// Subscription is an opaque handle returned by Subscribe and consumed by
// Unsubscribe.
type Subscription struct {
	topic string
	id    uint64

	// broker-only fields; unused by the redis adapter
	ch   chan model.Message
	done chan struct{}
}

func (s *Subscription) Topic() string { return s.topic }

type Channel interface {
	Subscribe(topic string, fn Handler) (*Subscription, error)
	Unsubscribe(sub *Subscription)
	Publish(topic string, msg model.Message)
	Close() error
}

// TicketTopic carries every message appended to one ticket.
func TicketTopic(ticketID uint64) string {
	return fmt.Sprintf("ticket.events.%d", ticketID)
}

// RequesterTopic is the per-actor aggregate feed for a requester: every
// message on any of their tickets, used for unread accounting while no
// conversation is open.
func RequesterTopic(requesterKey string) string {
	return "requester.events." + requesterKey
}

// OperatorsTopic is the aggregate feed for the operator team.
const OperatorsTopic = "operator.events"
