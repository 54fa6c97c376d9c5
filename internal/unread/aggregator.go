// Package unread keeps per-ticket unread counts for one viewer role without
// re-querying the store on every live event.
package unread

import (
	"context"
	"fmt"
	"sync"

	"github.com/helpdeskhq/ticket-messaging/internal/model"
	"github.com/helpdeskhq/ticket-messaging/internal/service"
)

// Aggregator counts messages from the other party not yet marked read, per
// ticket, for a single viewer role. Both roles share this one code path; the
// role parameter decides which side of the conversation counts.
type Aggregator struct {
	store  service.MessageServicer
	viewer model.SenderType

	mu     sync.Mutex
	counts map[uint64]int64
}

func NewAggregator(store service.MessageServicer, viewer model.SenderType) *Aggregator {
	return &Aggregator{
		store:  store,
		viewer: viewer,
		counts: make(map[uint64]int64),
	}
}

// Initialize recomputes the counters from the store for the given tickets.
// Live increments are only correct relative to this baseline.
func (a *Aggregator) Initialize(ctx context.Context, ticketIDs []uint64) error {
	fresh := make(map[uint64]int64, len(ticketIDs))
	for _, id := range ticketIDs {
		n, err := a.store.CountUnread(ctx, id, a.viewer)
		if err != nil {
			return fmt.Errorf("count unread for ticket %d: %w", id, err)
		}
		fresh[id] = n
	}
	a.mu.Lock()
	a.counts = fresh
	a.mu.Unlock()
	return nil
}

// OnLiveMessage applies one channel-delivered message. Own messages never
// count; a message for the currently open conversation is marked read
// immediately by the controller instead of incrementing here.
func (a *Aggregator) OnLiveMessage(ticketID uint64, senderType model.SenderType, conversationActive bool) {
	if senderType == a.viewer || conversationActive {
		return
	}
	a.mu.Lock()
	a.counts[ticketID]++
	a.mu.Unlock()
}

// MarkRead zeroes the counter and issues the batched mark-read. The counter
// is zeroed even when the store call fails: display correctness never waits
// on the store, and the idempotent batch is retried on the next call.
func (a *Aggregator) MarkRead(ctx context.Context, ticketID uint64) error {
	a.mu.Lock()
	a.counts[ticketID] = 0
	a.mu.Unlock()
	return a.store.MarkReadBatch(ctx, ticketID, a.viewer)
}

// Count returns the counter for one ticket. Never negative.
func (a *Aggregator) Count(ticketID uint64) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts[ticketID]
}

// Total sums all per-ticket counters; used for the global badge.
func (a *Aggregator) Total() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var total int64
	for _, n := range a.counts {
		total += n
	}
	return total
}
