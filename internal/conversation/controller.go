// Package conversation orchestrates one actor session: ticket list with
// unread badges, channel subscribe/unsubscribe across navigation, optimistic
// sends, and read-receipt timing.
package conversation

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/helpdeskhq/ticket-messaging/internal/channel"
	"github.com/helpdeskhq/ticket-messaging/internal/model"
	"github.com/helpdeskhq/ticket-messaging/internal/reconcile"
	"github.com/helpdeskhq/ticket-messaging/internal/service"
	"github.com/helpdeskhq/ticket-messaging/internal/unread"
)

var ErrNoConversation = errors.New("no conversation open")

const sendTimeout = 10 * time.Second

// Identity is the viewing actor. Ref is the authenticated user or operator
// id; Email is the fallback addressing key for requesters without an
// account. For requesters exactly one of the two is set.
type Identity struct {
	Ref   string
	Email string
	Role  model.SenderType
}

// Key returns the addressing key for the actor's aggregate feed.
func (id Identity) Key() string {
	if id.Ref != "" {
		return id.Ref
	}
	return id.Email
}

// Events is implemented by the surface consuming the session (websocket
// gateway, tests). Callbacks arrive from channel goroutines; implementations
// must not block.
type Events interface {
	ViewUpdated(ticketID uint64, entries []reconcile.Entry)
	SendFailed(ticketID uint64, body string, err error)
	UnreadChanged(ticketID uint64, count, total int64)
}

type noopEvents struct{}

func (noopEvents) ViewUpdated(uint64, []reconcile.Entry)  {}
func (noopEvents) SendFailed(uint64, string, error)       {}
func (noopEvents) UnreadChanged(ticketID uint64, count, _ int64) {}

// TicketSummary is one row of the TicketListView.
type TicketSummary struct {
	Ticket model.Ticket `json:"ticket"`
	Unread int64        `json:"unread"`
}

// Controller is the per-session state machine: Listing (aggregate feed only)
// or ConversationOpen (one additional per-ticket subscription, owned here so
// navigation can never leak handles).
type Controller struct {
	tickets  service.TicketServicer
	messages service.MessageServicer
	ch       channel.Channel
	engine   *reconcile.Engine
	unread   *unread.Aggregator
	identity Identity
	events   Events

	mu        sync.Mutex
	active    uint64 // 0 while Listing
	activeSub *channel.Subscription
	feedSub   *channel.Subscription
	shutdown  bool
}

type Params struct {
	Tickets  service.TicketServicer
	Messages service.MessageServicer
	Channel  channel.Channel
	Identity Identity
	Events   Events
}

// New starts a session in the Listing state and subscribes the actor's
// aggregate feed. A failed feed subscription degrades silently: unread
// baselines are recomputed on every Tickets call anyway.
func New(p Params) *Controller {
	if p.Events == nil {
		p.Events = noopEvents{}
	}
	c := &Controller{
		tickets:  p.Tickets,
		messages: p.Messages,
		ch:       p.Channel,
		engine:   reconcile.NewEngine(),
		unread:   unread.NewAggregator(p.Messages, p.Identity.Role),
		identity: p.Identity,
		events:   p.Events,
	}
	topic := channel.OperatorsTopic
	if p.Identity.Role == model.SenderUser {
		topic = channel.RequesterTopic(p.Identity.Key())
	}
	sub, err := p.Channel.Subscribe(topic, c.onFeedEvent)
	if err != nil {
		log.Printf("conversation: aggregate feed subscribe: %v", err)
	} else {
		c.feedSub = sub
	}
	return c
}

// Unread exposes the session's aggregator (global badge, per-ticket counts).
func (c *Controller) Unread() *unread.Aggregator { return c.unread }

// Tickets hydrates the TicketListView: the actor's tickets annotated with
// unread counts recomputed from the store.
func (c *Controller) Tickets(ctx context.Context) ([]TicketSummary, error) {
	var items []model.Ticket
	var err error
	if c.identity.Role == model.SenderUser {
		items, err = c.tickets.ListByRequester(ctx, c.identity.Key())
	} else {
		items, _, err = c.tickets.List(ctx, nil, 0, 0)
	}
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, len(items))
	for i, t := range items {
		ids[i] = t.ID
	}
	if err := c.unread.Initialize(ctx, ids); err != nil {
		return nil, err
	}
	out := make([]TicketSummary, len(items))
	for i, t := range items {
		out[i] = TicketSummary{Ticket: t, Unread: c.unread.Count(t.ID)}
	}
	return out, nil
}

// Open enters ConversationOpen(ticketID): unsubscribe whatever was open,
// re-hydrate from the store (live delivery is a latency optimization, not
// the source of truth), subscribe the ticket topic, and mark the backlog
// read. Safe to call while another conversation is open.
func (c *Controller) Open(ctx context.Context, ticketID uint64) ([]reconcile.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return nil, errors.New("session closed")
	}

	if c.activeSub != nil {
		c.ch.Unsubscribe(c.activeSub)
		c.activeSub = nil
	}
	c.active = ticketID

	msgs, err := c.messages.ListByTicket(ctx, ticketID)
	if err != nil {
		c.active = 0
		return nil, err
	}
	view := c.engine.View(ticketID)
	view.Hydrate(msgs)

	sub, err := c.ch.Subscribe(channel.TicketTopic(ticketID), c.onTicketEvent)
	if err != nil {
		// Degraded mode: correctness is preserved by re-hydration on the
		// next Open; no hard error surfaces.
		log.Printf("conversation: subscribe ticket %d: %v", ticketID, err)
	} else {
		c.activeSub = sub
	}

	if err := c.unread.MarkRead(ctx, ticketID); err != nil {
		log.Printf("conversation: mark read ticket %d: %v", ticketID, err)
	}
	return view.Entries(), nil
}

// Close returns to Listing, releasing the per-ticket subscription.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeSub != nil {
		c.ch.Unsubscribe(c.activeSub)
		c.activeSub = nil
	}
	c.active = 0
}

// Shutdown ends the session, releasing all subscriptions.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdown = true
	if c.activeSub != nil {
		c.ch.Unsubscribe(c.activeSub)
		c.activeSub = nil
	}
	if c.feedSub != nil {
		c.ch.Unsubscribe(c.feedSub)
		c.feedSub = nil
	}
	c.active = 0
}

// Send appends optimistically and returns the temp token at once; the store
// append completes in the background and reconciles via ConfirmSend or rolls
// back with a SendFailed event carrying the original body. Navigating away
// does not cancel an in-flight send.
func (c *Controller) Send(ctx context.Context, body string) (string, error) {
	c.mu.Lock()
	ticketID := c.active
	c.mu.Unlock()
	if ticketID == 0 {
		return "", ErrNoConversation
	}

	view := c.engine.View(ticketID)
	tempID := view.SendOptimistic(body, c.identity.Ref, c.identity.Role)
	c.events.ViewUpdated(ticketID, view.Entries())

	go c.completeSend(ticketID, tempID, body)
	return tempID, nil
}

func (c *Controller) completeSend(ticketID uint64, tempID, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	msg, err := c.messages.Append(ctx, ticketID, c.identity.Ref, c.identity.Role, body)

	view, cached := c.engine.Lookup(ticketID)
	if !cached {
		// Conversation evicted mid-flight; the next hydration picks the
		// canonical message up, and a failure has nothing left to roll back.
		if err != nil {
			c.events.SendFailed(ticketID, body, err)
		}
		return
	}
	if err != nil {
		restored, ok := view.RollbackSend(tempID)
		if !ok {
			restored = body
		}
		c.emitView(ticketID, view)
		c.events.SendFailed(ticketID, restored, err)
		return
	}
	view.ConfirmSend(tempID, *msg)
	c.emitView(ticketID, view)
}

// onTicketEvent handles live delivery for the open conversation. The view
// merge is idempotent, and messages from the other party are marked read on
// the spot since the conversation is visibly being read.
func (c *Controller) onTicketEvent(msg model.Message) {
	c.mu.Lock()
	active := c.active == msg.TicketID
	c.mu.Unlock()

	view, cached := c.engine.Lookup(msg.TicketID)
	if !cached {
		return // stale event for an evicted conversation; dropped
	}
	view.OnChannelEvent(msg)

	if active && msg.SenderType != c.identity.Role {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := c.unread.MarkRead(ctx, msg.TicketID); err != nil {
			log.Printf("conversation: mark read ticket %d: %v", msg.TicketID, err)
		}
		cancel()
	}
	c.emitView(msg.TicketID, view)
}

// onFeedEvent handles the aggregate feed: unread accounting for tickets that
// are not the active view. The active conversation's counter is untouched
// here — onTicketEvent already marked the message read.
func (c *Controller) onFeedEvent(msg model.Message) {
	if msg.SenderType == c.identity.Role {
		return
	}
	c.mu.Lock()
	active := c.active == msg.TicketID
	c.mu.Unlock()

	c.unread.OnLiveMessage(msg.TicketID, msg.SenderType, active)
	if !active {
		c.events.UnreadChanged(msg.TicketID, c.unread.Count(msg.TicketID), c.unread.Total())
	}
}

func (c *Controller) emitView(ticketID uint64, view *reconcile.View) {
	c.mu.Lock()
	active := c.active == ticketID
	c.mu.Unlock()
	if active {
		c.events.ViewUpdated(ticketID, view.Entries())
	}
}
