// Package reconcile merges the three independent inputs of a conversation —
// the hydration snapshot, locally-originated optimistic sends, and channel
// echoes — into one duplicate-free list ordered by the store's created_at.
package reconcile

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helpdeskhq/ticket-messaging/internal/model"
)

// Entry is one row of the merged view. Pending entries carry a TempID and a
// client-side CreatedAt; both are replaced when the canonical message arrives.
type Entry struct {
	Message model.Message
	TempID  string
	Pending bool
}

// View is the merged message list of a single ticket. All methods are safe
// for concurrent use; channel callbacks and user sends race freely.
type View struct {
	mu       sync.Mutex
	ticketID uint64
	entries  []Entry
}

func NewView(ticketID uint64) *View {
	return &View{ticketID: ticketID}
}

func (v *View) TicketID() uint64 { return v.ticketID }

// Hydrate replaces the confirmed portion of the view with the store snapshot.
// Pending optimistic entries survive: an in-flight send keeps its place until
// it is confirmed or rolled back. Confirmations that landed in the snapshot
// itself are resolved later through the id-dedup path of ConfirmSend.
func (v *View) Hydrate(msgs []model.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	pending := v.entries[:0:0]
	for _, e := range v.entries {
		if e.Pending {
			pending = append(pending, e)
		}
	}
	v.entries = make([]Entry, 0, len(msgs)+len(pending))
	for _, m := range msgs {
		v.entries = append(v.entries, Entry{Message: m})
	}
	v.entries = append(v.entries, pending...)
	v.sortLocked()
}

// SendOptimistic appends a pending entry so the UI reflects the send
// immediately and returns the temp token used for reconciliation.
func (v *View) SendOptimistic(body, senderRef string, senderType model.SenderType) string {
	tempID := uuid.NewString()
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = append(v.entries, Entry{
		Message: model.Message{
			TicketID:   v.ticketID,
			SenderType: senderType,
			SenderRef:  senderRef,
			Body:       body,
			CreatedAt:  time.Now(),
		},
		TempID:  tempID,
		Pending: true,
	})
	v.sortLocked()
	return tempID
}

// ConfirmSend replaces the optimistic entry with the canonical message. If
// the entry is already gone (rolled back, or the channel echo confirmed it
// first) the canonical message is merged dedup'd by id instead.
func (v *View) ConfirmSend(tempID string, canonical model.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.removeTempLocked(tempID)
	v.insertLocked(canonical)
}

// RollbackSend removes the optimistic entry and returns its body so the
// caller can restore the input field. A failed send never silently loses
// content.
func (v *View) RollbackSend(tempID string) (body string, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, e := range v.entries {
		if e.Pending && e.TempID == tempID {
			body = e.Message.Body
			v.entries = append(v.entries[:i], v.entries[i+1:]...)
			return body, true
		}
	}
	return "", false
}

// OnChannelEvent merges a channel-delivered message. Delivery is
// at-least-once and unordered, so the handler is idempotent: duplicates by
// id are dropped, and an echo of a still-pending optimistic send acts as its
// confirmation instead of inserting a twin.
func (v *View) OnChannelEvent(msg model.Message) {
	if msg.TicketID != v.ticketID {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.containsLocked(msg.ID) {
		return
	}
	for i, e := range v.entries {
		if e.Pending && e.Message.SenderRef == msg.SenderRef && e.Message.Body == msg.Body {
			v.entries[i] = Entry{Message: msg}
			v.sortLocked()
			return
		}
	}
	v.entries = append(v.entries, Entry{Message: msg})
	v.sortLocked()
}

// Entries returns a snapshot of the merged, ordered list.
func (v *View) Entries() []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Entry, len(v.entries))
	copy(out, v.entries)
	return out
}

// HasPending reports whether any optimistic entry is still unresolved.
func (v *View) HasPending() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, e := range v.entries {
		if e.Pending {
			return true
		}
	}
	return false
}

func (v *View) containsLocked(id uint64) bool {
	for _, e := range v.entries {
		if !e.Pending && e.Message.ID == id {
			return true
		}
	}
	return false
}

func (v *View) removeTempLocked(tempID string) {
	for i, e := range v.entries {
		if e.Pending && e.TempID == tempID {
			v.entries = append(v.entries[:i], v.entries[i+1:]...)
			return
		}
	}
}

func (v *View) insertLocked(msg model.Message) {
	if v.containsLocked(msg.ID) {
		return
	}
	v.entries = append(v.entries, Entry{Message: msg})
	v.sortLocked()
}

// sortLocked orders by created_at ascending; at equal timestamps a pending
// entry sorts after confirmed ones so the user's just-sent message stays at
// the bottom until the server timestamp is known.
func (v *View) sortLocked() {
	sort.SliceStable(v.entries, func(i, j int) bool {
		a, b := v.entries[i], v.entries[j]
		if !a.Message.CreatedAt.Equal(b.Message.CreatedAt) {
			return a.Message.CreatedAt.Before(b.Message.CreatedAt)
		}
		return !a.Pending && b.Pending
	})
}

// Engine caches the per-ticket views of one client session. Events for a
// ticket that is no longer cached are dropped; the next hydration will
// include them anyway.
type Engine struct {
	mu    sync.Mutex
	views map[uint64]*View
}

func NewEngine() *Engine {
	return &Engine{views: make(map[uint64]*View)}
}

// View returns the cached view for a ticket, creating it on first use.
func (e *Engine) View(ticketID uint64) *View {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.views[ticketID]
	if !ok {
		v = NewView(ticketID)
		e.views[ticketID] = v
	}
	return v
}

// Lookup returns the cached view without creating one.
func (e *Engine) Lookup(ticketID uint64) (*View, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.views[ticketID]
	return v, ok
}

// Drop evicts a ticket's view from the cache.
func (e *Engine) Drop(ticketID uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.views, ticketID)
}
