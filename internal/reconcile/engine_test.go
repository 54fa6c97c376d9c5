package reconcile

import (
	"testing"
	"time"

	"github.com/helpdeskhq/ticket-messaging/internal/model"
)

func confirmed(id uint64, body string, sender model.SenderType, at time.Time) model.Message {
	return model.Message{
		ID:         id,
		TicketID:   1,
		SenderType: sender,
		SenderRef:  "u1",
		Body:       body,
		CreatedAt:  at,
	}
}

func bodies(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message.Body
	}
	return out
}

func assertBodies(t *testing.T, entries []Entry, want ...string) {
	t.Helper()
	got := bodies(entries)
	if len(got) != len(want) {
		t.Fatalf("got %d entries %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d = %q, want %q (full list %v)", i, got[i], want[i], got)
		}
	}
}

func TestHydrateOrdersByCreatedAt(t *testing.T) {
	v := NewView(1)
	base := time.Now()
	// Snapshot arrives unordered; created_at is the only authority.
	v.Hydrate([]model.Message{
		confirmed(3, "third", model.SenderAdmin, base.Add(2*time.Second)),
		confirmed(1, "first", model.SenderUser, base),
		confirmed(2, "second", model.SenderAdmin, base.Add(time.Second)),
	})
	assertBodies(t, v.Entries(), "first", "second", "third")
}

func TestSendOptimisticAppearsImmediately(t *testing.T) {
	v := NewView(1)
	v.Hydrate([]model.Message{confirmed(1, "history", model.SenderAdmin, time.Now().Add(-time.Minute))})

	tempID := v.SendOptimistic("hello", "u1", model.SenderUser)
	if tempID == "" {
		t.Fatal("expected non-empty temp id")
	}
	entries := v.Entries()
	assertBodies(t, entries, "history", "hello")
	if !entries[1].Pending {
		t.Error("optimistic entry should be pending")
	}
	if entries[1].Message.ID != 0 {
		t.Error("optimistic entry should have no canonical id")
	}
}

func TestConfirmSendReplacesOptimisticEntry(t *testing.T) {
	v := NewView(1)
	tempID := v.SendOptimistic("hello", "u1", model.SenderUser)

	v.ConfirmSend(tempID, confirmed(42, "hello", model.SenderUser, time.Now()))

	entries := v.Entries()
	assertBodies(t, entries, "hello")
	if entries[0].Pending {
		t.Error("confirmed entry still pending")
	}
	if entries[0].Message.ID != 42 {
		t.Errorf("canonical id = %d, want 42", entries[0].Message.ID)
	}
	if v.HasPending() {
		t.Error("view should have no pending entries after confirmation")
	}
}

func TestConfirmSendAfterRollbackDedupsByID(t *testing.T) {
	v := NewView(1)
	tempID := v.SendOptimistic("hello", "u1", model.SenderUser)
	if _, ok := v.RollbackSend(tempID); !ok {
		t.Fatal("rollback failed")
	}
	msg := confirmed(42, "hello", model.SenderUser, time.Now())
	v.ConfirmSend(tempID, msg)
	v.ConfirmSend(tempID, msg) // replay must not duplicate
	assertBodies(t, v.Entries(), "hello")
}

func TestRollbackSendReturnsBody(t *testing.T) {
	v := NewView(1)
	tempID := v.SendOptimistic("hello", "u1", model.SenderUser)

	body, ok := v.RollbackSend(tempID)
	if !ok || body != "hello" {
		t.Fatalf("RollbackSend = (%q, %v), want (\"hello\", true)", body, ok)
	}
	if len(v.Entries()) != 0 {
		t.Error("rolled back entry still visible")
	}
	if _, ok := v.RollbackSend(tempID); ok {
		t.Error("second rollback should report missing entry")
	}
}

func TestChannelEventConfirmsPendingTwin(t *testing.T) {
	v := NewView(1)
	v.SendOptimistic("hello", "u1", model.SenderUser)

	// The store echo arrives through the channel before the append call
	// returns; it must act as the confirmation, not a duplicate.
	v.OnChannelEvent(confirmed(7, "hello", model.SenderUser, time.Now()))

	entries := v.Entries()
	assertBodies(t, entries, "hello")
	if entries[0].Pending || entries[0].Message.ID != 7 {
		t.Errorf("echo did not confirm the pending entry: %+v", entries[0])
	}
}

func TestChannelEventDedupsById(t *testing.T) {
	v := NewView(1)
	msg := confirmed(7, "hi", model.SenderAdmin, time.Now())
	v.OnChannelEvent(msg)
	v.OnChannelEvent(msg)
	v.OnChannelEvent(msg)
	assertBodies(t, v.Entries(), "hi")
}

func TestChannelEventIgnoresOtherTickets(t *testing.T) {
	v := NewView(1)
	msg := confirmed(7, "hi", model.SenderAdmin, time.Now())
	msg.TicketID = 2
	v.OnChannelEvent(msg)
	if len(v.Entries()) != 0 {
		t.Error("event for another ticket merged into view")
	}
}

func TestTwoQuickSendsReconcileIndependently(t *testing.T) {
	v := NewView(1)
	tempA := v.SendOptimistic("A", "u1", model.SenderUser)
	tempB := v.SendOptimistic("B", "u1", model.SenderUser)
	if tempA == tempB {
		t.Fatal("temp tokens must be distinct")
	}
	assertBodies(t, v.Entries(), "A", "B")

	now := time.Now()
	// Confirmations may land out of order.
	v.ConfirmSend(tempB, confirmed(11, "B", model.SenderUser, now.Add(time.Second)))
	v.ConfirmSend(tempA, confirmed(10, "A", model.SenderUser, now))

	entries := v.Entries()
	assertBodies(t, entries, "A", "B")
	for _, e := range entries {
		if e.Pending {
			t.Errorf("entry %q still pending", e.Message.Body)
		}
	}
}

func TestHydrateKeepsPendingEntries(t *testing.T) {
	v := NewView(1)
	tempID := v.SendOptimistic("in flight", "u1", model.SenderUser)

	v.Hydrate([]model.Message{confirmed(1, "history", model.SenderAdmin, time.Now().Add(-time.Minute))})

	assertBodies(t, v.Entries(), "history", "in flight")

	// The in-flight send completes after re-hydration.
	v.ConfirmSend(tempID, confirmed(2, "in flight", model.SenderUser, time.Now()))
	assertBodies(t, v.Entries(), "history", "in flight")
	if v.HasPending() {
		t.Error("pending entry survived its confirmation")
	}
}

func TestPendingSortsAfterConfirmedAtEqualTime(t *testing.T) {
	v := NewView(1)
	tempID := v.SendOptimistic("mine", "u1", model.SenderUser)
	entries := v.Entries()
	at := entries[0].Message.CreatedAt

	v.OnChannelEvent(confirmed(5, "theirs", model.SenderAdmin, at))

	assertBodies(t, v.Entries(), "theirs", "mine")
	_ = tempID
}

func TestEngineLookupAndDrop(t *testing.T) {
	e := NewEngine()
	v := e.View(1)
	if got := e.View(1); got != v {
		t.Error("View should return the cached view")
	}
	if _, ok := e.Lookup(2); ok {
		t.Error("Lookup created a view")
	}
	e.Drop(1)
	if _, ok := e.Lookup(1); ok {
		t.Error("Drop did not evict the view")
	}
}
