package unread

import (
	"context"
	"errors"
	"testing"

	"github.com/helpdeskhq/ticket-messaging/internal/model"
)

// fakeStore implements service.MessageServicer for counter tests.
type fakeStore struct {
	counts    map[uint64]int64
	markCalls []uint64
	failMark  bool
}

func (f *fakeStore) Append(ctx context.Context, ticketID uint64, senderRef string, senderType model.SenderType, body string) (*model.Message, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) ListByTicket(ctx context.Context, ticketID uint64) ([]model.Message, error) {
	return nil, nil
}

func (f *fakeStore) CountUnread(ctx context.Context, ticketID uint64, viewer model.SenderType) (int64, error) {
	return f.counts[ticketID], nil
}

func (f *fakeStore) MarkReadBatch(ctx context.Context, ticketID uint64, viewer model.SenderType) error {
	f.markCalls = append(f.markCalls, ticketID)
	if f.failMark {
		return errors.New("store down")
	}
	f.counts[ticketID] = 0
	return nil
}

func TestInitializeRecomputesFromStore(t *testing.T) {
	store := &fakeStore{counts: map[uint64]int64{1: 2, 2: 0, 3: 5}}
	a := NewAggregator(store, model.SenderUser)

	if err := a.Initialize(context.Background(), []uint64{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if got := a.Count(1); got != 2 {
		t.Errorf("Count(1) = %d, want 2", got)
	}
	if got := a.Total(); got != 7 {
		t.Errorf("Total() = %d, want 7", got)
	}
}

func TestOnLiveMessage(t *testing.T) {
	cases := []struct {
		name   string
		sender model.SenderType
		active bool
		want   int64
	}{
		{"other party, listing", model.SenderAdmin, false, 1},
		{"other party, conversation open", model.SenderAdmin, true, 0},
		{"own message, listing", model.SenderUser, false, 0},
		{"own message, conversation open", model.SenderUser, true, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAggregator(&fakeStore{counts: map[uint64]int64{}}, model.SenderUser)
			a.OnLiveMessage(1, tc.sender, tc.active)
			if got := a.Count(1); got != tc.want {
				t.Errorf("Count(1) = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	store := &fakeStore{counts: map[uint64]int64{1: 3}}
	a := NewAggregator(store, model.SenderUser)
	if err := a.Initialize(context.Background(), []uint64{1}); err != nil {
		t.Fatal(err)
	}

	if err := a.MarkRead(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if err := a.MarkRead(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if got := a.Count(1); got != 0 {
		t.Errorf("Count(1) = %d, want 0 after repeated MarkRead", got)
	}
	if len(store.markCalls) != 2 {
		t.Errorf("store received %d mark calls, want 2 (second is a store no-op)", len(store.markCalls))
	}
}

func TestMarkReadZeroesCounterEvenWhenStoreFails(t *testing.T) {
	store := &fakeStore{counts: map[uint64]int64{1: 3}, failMark: true}
	a := NewAggregator(store, model.SenderUser)
	if err := a.Initialize(context.Background(), []uint64{1}); err != nil {
		t.Fatal(err)
	}

	if err := a.MarkRead(context.Background(), 1); err == nil {
		t.Fatal("expected store error to propagate")
	}
	// Display correctness never waits on the store; the batch is retried
	// on the next call.
	if got := a.Count(1); got != 0 {
		t.Errorf("Count(1) = %d, want 0", got)
	}
}

func TestCounterNeverNegative(t *testing.T) {
	a := NewAggregator(&fakeStore{counts: map[uint64]int64{}}, model.SenderAdmin)
	if err := a.MarkRead(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if err := a.MarkRead(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if got := a.Count(1); got < 0 {
		t.Errorf("Count(1) = %d, negative", got)
	}
	if got := a.Total(); got < 0 {
		t.Errorf("Total() = %d, negative", got)
	}
}
