package channel

import (
	"testing"
	"time"

	"github.com/helpdeskhq/ticket-messaging/internal/model"
)

func recv(t *testing.T, ch <-chan model.Message) model.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return model.Message{}
	}
}

func assertSilent(t *testing.T, ch <-chan model.Message) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected delivery: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBrokerDeliversToSubscribers(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	got := make(chan model.Message, 1)
	sub, err := b.Subscribe(TicketTopic(1), func(msg model.Message) { got <- msg })
	if err != nil {
		t.Fatal(err)
	}
	if sub.Topic() != "ticket.events.1" {
		t.Errorf("Topic() = %q", sub.Topic())
	}

	b.Publish(TicketTopic(1), model.Message{ID: 7, TicketID: 1, Body: "hi"})

	msg := recv(t, got)
	if msg.ID != 7 || msg.Body != "hi" {
		t.Errorf("delivered %+v", msg)
	}
}

func TestBrokerFansOut(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	a := make(chan model.Message, 1)
	c := make(chan model.Message, 1)
	if _, err := b.Subscribe(OperatorsTopic, func(msg model.Message) { a <- msg }); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Subscribe(OperatorsTopic, func(msg model.Message) { c <- msg }); err != nil {
		t.Fatal(err)
	}

	b.Publish(OperatorsTopic, model.Message{ID: 1})

	recv(t, a)
	recv(t, c)
}

func TestBrokerIsolatesTopics(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	got := make(chan model.Message, 1)
	if _, err := b.Subscribe(TicketTopic(1), func(msg model.Message) { got <- msg }); err != nil {
		t.Fatal(err)
	}

	b.Publish(TicketTopic(2), model.Message{ID: 1, TicketID: 2})
	b.Publish(RequesterTopic("u1"), model.Message{ID: 2})

	assertSilent(t, got)
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	got := make(chan model.Message, 1)
	sub, err := b.Subscribe(TicketTopic(1), func(msg model.Message) { got <- msg })
	if err != nil {
		t.Fatal(err)
	}

	b.Publish(TicketTopic(1), model.Message{ID: 1, TicketID: 1})
	recv(t, got)

	b.Unsubscribe(sub)
	b.Publish(TicketTopic(1), model.Message{ID: 2, TicketID: 1})
	assertSilent(t, got)

	// Unsubscribing twice, or a nil handle, must be harmless.
	b.Unsubscribe(nil)
}

func TestBrokerCloseStopsAllDelivery(t *testing.T) {
	b := NewBroker()

	got := make(chan model.Message, 1)
	if _, err := b.Subscribe(TicketTopic(1), func(msg model.Message) { got <- msg }); err != nil {
		t.Fatal(err)
	}

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	b.Publish(TicketTopic(1), model.Message{ID: 1, TicketID: 1})
	assertSilent(t, got)
}

func TestBrokerDropsWhenSubscriberSaturated(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	entered := make(chan struct{}, 1)
	block := make(chan struct{})
	var delivered int
	done := make(chan struct{})
	if _, err := b.Subscribe(TicketTopic(1), func(msg model.Message) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-block
		delivered++
		if delivered == subscriberBuffer+1 {
			close(done)
		}
	}); err != nil {
		t.Fatal(err)
	}

	// Park the drain goroutine on the first message, fill the queue, and
	// verify the overflow is dropped rather than blocking the publisher.
	b.Publish(TicketTopic(1), model.Message{ID: 1, TicketID: 1})
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}
	for i := 0; i < subscriberBuffer*3; i++ {
		b.Publish(TicketTopic(1), model.Message{ID: uint64(i + 2), TicketID: 1})
	}
	close(block)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("delivered %d messages, want %d", delivered, subscriberBuffer+1)
	}
}
