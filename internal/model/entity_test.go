package model

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from TicketStatus
		to   TicketStatus
		want bool
	}{
		{"open to in_progress", TicketStatusOpen, TicketStatusInProgress, true},
		{"in_progress to resolved", TicketStatusInProgress, TicketStatusResolved, true},
		{"in_progress to closed", TicketStatusInProgress, TicketStatusClosed, true},
		{"resolved to closed", TicketStatusResolved, TicketStatusClosed, true},
		{"resolved reopened", TicketStatusResolved, TicketStatusOpen, true},
		{"open to resolved skips in_progress", TicketStatusOpen, TicketStatusResolved, false},
		{"open to closed", TicketStatusOpen, TicketStatusClosed, false},
		{"closed is terminal", TicketStatusClosed, TicketStatusOpen, false},
		{"no self transition", TicketStatusOpen, TicketStatusOpen, false},
		{"unknown status", TicketStatus("archived"), TicketStatusOpen, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanTransition(tc.from, tc.to); got != tc.want {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestValidRequester(t *testing.T) {
	cases := []struct {
		name   string
		ticket Ticket
		want   bool
	}{
		{"user id only", Ticket{RequesterID: "u1"}, true},
		{"email only", Ticket{RequesterEmail: "a@b.example"}, true},
		{"both set", Ticket{RequesterID: "u1", RequesterEmail: "a@b.example"}, false},
		{"neither set", Ticket{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.ticket.ValidRequester(); got != tc.want {
				t.Errorf("ValidRequester() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRequesterKey(t *testing.T) {
	if got := (&Ticket{RequesterID: "u1", RequesterEmail: "a@b.example"}).RequesterKey(); got != "u1" {
		t.Errorf("RequesterKey() = %q, want user id to win", got)
	}
	if got := (&Ticket{RequesterEmail: "a@b.example"}).RequesterKey(); got != "a@b.example" {
		t.Errorf("RequesterKey() = %q, want email fallback", got)
	}
}

func TestValidPriority(t *testing.T) {
	for _, p := range []TicketPriority{PriorityLow, PriorityMedium, PriorityHigh} {
		if !ValidPriority(p) {
			t.Errorf("ValidPriority(%q) = false", p)
		}
	}
	if ValidPriority("urgent") {
		t.Error("ValidPriority(\"urgent\") = true, want false")
	}
}
