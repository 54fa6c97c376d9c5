package model

import "time"

type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// statusTransitions is the allowed transition graph. The reopen path
// (resolved->open) is an operator action; closed is terminal.
var statusTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:       {TicketStatusInProgress},
	TicketStatusInProgress: {TicketStatusResolved, TicketStatusClosed},
	TicketStatusResolved:   {TicketStatusClosed, TicketStatusOpen},
	TicketStatusClosed:     {},
}

func ValidStatus(s TicketStatus) bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransition reports whether a ticket may move from one status to another.
func CanTransition(from, to TicketStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
)

func ValidPriority(p TicketPriority) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// SenderType identifies which side of a conversation authored a message.
// It doubles as the viewer role for unread accounting: a message counts
// toward the unread total of the opposite role only.
type SenderType string

const (
	SenderUser  SenderType = "user"
	SenderAdmin SenderType = "admin"
)

func ValidSenderType(s SenderType) bool {
	return s == SenderUser || s == SenderAdmin
}

type Ticket struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	// Exactly one of RequesterID / RequesterEmail is set; it is the
	// addressing key for the requester side of the conversation.
	RequesterID    string `gorm:"index;type:varchar(64)" json:"requester_id,omitempty"`
	RequesterEmail string `gorm:"index;type:varchar(255)" json:"requester_email,omitempty"`

	Subject          string         `gorm:"type:varchar(255);not null" json:"subject"`
	Priority         TicketPriority `gorm:"type:varchar(16);index;not null" json:"priority"`
	Status           TicketStatus   `gorm:"type:varchar(32);index;not null" json:"status"`
	AssignedOperator string         `gorm:"index;type:varchar(64)" json:"assigned_operator,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// RequesterKey returns the addressing key for the ticket's requester.
func (t *Ticket) RequesterKey() string {
	if t.RequesterID != "" {
		return t.RequesterID
	}
	return t.RequesterEmail
}

// ValidRequester reports whether exactly one addressing key is present.
func (t *Ticket) ValidRequester() bool {
	return (t.RequesterID != "") != (t.RequesterEmail != "")
}

type Message struct {
	ID         uint64     `gorm:"primaryKey" json:"id"`
	TicketID   uint64     `gorm:"index;not null" json:"ticket_id"`
	SenderType SenderType `gorm:"type:varchar(16);not null" json:"sender_type"`
	SenderRef  string     `gorm:"type:varchar(64)" json:"sender_ref,omitempty"`
	Body       string     `gorm:"type:text;not null" json:"body"`
	IsRead     bool       `gorm:"not null;default:false" json:"is_read"`

	// CreatedAt is server-assigned and is the only ordering authority
	// within a ticket.
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
