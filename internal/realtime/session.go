// Package realtime is the websocket gateway: one socket per actor session,
// driving a conversation controller with JSON commands and streaming view
// updates, unread badges, and send failures back to the client.
package realtime

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/helpdeskhq/ticket-messaging/internal/channel"
	"github.com/helpdeskhq/ticket-messaging/internal/conversation"
	"github.com/helpdeskhq/ticket-messaging/internal/model"
	"github.com/helpdeskhq/ticket-messaging/internal/reconcile"
	"github.com/helpdeskhq/ticket-messaging/internal/service"
)

const commandTimeout = 15 * time.Second

// Command is one inbound client frame.
type Command struct {
	Type     string `json:"type"` // open | close | send | tickets
	TicketID uint64 `json:"ticket_id,omitempty"`
	Body     string `json:"body,omitempty"`
}

// Frame is one outbound server frame.
type Frame struct {
	Type     string                       `json:"type"` // messages | send_failed | unread | tickets | error
	TicketID uint64                       `json:"ticket_id,omitempty"`
	Messages []MessagePayload             `json:"messages,omitempty"`
	Tickets  []conversation.TicketSummary `json:"tickets,omitempty"`
	Body     string                       `json:"body,omitempty"`
	Unread   int64                        `json:"unread,omitempty"`
	Total    int64                        `json:"total,omitempty"`
	Error    string                       `json:"error,omitempty"`
}

// MessagePayload is a view entry on the wire. Pending entries carry the temp
// id instead of a canonical one.
type MessagePayload struct {
	ID         uint64           `json:"id,omitempty"`
	TempID     string           `json:"temp_id,omitempty"`
	Pending    bool             `json:"pending,omitempty"`
	SenderType model.SenderType `json:"sender_type"`
	SenderRef  string           `json:"sender_ref,omitempty"`
	Body       string           `json:"body"`
	CreatedAt  time.Time        `json:"created_at"`
}

func toPayload(entries []reconcile.Entry) []MessagePayload {
	out := make([]MessagePayload, len(entries))
	for i, e := range entries {
		out[i] = MessagePayload{
			ID:         e.Message.ID,
			TempID:     e.TempID,
			Pending:    e.Pending,
			SenderType: e.Message.SenderType,
			SenderRef:  e.Message.SenderRef,
			Body:       e.Message.Body,
			CreatedAt:  e.Message.CreatedAt,
		}
	}
	return out
}

// Session binds one websocket connection to one conversation controller.
type Session struct {
	conn       *Connection
	controller *conversation.Controller
}

// NewSession attaches a controller to the socket and starts the write loop.
func NewSession(ws *websocket.Conn, tickets service.TicketServicer, messages service.MessageServicer, ch channel.Channel, identity conversation.Identity) *Session {
	s := &Session{conn: NewConnection(ws)}
	s.controller = conversation.New(conversation.Params{
		Tickets:  tickets,
		Messages: messages,
		Channel:  ch,
		Identity: identity,
		Events:   s,
	})
	s.conn.Start()
	return s
}

var _ conversation.Events = (*Session)(nil)

func (s *Session) ViewUpdated(ticketID uint64, entries []reconcile.Entry) {
	s.push(Frame{Type: "messages", TicketID: ticketID, Messages: toPayload(entries)})
}

func (s *Session) SendFailed(ticketID uint64, body string, err error) {
	s.push(Frame{Type: "send_failed", TicketID: ticketID, Body: body, Error: err.Error()})
}

func (s *Session) UnreadChanged(ticketID uint64, count, total int64) {
	s.push(Frame{Type: "unread", TicketID: ticketID, Unread: count, Total: total})
}

// Run reads commands until the socket drops, then releases the controller's
// subscriptions. It blocks the caller (the HTTP handler goroutine).
func (s *Session) Run() {
	defer func() {
		s.controller.Shutdown()
		s.conn.Close(websocket.CloseNormalClosure, "session ended")
	}()

	for {
		_, data, err := s.conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("realtime: session %s read: %v", s.conn.ID, err)
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.push(Frame{Type: "error", Error: "invalid command"})
			continue
		}
		s.handle(cmd)
	}
}

func (s *Session) handle(cmd Command) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch cmd.Type {
	case "open":
		entries, err := s.controller.Open(ctx, cmd.TicketID)
		if err != nil {
			s.push(Frame{Type: "error", TicketID: cmd.TicketID, Error: err.Error()})
			return
		}
		s.push(Frame{Type: "messages", TicketID: cmd.TicketID, Messages: toPayload(entries)})
	case "close":
		s.controller.Close()
	case "send":
		if _, err := s.controller.Send(ctx, cmd.Body); err != nil {
			s.push(Frame{Type: "error", TicketID: cmd.TicketID, Error: err.Error()})
		}
	case "tickets":
		summaries, err := s.controller.Tickets(ctx)
		if err != nil {
			s.push(Frame{Type: "error", Error: err.Error()})
			return
		}
		s.push(Frame{Type: "tickets", Tickets: summaries, Total: s.controller.Unread().Total()})
	default:
		s.push(Frame{Type: "error", Error: "unknown command type"})
	}
}

func (s *Session) push(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		log.Printf("realtime: marshal frame: %v", err)
		return
	}
	if err := s.conn.Send(data); err != nil {
		log.Printf("realtime: session %s: %v", s.conn.ID, err)
	}
}
