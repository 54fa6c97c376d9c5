package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/helpdeskhq/ticket-messaging/internal/model"
)

// Client отправляет события в notification-service (email/WhatsApp рассылка).
// Best-effort: не блокирует API и не влияет на корректность доставки сообщений.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient возвращает клиент. Если baseURL пустой, все вызовы — no-op.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// EventPayload — тело POST /notify/event.
type EventPayload struct {
	Event          string `json:"event"`
	TicketID       int64  `json:"ticket_id"`
	RequesterID    string `json:"requester_id,omitempty"`
	RequesterEmail string `json:"requester_email,omitempty"`
	Subject        string `json:"subject,omitempty"`
	SenderType     string `json:"sender_type,omitempty"`
	Body           string `json:"body,omitempty"`
}

func (c *Client) send(ctx context.Context, payload EventPayload) {
	if c.baseURL == "" {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("notify: marshal: %v", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/notify/event", bytes.NewReader(body))
	if err != nil {
		log.Printf("notify: new request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("notify: request: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("notify: status %d for ticket %d", resp.StatusCode, payload.TicketID)
	}
}

// TicketCreated уведомляет о новом тикете синхронно (backfill).
func (c *Client) TicketCreated(ctx context.Context, t *model.Ticket) {
	c.send(ctx, EventPayload{
		Event:          "ticket.created",
		TicketID:       int64(t.ID),
		RequesterID:    t.RequesterID,
		RequesterEmail: t.RequesterEmail,
		Subject:        t.Subject,
	})
}

// TicketCreatedAsync уведомляет о новом тикете в отдельной горутине.
func (c *Client) TicketCreatedAsync(t *model.Ticket) {
	if c.baseURL == "" {
		return
	}
	payload := EventPayload{
		Event:          "ticket.created",
		TicketID:       int64(t.ID),
		RequesterID:    t.RequesterID,
		RequesterEmail: t.RequesterEmail,
		Subject:        t.Subject,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.send(ctx, payload)
	}()
}

// MessageCreatedAsync уведомляет об ответе в тикете в отдельной горутине.
func (c *Client) MessageCreatedAsync(t *model.Ticket, m *model.Message) {
	if c.baseURL == "" {
		return
	}
	payload := EventPayload{
		Event:          "message.created",
		TicketID:       int64(t.ID),
		RequesterID:    t.RequesterID,
		RequesterEmail: t.RequesterEmail,
		Subject:        t.Subject,
		SenderType:     string(m.SenderType),
		Body:           m.Body,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.send(ctx, payload)
	}()
}
