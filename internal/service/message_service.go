package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/helpdeskhq/ticket-messaging/internal/channel"
	"github.com/helpdeskhq/ticket-messaging/internal/errs"
	"github.com/helpdeskhq/ticket-messaging/internal/kafka"
	"github.com/helpdeskhq/ticket-messaging/internal/model"
)

// MessageServicer — интерфейс Message Store: append-only лог сообщений тикета
// с флагом прочтения.
type MessageServicer interface {
	Append(ctx context.Context, ticketID uint64, senderRef string, senderType model.SenderType, body string) (*model.Message, error)
	ListByTicket(ctx context.Context, ticketID uint64) ([]model.Message, error)
	CountUnread(ctx context.Context, ticketID uint64, viewer model.SenderType) (int64, error)
	MarkReadBatch(ctx context.Context, ticketID uint64, viewer model.SenderType) error
}

type MessageService struct {
	db       *gorm.DB
	ch       channel.Channel
	producer kafka.EventProducer
}

func NewMessageService(db *gorm.DB, ch channel.Channel, producer kafka.EventProducer) *MessageService {
	return &MessageService{db: db, ch: ch, producer: producer}
}

var _ MessageServicer = (*MessageService)(nil)

// Append вставляет сообщение и публикует его в Event Channel: в топик тикета
// и в агрегатные фиды обеих сторон. created_at назначает сервер — это
// единственный ключ упорядочивания внутри тикета.
func (s *MessageService) Append(ctx context.Context, ticketID uint64, senderRef string, senderType model.SenderType, body string) (*model.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, errs.ErrEmptyBody
	}
	if !model.ValidSenderType(senderType) {
		return nil, errs.ErrInvalidSenderType
	}
	var t model.Ticket
	if err := s.db.WithContext(ctx).First(&t, ticketID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}

	m := &model.Message{
		TicketID:   ticketID,
		SenderType: senderType,
		SenderRef:  senderRef,
		Body:       body,
		IsRead:     false,
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}

	if s.ch != nil {
		s.ch.Publish(channel.TicketTopic(ticketID), *m)
		s.ch.Publish(channel.RequesterTopic(t.RequesterKey()), *m)
		s.ch.Publish(channel.OperatorsTopic, *m)
	}
	if s.producer != nil {
		payload := map[string]interface{}{
			"message_id":  int64(m.ID),
			"ticket_id":   int64(ticketID),
			"sender_type": string(senderType),
			"sender_ref":  senderRef,
			"body":        body,
		}
		go func() {
			eventCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.producer.ProduceEvent(eventCtx, "message.created", payload)
		}()
	}
	return m, nil
}

func (s *MessageService) ListByTicket(ctx context.Context, ticketID uint64) ([]model.Message, error) {
	var items []model.Message
	err := s.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// CountUnread считает сообщения другой стороны, ещё не отмеченные прочитанными.
func (s *MessageService) CountUnread(ctx context.Context, ticketID uint64, viewer model.SenderType) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("ticket_id = ? AND sender_type <> ? AND is_read = ?", ticketID, viewer, false).
		Count(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// MarkReadBatch отмечает прочитанными все сообщения другой стороны. Повторный
// вызов — no-op (идемпотентность).
func (s *MessageService) MarkReadBatch(ctx context.Context, ticketID uint64, viewer model.SenderType) error {
	return s.db.WithContext(ctx).Model(&model.Message{}).
		Where("ticket_id = ? AND sender_type <> ? AND is_read = ?", ticketID, viewer, false).
		Update("is_read", true).Error
}
