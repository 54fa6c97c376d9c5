package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/helpdeskhq/ticket-messaging/internal/errs"
	"github.com/helpdeskhq/ticket-messaging/internal/kafka"
	"github.com/helpdeskhq/ticket-messaging/internal/model"
)

// TicketServicer — интерфейс Ticket Store (Dependency Inversion, подмена в тестах).
type TicketServicer interface {
	Create(ctx context.Context, t *model.Ticket) error
	GetByID(ctx context.Context, id uint64) (*model.Ticket, error)
	ListByRequester(ctx context.Context, requesterKey string) ([]model.Ticket, error)
	List(ctx context.Context, filter map[string]interface{}, limit, offset int) ([]model.Ticket, int64, error)
	UpdateStatus(ctx context.Context, id uint64, status model.TicketStatus, operatorRef string) (*model.Ticket, error)
	Assign(ctx context.Context, id uint64, operatorRef string) (*model.Ticket, error)
}

type TicketService struct {
	db       *gorm.DB
	producer kafka.EventProducer
}

func NewTicketService(db *gorm.DB, producer kafka.EventProducer) *TicketService {
	return &TicketService{db: db, producer: producer}
}

var _ TicketServicer = (*TicketService)(nil)

func ticketEventPayload(t *model.Ticket) map[string]interface{} {
	if t == nil {
		return nil
	}
	return map[string]interface{}{
		"ticket_id":         int64(t.ID),
		"requester_id":      t.RequesterID,
		"requester_email":   t.RequesterEmail,
		"subject":           t.Subject,
		"priority":          string(t.Priority),
		"status":            string(t.Status),
		"assigned_operator": t.AssignedOperator,
	}
}

// produce отправляет событие fire-and-forget: оно должно уйти даже при отмене
// запроса, но с таймаутом.
func (s *TicketService) produce(event string, t *model.Ticket) {
	if s.producer == nil {
		return
	}
	payload := ticketEventPayload(t)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.producer.ProduceEvent(ctx, event, payload)
	}()
}

func (s *TicketService) Create(ctx context.Context, t *model.Ticket) error {
	if !t.ValidRequester() {
		return errs.ErrInvalidRequester
	}
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}
	if !model.ValidPriority(t.Priority) {
		return errs.ErrInvalidPriority
	}
	if t.Status == "" {
		t.Status = model.TicketStatusOpen
	}
	if !model.ValidStatus(t.Status) {
		return errs.ErrInvalidStatus
	}
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return err
	}
	s.produce("ticket.created", t)
	return nil
}

func (s *TicketService) GetByID(ctx context.Context, id uint64) (*model.Ticket, error) {
	var t model.Ticket
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

// ListByRequester возвращает тикеты по ключу адресации (user id или email).
func (s *TicketService) ListByRequester(ctx context.Context, requesterKey string) ([]model.Ticket, error) {
	var items []model.Ticket
	err := s.db.WithContext(ctx).
		Where("requester_id = ? OR requester_email = ?", requesterKey, requesterKey).
		Order("created_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *TicketService) List(ctx context.Context, filter map[string]interface{}, limit, offset int) ([]model.Ticket, int64, error) {
	var items []model.Ticket
	var total int64
	tx := s.db.WithContext(ctx).Model(&model.Ticket{})
	for k, v := range filter {
		tx = tx.Where(k, v)
	}
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if offset > 0 {
		tx = tx.Offset(offset)
	}
	if err := tx.Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// UpdateStatus переводит тикет по графу статусов. При первом уходе из open
// требуется и фиксируется оператор; closed проставляет closed_at,
// переоткрытие сбрасывает его.
func (s *TicketService) UpdateStatus(ctx context.Context, id uint64, status model.TicketStatus, operatorRef string) (*model.Ticket, error) {
	if !model.ValidStatus(status) {
		return nil, errs.ErrInvalidStatus
	}
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(t.Status, status) {
		return nil, errs.ErrInvalidTransition
	}

	changes := map[string]interface{}{"status": status}
	if t.Status == model.TicketStatusOpen && t.AssignedOperator == "" {
		if operatorRef == "" {
			return nil, errs.ErrOperatorRequired
		}
		changes["assigned_operator"] = operatorRef
	}
	switch status {
	case model.TicketStatusClosed:
		now := time.Now()
		changes["closed_at"] = &now
	case model.TicketStatusOpen:
		changes["closed_at"] = nil
	}

	if err := s.db.WithContext(ctx).Model(t).Updates(changes).Error; err != nil {
		return nil, err
	}
	full, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.produce("ticket.updated", full)
	return full, nil
}

func (s *TicketService) Assign(ctx context.Context, id uint64, operatorRef string) (*model.Ticket, error) {
	if operatorRef == "" {
		return nil, errs.ErrOperatorRequired
	}
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(t).Update("assigned_operator", operatorRef).Error; err != nil {
		return nil, err
	}
	t.AssignedOperator = operatorRef
	s.produce("ticket.updated", t)
	return t, nil
}
