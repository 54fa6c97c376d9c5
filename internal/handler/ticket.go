package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/helpdeskhq/ticket-messaging/internal/errs"
	"github.com/helpdeskhq/ticket-messaging/internal/model"
	"github.com/helpdeskhq/ticket-messaging/internal/notify"
	"github.com/helpdeskhq/ticket-messaging/internal/service"
)

type TicketHandler struct {
	tickets  service.TicketServicer
	messages service.MessageServicer
	notifier *notify.Client
}

func NewTicketHandler(tickets service.TicketServicer, messages service.MessageServicer, notifier *notify.Client) *TicketHandler {
	return &TicketHandler{tickets: tickets, messages: messages, notifier: notifier}
}

type createTicketRequest struct {
	RequesterID    string `json:"requester_id"`
	RequesterEmail string `json:"requester_email"`
	Subject        string `json:"subject" binding:"required"`
	Body           string `json:"body" binding:"required"`
	Priority       string `json:"priority"`
}

// Create открывает тикет и добавляет первое сообщение от имени реквестера.
func (h *TicketHandler) Create(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	ticket := &model.Ticket{
		RequesterID:    req.RequesterID,
		RequesterEmail: req.RequesterEmail,
		Subject:        req.Subject,
		Priority:       model.TicketPriority(req.Priority),
	}
	if err := h.tickets.Create(c.Request.Context(), ticket); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errs.ErrInvalidRequester) || errors.Is(err, errs.ErrInvalidPriority) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.messages.Append(c.Request.Context(), ticket.ID, ticket.RequesterID, model.SenderUser, req.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to append initial message"})
		return
	}
	h.notifier.TicketCreatedAsync(ticket)
	c.JSON(http.StatusCreated, gin.H{"ticket": ticket, "message": msg})
}

func (h *TicketHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	t, err := h.tickets.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, t)
}

// List возвращает тикеты: requester-скоуп по ключу адресации либо
// операторский скоуп с фильтрами.
func (h *TicketHandler) List(c *gin.Context) {
	if key := c.Query("requester"); key != "" {
		items, err := h.tickets.ListByRequester(c.Request.Context(), key)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tickets"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"tickets": items, "total": len(items)})
		return
	}

	filter := make(map[string]interface{})
	if v := c.Query("status"); v != "" {
		filter["status = ?"] = v
	}
	if v := c.Query("priority"); v != "" {
		filter["priority = ?"] = v
	}
	if v := c.Query("operator"); v != "" {
		filter["assigned_operator = ?"] = v
	}

	limit := 0
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	items, total, err := h.tickets.List(c.Request.Context(), filter, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tickets"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": items, "total": total})
}

type updateStatusRequest struct {
	Status   string `json:"status" binding:"required"`
	Operator string `json:"operator"`
}

func (h *TicketHandler) UpdateStatus(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	t, err := h.tickets.UpdateStatus(c.Request.Context(), id, model.TicketStatus(req.Status), req.Operator)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrTicketNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		case errors.Is(err, errs.ErrInvalidStatus), errors.Is(err, errs.ErrOperatorRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, errs.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, t)
}

type assignRequest struct {
	Operator string `json:"operator" binding:"required"`
}

func (h *TicketHandler) Assign(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	t, err := h.tickets.Assign(c.Request.Context(), id, req.Operator)
	if err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, t)
}
