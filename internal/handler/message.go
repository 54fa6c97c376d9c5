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

type MessageHandler struct {
	tickets  service.TicketServicer
	messages service.MessageServicer
	notifier *notify.Client
}

func NewMessageHandler(tickets service.TicketServicer, messages service.MessageServicer, notifier *notify.Client) *MessageHandler {
	return &MessageHandler{tickets: tickets, messages: messages, notifier: notifier}
}

func ticketID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

type appendMessageRequest struct {
	SenderType string `json:"sender_type" binding:"required"`
	SenderRef  string `json:"sender_ref"`
	Body       string `json:"body" binding:"required"`
}

func (h *MessageHandler) Append(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}
	var req appendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	msg, err := h.messages.Append(c.Request.Context(), id, req.SenderRef, model.SenderType(req.SenderType), req.Body)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrTicketNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		case errors.Is(err, errs.ErrEmptyBody), errors.Is(err, errs.ErrInvalidSenderType):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to append message"})
		}
		return
	}
	if t, err := h.tickets.GetByID(c.Request.Context(), id); err == nil {
		h.notifier.MessageCreatedAsync(t, msg)
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *MessageHandler) List(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}
	items, err := h.messages.ListByTicket(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": items, "total": len(items)})
}

func viewerRole(c *gin.Context) (model.SenderType, bool) {
	viewer := model.SenderType(c.Query("viewer"))
	if !model.ValidSenderType(viewer) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "viewer must be 'user' or 'admin'"})
		return "", false
	}
	return viewer, true
}

func (h *MessageHandler) Unread(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}
	viewer, ok := viewerRole(c)
	if !ok {
		return
	}
	n, err := h.messages.CountUnread(c.Request.Context(), id, viewer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count unread"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket_id": id, "viewer": viewer, "unread": n})
}

// MarkRead — идемпотентная пакетная отметка прочтения для viewer-роли.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}
	viewer, ok := viewerRole(c)
	if !ok {
		return
	}
	if err := h.messages.MarkReadBatch(c.Request.Context(), id, viewer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
