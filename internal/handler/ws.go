package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/helpdeskhq/ticket-messaging/internal/channel"
	"github.com/helpdeskhq/ticket-messaging/internal/conversation"
	"github.com/helpdeskhq/ticket-messaging/internal/model"
	"github.com/helpdeskhq/ticket-messaging/internal/realtime"
	"github.com/helpdeskhq/ticket-messaging/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy belongs to the gateway in front of this service.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSHandler struct {
	tickets  service.TicketServicer
	messages service.MessageServicer
	ch       channel.Channel
}

func NewWSHandler(tickets service.TicketServicer, messages service.MessageServicer, ch channel.Channel) *WSHandler {
	return &WSHandler{tickets: tickets, messages: messages, ch: ch}
}

// Serve открывает websocket-сессию актёра. Идентичность передаётся query-параметрами:
// role=user|admin, ref=<user/operator id>, email=<fallback для реквестера>.
func (h *WSHandler) Serve(c *gin.Context) {
	role := model.SenderType(c.Query("role"))
	if !model.ValidSenderType(role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be 'user' or 'admin'"})
		return
	}
	identity := conversation.Identity{
		Ref:   c.Query("ref"),
		Email: c.Query("email"),
		Role:  role,
	}
	if identity.Key() == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ref or email is required"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("realtime: upgrade: %v", err)
		return
	}
	session := realtime.NewSession(ws, h.tickets, h.messages, h.ch, identity)
	session.Run()
}
