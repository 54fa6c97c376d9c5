package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/helpdeskhq/ticket-messaging/api"
	"github.com/helpdeskhq/ticket-messaging/internal/handler"
)

const pathSwagger = "/swagger"

func New(ticketHandler *handler.TicketHandler, messageHandler *handler.MessageHandler, wsHandler *handler.WSHandler) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", handler.Health)
	r.GET("/ready", handler.Ready)
	r.GET(pathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, pathSwagger+"/") })
	r.GET(pathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = pathSwagger + "/index.html"
			c.Request.RequestURI = pathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/openapi.json"))(c)
	})

	v1 := r.Group("/api/v1")
	{
		v1.POST("/tickets", ticketHandler.Create)
		v1.GET("/tickets", ticketHandler.List)
		v1.GET("/tickets/:id", ticketHandler.Get)
		v1.PUT("/tickets/:id/status", ticketHandler.UpdateStatus)
		v1.PUT("/tickets/:id/assign", ticketHandler.Assign)

		v1.POST("/tickets/:id/messages", messageHandler.Append)
		v1.GET("/tickets/:id/messages", messageHandler.List)
		v1.GET("/tickets/:id/unread", messageHandler.Unread)
		v1.POST("/tickets/:id/read", messageHandler.MarkRead)
	}

	r.GET("/ws", wsHandler.Serve)

	return r
}
