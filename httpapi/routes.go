package httpapi

import (
	"pairchat/auth"
	"pairchat/gateway"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the REST surface and the websocket endpoint onto one
// gin engine. Everything under /api/v1 and /ws requires a valid token.
func NewRouter(handler *Handler, gw *gateway.Gateway) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", handler.Health)
	router.GET("/ws", gw.Handle)

	api := router.Group("/api/v1")
	api.Use(auth.Middleware())
	{
		api.POST("/conversations", handler.CreateConversation)
		api.GET("/conversations", handler.ListConversations)
		api.GET("/conversations/:id", handler.GetConversation)
		api.GET("/conversations/:id/messages", handler.ListMessages)
		api.POST("/conversations/:id/messages", handler.SendMessage)
		api.POST("/conversations/:id/upload-files", handler.UploadFiles)
		api.PUT("/conversations/:id/read", handler.MarkRead)
	}

	return router
}
