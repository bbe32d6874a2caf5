package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vendalink/salechat-server/internal/auth"
	"github.com/vendalink/salechat-server/internal/config"
	"github.com/vendalink/salechat-server/internal/service/messaging"
	"github.com/vendalink/salechat-server/internal/service/notify"
	"github.com/vendalink/salechat-server/internal/store"
)

// NewServer builds the HTTP server with REST and WebSocket routes.
func NewServer(msgService *messaging.Service, notifService *notify.Service, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	apiHandlers := NewAPIHandlers(authService, logger)
	userHandlers := NewUserHandlers(st, logger)
	chatHandlers := NewChatHandlers(msgService, logger)
	notifHandlers := NewNotificationHandlers(notifService, logger)
	wsHandler := NewWSHandler(msgService, authService, logger)

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	authed := api.Group("")
	authed.Use(AuthMiddleware(authService, logger))
	authed.GET("/users/search", userHandlers.SearchUsers)
	authed.POST("/messages", chatHandlers.SendMessage)
	authed.GET("/conversations", chatHandlers.ListConversations)
	authed.GET("/conversations/:peer_id/messages", chatHandlers.GetThread)
	authed.POST("/conversations/:peer_id/read", chatHandlers.MarkThreadRead)
	authed.GET("/notifications", notifHandlers.List)
	authed.POST("/notifications/:id/read", notifHandlers.MarkRead)
	authed.POST("/notifications/read-all", notifHandlers.MarkAllRead)
	authed.GET("/notifications/unread-count", notifHandlers.UnreadCount)

	router.GET("/ws", gin.WrapH(wsHandler))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
