// Package http exposes the HTTP surface: REST auth endpoints, a health
// check and the WebSocket upgrade that feeds the gateway.
package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chatbox-im/chatbox-server/internal/auth"
	"github.com/chatbox-im/chatbox-server/internal/config"
	"github.com/chatbox-im/chatbox-server/internal/gateway"
	"github.com/chatbox-im/chatbox-server/internal/store"
)

// NewServer builds the HTTP server with all routes mounted.
func NewServer(gw *gateway.Gateway, authService *auth.Service, users store.UserStore, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(LoggerMiddleware(logger), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	api := NewAPIHandlers(authService, users, logger)
	router.POST("/api/register", api.Register)
	router.POST("/api/login", api.Login)
	router.GET("/api/me", AuthMiddleware(authService, logger), api.Me)

	router.GET("/ws", gin.WrapH(NewWSHandler(gw, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
