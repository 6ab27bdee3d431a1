// Package api exposes the staff HTTP API and mounts the chat socket.
package api

import (
	"log/slog"
	"net/http"
	"shop-chat/auth"
	"shop-chat/services"
	"time"

	"github.com/gin-gonic/gin"
)

type Server struct {
	log           *slog.Logger
	chat          services.IChatService
	auth          services.IAuthService
	verifier      *auth.SessionVerifier
	socket        http.Handler
	maxUploadSize int64
}

func NewServer(log *slog.Logger,
	chat services.IChatService,
	authService services.IAuthService,
	verifier *auth.SessionVerifier,
	socket http.Handler,
	maxUploadSize int64) *Server {
	return &Server{
		log:           log,
		chat:          chat,
		auth:          authService,
		verifier:      verifier,
		socket:        socket,
		maxUploadSize: maxUploadSize,
	}
}

// Engine builds the gin routes.
func (s *Server) Engine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), s.logRequests())

	if s.socket != nil {
		engine.GET("/ws", gin.WrapH(s.socket))
	}
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	public := engine.Group("/api/staff")
	public.POST("/login", s.login)
	public.POST("/logout", s.logout)

	private := engine.Group("/api", auth.RequireStaff(s.verifier))
	private.GET("/conversations", s.conversations)
	private.POST("/conversations/:id/reply", s.reply)
	private.GET("/conversations/:id/messages", s.history)
	private.POST("/conversations/:id/status", s.setStatus)
	private.POST("/files", s.upload)
	private.GET("/search", s.search)
	private.GET("/stats", s.stats)
	return engine
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
