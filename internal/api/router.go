package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echocast/internal/middleware"
	"go.uber.org/zap"
)

// Handlers is everything the router mounts.
type Handlers struct {
	Users         *UserHandler
	Channels      *ChannelHandler
	Subscriptions *SubscriptionHandler
	Messages      *MessageHandler
	Admin         *AdminHandler
	WS            *WSHandler
}

type RouterConfig struct {
	JWTSecret      string
	AdminTokenHash string
}

// NewRouter builds the /v1 API. Health, login and the WebSocket endpoint are
// public (the WebSocket checks its own token); the admin group uses the
// admin token; everything else needs a Bearer JWT.
func NewRouter(h Handlers, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(logger), gin.Recovery())

	r.GET("/v1/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/v1/users/login", h.Users.Login)
	if h.WS != nil {
		r.GET("/v1/ws", h.WS.Serve)
	}

	admin := r.Group("/v1/admin")
	admin.Use(middleware.AdminMiddleware(cfg.AdminTokenHash))
	admin.DELETE("/reset", h.Admin.Reset)
	admin.GET("/queues", h.Admin.Queues)
	admin.GET("/health", h.Admin.Health)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	v1.GET("/users", h.Users.List)
	v1.GET("/users/me", h.Users.GetMe)
	v1.GET("/users/:id", h.Users.GetByID)
	v1.PUT("/users/:id", h.Users.Update)
	v1.DELETE("/users/:id", h.Users.Deactivate)
	v1.GET("/users/:id/stats", h.Users.Stats)

	v1.GET("/channels", h.Channels.List)
	v1.POST("/channels", h.Channels.Create)
	v1.GET("/channels/:id", h.Channels.GetByID)
	v1.PUT("/channels/:id", h.Channels.Update)
	v1.DELETE("/channels/:id", h.Channels.Delete)
	v1.GET("/channels/:id/stats", h.Channels.Stats)
	v1.GET("/channels/:id/subscribers", h.Subscriptions.Subscribers)

	v1.GET("/channels/:id/messages", h.Messages.List)
	v1.POST("/channels/:id/messages", h.Messages.Create)
	v1.POST("/channels/:id/broadcast", h.Messages.Broadcast)
	v1.POST("/channels/:id/poll", h.Messages.Poll)
	v1.POST("/channels/:id/ack", h.Messages.Ack)
	v1.GET("/messages/stats", h.Messages.Stats)

	v1.POST("/subscriptions", h.Subscriptions.Subscribe)
	v1.DELETE("/subscriptions/:channelId", h.Subscriptions.Unsubscribe)
	v1.GET("/subscriptions/me", h.Subscriptions.Mine)
	v1.GET("/subscriptions/check/:channelId", h.Subscriptions.Check)
	v1.GET("/subscriptions/stats", h.Subscriptions.Stats)

	return r
}

// requestLogger logs one line per request through zap instead of gin's
// default stdout logger.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("user_id", middleware.GetUserID(c)),
		)
	}
}
