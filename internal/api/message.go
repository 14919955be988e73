package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echocast/internal/middleware"
	"github.com/lalith-99/echocast/internal/service"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

type MessageHandler struct {
	messages *service.MessageService
	channels *service.ChannelService
	logger   *zap.Logger
}

func NewMessageHandler(messages *service.MessageService, channels *service.ChannelService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, channels: channels, logger: logger}
}

type createMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type ackRequest struct {
	ReceiptHandle string `json:"receipt_handle" binding:"required"`
}

// Create handles POST /v1/channels/:id/messages. Only the channel owner
// publishes.
func (h *MessageHandler) Create(c *gin.Context) {
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !requireChannelOwner(c, h.channels, h.logger) {
		return
	}

	msg, err := h.messages.Publish(c.Request.Context(), c.Param("id"), req.Content, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to publish message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// Broadcast handles POST /v1/channels/:id/broadcast
func (h *MessageHandler) Broadcast(c *gin.Context) {
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !requireChannelOwner(c, h.channels, h.logger) {
		return
	}

	res, err := h.messages.Broadcast(c.Request.Context(), c.Param("id"), req.Content, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to broadcast message")
		return
	}
	c.JSON(http.StatusCreated, res)
}

// List handles GET /v1/channels/:id/messages?limit=50&reconcile=true
//
// With reconcile=true the channel's queue is pulled into the cache first,
// which is how a reconnecting client catches up. The number of messages
// that pull added is returned in X-Reconciled-Count.
func (h *MessageHandler) List(c *gin.Context) {
	channelID := c.Param("id")

	limit := defaultListLimit
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter"})
			return
		}
		limit = min(n, maxListLimit)
	}

	if c.Query("reconcile") == "true" {
		loaded, err := h.messages.Reconcile(c.Request.Context(), channelID)
		if err != nil {
			respondError(c, h.logger, err, "failed to reconcile messages")
			return
		}
		c.Header("X-Reconciled-Count", strconv.Itoa(len(loaded)))
	}

	msgs, err := h.messages.GetChannelMessages(c.Request.Context(), channelID, limit)
	if err != nil {
		respondError(c, h.logger, err, "failed to list messages")
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// Poll handles POST /v1/channels/:id/poll
func (h *MessageHandler) Poll(c *gin.Context) {
	polled, err := h.messages.Poll(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to poll messages")
		return
	}
	c.JSON(http.StatusOK, polled)
}

// Ack handles POST /v1/channels/:id/ack
func (h *MessageHandler) Ack(c *gin.Context) {
	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.messages.Acknowledge(c.Request.Context(), c.Param("id"), req.ReceiptHandle); err != nil {
		respondError(c, h.logger, err, "failed to acknowledge message")
		return
	}
	c.Status(http.StatusNoContent)
}

// Stats handles GET /v1/messages/stats
func (h *MessageHandler) Stats(c *gin.Context) {
	stats, err := h.messages.Statistics(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "failed to get message stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}
