package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echocast/internal/middleware"
	"github.com/lalith-99/echocast/internal/service"
	"go.uber.org/zap"
)

// SubscriptionHandler serves the subscription ledger. Callers always act on
// their own subscriptions.
type SubscriptionHandler struct {
	ledger *service.SubscriptionService
	logger *zap.Logger
}

func NewSubscriptionHandler(ledger *service.SubscriptionService, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{ledger: ledger, logger: logger}
}

type subscribeRequest struct {
	ChannelID string `json:"channel_id" binding:"required"`
}

// Subscribe handles POST /v1/subscriptions
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.ledger.Subscribe(c.Request.Context(), middleware.GetUserID(c), req.ChannelID)
	if err != nil {
		respondError(c, h.logger, err, "failed to subscribe")
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /v1/subscriptions/:channelId
func (h *SubscriptionHandler) Unsubscribe(c *gin.Context) {
	changed, err := h.ledger.Unsubscribe(c.Request.Context(), middleware.GetUserID(c), c.Param("channelId"))
	if err != nil {
		respondError(c, h.logger, err, "failed to unsubscribe")
		return
	}
	c.JSON(http.StatusOK, gin.H{"unsubscribed": changed})
}

// Mine handles GET /v1/subscriptions/me
func (h *SubscriptionHandler) Mine(c *gin.Context) {
	subs, err := h.ledger.GetUserSubscriptions(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to list subscriptions")
		return
	}
	c.JSON(http.StatusOK, subs)
}

// Check handles GET /v1/subscriptions/check/:channelId
func (h *SubscriptionHandler) Check(c *gin.Context) {
	ok, err := h.ledger.IsSubscribed(c.Request.Context(), middleware.GetUserID(c), c.Param("channelId"))
	if err != nil {
		respondError(c, h.logger, err, "failed to check subscription")
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscribed": ok})
}

// Subscribers handles GET /v1/channels/:id/subscribers
func (h *SubscriptionHandler) Subscribers(c *gin.Context) {
	subs, err := h.ledger.GetChannelSubscribers(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "failed to list subscribers")
		return
	}
	c.JSON(http.StatusOK, subs)
}

// Stats handles GET /v1/subscriptions/stats
func (h *SubscriptionHandler) Stats(c *gin.Context) {
	stats, err := h.ledger.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "failed to get subscription stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}
