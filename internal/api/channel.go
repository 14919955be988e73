package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echocast/internal/middleware"
	"github.com/lalith-99/echocast/internal/models"
	"github.com/lalith-99/echocast/internal/service"
	"go.uber.org/zap"
)

// ChannelHandler serves the channel registry.
type ChannelHandler struct {
	channels *service.ChannelService
	logger   *zap.Logger
}

func NewChannelHandler(channels *service.ChannelService, logger *zap.Logger) *ChannelHandler {
	return &ChannelHandler{channels: channels, logger: logger}
}

type createChannelRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description" binding:"required"`
}

// Create handles POST /v1/channels. Only publishers create channels; the
// caller becomes the owner.
func (h *ChannelHandler) Create(c *gin.Context) {
	if middleware.GetRole(c) != models.RolePublisher {
		c.JSON(http.StatusForbidden, gin.H{"error": "only publishers can create channels"})
		return
	}

	var req createChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ch, err := h.channels.Create(c.Request.Context(), req.Name, req.Description, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to create channel")
		return
	}
	c.JSON(http.StatusCreated, ch)
}

// List handles GET /v1/channels
//
//	?publisherId=<id>     channels owned by that publisher
//	?forSubscriber=true   discovery view with publisher names
//	(no query)            every active channel
func (h *ChannelHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	if publisherID := c.Query("publisherId"); publisherID != "" {
		channels, err := h.channels.ListByPublisher(ctx, publisherID)
		if err != nil {
			respondError(c, h.logger, err, "failed to list channels")
			return
		}
		c.JSON(http.StatusOK, channels)
		return
	}

	if c.Query("forSubscriber") == "true" {
		channels, err := h.channels.ListPublic(ctx)
		if err != nil {
			respondError(c, h.logger, err, "failed to list channels")
			return
		}
		c.JSON(http.StatusOK, channels)
		return
	}

	channels, err := h.channels.ListAll(ctx)
	if err != nil {
		respondError(c, h.logger, err, "failed to list channels")
		return
	}
	c.JSON(http.StatusOK, channels)
}

// GetByID handles GET /v1/channels/:id
func (h *ChannelHandler) GetByID(c *gin.Context) {
	ch, err := h.channels.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "failed to get channel")
		return
	}
	c.JSON(http.StatusOK, ch)
}

// Update handles PUT /v1/channels/:id
func (h *ChannelHandler) Update(c *gin.Context) {
	if !h.requireOwner(c) {
		return
	}

	var patch models.ChannelPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ch, err := h.channels.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, h.logger, err, "failed to update channel")
		return
	}
	c.JSON(http.StatusOK, ch)
}

// Delete handles DELETE /v1/channels/:id
func (h *ChannelHandler) Delete(c *gin.Context) {
	if !h.requireOwner(c) {
		return
	}

	if _, err := h.channels.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err, "failed to delete channel")
		return
	}
	c.Status(http.StatusNoContent)
}

// Stats handles GET /v1/channels/:id/stats
func (h *ChannelHandler) Stats(c *gin.Context) {
	stats, err := h.channels.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "failed to get channel stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// requireOwner writes the response and returns false unless the caller
// owns the channel in the :id path parameter.
func (h *ChannelHandler) requireOwner(c *gin.Context) bool {
	return requireChannelOwner(c, h.channels, h.logger)
}

func requireChannelOwner(c *gin.Context, channels *service.ChannelService, logger *zap.Logger) bool {
	ch, err := channels.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, logger, err, "failed to get channel")
		return false
	}
	if ch.CreatedBy != middleware.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the channel owner can do this"})
		return false
	}
	return true
}
