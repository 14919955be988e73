package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echocast/internal/service"
	"go.uber.org/zap"
)

// AdminHandler serves the operator routes behind AdminMiddleware.
type AdminHandler struct {
	admin  *service.AdminService
	logger *zap.Logger
}

func NewAdminHandler(admin *service.AdminService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

// Reset handles DELETE /v1/admin/reset
func (h *AdminHandler) Reset(c *gin.Context) {
	if err := h.admin.Reset(c.Request.Context()); err != nil {
		respondError(c, h.logger, err, "failed to reset")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// Queues handles GET /v1/admin/queues
func (h *AdminHandler) Queues(c *gin.Context) {
	rows, err := h.admin.QueueDepths(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "failed to describe queues")
		return
	}
	c.JSON(http.StatusOK, rows)
}

// Health handles GET /v1/admin/health. A degraded dependency answers 503
// so load balancers can act on it.
func (h *AdminHandler) Health(c *gin.Context) {
	report := h.admin.Health(c.Request.Context())
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
