package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echocast/internal/auth"
	"github.com/lalith-99/echocast/internal/middleware"
	"github.com/lalith-99/echocast/internal/models"
	"github.com/lalith-99/echocast/internal/service"
	"go.uber.org/zap"
)

// UserHandler serves login and profile routes.
type UserHandler struct {
	identity  *service.IdentityService
	jwtSecret string
	jwtTTL    time.Duration
	logger    *zap.Logger
}

func NewUserHandler(identity *service.IdentityService, jwtSecret string, jwtTTL time.Duration, logger *zap.Logger) *UserHandler {
	return &UserHandler{identity: identity, jwtSecret: jwtSecret, jwtTTL: jwtTTL, logger: logger}
}

type loginRequest struct {
	Username string      `json:"username" binding:"required"`
	Role     models.Role `json:"role"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login handles POST /v1/users/login. There are no passwords: the first
// login creates the profile and every login returns a fresh token.
func (h *UserHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.identity.Login(c.Request.Context(), req.Username, req.Role)
	if err != nil {
		respondError(c, h.logger, err, "login failed")
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Role, h.jwtSecret, h.jwtTTL)
	if err != nil {
		h.logger.Error("failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, loginResponse{Token: token, User: user})
}

// GetMe handles GET /v1/users/me
func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.identity.Get(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to get user")
		return
	}
	c.JSON(http.StatusOK, user)
}

// List handles GET /v1/users
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.identity.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "failed to list users")
		return
	}
	c.JSON(http.StatusOK, users)
}

// GetByID handles GET /v1/users/:id
func (h *UserHandler) GetByID(c *gin.Context) {
	user, err := h.identity.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "failed to get user")
		return
	}
	c.JSON(http.StatusOK, user)
}

// Update handles PUT /v1/users/:id. Users may only edit themselves.
func (h *UserHandler) Update(c *gin.Context) {
	id := c.Param("id")
	if id != middleware.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot modify another user"})
		return
	}

	var patch service.UserPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.identity.Update(c.Request.Context(), id, patch)
	if err != nil {
		respondError(c, h.logger, err, "failed to update user")
		return
	}
	c.JSON(http.StatusOK, user)
}

// Deactivate handles DELETE /v1/users/:id
func (h *UserHandler) Deactivate(c *gin.Context) {
	id := c.Param("id")
	if id != middleware.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot deactivate another user"})
		return
	}

	if err := h.identity.Deactivate(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err, "failed to deactivate user")
		return
	}
	c.Status(http.StatusNoContent)
}

// Stats handles GET /v1/users/:id/stats
func (h *UserHandler) Stats(c *gin.Context) {
	stats, err := h.identity.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "failed to get user stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}
