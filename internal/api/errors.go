package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echocast/internal/apperr"
	"go.uber.org/zap"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": ..., "field": ...}. Internal errors
// are logged and replaced by fallback so nothing internal leaks; dependency
// errors keep the provider message.
func respondError(c *gin.Context, logger *zap.Logger, err error, fallback string) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	if status == http.StatusInternalServerError {
		logger.Error(fallback, zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	if kind == apperr.KindDependency {
		logger.Warn(fallback, zap.Error(err), zap.String("path", c.FullPath()))
	}

	body := gin.H{"error": err.Error()}
	if field := apperr.FieldOf(err); field != "" {
		body["field"] = field
	}
	c.JSON(status, body)
}
