package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echocast/internal/auth"
	"github.com/lalith-99/echocast/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func whoami(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c), "role": GetRole(c)})
}

func TestAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/me", AuthMiddleware("secret"), whoami)

	token, err := auth.GenerateToken("user_bob_1", models.RoleSubscriber, "secret", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.JSONEq(t, `{"user_id":"user_bob_1","role":"subscriber"}`, w.Body.String())
			}
		})
	}
}

func TestAdminMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	require.NoError(t, err)

	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }

	enabled := gin.New()
	enabled.GET("/admin", AdminMiddleware(string(hash)), ok)
	disabled := gin.New()
	disabled.GET("/admin", AdminMiddleware(""), ok)

	tests := []struct {
		name   string
		router *gin.Engine
		token  string
		want   int
	}{
		{"correct token", enabled, "letmein", http.StatusNoContent},
		{"wrong token", enabled, "guess", http.StatusUnauthorized},
		{"no token", enabled, "", http.StatusUnauthorized},
		{"disabled", disabled, "letmein", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.token != "" {
				req.Header.Set(AdminTokenHeader, tt.token)
			}
			w := httptest.NewRecorder()
			tt.router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
