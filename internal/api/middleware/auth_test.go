package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharon232323/bidmate/internal/api/middleware"
	"github.com/sharon232323/bidmate/internal/auth"
	"github.com/sharon232323/bidmate/internal/models"
)

const testSecret = "test-secret"

func authEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.AuthMiddleware(testSecret))
	r.GET("/me", func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		c.JSON(http.StatusOK, p)
	})
	r.POST("/write", middleware.ApprovedMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func token(t *testing.T, p models.Principal, ttl time.Duration) string {
	t.Helper()
	tok, err := auth.GenerateJWT(p, testSecret, ttl)
	require.NoError(t, err)
	return tok
}

func request(r *gin.Engine, method, path, authHeader string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := authEngine()

	assert.Equal(t, http.StatusUnauthorized, request(r, "GET", "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, request(r, "GET", "/me", "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, request(r, "GET", "/me", "Bearer not-a-jwt").Code)

	expired := token(t, models.Principal{Email: "a@x.com"}, -time.Minute)
	assert.Equal(t, http.StatusUnauthorized, request(r, "GET", "/me", "Bearer "+expired).Code)

	other, err := auth.GenerateJWT(models.Principal{Email: "a@x.com"}, "other-secret", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, request(r, "GET", "/me", "Bearer "+other).Code)

	ok := token(t, models.Principal{Email: "a@x.com", Approved: true}, time.Hour)
	w := request(r, "GET", "/me", "Bearer "+ok)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"email":"a@x.com","is_admin":false,"approved":true}`, w.Body.String())
}

func TestApprovedMiddleware(t *testing.T) {
	r := authEngine()

	pending := token(t, models.Principal{Email: "new@x.com"}, time.Hour)
	assert.Equal(t, http.StatusForbidden, request(r, "POST", "/write", "Bearer "+pending).Code)

	approved := token(t, models.Principal{Email: "a@x.com", Approved: true}, time.Hour)
	assert.Equal(t, http.StatusNoContent, request(r, "POST", "/write", "Bearer "+approved).Code)

	admin := token(t, models.Principal{Email: "root@x.com", IsAdmin: true}, time.Hour)
	assert.Equal(t, http.StatusNoContent, request(r, "POST", "/write", "Bearer "+admin).Code)
}
