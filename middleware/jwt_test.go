package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"practicehub/config"
	"practicehub/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testUser() *models.User {
	return &models.User{ID: "user-1", Username: "ana", OrganizationID: "org-1", Role: models.RoleProfessional}
}

func withSecret(t *testing.T, secret string) {
	t.Helper()
	old := config.AppConfig.JWTSecret
	config.AppConfig.JWTSecret = secret
	t.Cleanup(func() { config.AppConfig.JWTSecret = old })
}

func TestGenerateAndParseToken(t *testing.T) {
	withSecret(t, "test-secret")

	token, err := GenerateToken(testUser())
	require.NoError(t, err)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "ana", claims.Username)
	assert.Equal(t, "org-1", claims.OrganizationID)
	assert.Equal(t, models.RoleProfessional, claims.Role)
}

func TestParseToken_Rejects(t *testing.T) {
	withSecret(t, "test-secret")
	token, err := GenerateToken(testUser())
	require.NoError(t, err)

	config.AppConfig.JWTSecret = "rotated"
	_, err = ParseToken(token)
	assert.Error(t, err, "wrong secret")

	config.AppConfig.JWTSecret = "test-secret"
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{
		UserID:         "user-1",
		OrganizationID: "org-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = ParseToken(signed)
	assert.Error(t, err, "expired")

	orphan := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{UserID: "user-1"})
	signed, err = orphan.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = ParseToken(signed)
	assert.Error(t, err, "no organization")
}

func newAuthRouter() *gin.Engine {
	r := gin.New()
	r.Use(JWTAuth())
	handler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":         c.GetString(ContextUserID),
			"organization_id": c.GetString(ContextOrganizationID),
		})
	}
	r.GET("/api/activities", handler)
	r.GET("/api/ws", handler)
	r.POST("/api/login", handler)
	return r
}

func TestJWTAuth(t *testing.T) {
	withSecret(t, "test-secret")
	token, err := GenerateToken(testUser())
	require.NoError(t, err)
	r := newAuthRouter()

	tests := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{"missing token", http.MethodGet, "/api/activities", "", http.StatusUnauthorized},
		{"malformed header", http.MethodGet, "/api/activities", "Token " + token, http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/api/activities", "Bearer nope", http.StatusUnauthorized},
		{"bearer token", http.MethodGet, "/api/activities", "Bearer " + token, http.StatusOK},
		{"query token on websocket", http.MethodGet, "/api/ws?token=" + token, "", http.StatusOK},
		{"query token elsewhere", http.MethodGet, "/api/activities?token=" + token, "", http.StatusUnauthorized},
		{"public path", http.MethodPost, "/api/login", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestJWTAuth_SetsContext(t *testing.T) {
	withSecret(t, "test-secret")
	token, err := GenerateToken(testUser())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/activities", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	newAuthRouter().ServeHTTP(w, req)

	assert.JSONEq(t, `{"user_id":"user-1","organization_id":"org-1"}`, w.Body.String())
}

func TestRateLimiter_WithoutRedisPassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(nil))
	r.GET("/api/activities", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 200; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/activities", nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}
}
