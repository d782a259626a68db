package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"practicehub/config"
	"practicehub/models"
)

// Context keys set by JWTAuth
const (
	ContextUserID         = "userID"
	ContextUsername       = "username"
	ContextOrganizationID = "organizationID"
	ContextRole           = "role"
)

// JWTClaims token claims
type JWTClaims struct {
	UserID         string          `json:"user_id"`
	Username       string          `json:"username"`
	OrganizationID string          `json:"organization_id"`
	Role           models.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken issues a token valid for 24 hours
func GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		UserID:         user.ID,
		Username:       user.Username,
		OrganizationID: user.OrganizationID,
		Role:           user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "practicehub",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

// ParseToken validates a token and returns its claims
func ParseToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		if claims.UserID == "" || claims.OrganizationID == "" {
			return nil, errors.New("token without user or organization")
		}
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// JWTAuth authenticates requests with a Bearer token. Browsers cannot set
// headers on websocket upgrades, so /api/ws also accepts ?token=.
func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipAuth(c.Request.URL.Path) {
			c.Next()
			return
		}

		tokenString := bearerToken(c.GetHeader("Authorization"))
		if tokenString == "" && strings.HasSuffix(c.Request.URL.Path, "/ws") {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed token"})
			return
		}

		claims, err := ParseToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token: " + err.Error()})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextOrganizationID, claims.OrganizationID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// skipAuth public paths
func skipAuth(path string) bool {
	noAuthPaths := []string{
		"/api/login",
		"/api/register",
		"/api/monitor",
	}

	for _, p := range noAuthPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
