package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// RateLimiter fixed-window request limit per client IP, counted in Redis so
// every instance shares it. A nil client or a Redis error lets requests through.
func RateLimiter(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil {
			c.Next()
			return
		}
		clientIP := c.ClientIP()

		// websocket upgrades: 5 per minute
		if strings.HasSuffix(c.Request.URL.Path, "/ws") {
			handleRateLimit(c, rdb, "rate_limit:ws:"+clientIP, 5, time.Minute)
			return
		}

		// API requests: 120 per minute
		handleRateLimit(c, rdb, "rate_limit:api:"+clientIP, 120, time.Minute)
	}
}

func handleRateLimit(c *gin.Context, rdb *redis.Client, key string, limit int, window time.Duration) {
	ctx := c.Request.Context()

	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		c.Next()
		return
	}
	if count == 1 {
		rdb.Expire(ctx, key, window)
	}

	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

	if count > int64(limit) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "too many requests, try again later",
		})
		return
	}

	c.Next()
}
