package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/charlesng35/dealcache/pkg/errors"
	"github.com/charlesng35/dealcache/pkg/logger"
	"github.com/charlesng35/dealcache/pkg/response"
)

// ErrTooManyRequests is returned once a client exceeds its window.
var ErrTooManyRequests = appErrors.New("RATE_LIMITED", "Too many requests", http.StatusTooManyRequests)

// Counter is the fixed-window counter every cache tier provides.
type Counter interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RateLimit allows limit requests per client and route in each window. Without a counter
// the middleware is a no-op, and counter failures let the request through.
func RateLimit(counter Counter, limit int, window time.Duration) gin.HandlerFunc {
	if counter == nil || limit <= 0 || window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	allowed := int64(limit)

	return func(c *gin.Context) {
		key := "ratelimit:" + c.ClientIP() + "|" + c.Request.Method + " " + c.FullPath()
		count, ttl, err := counter.IncrementWithTTL(c.Request.Context(), key, window)
		if err != nil {
			logger.WithModule("http").Warn("rate limit counter unavailable", zap.Error(err))
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(max(0, allowed-count), 10))
		h.Set("X-RateLimit-Reset", strconv.Itoa(int(ttl.Seconds())))

		if count > allowed {
			h.Set("Retry-After", strconv.Itoa(int(ttl.Seconds())))
			response.Error(c, ErrTooManyRequests)
			c.Abort()
			return
		}
		c.Next()
	}
}
