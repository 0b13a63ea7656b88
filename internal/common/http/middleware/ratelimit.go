package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/common/cache"
	pkgerrors "github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/errors"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/utils/response"
)

// RateLimitPolicy bounds requests per fixed window, keyed per user when
// authenticated and per client IP otherwise.
type RateLimitPolicy struct {
	Window time.Duration `yaml:"window"`
	Max    int           `yaml:"max"`
}

// RateLimitMiddleware enforces a fixed-window counter in the cache.
func RateLimitMiddleware(cacheClient cache.Cache, routeKey string, policy RateLimitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cacheClient == nil || policy.Max <= 0 {
			c.Next()
			return
		}
		window := policy.Window
		if window <= 0 {
			window = time.Minute
		}

		subject := c.ClientIP()
		if userID, ok := c.Get(userIDContextKey); ok {
			subject = fmt.Sprintf("%v", userID)
		}
		key := fmt.Sprintf("runner:rate:%s:%s", routeKey, subject)

		count, err := cacheClient.Incr(c.Request.Context(), key)
		if err != nil {
			// The limiter must not take the service down with it.
			c.Next()
			return
		}
		if count == 1 {
			_ = cacheClient.Expire(c.Request.Context(), key, window)
		}
		if count > int64(policy.Max) {
			response.AbortWithErrorCode(c, pkgerrors.TooManyRequests, "rate limit exceeded")
			return
		}
		c.Next()
	}
}
