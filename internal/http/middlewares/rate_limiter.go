package middlewares

import (
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openshelf/lendhub/internal/observability"
	"github.com/openshelf/lendhub/internal/ratelimit"
)

// RateLimit gates a route against the shared counter store so the budget
// holds across every API instance. keyFn derives the identity to charge;
// it falls back to the client IP when no key can be derived.
func RateLimit(limiter *ratelimit.Limiter, prom *observability.Prom, keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)

		if key == "" {
			key = clientIP(c)
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		d := limiter.Check(c.Request.Context(), route+":"+key)

		if !d.Allowed {
			prom.RateLimitTotal.WithLabelValues(route, "denied").Inc()

			retryAfter := int(d.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "rate_limited",
					"message": "Too many requests. Please try again shortly.",
				},
			})
			return
		}

		prom.RateLimitTotal.WithLabelValues(route, "allowed").Inc()
		c.Next()
	}
}

// for unauthenticated endpoints: rate limit by IP
func KeyByIP(c *gin.Context) string {
	return clientIP(c)
}

// for authenticated endpoints: rate limit by userID if available
func KeyByUserOrIP(c *gin.Context) string {
	id, ok := UserIDFromContext(c)

	if ok && id != "" {
		return "user:" + id
	}

	return clientIP(c)
}

func clientIP(c *gin.Context) string {
	// Gin's ClientIP respects X-Forwarded-For / X-Real-IP if configured.
	ip := c.ClientIP()

	host, _, err := net.SplitHostPort(ip)

	if err == nil && host != "" {
		return host
	}

	return ip
}
