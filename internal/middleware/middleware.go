package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"print-gateway/internal/config"
	"print-gateway/internal/logger"
	"print-gateway/internal/utils"
)

func EnhancedLogger(log *logger.Logger) gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		duration := param.Latency.String()
		status := fmt.Sprintf("%d", param.StatusCode)

		// Determine log level based on status code
		if param.StatusCode >= 500 {
			log.Error("API", fmt.Sprintf("%s %s - %s (%s) - ERROR: %s",
				param.Method, param.Path, status, duration, param.ErrorMessage))
		} else if param.StatusCode >= 400 {
			log.Warn("API", fmt.Sprintf("%s %s - %s (%s) - Client Error",
				param.Method, param.Path, status, duration))
		} else {
			log.LogAPI(param.Method, param.Path, status, duration)
		}

		log.Debug("REQUEST", fmt.Sprintf("IP: %s, UserAgent: %s",
			param.ClientIP, param.Request.UserAgent()))

		// Return empty string since we're handling logging ourselves
		return ""
	})
}

// Recovery turns a panic into an opaque 500; the panic value is only logged.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error("PANIC", fmt.Sprintf("Recovered from panic on %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, utils.ErrorResponse("Internal server error", ""))
	})
}

func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Stripe-Signature, X-Device-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func RateLimit(cfg config.RateLimitConfig, log *logger.Logger) gin.HandlerFunc {
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	limiter := rate.NewLimiter(limit, cfg.Burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			log.LogSecurity("RATE_LIMIT", fmt.Sprintf("Rate limit exceeded for IP: %s", c.ClientIP()))
			body := utils.ErrorResponse("Rate limit exceeded", "")
			body["retry_after"] = "1s"
			c.AbortWithStatusJSON(http.StatusTooManyRequests, body)
			return
		}
		c.Next()
	}
}

func SecurityHeaders(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Cache-Control", "no-store")

		if c.GetHeader("X-Forwarded-For") != "" {
			log.Debug("SECURITY", fmt.Sprintf("Request via proxy from: %s", c.GetHeader("X-Forwarded-For")))
		}

		c.Next()
	}
}
