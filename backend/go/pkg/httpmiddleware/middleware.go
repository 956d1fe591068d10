package httpmiddleware

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"gemini_agent_api/backend/go/internal/config"
	"gemini_agent_api/backend/go/internal/models"
	"gemini_agent_api/backend/go/pkg/logger"
	"gemini_agent_api/backend/go/pkg/ratelimiter"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader is the header carrying the per-request trace id.
const RequestIDHeader = "X-Request-ID"

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "requestID"

// RequestID is a middleware that assigns every request an id, reusing a
// client-supplied X-Request-ID when present, and echoes it in the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the id set by RequestID, or "" if the middleware did not run.
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// RequestLogger is a middleware that writes one structured log line per request.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		info := models.RequestInfo{
			RequestID:  GetRequestID(c),
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			RemoteAddr: c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			Status:     c.Writer.Status(),
			LatencyMS:  time.Since(start).Milliseconds(),
		}
		l := log.WithTrace(info.RequestID).WithRequest(info)
		switch {
		case info.Status >= http.StatusInternalServerError:
			l.Error("request completed")
		case info.Status >= http.StatusBadRequest:
			l.Warn("request completed")
		default:
			l.Info("request completed")
		}
	}
}

// RateLimit is a middleware that applies per-client rate limiting, keyed by client IP.
// If the limiter itself fails (e.g. Redis is down) the request is let through.
func RateLimit(limiter ratelimiter.RateLimiter, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.WithTrace(GetRequestID(c)).WithError(models.ErrorInfo{Message: err.Error(), Type: "rate_limiter"}).Warn("rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.NewErrorResponse("Too Many Requests", "rate limit exceeded"))
			return
		}
		c.Next()
	}
}

// CORS builds the gin-contrib/cors middleware from cfg. A "*" entry allows any value.
// With credentials enabled the concrete origin is echoed instead of "*".
// Requests from origins outside the list are rejected with 403.
// It returns an error for malformed origins instead of letting cors.New panic.
func CORS(cfg config.CORSConfig) (gin.HandlerFunc, error) {
	if len(cfg.AllowOrigins) == 0 {
		return func(c *gin.Context) { c.Next() }, nil
	}

	cc := cors.Config{
		AllowMethods:     cfg.AllowMethods,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           10 * time.Minute,
	}
	if len(cc.AllowMethods) == 0 || slices.Contains(cc.AllowMethods, "*") {
		cc.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}
	echoHeaders := len(cfg.AllowHeaders) == 0 || slices.Contains(cfg.AllowHeaders, "*")
	if !echoHeaders {
		cc.AllowHeaders = cfg.AllowHeaders
	}
	switch {
	case slices.Contains(cfg.AllowOrigins, "*") && cfg.AllowCredentials:
		// 携带凭证时浏览器不接受通配符
		cc.AllowOriginFunc = func(string) bool { return true }
	case slices.Contains(cfg.AllowOrigins, "*"):
		cc.AllowAllOrigins = true
	default:
		cc.AllowOrigins = cfg.AllowOrigins
	}
	if err := cc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid CORS config: %w", err)
	}
	handler := cors.New(cc)

	return func(c *gin.Context) {
		if echoHeaders && c.Request.Method == http.MethodOptions {
			if reqHeaders := c.GetHeader("Access-Control-Request-Headers"); reqHeaders != "" {
				c.Header("Access-Control-Allow-Headers", reqHeaders)
			}
		}
		handler(c)
	}, nil
}
