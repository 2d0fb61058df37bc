package logger

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-Id"

// quietRoutes are polled by load balancers; successful hits only log at debug.
var quietRoutes = map[string]bool{"/health": true, "/healthz": true}

// GinRequests scopes a logger to each request and logs one summary line when the handler
// chain returns. The scoped logger carries request_id and, when the request names a call,
// call_id. Handlers reach it through FromGin or From(c.Request.Context()).
func GinRequests(base *slog.Logger) gin.HandlerFunc {
	if base == nil {
		base = slog.Default()
	}
	return func(c *gin.Context) {
		began := time.Now()

		rid := requestID(c)
		c.Header(HeaderRequestID, rid)

		l := base.With("request_id", rid)
		if id := callIDOf(c); id != "" {
			l = l.With("call_id", id)
		}
		c.Request = c.Request.WithContext(With(c.Request.Context(), l))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(began).Milliseconds(),
		}

		switch {
		case len(c.Errors) > 0:
			l.Error("http request", append(attrs, "errors", c.Errors.String())...)
		case status >= 500:
			l.Error("http request", attrs...)
		case status >= 400:
			l.Warn("http request", attrs...)
		case quietRoutes[route]:
			l.Debug("http request", attrs...)
		default:
			l.Info("http request", attrs...)
		}
	}
}

func requestID(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader(HeaderRequestID)); v != "" {
		return v
	}
	return uuid.NewString()
}

// callIDOf prefers the :call_id route param, then the call_id Vonage echoes back on
// webhook query strings.
func callIDOf(c *gin.Context) string {
	if id := c.Param("call_id"); id != "" {
		return id
	}
	return c.Query("call_id")
}

// FromGin returns the logger GinRequests scoped to this request.
func FromGin(c *gin.Context) *slog.Logger {
	if c == nil || c.Request == nil {
		return slog.Default()
	}
	return From(c.Request.Context())
}
