// Package middleware provides HTTP middleware for the roster service.
package middleware

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxRequestIDAttr bounds the request_id attribute copied from a client
// supplied header.
const maxRequestIDAttr = 128

var tenantHeaderRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// TracingConfig configures the otelgin span middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// DefaultTracingConfig traces under the service's canonical name.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "roster-backend",
		Enabled:     true,
	}
}

// Tracing opens one span per request via otelgin. Pair with TraceFields,
// registered after it, to get the service's identity attributes on the span.
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig is Tracing with a custom config. Disabled tracing
// degrades to a passthrough handler.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return otelgin.Middleware(cfg.ServiceName)
}

// TraceFields annotates the active span once the rest of the chain has run,
// so identity set by later middleware (JWT claims) is visible. Spans for
// 4xx and 5xx responses are marked as errors.
func TraceFields() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		if id := traceRequestID(c); id != "" {
			span.SetAttributes(attribute.String("request_id", id))
		}
		if id := traceTenantID(c); id != "" {
			span.SetAttributes(attribute.String("tenant_id", id))
		}
		if id := GetJWTUserID(c); id != "" {
			span.SetAttributes(attribute.String("user_id", id))
		}

		if status := c.Writer.Status(); status >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(status))
			span.SetAttributes(attribute.Int("http.status_code", status))
		}
	}
}

func traceRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	id := c.GetHeader("X-Request-ID")
	if len(id) > maxRequestIDAttr {
		id = id[:maxRequestIDAttr]
	}
	return id
}

// traceTenantID prefers the authenticated claim. The header fallback only
// accepts a UUID, anything else stays out of the trace.
func traceTenantID(c *gin.Context) string {
	if id := GetJWTTenantID(c); id != "" {
		return id
	}
	if id := c.GetHeader("X-Tenant-ID"); tenantHeaderRegex.MatchString(id) {
		return id
	}
	return ""
}
