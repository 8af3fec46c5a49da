package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	outcomeKey      = "verification_outcome"
	claimKey        = "verification_claim"
)

// sensitiveParams never reach the request log.
var sensitiveParams = []string{"code", "state", "access_token", "id_token"}

// quietPaths are logged at debug level when they succeed.
var quietPaths = map[string]struct{}{"/healthz": {}, "/metrics": {}}

// SetOutcome attaches a pipeline outcome to the access log line.
func SetOutcome(c *gin.Context, claim, outcome string) {
	if claim != "" {
		c.Set(claimKey, claim)
	}
	c.Set(outcomeKey, outcome)
}

// RequestID returns the id assigned by RequestLogger.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// RequestLogger writes one access log line per request. OAuth parameters are
// redacted; the trace id is included when a span is active, so it must run
// after the tracing middleware.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.L()
	}

	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		path := c.Request.URL.Path
		if rawQuery := redactQuery(c.Request.URL.RawQuery); rawQuery != "" {
			path += "?" + rawQuery
		}
		spanCtx := trace.SpanContextFromContext(c.Request.Context())

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if spanCtx.HasTraceID() {
			fields = append(fields, zap.String("trace_id", spanCtx.TraceID().String()))
		}
		if identity, ok := GetIdentity(c); ok {
			fields = append(fields, zap.String("identity", identity.String()))
		}
		if claim := c.GetString(claimKey); claim != "" {
			fields = append(fields, zap.String("claim", claim))
		}
		if outcome := c.GetString(outcomeKey); outcome != "" {
			fields = append(fields, zap.String("outcome", outcome))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch _, quiet := quietPaths[c.Request.URL.Path]; {
		case status >= 500:
			logger.Error("http_request", fields...)
		case status >= 400:
			logger.Warn("http_request", fields...)
		case quiet:
			logger.Debug("http_request", fields...)
		default:
			logger.Info("http_request", fields...)
		}
	}
}

func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "[unparseable]"
	}
	for _, key := range sensitiveParams {
		if values.Has(key) {
			values.Set(key, "REDACTED")
		}
	}
	return values.Encode()
}
