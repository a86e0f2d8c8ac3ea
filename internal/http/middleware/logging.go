// Package middleware contains the shared Gin middleware for the HTTP layer:
// correlation IDs, structured (redacting) access logs, panic recovery,
// Prometheus metrics, idempotency-key validation, token-bucket rate limiting,
// and security headers.
//
// Recommended order: RequestID → RedactingLogger → Recovery, so panics and
// errors are logged with the correlation ID attached.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// ctxKeyRequestID is the Gin context key holding the correlation ID.
	ctxKeyRequestID = "requestID"
	// ctxKeyLogger is the Gin context key holding the request-scoped logger.
	ctxKeyLogger = "logger"
	// HeaderRequestID propagates the correlation ID on requests and responses.
	HeaderRequestID = "X-Request-ID"

	// queryLogCap bounds how much of the raw query string ends up in logs.
	queryLogCap = 2048
)

// RequestID reuses the caller-supplied X-Request-ID or mints a UUIDv4, stores
// it in the Gin context, and echoes it on the response. Mount it first so
// every later middleware and handler sees the same ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, rid)
		c.Writer.Header().Set(HeaderRequestID, rid)
		c.Next()
	}
}

// Logger emits one structured access-log line per request and attaches a
// request-scoped zerolog.Logger under the "logger" context key. Level follows
// the outcome: 5xx (or collected Gin errors) log at error, 4xx at warn,
// everything else at info.
//
// RedactingLogger is the production logger; Logger is kept for setups that do
// not need PII scrubbing.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := c.GetString(ctxKeyRequestID)
		uid := c.GetString("userID")

		l := log.With().
			Str("request_id", rid).
			Str("user_id", uid).
			Str("method", c.Request.Method).
			Str("path", routePath(c)).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("referer", c.Request.Referer()).
			Str("query", capString(c.Request.URL.RawQuery, queryLogCap)).
			Int64("bytes_in", c.Request.ContentLength).
			Logger()
		c.Set(ctxKeyLogger, &l)

		c.Next()

		status := c.Writer.Status()
		out := l.With().
			Int("status", status).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size()).
			Logger()

		switch {
		case len(c.Errors) > 0:
			out.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= http.StatusInternalServerError:
			out.Error().Msg("request")
		case status >= http.StatusBadRequest:
			out.Warn().Msg("request")
		default:
			out.Info().Msg("request")
		}
	}
}

// Recovery converts panics into JSON 500 responses, logging the panic value
// and stack with the correlation ID. If the handler already wrote a response,
// only the status is aborted.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := c.GetString(ctxKeyRequestID)
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", rid).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header("Content-Type", "application/json")
			c.Header(HeaderRequestID, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger attached by Logger or
// RedactingLogger, falling back to the global logger so callers never need a
// nil check.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(ctxKeyLogger); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// routePath prefers the matched route pattern (stable cardinality) and falls
// back to the raw URL path for unmatched requests.
func routePath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

// capString truncates s to max bytes, appending an ellipsis. max <= 0 leaves
// s untouched. Byte truncation is fine for log output.
func capString(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
