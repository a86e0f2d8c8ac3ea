// RedactingLogger: the production access logger. It emits one structured line
// per request with obvious PII scrubbed from query strings and header values.
// Bodies are never logged.
//
// Scrubbing covers e-mail addresses, phone numbers, and UUID-shaped
// identifiers; Authorization, Cookie, and Set-Cookie (plus any configured
// extras) are masked outright. This reduces, not eliminates, the risk of
// sensitive data reaching log storage.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Redaction patterns, compiled once. UUIDs must be rewritten before phone
// numbers: the phone pattern is loose enough to match digit/hyphen runs
// inside a UUID.
var (
	redactUUIDRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	redactEmailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	redactPhoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// redactPII rewrites identifier-, email-, and phone-shaped substrings.
func redactPII(s string) string {
	if s == "" {
		return s
	}
	s = redactUUIDRE.ReplaceAllString(s, "[REDACTED:id]")
	s = redactEmailRE.ReplaceAllString(s, "[REDACTED:email]")
	s = redactPhoneRE.ReplaceAllString(s, "[REDACTED:phone]")
	return s
}

// RedactOptions configures extra scrubbing for RedactingLogger. MaskHeaders
// lists additional header names (case-insensitive) whose values are replaced
// wholesale with "[REDACTED]"; they merge with the built-in sensitive set.
type RedactOptions struct {
	MaskHeaders []string
}

// RedactingLogger returns a Gin middleware that logs method, route path,
// scrubbed query, status, size, latency, correlation ID, and scrubbed request
// headers. Level tracks the response status (info / warn on 4xx / error on
// 5xx).
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	masked := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		safeQuery := redactPII(c.Request.URL.RawQuery)
		safeHeaders := make(map[string]string, len(c.Request.Header))
		for name, values := range c.Request.Header {
			joined := strings.Join(values, ", ")
			if _, hide := masked[strings.ToLower(name)]; hide {
				safeHeaders[name] = "[REDACTED]"
			} else {
				safeHeaders[name] = redactPII(joined)
			}
		}

		c.Next()

		status := c.Writer.Status()

		// Prefer the response header set by RequestID; fall back to the
		// client-supplied one for requests that bypassed it.
		rid := c.Writer.Header().Get(HeaderRequestID)
		if rid == "" {
			rid = c.GetHeader(HeaderRequestID)
		}

		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		ev.
			Str("request_id", rid).
			Str("method", c.Request.Method).
			Str("path", routePath(c)).
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
