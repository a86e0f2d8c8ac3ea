// Idempotency-Key handling for unsafe endpoints, primarily message posting.
// The middleware validates the header, stashes the key in the Gin context,
// and — given a lookup — flags requests whose result was already recorded so
// the handler can replay it and the rate limiter can wave it through.
// Persistence stays behind the narrow IdempotencyLookup function type.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client-chosen idempotency key. The value
// must be stable across retries of the same semantic operation.
const HeaderIdempotencyKey = "Idempotency-Key"

// Context keys for idempotency state; read through the accessors below.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

// defaultKeyPattern accepts RFC-7230-ish tokens plus common safe separators.
var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator
// and whether one is present. Handlers should use this instead of re-reading
// the header.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether this request duplicates a previously completed one
// for the same (user, session, key).
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions tunes header validation. MaxLen <= 0 defaults to 200; a
// nil Pattern uses defaultKeyPattern. TTL enforcement belongs to the lookup,
// not the middleware.
type IdempotencyOptions struct {
	MaxLen  int
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether a still-valid recorded result exists for
// (userID, sessionID, key) at the given time. Lookup errors must not block
// normal processing.
type IdempotencyLookup func(ctx context.Context, userID, sessionID, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header when present,
// stashes the key, and consults the lookup to mark replays (which also bypass
// rate limiting). Requests without the header pass through untouched; invalid
// keys are rejected with 400. Serving the cached payload is left to the
// handler.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "bad_idempotency_key",
				"message": "invalid Idempotency-Key",
			})
			return
		}

		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			// The session scope comes from the :id path param of
			// POST /sessions/:id/messages.
			sessionID := c.Param("id")
			exists, _ := lookup(c.Request.Context(), userIDFromCtx(c), sessionID, key, time.Now().UTC())
			if exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

// userIDFromCtx resolves the caller identity: the context value set by
// upstream auth, then the X-User-ID header, then the development fallback.
func userIDFromCtx(c *gin.Context) string {
	if s := c.GetString("userID"); s != "" {
		return s
	}
	if c.Request != nil {
		if h := c.GetHeader("X-User-ID"); h != "" {
			return h
		}
	}
	return "demo-user"
}
