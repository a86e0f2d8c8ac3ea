// Chat message endpoints: POST /sessions/{id}/messages runs one full turn
// (store the prompt, generate the assistant reply), GET lists a session's
// transcript with paging and ETag support.
//
// A request carrying an Idempotency-Key whose (user, session, key) tuple was
// already completed gets the recorded assistant message back, marked with the
// Idempotency-Replayed response header, instead of a second generation.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/farmassist/go-pharmacy-backend/internal/domain"
	"github.com/farmassist/go-pharmacy-backend/internal/repo"
	"github.com/farmassist/go-pharmacy-backend/internal/services"
)

// PostMessageRequest carries the user prompt. The handler normalizes it
// (Unicode form, line endings) before the service layer sees it.
type PostMessageRequest struct {
	Content string `json:"content" binding:"required,min=1" example:"¿Qué me recomiendan para el dolor de cabeza?"`
}

// PostMessageResponse is one completed turn: the stored prompt (omitted on a
// replay) and the assistant reply.
type PostMessageResponse struct {
	UserMessage *domain.ChatMessage `json:"user_message,omitempty"`
	Message     *domain.ChatMessage `json:"message"`
}

// ListMessagesResponse is a page of a session's transcript.
type ListMessagesResponse struct {
	Messages   []domain.ChatMessage `json:"messages"`
	Pagination Pagination           `json:"pagination"`
}

var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes a prompt before storage and retrieval: Unicode
// NFC (composed and decomposed accents must compare equal for Spanish product
// names), CRLF/CR to LF, runs of 3+ newlines down to a paragraph break, and
// surrounding whitespace trimmed.
func sanitizeContent(raw string) string {
	s := norm.NFC.String(raw)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// discoverMaxPromptRunes reads the prompt-length limit off the concrete
// MessageService, falling back when the handler holds a different
// implementation.
func discoverMaxPromptRunes(msgSvc MessageService) int {
	const fallback = 4000
	if ms, ok := msgSvc.(*services.MessageService); ok && ms.PromptMaxLen > 0 {
		return ms.PromptMaxLen
	}
	return fallback
}

// getIdempotencyKey reads the Idempotency-Key header. Malformed keys were
// already rejected by the validator middleware.
func getIdempotencyKey(c *gin.Context) (string, bool) {
	v := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	return v, v != ""
}

// PostMessage runs one chat turn: validate and sanitize the prompt, delegate
// to the message service, and on success record the turn under the
// idempotency key if one was sent.
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	if _, err := uuid.Parse(sessionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	// Reject oversized prompts at the edge before any DB or provider work.
	content := sanitizeContent(req.Content)
	maxRunes := discoverMaxPromptRunes(h.msgSvc)
	if maxRunes > 0 && utf8.RuneCountInString(content) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", maxRunes))
		return
	}
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	currentUser := userID(c)

	// Replay path: a recorded turn under this key short-circuits generation.
	idemKey, _ := getIdempotencyKey(c)
	if idemKey != "" {
		if svc, okSvc := h.msgSvc.(*services.MessageService); okSvc && svc.DB != nil {
			if rec, err := repo.GetIdempotency(ctx, svc.DB, currentUser, sessionID, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := repo.GetMessage(ctx, svc.DB, rec.MessageID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, http.StatusOK, PostMessageResponse{Message: prev})
					return
				}
			}
		}
	}

	userMsg, botMsg, err := h.msgSvc.Answer(ctx, currentUser, sessionID, content)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		case errors.Is(err, services.ErrSessionClosed):
			fail(c, http.StatusConflict, ErrCodeSessionClosed, "session is closed")
		case errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", maxRunes))
		case errors.Is(err, services.ErrEmptyPrompt):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeResponseFailed, err.Error())
		}
		return
	}

	// Record the completed turn; failures here never fail the response.
	if idemKey != "" {
		if svc, ok := h.msgSvc.(*services.MessageService); ok && svc.DB != nil {
			ttl := 24 * time.Hour
			_, _ = repo.CreateIdempotency(ctx, svc.DB, currentUser, sessionID, idemKey, botMsg.ID, http.StatusOK, ttl)
		}
	}

	ok(c, http.StatusOK, PostMessageResponse{UserMessage: userMsg, Message: botMsg})
}

// ListMessages returns a paginated list of messages for the given session.
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	if _, err := uuid.Parse(sessionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	// Conditional GET: cheap count/max-timestamp stats build the ETag.
	var db *gorm.DB
	if svc, ok := h.msgSvc.(*services.MessageService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.MessagesStats(ctx, db, sessionID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"messages:%s:%d:%d"`, sessionID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	page, pageSize := clampPagination(c)

	items, total, err := h.msgSvc.ListPage(ctx, userID(c), sessionID, page, pageSize)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: paginationOf(page, pageSize, total),
	})
}
