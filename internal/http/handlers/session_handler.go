// Session HTTP handlers.
//
// This file exposes REST endpoints for chat session resources:
//   - POST   /sessions             (create)
//   - GET    /sessions             (list, paginated, ETag support)
//   - PUT    /sessions/{id}/title  (rename)
//   - DELETE /sessions/{id}        (close; history remains readable)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmassist/go-pharmacy-backend/internal/domain"
	"github.com/farmassist/go-pharmacy-backend/internal/repo"
	"github.com/farmassist/go-pharmacy-backend/internal/services"
	"github.com/farmassist/go-pharmacy-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// SessionService defines session lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type SessionService interface {
	// Create starts a new session for userID with an optional title.
	Create(ctx context.Context, userID, title string) (*domain.ChatSession, error)
	// ListPage returns a page of sessions for a user and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.ChatSession, int64, error)
	// UpdateTitle renames a session that belongs to userID.
	UpdateTitle(ctx context.Context, userID, sessionID, title string) error
	// Close marks a session inactive.
	Close(ctx context.Context, userID, sessionID string) error
}

// MessageService defines message retrieval and generation operations.
type MessageService interface {
	// Answer appends a user prompt and an assistant reply to a session atomically.
	Answer(ctx context.Context, userID, sessionID, prompt string) (*domain.ChatMessage, *domain.ChatMessage, error)
	// ListPage returns a page of messages within a session and the total count.
	ListPage(ctx context.Context, userID, sessionID string, page, pageSize int) ([]domain.ChatMessage, int64, error)
}

// ProductService defines catalog operations consumed by HTTP handlers.
type ProductService interface {
	Create(ctx context.Context, p *domain.Product) error
	Get(ctx context.Context, id uint) (*domain.Product, error)
	Update(ctx context.Context, p *domain.Product) error
	Delete(ctx context.Context, id uint) error
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Product, int64, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for sessions, messages, and products.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	sessionSvc SessionService
	msgSvc     MessageService
	productSvc ProductService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(sessionSvc SessionService, msgSvc MessageService, productSvc ProductService) *Handlers {
	return &Handlers{sessionSvc: sessionSvc, msgSvc: msgSvc, productSvc: productSvc}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header, and finally to
// "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// CreateSessionRequest is the JSON payload for creating a session.
type CreateSessionRequest struct {
	// Title optionally sets the session title; a default is used when empty.
	Title string `json:"title" example:"Consulta sobre alergias"`
}

// UpdateSessionTitleRequest is the JSON payload for updating a session title.
type UpdateSessionTitleRequest struct {
	// Title is the new session name (1–255 chars).
	Title string `json:"title" binding:"required,min=1,max=255" example:"Dolor de cabeza"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListSessionsResponse wraps a page of sessions and pagination information.
type ListSessionsResponse struct {
	Sessions   []domain.ChatSession `json:"sessions"`
	Pagination Pagination           `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.ClampInt(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}

// paginationOf computes the pagination envelope for a result page.
func paginationOf(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Handlers
//

// CreateSession creates a session for the current user and returns the
// session resource.
func (h *Handlers) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	title := strings.TrimSpace(req.Title)

	s, err := h.sessionSvc.Create(c.Request.Context(), userID(c), title)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, s)
}

// ListSessions returns a page of the user's sessions. Supports weak ETag via
// If-None-Match and may return 304.
func (h *Handlers) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, ok := h.sessionSvc.(*services.ChatService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.SessionsStats(ctx, db, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"sessions:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.sessionSvc.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListSessionsResponse{
		Sessions:   items,
		Pagination: paginationOf(page, pageSize, total),
	})
}

// UpdateSessionTitle renames a session owned by the current user.
func (h *Handlers) UpdateSessionTitle(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := uuid.Parse(sessionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	var req UpdateSessionTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title required (1–255 chars)")
		return
	}

	if err := h.sessionSvc.UpdateTitle(c.Request.Context(), userID(c), sessionID, req.Title); err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// CloseSession marks a session inactive. The session and its messages stay
// readable; only new messages are rejected.
func (h *Handlers) CloseSession(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := uuid.Parse(sessionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	if err := h.sessionSvc.Close(c.Request.Context(), userID(c), sessionID); err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}
