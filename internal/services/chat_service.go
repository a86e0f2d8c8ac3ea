// Package services – ChatService
//
// This file implements the ChatService, which manages the lifecycle of chat
// sessions: creating, listing (with pagination), renaming, and closing them.
// Titles are normalized and clipped here; automatic title generation from the
// first prompt is performed by MessageService.
//
// Service-level errors (e.g., ErrSessionNotFound) are returned for
// predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/farmassist/go-pharmacy-backend/internal/domain"
	"github.com/farmassist/go-pharmacy-backend/internal/repo"
)

// Placeholder titles eligible for auto-generation on the first message.
const (
	defaultTitleNew      = "Nueva conversación"
	defaultTitleUntitled = "Sin título"
)

// ChatService provides session-level operations. Ownership is enforced on
// every lookup: a session belonging to another user reads as not found.
type ChatService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
}

// NewChatService constructs a ChatService with the default title limit.
func NewChatService(db *gorm.DB) *ChatService {
	return &ChatService{DB: db, TitleMaxLen: 60}
}

// Create starts a new session owned by userID with the provided title.
// Titles are normalized, clipped, and a default fallback is applied.
func (s *ChatService) Create(ctx context.Context, userID, title string) (*domain.ChatSession, error) {
	title = normalizeTitle(title)
	if title == "" {
		title = defaultTitleNew
	}
	return repo.CreateSession(ctx, s.DB, userID, s.clip(title))
}

// Get fetches a session owned by userID.
func (s *ChatService) Get(ctx context.Context, userID, sessionID string) (*domain.ChatSession, error) {
	sess, err := repo.GetSession(ctx, s.DB, sessionID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

// List returns all sessions for a user, most recent first. Prefer ListPage
// for large datasets.
func (s *ChatService) List(ctx context.Context, userID string) ([]domain.ChatSession, error) {
	return repo.ListSessions(ctx, s.DB, userID)
}

// ListPage returns a page of sessions for a user along with the total count.
// It applies defaults for invalid page/pageSize.
func (s *ChatService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.ChatSession, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountSessions(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ChatSession{}, 0, nil
	}

	items, err := repo.ListSessionsPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// UpdateTitle renames a session owned by userID. A blank title falls back to
// a placeholder.
func (s *ChatService) UpdateTitle(ctx context.Context, userID, sessionID, title string) error {
	title = normalizeTitle(title)
	if title == "" {
		title = defaultTitleUntitled
	}
	if err := repo.UpdateSessionTitle(ctx, s.DB, sessionID, userID, s.clip(title)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	return nil
}

// Close marks a session inactive. History remains readable.
func (s *ChatService) Close(ctx context.Context, userID, sessionID string) error {
	if err := repo.CloseSession(ctx, s.DB, sessionID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	return nil
}

// clip truncates a session title to the configured maximum rune length.
func (s *ChatService) clip(title string) string {
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return string([]rune(title)[:s.TitleMaxLen])
	}
	return title
}

// normalizeTitle trims surrounding whitespace and collapses internal runs of
// whitespace to single spaces.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

var whitespaceRE = regexp.MustCompile(`\s+`)
