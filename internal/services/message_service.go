// Package services – MessageService
//
// This file implements the MessageService, the write path of a chat turn. It
// validates the user prompt, enforces session ownership and liveness, asks the
// response generator for a grounded answer, and persists the user/bot message
// pair atomically. Titling of fresh sessions happens here: when the session
// still carries a placeholder title, a short summary of the first prompt
// replaces it (best effort — a titling failure never fails the turn).
package services

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/farmassist/go-pharmacy-backend/internal/domain"
	"github.com/farmassist/go-pharmacy-backend/internal/repo"
)

// ResponseGenerator produces the assistant's answer for one turn and short
// titles for new sessions. internal/rag.Responder is the production
// implementation.
type ResponseGenerator interface {
	GenerateResponse(ctx context.Context, sessionID, userMessage string) (string, error)
	GenerateTitle(ctx context.Context, userMessage string) (string, error)
}

// Answer limits applied when the zero value is configured.
const (
	defaultPromptMaxLen  = 4000
	defaultMessageMaxLen = 8000
)

// MessageService handles posting prompts to a session and reading back its
// history.
type MessageService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Generator produces the bot reply and session titles.
	Generator ResponseGenerator
	// Log records non-fatal events such as titling failures.
	Log zerolog.Logger

	// PromptMaxLen caps the accepted user prompt by rune length.
	PromptMaxLen int
	// MessageMaxLen caps stored message bodies by rune length.
	MessageMaxLen int
	// TitleMaxLen caps auto-generated session titles by rune length.
	TitleMaxLen int
}

// NewMessageService constructs a MessageService with default limits.
func NewMessageService(db *gorm.DB, gen ResponseGenerator, log zerolog.Logger) *MessageService {
	return &MessageService{
		DB:            db,
		Generator:     gen,
		Log:           log,
		PromptMaxLen:  defaultPromptMaxLen,
		MessageMaxLen: defaultMessageMaxLen,
		TitleMaxLen:   60,
	}
}

// Answer runs one full chat turn for userID in sessionID.
//
// The reply is generated before anything is persisted, so the history the
// generator reads never includes the prompt being answered, and a provider
// failure leaves the session untouched. On success the user and bot messages
// are stored in one transaction.
func (s *MessageService) Answer(ctx context.Context, userID, sessionID, prompt string) (*domain.ChatMessage, *domain.ChatMessage, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Answer",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	prompt = normalizeTitle(prompt)
	if prompt == "" {
		return nil, nil, ErrEmptyPrompt
	}
	if utf8.RuneCountInString(prompt) > s.promptMaxLen() {
		return nil, nil, ErrTooLong
	}

	sess, err := repo.GetSession(ctx, s.DB, sessionID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, err
	}
	if !sess.IsActive {
		return nil, nil, ErrSessionClosed
	}

	reply, err := s.Generator.GenerateResponse(ctx, sessionID, prompt)
	if err != nil {
		return nil, nil, err
	}
	reply = s.clipMessage(reply)

	var userMsg, botMsg *domain.ChatMessage
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if userMsg, err = repo.CreateMessage(ctx, tx, sessionID, domain.SenderUser, prompt); err != nil {
			return err
		}
		botMsg, err = repo.CreateMessage(ctx, tx, sessionID, domain.SenderBot, reply)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	if shouldAutoTitle(sess.Title) {
		s.autoTitle(ctx, userID, sessionID, prompt)
	}
	return userMsg, botMsg, nil
}

// ListPage returns a page of a session's messages in chronological order,
// along with the total count. Ownership is checked first so an unknown or
// foreign session reads as not found rather than as an empty page.
func (s *MessageService) ListPage(ctx context.Context, userID, sessionID string, page, pageSize int) ([]domain.ChatMessage, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	if _, err := repo.GetSession(ctx, s.DB, sessionID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, ErrSessionNotFound
		}
		return nil, 0, err
	}

	total, err := repo.CountMessages(ctx, s.DB, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ChatMessage{}, 0, nil
	}

	items, err := repo.ListMessagesPage(ctx, s.DB, sessionID, offset, pageSize)
	return items, total, err
}

// autoTitle replaces a placeholder title with a short summary of the first
// prompt. Failures are logged and swallowed: the turn already succeeded.
func (s *MessageService) autoTitle(ctx context.Context, userID, sessionID, prompt string) {
	title, err := s.Generator.GenerateTitle(ctx, prompt)
	if err != nil {
		s.Log.Warn().Err(err).Str("session_id", sessionID).Msg("title generation failed")
		return
	}
	title = normalizeTitle(title)
	if title == "" {
		return
	}
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		title = string([]rune(title)[:s.TitleMaxLen])
	}
	if err := repo.UpdateSessionTitle(ctx, s.DB, sessionID, userID, title); err != nil {
		s.Log.Warn().Err(err).Str("session_id", sessionID).Msg("title update failed")
	}
}

// shouldAutoTitle reports whether the title is still one of the placeholders
// assigned at session creation.
func shouldAutoTitle(title string) bool {
	switch normalizeTitle(title) {
	case "", defaultTitleNew, defaultTitleUntitled:
		return true
	}
	return false
}

func (s *MessageService) clipMessage(msg string) string {
	max := s.MessageMaxLen
	if max <= 0 {
		max = defaultMessageMaxLen
	}
	if utf8.RuneCountInString(msg) > max {
		return string([]rune(msg)[:max])
	}
	return msg
}

func (s *MessageService) promptMaxLen() int {
	if s.PromptMaxLen > 0 {
		return s.PromptMaxLen
	}
	return defaultPromptMaxLen
}
