package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChatCreate_DefaultAndNormalizedTitle(t *testing.T) {
	db := newServiceDB(t)
	svc := NewChatService(db)
	ctx := context.Background()

	s, err := svc.Create(ctx, "u1", "   ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.Title != "Nueva conversación" {
		t.Fatalf("default title = %q", s.Title)
	}
	if !s.IsActive {
		t.Fatalf("new session must be active")
	}

	s, err = svc.Create(ctx, "u1", "  Dolor   de\tcabeza ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.Title != "Dolor de cabeza" {
		t.Fatalf("normalized title = %q", s.Title)
	}
}

func TestChatCreate_ClipsLongTitle(t *testing.T) {
	db := newServiceDB(t)
	svc := NewChatService(db)

	long := strings.Repeat("ñ", 80)
	s, err := svc.Create(context.Background(), "u1", long)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n := utf8.RuneCountInString(s.Title); n != 60 {
		t.Fatalf("expected 60-rune title, got %d", n)
	}
}

func TestChatGet_OwnershipEnforced(t *testing.T) {
	db := newServiceDB(t)
	svc := NewChatService(db)
	ctx := context.Background()

	s, err := svc.Create(ctx, "u1", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Get(ctx, "u1", s.ID); err != nil {
		t.Fatalf("Get own session: %v", err)
	}
	if _, err := svc.Get(ctx, "u2", s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for foreign owner, got %v", err)
	}
	if _, err := svc.Get(ctx, "u1", "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for unknown id, got %v", err)
	}
}

func TestChatUpdateTitleAndClose(t *testing.T) {
	db := newServiceDB(t)
	svc := NewChatService(db)
	ctx := context.Background()

	s, err := svc.Create(ctx, "u1", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.UpdateTitle(ctx, "u1", s.ID, "Fiebre alta"); err != nil {
		t.Fatalf("UpdateTitle: %v", err)
	}
	got, _ := svc.Get(ctx, "u1", s.ID)
	if got.Title != "Fiebre alta" {
		t.Fatalf("title = %q", got.Title)
	}

	// Blank rename falls back to a placeholder.
	if err := svc.UpdateTitle(ctx, "u1", s.ID, "  "); err != nil {
		t.Fatalf("UpdateTitle blank: %v", err)
	}
	got, _ = svc.Get(ctx, "u1", s.ID)
	if got.Title != "Sin título" {
		t.Fatalf("placeholder title = %q", got.Title)
	}

	if err := svc.UpdateTitle(ctx, "u2", s.ID, "x"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for foreign owner, got %v", err)
	}

	if err := svc.Close(ctx, "u1", s.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got, _ = svc.Get(ctx, "u1", s.ID)
	if got.IsActive {
		t.Fatalf("expected inactive session after close")
	}
	if err := svc.Close(ctx, "u1", "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestChatListPage(t *testing.T) {
	db := newServiceDB(t)
	svc := NewChatService(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, "u1", ""); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := svc.Create(ctx, "u2", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}

	items, total, err := svc.ListPage(ctx, "u1", 1, 2)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("ListPage = (%d items, total %d)", len(items), total)
	}

	items, total, err = svc.ListPage(ctx, "u3", 1, 10)
	if err != nil || total != 0 || len(items) != 0 {
		t.Fatalf("ListPage empty = (%d items, total %d, %v)", len(items), total, err)
	}
}
