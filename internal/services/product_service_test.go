package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/farmassist/go-pharmacy-backend/internal/domain"
)

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(&domain.Product{}, &domain.ChatSession{}, &domain.ChatMessage{}, &domain.Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// countingTrigger records how many index refreshes were requested.
type countingTrigger struct{ calls int }

func (c *countingTrigger) Trigger() { c.calls++ }

func TestProductCreate_SchedulesSync(t *testing.T) {
	db := newServiceDB(t)
	trig := &countingTrigger{}
	svc := &ProductService{DB: db, Sync: trig}
	ctx := context.Background()

	p := &domain.Product{Name: "Paracetamol 500mg", Type: "Analgésico", Price: 5.99, Stock: 100}
	if err := svc.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if trig.calls != 1 {
		t.Fatalf("expected 1 sync trigger, got %d", trig.calls)
	}

	got, err := svc.Get(ctx, p.ID)
	if err != nil || got.Name != "Paracetamol 500mg" {
		t.Fatalf("Get = (%+v, %v)", got, err)
	}
}

func TestProductCreate_Validation(t *testing.T) {
	db := newServiceDB(t)
	trig := &countingTrigger{}
	svc := &ProductService{DB: db, Sync: trig}
	ctx := context.Background()

	cases := []struct {
		name    string
		product domain.Product
		want    error
	}{
		{"blank name", domain.Product{Name: "   "}, ErrProductNameRequired},
		{"negative price", domain.Product{Name: "Ibuprofeno", Price: -1}, ErrNegativePrice},
		{"negative stock", domain.Product{Name: "Ibuprofeno", Stock: -1}, ErrNegativeStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.product
			if err := svc.Create(ctx, &p); !errors.Is(err, tc.want) {
				t.Fatalf("Create = %v; want %v", err, tc.want)
			}
		})
	}
	if trig.calls != 0 {
		t.Fatalf("rejected creates must not trigger sync, got %d", trig.calls)
	}
}

func TestProductCreate_DuplicateName(t *testing.T) {
	db := newServiceDB(t)
	svc := &ProductService{DB: db}
	ctx := context.Background()

	if err := svc.Create(ctx, &domain.Product{Name: "Omeprazol 20mg", Price: 8.5, Stock: 30}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := svc.Create(ctx, &domain.Product{Name: "Omeprazol 20mg", Price: 9, Stock: 10})
	if !errors.Is(err, ErrDuplicateProductName) {
		t.Fatalf("expected ErrDuplicateProductName, got %v", err)
	}
}

func TestProductUpdate_NameCollision(t *testing.T) {
	db := newServiceDB(t)
	trig := &countingTrigger{}
	svc := &ProductService{DB: db, Sync: trig}
	ctx := context.Background()

	a := &domain.Product{Name: "Loratadina 10mg", Price: 4, Stock: 20}
	b := &domain.Product{Name: "Cetirizina 10mg", Price: 4.5, Stock: 25}
	if err := svc.Create(ctx, a); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if err := svc.Create(ctx, b); err != nil {
		t.Fatalf("create b: %v", err)
	}

	b.Name = "Loratadina 10mg"
	if err := svc.Update(ctx, b); !errors.Is(err, ErrDuplicateProductName) {
		t.Fatalf("expected ErrDuplicateProductName, got %v", err)
	}

	// Keeping its own name is not a collision.
	b.Name = "Cetirizina 10mg"
	b.Stock = 40
	if err := svc.Update(ctx, b); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if trig.calls != 3 {
		t.Fatalf("expected 3 sync triggers (2 creates + 1 update), got %d", trig.calls)
	}
}

func TestProductDelete_MissingAndSync(t *testing.T) {
	db := newServiceDB(t)
	trig := &countingTrigger{}
	svc := &ProductService{DB: db, Sync: trig}
	ctx := context.Background()

	if err := svc.Delete(ctx, 999); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if trig.calls != 0 {
		t.Fatalf("failed delete must not trigger sync")
	}

	p := &domain.Product{Name: "Vitamina C 1g", Price: 3, Stock: 50}
	if err := svc.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, p.ID); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound after delete, got %v", err)
	}
	if trig.calls != 2 {
		t.Fatalf("expected 2 sync triggers, got %d", trig.calls)
	}
}

func TestProductListPage_Defaults(t *testing.T) {
	db := newServiceDB(t)
	svc := &ProductService{DB: db}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.Create(ctx, &domain.Product{Name: fmt.Sprintf("Producto %d", i), Price: 1, Stock: 1}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	items, total, err := svc.ListPage(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Fatalf("ListPage = (%d items, total %d)", len(items), total)
	}

	items, total, err = svc.ListPage(ctx, 2, 2)
	if err != nil || total != 3 || len(items) != 1 {
		t.Fatalf("ListPage page 2 = (%d items, total %d, %v)", len(items), total, err)
	}
}
