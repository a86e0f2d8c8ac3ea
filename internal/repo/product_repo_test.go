package repo

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

func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
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

func seedProduct(t *testing.T, db *gorm.DB, name string) *domain.Product {
	t.Helper()
	p := &domain.Product{Name: name, Type: "Analgésico", UseCase: "dolor y fiebre", Price: 5.99, Stock: 100}
	if err := CreateProduct(context.Background(), db, p); err != nil {
		t.Fatalf("seed product %q: %v", name, err)
	}
	return p
}

func TestProductCRUD(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	p := seedProduct(t, db, "Paracetamol 500mg")
	if p.ID == 0 {
		t.Fatalf("expected autoincrement ID, got 0")
	}

	got, err := GetProduct(ctx, db, p.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got.Name != "Paracetamol 500mg" {
		t.Fatalf("GetProduct name = %q", got.Name)
	}

	byName, err := GetProductByName(ctx, db, "Paracetamol 500mg")
	if err != nil || byName.ID != p.ID {
		t.Fatalf("GetProductByName = (%v, %v)", byName, err)
	}

	p.Price = 6.49
	p.Stock = 90
	if err := UpdateProduct(ctx, db, p); err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	got, _ = GetProduct(ctx, db, p.ID)
	if got.Price != 6.49 || got.Stock != 90 {
		t.Fatalf("update not persisted: %+v", got)
	}

	if err := DeleteProduct(ctx, db, p.ID); err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}
	if _, err := GetProduct(ctx, db, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestProductUpdateAndDelete_Missing(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	if err := UpdateProduct(ctx, db, &domain.Product{ID: 999, Name: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateProduct missing: expected ErrNotFound, got %v", err)
	}
	if err := DeleteProduct(ctx, db, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteProduct missing: expected ErrNotFound, got %v", err)
	}
}

func TestListAllProducts_ExcludesDeleted(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	a := seedProduct(t, db, "Paracetamol 500mg")
	seedProduct(t, db, "Ibuprofeno 400mg")
	seedProduct(t, db, "Omeprazol 20mg")

	if err := DeleteProduct(ctx, db, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	all, err := ListAllProducts(ctx, db)
	if err != nil {
		t.Fatalf("ListAllProducts: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 live products, got %d", len(all))
	}
	for _, p := range all {
		if p.Name == "Paracetamol 500mg" {
			t.Fatalf("soft-deleted product leaked into catalog listing")
		}
	}
}

func TestListProductsPage(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedProduct(t, db, fmt.Sprintf("Producto %d", i))
	}

	total, err := CountProducts(ctx, db)
	if err != nil || total != 5 {
		t.Fatalf("CountProducts = (%d, %v)", total, err)
	}

	page, err := ListProductsPage(ctx, db, 2, 2)
	if err != nil {
		t.Fatalf("ListProductsPage: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}
	if page[0].ID >= page[1].ID {
		t.Fatalf("expected ascending ID order, got %d then %d", page[0].ID, page[1].ID)
	}
}
