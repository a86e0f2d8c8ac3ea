// Package services – ProductService
//
// This file implements the ProductService, which owns the lifecycle of the
// product catalog. It validates inputs, enforces name uniqueness, coordinates
// repository operations, and — after every successful mutation — requests a
// background rebuild of the vector index so the assistant's retrieval corpus
// follows the catalog.
//
// The index rebuild is fire-and-forget by contract: Trigger never blocks and
// its failures are logged by the syncer, never surfaced to the caller of a
// CRUD operation.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/farmassist/go-pharmacy-backend/internal/domain"
	"github.com/farmassist/go-pharmacy-backend/internal/repo"
)

// IndexTrigger requests a background rebuild of the retrieval index.
// Implementations must be non-blocking.
type IndexTrigger interface {
	Trigger()
}

// ProductService provides catalog-level operations. All mutations schedule an
// index refresh through Sync.
type ProductService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Sync receives a refresh request after every successful mutation.
	// May be nil in tests.
	Sync IndexTrigger
}

// Create validates and inserts a new product, then schedules an index refresh.
func (s *ProductService) Create(ctx context.Context, p *domain.Product) error {
	tr := otel.Tracer("services/ProductService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("product.name", p.Name)),
	)
	defer span.End()

	if err := s.validate(p); err != nil {
		return err
	}
	if _, err := repo.GetProductByName(ctx, s.DB, p.Name); err == nil {
		return ErrDuplicateProductName
	} else if !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if err := repo.CreateProduct(ctx, s.DB, p); err != nil {
		return err
	}
	s.scheduleSync()
	return nil
}

// Get fetches a product by ID.
func (s *ProductService) Get(ctx context.Context, id uint) (*domain.Product, error) {
	p, err := repo.GetProduct(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	return p, err
}

// Update validates and persists changes to an existing product, then
// schedules an index refresh.
func (s *ProductService) Update(ctx context.Context, p *domain.Product) error {
	tr := otel.Tracer("services/ProductService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(attribute.Int("product.id", int(p.ID))),
	)
	defer span.End()

	if err := s.validate(p); err != nil {
		return err
	}
	// The new name must not belong to a different product.
	if existing, err := repo.GetProductByName(ctx, s.DB, p.Name); err == nil && existing.ID != p.ID {
		return ErrDuplicateProductName
	} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if err := repo.UpdateProduct(ctx, s.DB, p); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrProductNotFound
		}
		return err
	}
	s.scheduleSync()
	return nil
}

// Delete removes a product, then schedules an index refresh.
func (s *ProductService) Delete(ctx context.Context, id uint) error {
	tr := otel.Tracer("services/ProductService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(attribute.Int("product.id", int(id))),
	)
	defer span.End()

	if err := repo.DeleteProduct(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrProductNotFound
		}
		return err
	}
	s.scheduleSync()
	return nil
}

// ListAll returns the full catalog (used by the RAG core; no pagination).
func (s *ProductService) ListAll(ctx context.Context) ([]domain.Product, error) {
	return repo.ListAllProducts(ctx, s.DB)
}

// ListPage returns a page of products and the total count. It applies
// defaults for invalid page/pageSize.
func (s *ProductService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Product, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountProducts(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Product{}, 0, nil
	}

	items, err := repo.ListProductsPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// validate enforces the catalog invariants shared by create and update.
func (s *ProductService) validate(p *domain.Product) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return ErrProductNameRequired
	}
	if p.Price < 0 {
		return ErrNegativePrice
	}
	if p.Stock < 0 {
		return ErrNegativeStock
	}
	return nil
}

func (s *ProductService) scheduleSync() {
	if s.Sync != nil {
		s.Sync.Trigger()
	}
}
