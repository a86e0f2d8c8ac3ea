// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Product
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a product is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/farmassist/go-pharmacy-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateProduct inserts a new product row. CreatedAt is set to UTC.
func CreateProduct(ctx context.Context, db *gorm.DB, p *domain.Product) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(p).Error
}

// GetProduct fetches a single product by its ID, or ErrNotFound.
func GetProduct(ctx context.Context, db *gorm.DB, id uint) (*domain.Product, error) {
	var p domain.Product
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProductByName fetches a single product by its unique name, or ErrNotFound.
func GetProductByName(ctx context.Context, db *gorm.DB, name string) (*domain.Product, error) {
	var p domain.Product
	if err := db.WithContext(ctx).Where("name = ?", name).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProduct persists all mutable fields of an existing product.
// Returns ErrNotFound when no row was updated.
func UpdateProduct(ctx context.Context, db *gorm.DB, p *domain.Product) error {
	res := db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"name":              p.Name,
			"type":              p.Type,
			"use_case":          p.UseCase,
			"warnings":          p.Warnings,
			"contraindications": p.Contraindications,
			"price":             p.Price,
			"stock":             p.Stock,
			"expiration_date":   p.ExpirationDate,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteProduct soft-deletes a product by ID. Returns ErrNotFound when the
// product does not exist.
func DeleteProduct(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Delete(&domain.Product{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListAllProducts returns the full current catalog ordered by ID. The vector
// index is always rebuilt from the complete catalog, so no pagination applies
// here.
func ListAllProducts(ctx context.Context, db *gorm.DB) ([]domain.Product, error) {
	var out []domain.Product
	err := db.WithContext(ctx).Order("id ASC").Find(&out).Error
	return out, err
}

// CountProducts returns the total number of products for pagination.
func CountProducts(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Product{}).Count(&total).Error
	return total, err
}

// ListProductsPage returns a paginated slice of products ordered by ID.
// The caller is responsible for computing offset and limit.
func ListProductsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Product, error) {
	var out []domain.Product
	err := db.WithContext(ctx).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
