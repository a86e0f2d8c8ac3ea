// Product HTTP handlers.
//
// This file exposes REST endpoints for the pharmacy catalog:
//   - POST   /products        (create)
//   - GET    /products        (list, paginated)
//   - GET    /products/{id}   (fetch one)
//   - PUT    /products/{id}   (update)
//   - DELETE /products/{id}   (soft delete)
//
// Every successful mutation also refreshes the assistant's retrieval index,
// but that happens inside the service layer; handlers only translate HTTP.
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/farmassist/go-pharmacy-backend/internal/domain"
	"github.com/farmassist/go-pharmacy-backend/internal/services"
	"github.com/farmassist/go-pharmacy-backend/internal/utils"
)

//
// DTOs
//

// ProductRequest is the JSON payload for creating or updating a product.
type ProductRequest struct {
	Name              string     `json:"name" binding:"required,min=1,max=255" example:"Paracetamol 500mg"`
	Type              string     `json:"type" example:"Analgésico"`
	UseCase           string     `json:"use_case" example:"Dolor de cabeza y fiebre"`
	Warnings          string     `json:"warnings" example:"No exceder 4g al día"`
	Contraindications string     `json:"contraindications" example:"Insuficiencia hepática grave"`
	Price             float64    `json:"price" binding:"min=0" example:"5.99"`
	Stock             int        `json:"stock" binding:"min=0" example:"100"`
	ExpirationDate    *time.Time `json:"expiration_date,omitempty"`
}

// ListProductsResponse wraps a page of products and pagination information.
type ListProductsResponse struct {
	Products   []domain.Product `json:"products"`
	Pagination Pagination       `json:"pagination"`
}

// toDomain maps the request payload onto a domain product.
func (r ProductRequest) toDomain() *domain.Product {
	return &domain.Product{
		Name:              strings.TrimSpace(r.Name),
		Type:              strings.TrimSpace(r.Type),
		UseCase:           r.UseCase,
		Warnings:          r.Warnings,
		Contraindications: r.Contraindications,
		Price:             r.Price,
		Stock:             r.Stock,
		ExpirationDate:    r.ExpirationDate,
	}
}

// failProduct maps service-layer catalog errors onto HTTP responses.
func failProduct(c *gin.Context, err error, fallbackCode string) {
	switch {
	case errors.Is(err, services.ErrProductNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "product not found")
	case errors.Is(err, services.ErrDuplicateProductName):
		fail(c, http.StatusConflict, ErrCodeConflict, "product name already exists")
	case errors.Is(err, services.ErrProductNameRequired),
		errors.Is(err, services.ErrNegativePrice),
		errors.Is(err, services.ErrNegativeStock):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, fallbackCode, err.Error())
	}
}

// productID parses the numeric {id} path parameter; 0 means invalid.
func productID(c *gin.Context) uint {
	n := utils.AtoiDefault(c.Param("id"), 0)
	if n <= 0 {
		return 0
	}
	return uint(n)
}

//
// Handlers
//

// CreateProduct inserts a new catalog product.
func (h *Handlers) CreateProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid product payload")
		return
	}

	p := req.toDomain()
	if err := h.productSvc.Create(c.Request.Context(), p); err != nil {
		failProduct(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, p)
}

// GetProduct fetches a single product by its numeric ID.
func (h *Handlers) GetProduct(c *gin.Context) {
	id := productID(c)
	if id == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "product id must be a positive integer")
		return
	}

	p, err := h.productSvc.Get(c.Request.Context(), id)
	if err != nil {
		failProduct(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, p)
}

// ListProducts returns a page of the catalog.
func (h *Handlers) ListProducts(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.productSvc.ListPage(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListProductsResponse{
		Products:   items,
		Pagination: paginationOf(page, pageSize, total),
	})
}

// UpdateProduct replaces the mutable fields of an existing product.
func (h *Handlers) UpdateProduct(c *gin.Context) {
	id := productID(c)
	if id == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "product id must be a positive integer")
		return
	}

	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid product payload")
		return
	}

	p := req.toDomain()
	p.ID = id
	if err := h.productSvc.Update(c.Request.Context(), p); err != nil {
		failProduct(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// DeleteProduct soft-deletes a product. The row is retained for audit, but it
// disappears from listings and from the retrieval corpus.
func (h *Handlers) DeleteProduct(c *gin.Context) {
	id := productID(c)
	if id == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "product id must be a positive integer")
		return
	}

	if err := h.productSvc.Delete(c.Request.Context(), id); err != nil {
		failProduct(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}
