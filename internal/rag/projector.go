package rag

import (
	"strconv"
	"strings"

	"github.com/farmassist/go-pharmacy-backend/internal/domain"
)

// Metadata carries the product fields kept alongside each indexed unit for
// downstream filtering and display.
type Metadata struct {
	ID    uint    `json:"id"`
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

// Unit is the retrievable text+metadata pairing derived from one product.
// Units are rebuilt from scratch on every index rebuild and never persisted
// on their own.
type Unit struct {
	Text string   `json:"text"`
	Meta Metadata `json:"meta"`
}

// ProjectProduct converts a product record into its retrievable unit. The
// projection is pure and deterministic: the same product always yields
// byte-identical text, which keeps wholesale index rebuilds reproducible.
// Empty optional fields render as empty values rather than being omitted,
// so the line layout is stable across the whole catalog.
func ProjectProduct(p domain.Product) Unit {
	var b strings.Builder
	writeField(&b, "Nombre", p.Name)
	writeField(&b, "Tipo", p.Type)
	writeField(&b, "Uso", p.UseCase)
	writeField(&b, "Advertencias", p.Warnings)
	writeField(&b, "Contraindicaciones", p.Contraindications)
	writeField(&b, "Precio", strconv.FormatFloat(p.Price, 'f', 2, 64))
	writeField(&b, "Stock", strconv.Itoa(p.Stock))

	return Unit{
		Text: strings.TrimSuffix(b.String(), "\n"),
		Meta: Metadata{
			ID:    p.ID,
			Name:  p.Name,
			Type:  p.Type,
			Price: p.Price,
			Stock: p.Stock,
		},
	}
}

// ProjectProducts maps a catalog slice to units, preserving order.
func ProjectProducts(products []domain.Product) []Unit {
	out := make([]Unit, len(products))
	for i, p := range products {
		out[i] = ProjectProduct(p)
	}
	return out
}

func writeField(b *strings.Builder, label, value string) {
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteByte('\n')
}
