// Package rag implements the retrieval-augmented generation core: projecting
// products into retrievable text units, keeping an embedding index in sync
// with the catalog, and assembling grounded prompts for the language model.
//
// This file centralizes the package's sentinel errors so that callers can
// branch on them with errors.Is.
package rag

import "errors"

var (
	// ErrEmptyCorpus is returned when an index build is attempted over an
	// empty product catalog. Callers should treat it as "nothing to index
	// yet" rather than a hard failure.
	ErrEmptyCorpus = errors.New("product catalog is empty")

	// ErrDimensionMismatch is returned when the embedding provider yields
	// vectors of inconsistent length within one build.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbeddingCount is returned when the embedding provider returns a
	// different number of vectors than texts submitted.
	ErrEmbeddingCount = errors.New("embedding count does not match input count")
)
