package rag

import (
	"math"
	"sort"
)

// Match is one similarity-search hit: the retrieved unit and its cosine
// score against the query vector.
type Match struct {
	Unit  Unit
	Score float64
}

// Index is an in-memory similarity-search structure over the embedded product
// catalog. It is immutable after construction and therefore safe for
// concurrent readers; replacing the catalog means building a fresh Index.
type Index struct {
	dims    int
	units   []Unit
	vectors [][]float32
}

// newIndex assembles an index from parallel unit/vector slices. Vectors are
// L2-normalized in place so that Search reduces to a dot product.
func newIndex(units []Unit, vectors [][]float32) (*Index, error) {
	if len(units) == 0 {
		return nil, ErrEmptyCorpus
	}
	if len(units) != len(vectors) {
		return nil, ErrEmbeddingCount
	}
	dims := len(vectors[0])
	for _, v := range vectors {
		if len(v) != dims || dims == 0 {
			return nil, ErrDimensionMismatch
		}
	}
	for i := range vectors {
		normalize(vectors[i])
	}
	return &Index{dims: dims, units: units, vectors: vectors}, nil
}

// Len returns the number of indexed units.
func (ix *Index) Len() int { return len(ix.units) }

// Dims returns the embedding dimensionality of the index.
func (ix *Index) Dims() int { return ix.dims }

// Search returns up to k units ranked by cosine similarity to the query
// vector. Ordering is deterministic: score descending, then unit text
// ascending for ties.
func (ix *Index) Search(query []float32, k int) []Match {
	if ix == nil || len(ix.units) == 0 || len(query) != ix.dims {
		return nil
	}
	if k <= 0 {
		k = 5
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalize(q)

	out := make([]Match, 0, len(ix.units))
	for i, v := range ix.vectors {
		out = append(out, Match{Unit: ix.units[i], Score: dot(v, q)})
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].Unit.Text < out[b].Unit.Text
	})

	if k > len(out) {
		k = len(out)
	}
	return out[:k]
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}
