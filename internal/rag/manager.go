package rag

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/farmassist/go-pharmacy-backend/internal/domain"
)

// Embedder computes embedding vectors for a batch of texts. Implementations
// live at the transport boundary (see internal/llm) and own their own
// timeouts and retries; failures propagate to the caller unmodified.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Manager owns the embedding index lifecycle: building it from the current
// product catalog, persisting it to disk, and loading it back. The on-disk
// artifact is an internal gob snapshot at a fixed path; both writer and
// reader are this same process, so no external format stability is promised.
//
// Readers and writers of the artifact are not mutually excluded: a chat turn
// may load a slightly stale snapshot while a rebuild is in flight. The file
// is replaced atomically via rename, so a reader sees either the old or the
// new catalog, never a torn mix.
type Manager struct {
	embedder Embedder
	path     string
	log      zerolog.Logger
}

// snapshot is the persisted form of an Index.
type snapshot struct {
	Dims    int
	Units   []Unit
	Vectors [][]float32
}

// NewManager constructs a Manager that persists the index at path.
func NewManager(embedder Embedder, path string, log zerolog.Logger) *Manager {
	return &Manager{embedder: embedder, path: path, log: log}
}

// Path returns the location of the persisted index artifact.
func (m *Manager) Path() string { return m.path }

// Build projects every product to a retrievable unit, embeds the unit texts
// in one batch, and constructs a fresh in-memory index. It fails with
// ErrEmptyCorpus when the catalog is empty; embedding failures propagate.
func (m *Manager) Build(ctx context.Context, products []domain.Product) (*Index, error) {
	if len(products) == 0 {
		return nil, ErrEmptyCorpus
	}

	units := ProjectProducts(products)
	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.Text
	}

	vectors, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed catalog: %w", err)
	}
	return newIndex(units, vectors)
}

// Load reads a previously persisted index. A missing or corrupt artifact is
// not an error: corrupt reads are logged at warn level and degrade to
// (nil, nil) "absent", so callers fall through to a rebuild.
func (m *Manager) Load() (*Index, error) {
	f, err := os.Open(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		m.log.Warn().Err(err).Str("path", m.path).Msg("index artifact unreadable, treating as absent")
		return nil, nil
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		m.log.Warn().Err(err).Str("path", m.path).Msg("index artifact corrupt, treating as absent")
		return nil, nil
	}
	ix, err := newIndex(snap.Units, snap.Vectors)
	if err != nil || ix.dims != snap.Dims {
		m.log.Warn().Str("path", m.path).Msg("index snapshot inconsistent, treating as absent")
		return nil, nil
	}
	return ix, nil
}

// Save persists the index at the manager's path, creating parent directories
// as needed. The snapshot is written to a temp file and renamed into place so
// concurrent readers never observe a partial write. Write failures propagate.
func (m *Manager) Save(ix *Index) error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "index-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	defer os.Remove(tmp.Name())

	snap := snapshot{Dims: ix.dims, Units: ix.units, Vectors: ix.vectors}
	if err := gob.NewEncoder(tmp).Encode(&snap); err != nil {
		tmp.Close()
		return fmt.Errorf("encode index snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("flush index snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("replace index artifact: %w", err)
	}
	return nil
}

// GetOrCreate loads the persisted index if one exists; otherwise it builds
// from the given catalog and saves the result. It never forces a rebuild
// when a loadable artifact is present — freshness after catalog mutations is
// the Syncer's job. ErrEmptyCorpus propagates when there is neither an
// artifact nor anything to index.
func (m *Manager) GetOrCreate(ctx context.Context, products []domain.Product) (*Index, error) {
	ix, err := m.Load()
	if err != nil {
		return nil, err
	}
	if ix != nil {
		return ix, nil
	}

	ix, err = m.Build(ctx, products)
	if err != nil {
		return nil, err
	}
	if err := m.Save(ix); err != nil {
		return nil, err
	}
	m.log.Info().Int("units", ix.Len()).Str("path", m.path).Msg("vector index created")
	return ix, nil
}

// Sync unconditionally rebuilds the index from the current catalog and
// persists it. There is no incremental update path: full rebuild is the only
// consistency model, chosen for correctness at catalog sizes of tens to low
// thousands of products.
func (m *Manager) Sync(ctx context.Context, products []domain.Product) (*Index, error) {
	ix, err := m.Build(ctx, products)
	if err != nil {
		return nil, err
	}
	if err := m.Save(ix); err != nil {
		return nil, err
	}
	m.log.Info().Int("units", ix.Len()).Str("path", m.path).Msg("vector index rebuilt")
	return ix, nil
}
