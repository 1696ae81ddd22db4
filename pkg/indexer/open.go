package indexer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lwyBZss8924d/ckindex/internal/embed"
	"github.com/lwyBZss8924d/ckindex/internal/store"
)

// Accelerator bundles the optional secondary indexes (BM25 + vector) a
// Pipeline keeps in sync with the store, and the on-disk vector
// snapshot that has to be saved explicitly since HNSWStore.Close does
// not persist it (unlike the SQLite-backed BM25 index, which persists
// continuously).
type Accelerator struct {
	Indexer *HybridIndexer

	vectorStore store.VectorStore
	vectorPath  string
}

// Open wires a HybridIndexer rooted under dataDir: a SQLite FTS5 BM25
// index (chosen for WAL-mode concurrent access across the separate
// `ck index`/`ck search` processes) and, when embedder is non-nil, a
// coder/hnsw vector index seeded from any prior snapshot at
// dataDir/vectors.hnsw.
func Open(dataDir string, embedder embed.Embedder, dims int) (*Accelerator, error) {
	bm25Store, err := store.NewBM25IndexWithBackend(filepath.Join(dataDir, "bm25"), store.DefaultBM25Config(), string(store.BM25BackendSQLite))
	if err != nil {
		return nil, fmt.Errorf("open bm25 accelerator: %w", err)
	}
	bm25Indexer, err := NewBM25Indexer(WithStore(bm25Store))
	if err != nil {
		return nil, err
	}

	opts := []HybridOption{WithBM25(bm25Indexer)}

	acc := &Accelerator{}
	if embedder != nil {
		vs, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dims))
		if err != nil {
			return nil, fmt.Errorf("open vector accelerator: %w", err)
		}
		acc.vectorPath = filepath.Join(dataDir, "vectors.hnsw")
		if _, statErr := os.Stat(acc.vectorPath); statErr == nil {
			if err := vs.Load(acc.vectorPath); err != nil {
				return nil, fmt.Errorf("load vector accelerator snapshot: %w", err)
			}
		}
		acc.vectorStore = vs

		vecIndexer, err := NewVectorIndexer(WithEmbedder(embedder), WithVectorStore(vs))
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithVector(vecIndexer))
	}

	hybrid, err := NewHybridIndexer(opts...)
	if err != nil {
		return nil, err
	}
	acc.Indexer = hybrid
	return acc, nil
}

// VectorStore exposes the raw vector accelerator, for search-side
// wiring that needs to query it directly rather than through Indexer.
func (a *Accelerator) VectorStore() store.VectorStore {
	if a == nil {
		return nil
	}
	return a.vectorStore
}

// Save persists the vector accelerator's snapshot to disk. It is a
// no-op when no vector accelerator was opened (e.g. no embedder was
// available at Open time).
func (a *Accelerator) Save() error {
	if a == nil || a.vectorStore == nil {
		return nil
	}
	return a.vectorStore.Save(a.vectorPath)
}

// Close releases the accelerator's underlying stores.
func (a *Accelerator) Close() error {
	if a == nil || a.Indexer == nil {
		return nil
	}
	return a.Indexer.Close()
}
