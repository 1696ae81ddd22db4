package searcher

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lwyBZss8924d/ckindex/internal/embed"
	"github.com/lwyBZss8924d/ckindex/internal/store"
)

// Open wires read-side BM25 and vector accelerators from the on-disk
// layout pkg/indexer.Open writes (dataDir/bm25.db, dataDir/vectors.hnsw).
//
// lexical is nil only if the BM25 store cannot be opened at all.
// semantic is nil whenever embedder is nil or no vector snapshot has
// been saved yet, since there is nothing to accelerate; callers should
// fall back to a brute-force scan in that case rather than treat it as
// an error.
func Open(dataDir string, embedder embed.Embedder, dims int) (lexical, semantic Searcher, err error) {
	bm25Store, err := store.NewBM25IndexWithBackend(filepath.Join(dataDir, "bm25"), store.DefaultBM25Config(), string(store.BM25BackendSQLite))
	if err != nil {
		return nil, nil, fmt.Errorf("open bm25 accelerator: %w", err)
	}
	lex, err := NewBM25Searcher(WithBM25Store(bm25Store))
	if err != nil {
		return nil, nil, err
	}
	lexical = lex

	if embedder == nil {
		return lexical, nil, nil
	}

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	if _, statErr := os.Stat(vectorPath); statErr != nil {
		return lexical, nil, nil
	}

	vs, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dims))
	if err != nil {
		return nil, nil, fmt.Errorf("open vector accelerator: %w", err)
	}
	if err := vs.Load(vectorPath); err != nil {
		return nil, nil, fmt.Errorf("load vector accelerator snapshot: %w", err)
	}

	sem, err := NewVectorSearcher(WithSearchEmbedder(embedder), WithSearchVectorStore(vs))
	if err != nil {
		return nil, nil, err
	}
	semantic = sem
	return lexical, semantic, nil
}
