// Package store persists the chunk/embedding index as a flat-file directory
// (header.json, files.jsonl, chunks.jsonl, vectors.bin, LOCK). Bleve and
// SQLite back optional, rebuildable secondary indexes over the same data;
// the flat files are always the source of truth.
package store

import (
	"context"
	"fmt"
	"time"
)

// CurrentSchemaVersion is the on-disk schema version written to header.json.
// A mismatch on open forces a rebuild.
const CurrentSchemaVersion uint32 = 1

// IndexHeader is the content of header.json.
type IndexHeader struct {
	SchemaVersion    uint32    `json:"schema_version"`
	ModelID          string    `json:"model_id"`
	Dimension        uint32    `json:"dimension"`
	DefaultMaxTokens  uint32    `json:"default_max_tokens"`
	CreatedAt        time.Time `json:"created_at"`
	// Generation increases on every committed write; readers can use it
	// to discard stale progress when a new indexing run starts.
	Generation uint64 `json:"generation"`
}

// FileRecord is one line of files.jsonl.
type FileRecord struct {
	Path        string   `json:"path"`
	MTimeNS     int64    `json:"mtime_ns"`
	Size        int64    `json:"size"`
	ContentHash string   `json:"content_hash"`
	ChunkIDs    []string `json:"chunk_ids"`
}

// ChunkRecord is one line of chunks.jsonl. Text may be elided by callers
// that already have the source on disk; it is kept here so lookup_chunk
// and snippet rendering work without rereading files.
type ChunkRecord struct {
	ID              string   `json:"id"`
	File            string   `json:"file"`
	ByteStart       uint32   `json:"byte_start"`
	ByteEnd         uint32   `json:"byte_end"`
	LineStart       int      `json:"line_start"`
	LineEnd         int      `json:"line_end"`
	Text            string   `json:"text"`
	ChunkType       string   `json:"chunk_type"`
	Breadcrumb      string   `json:"breadcrumb,omitempty"`
	Ancestry        []string `json:"ancestry,omitempty"`
	EstimatedTokens int      `json:"estimated_tokens"`
	// Tombstone marks this record as deleted; compaction drops tombstoned
	// records and any record they supersede.
	Tombstone bool `json:"tombstone,omitempty"`
}

// VectorRecord is one fixed-width record of vectors.bin, decoded.
type VectorRecord struct {
	ChunkID string
	Norm    float32
	Vector  []float32
}

// vectorIDFieldBytes is the fixed width of the chunk_id field in
// vectors.bin, per spec.md §6: `[chunk_id: 32B][norm: f32 LE][vector: D x f32 LE]`.
const vectorIDFieldBytes = 32

// ErrModelMismatch indicates a put/init call disagreed with the header's
// model_id or dimension.
type ErrModelMismatch struct {
	HeaderModelID string
	GotModelID    string
	HeaderDim     uint32
	GotDim        uint32
}

func (e ErrModelMismatch) Error() string {
	return fmt.Sprintf("model mismatch: index built with %s (dim %d), got %s (dim %d); rebuild the index or pass --force",
		e.HeaderModelID, e.HeaderDim, e.GotModelID, e.GotDim)
}

// ErrSchemaMismatch indicates header.json's schema_version is older or
// newer than CurrentSchemaVersion.
type ErrSchemaMismatch struct {
	Have, Want uint32
}

func (e ErrSchemaMismatch) Error() string {
	return fmt.Sprintf("index schema version %d is incompatible with %d; rebuild the index", e.Have, e.Want)
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'ck index --force')", e.Expected, e.Got)
}

// IndexInfo summarizes an index directory for the `ck info` command.
type IndexInfo struct {
	Location    string
	ProjectRoot string

	ModelID    string
	Dimension  int
	Generation uint64

	FileCount  int
	ChunkCount int

	ChunksSizeBytes  int64
	VectorsSizeBytes int64

	// SecondaryIndexSizeBytes is the on-disk size of the optional BM25
	// accelerator (bm25.db or bm25.bleve under the store directory), 0
	// if neither has been built. Backend is its inferred kind, for
	// display only.
	SecondaryIndexSizeBytes int64
	SecondaryIndexBackend   string

	// EmbedderBackend is inferBackendFromModel's guess at which
	// embedder produced ModelID, for display only.
	EmbedderBackend string

	CreatedAt time.Time
}

// Document represents a document to be indexed by a secondary lexical index.
type Document struct {
	ID      string // Chunk ID
	Content string // Text content
}

// BM25Result represents a single BM25 search result.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats provides statistics about a secondary BM25 index.
type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// BM25Index is an optional, rebuildable secondary lexical index over
// chunks.jsonl. It never holds the source of truth for chunk content.
type BM25Index interface {
	Index(ctx context.Context, docs []*Document) error
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)
	Delete(ctx context.Context, docIDs []string) error
	AllIDs() ([]string, error)
	Stats() *IndexStats
	Save(path string) error
	Load(path string) error
	Close() error
}

// BM25Config configures a secondary BM25 index.
type BM25Config struct {
	K1             float64
	B              float64
	StopWords      []string
	MinTokenLength int
}

// DefaultBM25Config returns default BM25 configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1:             1.2,
		B:              0.75,
		StopWords:      DefaultCodeStopWords,
		MinTokenLength: 2,
	}
}

// DefaultCodeStopWords contains programming keywords to filter out.
var DefaultCodeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}

// VectorResult represents a single vector search result.
type VectorResult struct {
	ID       string  // Chunk ID
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// VectorStoreConfig configures a secondary ANN vector index.
type VectorStoreConfig struct {
	Dimensions     int
	Quantization   string
	Metric         string
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultVectorStoreConfig returns sensible defaults for a secondary ANN index.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Quantization:   "f16",
		Metric:         "cos",
		M:              32,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// VectorStore is an optional, rebuildable secondary ANN index over
// vectors.bin. The brute-force scan in internal/search remains the
// reference path; this accelerates it for large indexes.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}
