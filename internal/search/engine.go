package search

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"

	"github.com/lwyBZss8924d/ckindex/internal/ckerr"
	"github.com/lwyBZss8924d/ckindex/internal/embed"
	"github.com/lwyBZss8924d/ckindex/internal/scanner"
	"github.com/lwyBZss8924d/ckindex/internal/store"
	searcherpkg "github.com/lwyBZss8924d/ckindex/pkg/searcher"
)

const defaultTopK = 10

// Engine executes regex, lexical, semantic and hybrid queries
// (spec.md §4.7).
type Engine struct {
	RootDir  string
	Store    *store.Store
	Embedder embed.Embedder
	Reranker Reranker
	Scanner  *scanner.Scanner

	// Lexical and Semantic are optional BM25/vector accelerators
	// (see pkg/searcher.Open). When nil, the corresponding mode falls
	// back to the brute-force path below.
	Lexical  searcherpkg.Searcher
	Semantic searcherpkg.Searcher
}

// NewEngine wires an Engine from its dependencies. reranker may be nil,
// in which case Rerank requests are satisfied with NoOpReranker.
func NewEngine(rootDir string, st *store.Store, embedder embed.Embedder, reranker Reranker, sc *scanner.Scanner) *Engine {
	if reranker == nil {
		reranker = &NoOpReranker{}
	}
	return &Engine{RootDir: rootDir, Store: st, Embedder: embedder, Reranker: reranker, Scanner: sc}
}

// Search executes opts.Mode against the store and/or the working tree.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]*Result, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	var results []*Result
	var err error

	switch opts.Mode {
	case ModeRegex:
		results, err = e.searchText(ctx, query, opts)
	case ModeLexical:
		results, err = e.searchLexical(ctx, query, opts)
	case ModeSemantic:
		results, err = e.searchSemanticAccelerated(ctx, query, opts)
	case ModeHybrid:
		results, err = e.searchHybrid(ctx, query, opts)
	default:
		return nil, ckerr.New(ckerr.KindInvalidQuery, fmt.Sprintf("unknown search mode %q", opts.Mode), nil)
	}
	if err != nil {
		return nil, err
	}

	if opts.Rerank && len(results) > 0 {
		results, err = e.rerank(ctx, query, results, topK)
		if err != nil {
			return nil, ckerr.Wrap(ckerr.KindRerank, err)
		}
	}

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// searchText is the Regex/Lexical path: it walks files on disk (never
// the store, spec.md §8: "Regex search ... does not read from the
// vector store") and matches line-by-line.
func (e *Engine) searchText(ctx context.Context, query string, opts Options) ([]*Result, error) {
	matcher, err := buildMatcher(query, opts)
	if err != nil {
		return nil, ckerr.Wrap(ckerr.KindInvalidQuery, err)
	}

	files, err := e.Scanner.Scan(ctx, &scanner.ScanOptions{
		RootDir:          e.RootDir,
		IncludePatterns:  opts.IncludePatterns,
		ExcludePatterns:  opts.ExcludePatterns,
		RespectGitignore: opts.RespectGitignore,
	})
	if err != nil {
		return nil, ckerr.Wrap(ckerr.KindIO, err)
	}

	var results []*Result
	for r := range files {
		if r.Error != nil {
			continue
		}
		if ctx.Err() != nil {
			return nil, ckerr.New(ckerr.KindCancelled, "search cancelled", ctx.Err())
		}

		matches, err := matchFile(r.File.AbsPath, r.File.Path, matcher, opts)
		if err != nil {
			continue
		}
		results = append(results, matches...)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].File != results[j].File {
			return results[i].File < results[j].File
		}
		return results[i].LineStart < results[j].LineStart
	})
	return results, nil
}

// searchLexical is the Lexical mode path: it prefers the BM25
// accelerator when one is attached, falling back to the same on-disk
// scan as Regex when it is absent or errors.
func (e *Engine) searchLexical(ctx context.Context, query string, opts Options) ([]*Result, error) {
	if e.Lexical == nil {
		return e.searchText(ctx, query, opts)
	}

	limit := opts.TopK
	if limit <= 0 {
		limit = defaultTopK
	}

	hits, err := e.Lexical.Search(ctx, query, limit)
	if err != nil {
		return e.searchText(ctx, query, opts)
	}
	return e.hydrate(ctx, hits)
}

// hydrate resolves accelerator hits (chunk ID + score) against the
// store's chunk records. Hits whose chunk was tombstoned since the
// accelerator was last synced are silently dropped.
func (e *Engine) hydrate(ctx context.Context, hits []searcherpkg.Result) ([]*Result, error) {
	results := make([]*Result, 0, len(hits))
	for _, h := range hits {
		c, err := e.Store.LookupChunk(ctx, h.ID)
		if err != nil || c == nil {
			continue
		}
		results = append(results, &Result{
			File:         c.File,
			LineStart:    c.LineStart,
			LineEnd:      c.LineEnd,
			ByteStart:    c.ByteStart,
			ByteEnd:      c.ByteEnd,
			Text:         c.Text,
			ChunkID:      c.ID,
			ChunkType:    c.ChunkType,
			Score:        h.Score,
			MatchedTerms: h.MatchedTerms,
		})
	}
	return results, nil
}

// buildMatcher compiles query into a func(line string) bool per
// opts.Mode/FixedString/CaseInsensitive/WholeWord.
func buildMatcher(query string, opts Options) (*regexp.Regexp, error) {
	pattern := query
	if opts.Mode == ModeLexical || opts.FixedString {
		pattern = regexp.QuoteMeta(query)
	}
	if opts.WholeWord {
		pattern = `\b` + pattern + `\b`
	}
	if opts.CaseInsensitive {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

func matchFile(absPath, relPath string, matcher *regexp.Regexp, opts Options) ([]*Result, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}

	before, after := contextWindow(opts)

	var results []*Result
	for i, line := range lines {
		if !matcher.MatchString(line) {
			continue
		}
		results = append(results, &Result{
			File:      relPath,
			LineStart: i + 1,
			LineEnd:   i + 1,
			Text:      line,
			Before:    sliceAround(lines, i-before, i),
			After:     sliceAround(lines, i+1, i+1+after),
			Score:     1.0,
		})
	}
	return results, nil
}

func contextWindow(opts Options) (before, after int) {
	before, after = opts.Before, opts.After
	if before == 0 {
		before = opts.ContextLines
	}
	if after == 0 {
		after = opts.ContextLines
	}
	return
}

func sliceAround(lines []string, from, to int) []string {
	if from < 0 {
		from = 0
	}
	if to > len(lines) {
		to = len(lines)
	}
	if from >= to {
		return nil
	}
	return append([]string(nil), lines[from:to]...)
}

// searchSemanticAccelerated prefers the HNSW vector accelerator when
// one is attached, falling back to the brute-force scan in
// searchSemantic when it is absent or errors.
func (e *Engine) searchSemanticAccelerated(ctx context.Context, query string, opts Options) ([]*Result, error) {
	if e.Semantic == nil {
		return e.searchSemantic(ctx, query, opts)
	}
	if !e.Embedder.Available(ctx) {
		return nil, ckerr.New(ckerr.KindEmbed, "embedder unavailable", nil)
	}

	limit := opts.TopK
	if limit <= 0 {
		limit = defaultTopK
	}
	if opts.Rerank && limit < 50 {
		limit = 50
	}

	hits, err := e.Semantic.Search(ctx, query, limit)
	if err != nil {
		return e.searchSemantic(ctx, query, opts)
	}
	return e.hydrate(ctx, hits)
}

// searchSemantic embeds the query and brute-force scans vectors.bin for
// nearest neighbours by cosine similarity (spec.md §4.7's reference
// path, used whenever no vector accelerator is attached or it errors).
func (e *Engine) searchSemantic(ctx context.Context, query string, opts Options) ([]*Result, error) {
	if !e.Embedder.Available(ctx) {
		return nil, ckerr.New(ckerr.KindEmbed, "embedder unavailable", nil)
	}
	queryVec, err := e.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, ckerr.Wrap(ckerr.KindEmbed, err)
	}

	limit := opts.TopK
	if limit <= 0 {
		limit = defaultTopK
	}
	if opts.Rerank && limit < 50 {
		limit = 50
	}

	type scored struct {
		id    string
		score float32
	}
	var candidates []scored
	queryNorm := l2Norm(queryVec)

	err = e.Store.IterVectors(ctx, func(v *store.VectorRecord) bool {
		if ctx.Err() != nil {
			return false
		}
		score := cosineSimilarity(queryVec, queryNorm, v)
		if float64(score) < opts.Threshold {
			return true
		}
		candidates = append(candidates, scored{id: v.ChunkID, score: score})
		return true
	})
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ckerr.New(ckerr.KindCancelled, "search cancelled", ctx.Err())
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	results := make([]*Result, 0, len(candidates))
	for _, c := range candidates {
		chunk, err := e.Store.LookupChunk(ctx, c.id)
		if err != nil || chunk == nil {
			continue
		}
		results = append(results, &Result{
			File:      chunk.File,
			LineStart: chunk.LineStart,
			LineEnd:   chunk.LineEnd,
			ByteStart: chunk.ByteStart,
			ByteEnd:   chunk.ByteEnd,
			Text:      chunk.Text,
			ChunkID:   chunk.ID,
			ChunkType: chunk.ChunkType,
			Score:     float64(c.score),
		})
	}

	// A stable tie-break on (file, line_start) keeps equal-score
	// neighbours deterministic, matching the lexical path's ordering.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].File != results[j].File {
			return results[i].File < results[j].File
		}
		return results[i].LineStart < results[j].LineStart
	})
	return results, nil
}

// searchHybrid runs the lexical and semantic paths and fuses them with
// RRF (spec.md §4.7). A semantic failure degrades to lexical-only
// rather than surfacing, per spec.md §8's fallback rule.
//
// When both accelerators are attached, fusion is delegated to
// searcherpkg.FusionSearcher, which runs BM25 and vector search in
// parallel and combines them with the same RRF family of scoring; this
// avoids running two full engine-level searches when the accelerators
// already make fused, ID-ranked results cheap to obtain. Any failure to
// build or run that fused search falls back to the brute-force
// lexical+semantic+RRF path below.
func (e *Engine) searchHybrid(ctx context.Context, query string, opts Options) ([]*Result, error) {
	limit := opts.TopK
	if limit <= 0 {
		limit = defaultTopK
	}
	if opts.Rerank && limit < 50 {
		limit = 50
	}

	if e.Lexical != nil && e.Semantic != nil {
		fusion, err := searcherpkg.NewFusionSearcher(
			searcherpkg.WithBM25Searcher(e.Lexical),
			searcherpkg.WithVectorSearcher(e.Semantic),
		)
		if err == nil {
			hits, err := fusion.Search(ctx, query, limit)
			if err == nil {
				return e.hydrate(ctx, hits)
			}
		}
	}

	lexOpts := opts
	lexOpts.Mode = ModeLexical
	lexical, err := e.searchText(ctx, query, lexOpts)
	if err != nil {
		return nil, err
	}

	semOpts := opts
	semOpts.Mode = ModeSemantic
	semantic, err := e.searchSemantic(ctx, query, semOpts)
	if err != nil {
		if ckerr.IsKind(err, ckerr.KindCancelled) {
			return nil, err
		}
		semantic = nil
	}

	return NewRRFFusion().Fuse(lexical, semantic), nil
}

func (e *Engine) rerank(ctx context.Context, query string, results []*Result, topK int) ([]*Result, error) {
	m := topK
	if m < 50 {
		m = 50
	}
	if m > len(results) {
		m = len(results)
	}
	candidates := results[:m]

	docs := make([]string, len(candidates))
	for i, r := range candidates {
		docs[i] = r.Text
	}

	reranked, err := e.Reranker.Rerank(ctx, query, docs, 0)
	if err != nil {
		return nil, err
	}

	out := make([]*Result, len(reranked))
	for i, rr := range reranked {
		cp := *candidates[rr.Index]
		cp.Score = rr.Score
		out[i] = &cp
	}
	out = append(out, results[m:]...)
	return out, nil
}

func l2Norm(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

func cosineSimilarity(query []float32, queryNorm float32, v *store.VectorRecord) float32 {
	if queryNorm == 0 || v.Norm == 0 {
		return 0
	}
	var dot float32
	for i, x := range query {
		if i >= len(v.Vector) {
			break
		}
		dot += x * v.Vector[i]
	}
	return dot / (queryNorm * v.Norm)
}

