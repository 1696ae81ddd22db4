package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lwyBZss8924d/ckindex/internal/chunk"
	"github.com/lwyBZss8924d/ckindex/internal/ckerr"
	"github.com/lwyBZss8924d/ckindex/internal/embed"
	"github.com/lwyBZss8924d/ckindex/internal/scanner"
	"github.com/lwyBZss8924d/ckindex/internal/store"
	"github.com/lwyBZss8924d/ckindex/pkg/indexer"
)

// Progress is emitted on a non-blocking channel as the pipeline runs
// (spec.md §5: "{generation, file_path, files_done, files_total, chunks_done}").
type Progress struct {
	Generation uint64
	FilePath   string
	FilesDone  int
	FilesTotal int
	ChunksDone int
}

// Result summarizes a completed Run.
type Result struct {
	Added, Touched, Replaced, Removed, Skipped int
	ChunksIndexed                              int
	Generation                                 uint64
}

// Config controls a single indexing run.
type Config struct {
	RootDir     string
	ChunkConfig chunk.Config
	Workers     int
	BatchSize   int
	// Progress, if non-nil, receives a Progress update after every
	// committed file. Sends are non-blocking: a slow or absent reader
	// never stalls indexing.
	Progress chan<- Progress
}

// Pipeline drives the scanner, chunker and embedder against a Store,
// committing one file at a time so a cancelled run leaves no partial
// file behind (spec.md §4.6: "no special resume state is required
// because commits are per-file").
type Pipeline struct {
	Scanner  *scanner.Scanner
	Chunker  chunk.Chunker
	Embedder embed.Embedder
	Store    *store.Store

	// Secondary, when non-nil, is an optional BM25+vector accelerator
	// kept in sync with every commit. It is rebuildable from the store's
	// files.jsonl/chunks.jsonl/vectors.bin, which remain authoritative,
	// but once wired a write failure on it fails the commit like any
	// other store write: an accelerator that silently drifts from the
	// authoritative files is worse than one that surfaces its errors.
	Secondary *indexer.Accelerator
}

// NewPipeline wires the components a Run needs.
func NewPipeline(sc *scanner.Scanner, ch chunk.Chunker, emb embed.Embedder, st *store.Store) *Pipeline {
	return &Pipeline{Scanner: sc, Chunker: ch, Embedder: emb, Store: st}
}

// Run scans cfg.RootDir, diffs it against the store, and commits the
// add/touch/replace/remove changes through a bounded worker pool.
func (p *Pipeline) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := p.Store.Init(p.Embedder.ModelName(), uint32(p.Embedder.Dimensions()), uint32(cfg.ChunkConfig.MaxTokens)); err != nil {
		return nil, err
	}

	scanned, err := p.scanAll(ctx, cfg.RootDir)
	if err != nil {
		return nil, err
	}

	existing, err := p.existingFiles(ctx)
	if err != nil {
		return nil, err
	}

	changes, err := Diff(scanned, existing, hashFileContent)
	if err != nil {
		return nil, ckerr.Wrap(ckerr.KindIO, err)
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = embed.DefaultBatchSize
	}

	var (
		mu       sync.Mutex
		result   = &Result{}
		filesLen = len(changes)
		done     int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, ch := range changes {
		change := ch
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			chunksDone, err := p.commit(gctx, change, cfg.ChunkConfig, batchSize)
			if err != nil {
				return fmt.Errorf("%s: %w", change.Path, err)
			}

			mu.Lock()
			done++
			switch change.Kind {
			case ChangeAdd:
				result.Added++
			case ChangeTouch:
				result.Touched++
			case ChangeReplace:
				result.Replaced++
			case ChangeRemove:
				result.Removed++
			case ChangeSkip:
				result.Skipped++
			}
			result.ChunksIndexed += chunksDone
			header := p.Store.Header()
			progress := Progress{
				Generation: header.Generation,
				FilePath:   change.Path,
				FilesDone:  done,
				FilesTotal: filesLen,
				ChunksDone: result.ChunksIndexed,
			}
			mu.Unlock()

			if cfg.Progress != nil {
				select {
				case cfg.Progress <- progress:
				default:
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return result, ckerr.New(ckerr.KindCancelled, "indexing cancelled", ctx.Err())
		}
		return result, err
	}

	if p.Secondary != nil {
		if err := p.Secondary.Save(); err != nil {
			return result, ckerr.Wrap(ckerr.KindIO, err)
		}
	}

	result.Generation = p.Store.Header().Generation
	return result, nil
}

// commit performs the single atomic store write for one diff outcome,
// returning the number of chunks it indexed (0 for skip/remove).
func (p *Pipeline) commit(ctx context.Context, change FileChange, chunkCfg chunk.Config, batchSize int) (int, error) {
	switch change.Kind {
	case ChangeSkip:
		return 0, nil

	case ChangeRemove:
		var chunkIDs []string
		if p.Secondary != nil {
			if rec, err := p.Store.GetFile(ctx, change.Path); err == nil && rec != nil {
				chunkIDs = rec.ChunkIDs
			}
		}
		if err := p.Store.DeleteFile(ctx, change.Path); err != nil {
			return 0, err
		}
		if p.Secondary != nil && len(chunkIDs) > 0 {
			if err := p.Secondary.Indexer.Delete(ctx, chunkIDs); err != nil {
				return 0, ckerr.Wrap(ckerr.KindIO, err)
			}
		}
		return 0, nil

	case ChangeTouch:
		rec, err := p.Store.GetFile(ctx, change.Path)
		if err != nil {
			return 0, err
		}
		if rec == nil {
			// Raced with a concurrent removal; treat as nothing to do.
			return 0, nil
		}
		// Content is unchanged (same hash), only mtime/size moved, so
		// existing chunks and vectors are reused as-is.
		updated := *rec
		updated.MTimeNS = change.Info.ModTime.UnixNano()
		updated.Size = change.Info.Size
		return 0, p.Store.TouchFile(ctx, &updated)

	case ChangeAdd, ChangeReplace:
		content, err := os.ReadFile(change.Info.AbsPath)
		if err != nil {
			return 0, ckerr.Wrap(ckerr.KindIO, err)
		}
		hash := sha256.Sum256(content)

		chunks, err := p.Chunker.Chunk(ctx, &chunk.FileInput{
			Path:     change.Path,
			Content:  content,
			Language: change.Info.Language,
		}, chunkCfg)
		if err != nil {
			return 0, ckerr.Wrap(ckerr.KindParse, err)
		}

		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, err := embedInBatches(ctx, p.Embedder, texts, batchSize)
		if err != nil {
			return 0, ckerr.Wrap(ckerr.KindEmbed, err)
		}

		chunkRecords := make([]*store.ChunkRecord, len(chunks))
		chunkIDs := make([]string, len(chunks))
		vectorRecords := make([]*store.VectorRecord, len(chunks))
		for i, c := range chunks {
			chunkIDs[i] = c.ID()
			chunkRecords[i] = &store.ChunkRecord{
				ID:              c.ID(),
				File:            change.Path,
				ByteStart:       c.Span.ByteStart,
				ByteEnd:         c.Span.ByteEnd,
				LineStart:       c.Span.LineStart,
				LineEnd:         c.Span.LineEnd,
				Text:            c.Text,
				ChunkType:       string(c.ChunkType),
				Breadcrumb:      c.Breadcrumb,
				Ancestry:        c.Ancestry,
				EstimatedTokens: c.EstimatedTokens,
			}
			vectorRecords[i] = &store.VectorRecord{ChunkID: c.ID(), Vector: vectors[i]}
		}

		rec := &store.FileRecord{
			Path:        change.Path,
			MTimeNS:     change.Info.ModTime.UnixNano(),
			Size:        change.Info.Size,
			ContentHash: hex.EncodeToString(hash[:]),
			ChunkIDs:    chunkIDs,
		}
		if err := p.Store.PutFile(ctx, rec, chunkRecords, vectorRecords); err != nil {
			return 0, err
		}
		if p.Secondary != nil {
			if err := p.Secondary.Indexer.Index(ctx, chunkRecords); err != nil {
				return len(chunks), ckerr.Wrap(ckerr.KindIO, err)
			}
		}
		return len(chunks), nil
	}

	return 0, fmt.Errorf("unhandled change kind %q", change.Kind)
}

// scanAll drains the scanner's channel into a slice, surfacing the
// first scan error it encounters.
func (p *Pipeline) scanAll(ctx context.Context, root string) ([]*scanner.FileInfo, error) {
	results, err := p.Scanner.Scan(ctx, &scanner.ScanOptions{RootDir: root})
	if err != nil {
		return nil, ckerr.Wrap(ckerr.KindIO, err)
	}

	var files []*scanner.FileInfo
	for r := range results {
		if r.Error != nil {
			return nil, ckerr.Wrap(ckerr.KindIO, r.Error)
		}
		files = append(files, r.File)
	}
	return files, nil
}

// existingFiles loads every FileRecord currently in the store, keyed
// by path, for Diff to compare against.
func (p *Pipeline) existingFiles(ctx context.Context) (map[string]*store.FileRecord, error) {
	recs, err := p.Store.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*store.FileRecord, len(recs))
	for _, r := range recs {
		out[r.Path] = r
	}
	return out, nil
}

// embedInBatches calls EmbedBatch in batchSize-sized groups so a large
// file's chunk count never exceeds the embedder's batch limit.
func embedInBatches(ctx context.Context, e embed.Embedder, texts []string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

