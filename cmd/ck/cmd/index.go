package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lwyBZss8924d/ckindex/internal/chunk"
	"github.com/lwyBZss8924d/ckindex/internal/ckerr"
	"github.com/lwyBZss8924d/ckindex/internal/config"
	"github.com/lwyBZss8924d/ckindex/internal/embed"
	"github.com/lwyBZss8924d/ckindex/internal/index"
	"github.com/lwyBZss8924d/ckindex/internal/output"
	"github.com/lwyBZss8924d/ckindex/internal/scanner"
	"github.com/lwyBZss8924d/ckindex/internal/store"
	"github.com/lwyBZss8924d/ckindex/pkg/indexer"
)

func newIndexCmd() *cobra.Command {
	var (
		backend string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory for searching",
		Long: `Index a directory to enable hybrid search over its contents.

This scans files, chunks code and documents, generates embeddings and
commits them to the .ck/ store. Re-running index only touches files
that changed since the last run.

Backend Selection:
  (default)          Ollama on every platform (MLX is opt-in)
  --backend=mlx      Use MLX (Apple Silicon)
  --backend=ollama   Use Ollama (cross-platform)
  --backend=static   Use built-in static embeddings (no external model server)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			if backend != "" {
				os.Setenv("CK_EMBEDDER", backend)
			}

			return runIndex(ctx, cmd, path, workers)
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "", "Embedding backend: auto-detect (default), mlx, ollama, or static")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of concurrent indexing workers (0 = one per CPU)")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, workers int) error {
	out := output.New(cmd.OutOrStdout())

	absPath, err := filepath.Abs(path)
	if err != nil {
		return ckerr.Wrap(ckerr.KindInvalidPath, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return ckerr.New(ckerr.KindInvalidPath, fmt.Sprintf("cannot access %s", absPath), err)
	}
	if !info.IsDir() {
		return ckerr.New(ckerr.KindInvalidPath, fmt.Sprintf("%s is not a directory", absPath), nil)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	sc, err := scanner.New()
	if err != nil {
		return ckerr.Wrap(ckerr.KindInternal, err)
	}

	ch := chunk.NewCodeChunker()
	defer ch.Close()

	if workers <= 0 {
		workers = cfg.Performance.IndexWorkers
	}

	out.Status("⏳", fmt.Sprintf("connecting to %s embedder...", embed.ParseProvider(cfg.Embeddings.Provider)))
	embedCtx, embedCancel := context.WithTimeout(ctx, 15*time.Second)
	embedder, err := embed.NewEmbedder(embedCtx, embed.ParseProvider(cfg.Embeddings.Provider), cfg.Embeddings.Model)
	embedCancel()
	if err != nil {
		return ckerr.Wrap(ckerr.KindEmbed, err)
	}
	defer embedder.Close()

	storeDir := filepath.Join(root, ".ck")
	st, err := store.Open(ctx, storeDir)
	if err != nil {
		return ckerr.Wrap(ckerr.KindIO, err)
	}
	defer st.Close()

	pipeline := index.NewPipeline(sc, ch, embedder, st)

	accel, err := indexer.Open(storeDir, embedder, embedder.Dimensions())
	if err != nil {
		out.Warning(fmt.Sprintf("secondary index accelerator unavailable: %v", err))
	} else {
		pipeline.Secondary = accel
		defer accel.Close()
	}

	chunkCfg := chunk.DefaultConfig()
	if cfg.Search.ChunkSize > 0 {
		chunkCfg.MaxTokens = cfg.Search.ChunkSize
	}
	if cfg.Search.ChunkOverlap > 0 {
		chunkCfg.StrideOverlap = cfg.Search.ChunkOverlap
	}

	progress := make(chan index.Progress, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress {
			if p.FilesTotal > 0 {
				out.Progress(p.FilesDone, p.FilesTotal, p.FilePath)
			}
		}
	}()

	result, err := pipeline.Run(ctx, index.Config{
		RootDir:     root,
		ChunkConfig: chunkCfg,
		Workers:     workers,
		BatchSize:   embed.DefaultBatchSize,
		Progress:    progress,
	})
	close(progress)
	<-done
	out.ProgressDone()

	if err != nil {
		return err
	}

	out.Successf("indexed %d added, %d replaced, %d touched, %d removed, %d skipped (%d chunks, generation %d)",
		result.Added, result.Replaced, result.Touched, result.Removed, result.Skipped,
		result.ChunksIndexed, result.Generation)
	return nil
}
