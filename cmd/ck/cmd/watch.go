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
	"github.com/lwyBZss8924d/ckindex/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Watch a directory and keep its index up to date",
		Long: `Watch a directory for file changes and incrementally reindex it
as files are created, modified, removed or renamed.

Runs until interrupted with Ctrl+C.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runWatch(ctx, cmd, path, debounce)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Coalesce file events within this window before reindexing")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, path string, debounce time.Duration) error {
	out := output.New(cmd.OutOrStdout())

	absPath, err := filepath.Abs(path)
	if err != nil {
		return ckerr.Wrap(ckerr.KindInvalidPath, err)
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

	embedder, err := embed.NewEmbedder(ctx, embed.ParseProvider(cfg.Embeddings.Provider), cfg.Embeddings.Model)
	if err != nil {
		return ckerr.Wrap(ckerr.KindEmbed, err)
	}
	defer embedder.Close()

	st, err := store.Open(ctx, filepath.Join(root, ".ck"))
	if err != nil {
		return ckerr.Wrap(ckerr.KindIO, err)
	}
	defer st.Close()

	pipeline := index.NewPipeline(sc, ch, embedder, st)
	chunkCfg := chunk.DefaultConfig()
	if cfg.Search.ChunkSize > 0 {
		chunkCfg.MaxTokens = cfg.Search.ChunkSize
	}
	if cfg.Search.ChunkOverlap > 0 {
		chunkCfg.StrideOverlap = cfg.Search.ChunkOverlap
	}

	wOpts := watcher.DefaultOptions()
	wOpts.DebounceWindow = debounce
	w, err := watcher.NewHybridWatcher(wOpts)
	if err != nil {
		return ckerr.Wrap(ckerr.KindInternal, err)
	}
	if err := w.Start(ctx, root); err != nil {
		return ckerr.Wrap(ckerr.KindInternal, err)
	}
	defer w.Stop()

	out.Successf("watching %s (ctrl-c to stop)", root)

	reindex := func() {
		result, err := pipeline.Run(ctx, index.Config{
			RootDir:     root,
			ChunkConfig: chunkCfg,
			BatchSize:   embed.DefaultBatchSize,
		})
		if err != nil {
			out.Errorf("reindex failed: %v", err)
			return
		}
		if result.Added+result.Touched+result.Replaced+result.Removed > 0 {
			out.Successf("reindexed: %d added, %d replaced, %d removed", result.Added, result.Replaced, result.Removed)
		}
	}

	reindex()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-w.Events():
			if !ok {
				return nil
			}
			out.Status("~", fmt.Sprintf("%s %s", evt.Operation, evt.Path))
			reindex()
		case werr, ok := <-w.Errors():
			if !ok {
				continue
			}
			out.Warningf("watch error: %v", werr)
		}
	}
}
