package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/lwyBZss8924d/ckindex/internal/ckerr"
	"github.com/lwyBZss8924d/ckindex/internal/config"
	"github.com/lwyBZss8924d/ckindex/internal/store"
)

// indexInfo is the JSON-friendly view of store.IndexInfo.
type indexInfo struct {
	Root            string `json:"root"`
	ModelID         string `json:"model_id"`
	EmbedderBackend string `json:"embedder_backend"`
	Dimension       int    `json:"dimension"`
	CreatedAt       string `json:"created_at"`
	Generation      uint64 `json:"generation"`
	Files           int    `json:"files"`
	Chunks          int    `json:"chunks"`
	ChunksSize      string `json:"chunks_size"`
	VectorsSize     string `json:"vectors_size"`
	SecondaryIndex  string `json:"secondary_index,omitempty"`
}

func newInfoCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info [path]",
		Short: "Show index configuration and statistics",
		Long: `Display the embedding model, dimension and file/generation counts
of the .ck/ store for the given project (or the current directory).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runInfo(cmd.Context(), cmd, path, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runInfo(ctx context.Context, cmd *cobra.Command, path string, jsonOutput bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return ckerr.Wrap(ckerr.KindInvalidPath, err)
	}
	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	storeDir := filepath.Join(root, ".ck")
	if _, statErr := os.Stat(storeDir); os.IsNotExist(statErr) {
		return ckerr.New(ckerr.KindIndexSchema, fmt.Sprintf("no index found at %s, run 'ck index %s' first", storeDir, path), nil)
	}

	st, err := store.Open(ctx, storeDir)
	if err != nil {
		return ckerr.Wrap(ckerr.KindIndexCorruption, err)
	}
	defer st.Close()

	summary, err := store.GatherInfo(ctx, st, root)
	if err != nil {
		return ckerr.Wrap(ckerr.KindIO, err)
	}

	info := indexInfo{
		Root:            summary.ProjectRoot,
		ModelID:         summary.ModelID,
		EmbedderBackend: summary.EmbedderBackend,
		Dimension:       summary.Dimension,
		CreatedAt:       summary.CreatedAt.Format(time.RFC3339),
		Generation:      summary.Generation,
		Files:           summary.FileCount,
		Chunks:          summary.ChunkCount,
		ChunksSize:      store.FormatBytes(summary.ChunksSizeBytes),
		VectorsSize:     store.FormatBytes(summary.VectorsSizeBytes),
	}
	if summary.SecondaryIndexSizeBytes > 0 {
		info.SecondaryIndex = fmt.Sprintf("%s (%s)", store.FormatBytes(summary.SecondaryIndexSizeBytes), summary.SecondaryIndexBackend)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "root:        %s\n", info.Root)
	fmt.Fprintf(w, "model:       %s (dim %d, %s)\n", info.ModelID, info.Dimension, info.EmbedderBackend)
	fmt.Fprintf(w, "generation:  %d\n", info.Generation)
	fmt.Fprintf(w, "files:       %d\n", info.Files)
	fmt.Fprintf(w, "chunks:      %d\n", info.Chunks)
	fmt.Fprintf(w, "chunks size: %s\n", info.ChunksSize)
	fmt.Fprintf(w, "vectors:     %s\n", info.VectorsSize)
	if info.SecondaryIndex != "" {
		fmt.Fprintf(w, "bm25 index:  %s\n", info.SecondaryIndex)
	}
	fmt.Fprintf(w, "created:     %s\n", store.FormatTime(summary.CreatedAt))
	return nil
}
