package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/lwyBZss8924d/ckindex/internal/ckerr"
	"github.com/lwyBZss8924d/ckindex/internal/config"
	"github.com/lwyBZss8924d/ckindex/internal/embed"
	"github.com/lwyBZss8924d/ckindex/internal/output"
	"github.com/lwyBZss8924d/ckindex/internal/scanner"
	"github.com/lwyBZss8924d/ckindex/internal/search"
	"github.com/lwyBZss8924d/ckindex/internal/store"
	"github.com/lwyBZss8924d/ckindex/pkg/searcher"
)

// searchOptions holds the CLI flags for search, mirroring
// search.Options field-for-field (spec.md §4.7's closed option set).
type searchOptions struct {
	mode string

	caseInsensitive bool
	wholeWord       bool
	fixedString     bool

	topK      int
	threshold float64

	contextLines int
	before       int
	after        int

	lineNumbers         bool
	showScores          bool
	filesWithMatches    bool
	filesWithoutMatches bool

	include          []string
	exclude          []string
	respectGitignore bool

	fullSection bool

	rerank         bool
	rerankModel    string
	embeddingModel string

	jsonOutput bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search an indexed codebase",
		Long: `Search an indexed codebase using regex, lexical, semantic or
hybrid matching.

Examples:
  ck search "func NewEngine"
  ck search --mode semantic "how are embeddings cached"
  ck search --mode hybrid --rerank "error handling for retries"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "hybrid", "Search mode: regex, lexical, semantic, hybrid")
	cmd.Flags().BoolVarP(&opts.caseInsensitive, "ignore-case", "i", false, "Case-insensitive matching")
	cmd.Flags().BoolVarP(&opts.wholeWord, "word", "w", false, "Match whole words only")
	cmd.Flags().BoolVarP(&opts.fixedString, "fixed-strings", "F", false, "Treat the query as a literal string, not regex")
	cmd.Flags().IntVarP(&opts.topK, "top", "n", 10, "Maximum number of results")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "Minimum score for semantic/hybrid results")
	cmd.Flags().IntVarP(&opts.contextLines, "context", "C", 0, "Lines of context before and after each match")
	cmd.Flags().IntVarP(&opts.before, "before", "B", 0, "Lines of context before each match")
	cmd.Flags().IntVarP(&opts.after, "after", "A", 0, "Lines of context after each match")
	cmd.Flags().BoolVar(&opts.lineNumbers, "line-numbers", true, "Show line numbers")
	cmd.Flags().BoolVar(&opts.showScores, "show-scores", false, "Show match scores")
	cmd.Flags().BoolVarP(&opts.filesWithMatches, "files-with-matches", "l", false, "Only print matching file names")
	cmd.Flags().BoolVar(&opts.filesWithoutMatches, "files-without-matches", false, "Only print file names with no match")
	cmd.Flags().StringSliceVar(&opts.include, "include", nil, "Glob patterns to include (repeatable)")
	cmd.Flags().StringSliceVar(&opts.exclude, "exclude", nil, "Glob patterns to exclude (repeatable)")
	cmd.Flags().BoolVar(&opts.respectGitignore, "gitignore", true, "Respect .gitignore when walking files")
	cmd.Flags().BoolVar(&opts.fullSection, "full-section", false, "Return the whole chunk instead of a line window")
	cmd.Flags().BoolVar(&opts.rerank, "rerank", false, "Rerank the top results with a cross-encoder")
	cmd.Flags().StringVar(&opts.rerankModel, "rerank-model", "", "Rerank model override")
	cmd.Flags().StringVar(&opts.embeddingModel, "embedding-model", "", "Embedding model override")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Force newline-delimited JSON output")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	storeDir := filepath.Join(root, ".ck")
	if _, statErr := os.Stat(storeDir); os.IsNotExist(statErr) {
		return ckerr.New(ckerr.KindIndexSchema, "no index found, run 'ck index' first", nil)
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	st, err := store.Open(ctx, storeDir)
	if err != nil {
		return ckerr.Wrap(ckerr.KindIndexCorruption, err)
	}
	defer st.Close()

	sc, err := scanner.New()
	if err != nil {
		return ckerr.Wrap(ckerr.KindInternal, err)
	}

	searchOpts := toSearchOptions(opts, cfg)

	var embedder embed.Embedder
	if searchOpts.Mode == search.ModeSemantic || searchOpts.Mode == search.ModeHybrid {
		header := st.Header()
		provider := embed.ParseProvider(cfg.Embeddings.Provider)
		model := header.ModelID
		if model == "" {
			model = cfg.Embeddings.Model
		}
		embedder, err = embed.NewEmbedder(ctx, provider, model)
		if err != nil {
			return ckerr.Wrap(ckerr.KindEmbed, err)
		}
		defer embedder.Close()
	}

	engine := search.NewEngine(root, st, embedder, nil, sc)

	if lex, sem, aerr := searcher.Open(storeDir, embedder, int(st.Header().Dimension)); aerr == nil {
		engine.Lexical = lex
		engine.Semantic = sem
	}

	results, err := engine.Search(ctx, query, searchOpts)
	if err != nil {
		return err
	}

	jsonMode := opts.jsonOutput || !isatty.IsTerminal(os.Stdout.Fd())
	if jsonMode {
		if err := writeNDJSON(cmd, results); err != nil {
			return err
		}
	} else {
		writeHumanResults(cmd, results, opts)
	}

	if len(results) == 0 {
		os.Exit(ckerr.ExitNoMatches)
	}
	return nil
}

func toSearchOptions(opts searchOptions, cfg *config.Config) search.Options {
	mode := search.Mode(strings.ToLower(opts.mode))
	switch mode {
	case search.ModeRegex, search.ModeLexical, search.ModeSemantic, search.ModeHybrid:
	default:
		mode = search.ModeHybrid
	}

	embeddingModel := opts.embeddingModel
	if embeddingModel == "" {
		embeddingModel = cfg.Embeddings.Model
	}

	return search.Options{
		Mode:                mode,
		CaseInsensitive:     opts.caseInsensitive,
		WholeWord:           opts.wholeWord,
		FixedString:         opts.fixedString,
		TopK:                opts.topK,
		Threshold:           opts.threshold,
		ContextLines:        opts.contextLines,
		Before:              opts.before,
		After:               opts.after,
		LineNumbers:         opts.lineNumbers,
		ShowScores:          opts.showScores,
		ShowFilenames:       true,
		FilesWithMatches:    opts.filesWithMatches,
		FilesWithoutMatches: opts.filesWithoutMatches,
		IncludePatterns:     opts.include,
		ExcludePatterns:     opts.exclude,
		RespectGitignore:    opts.respectGitignore,
		FullSection:         opts.fullSection,
		Rerank:              opts.rerank,
		RerankModel:         opts.rerankModel,
		EmbeddingModel:      embeddingModel,
	}
}

// ndjsonResult mirrors spec.md §6's machine-readable result record.
type ndjsonResult struct {
	File       string  `json:"file"`
	LineStart  int     `json:"line_start"`
	LineEnd    int     `json:"line_end"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
	ChunkType  string  `json:"chunk_type"`
	Breadcrumb string  `json:"breadcrumb,omitempty"`
}

func writeNDJSON(cmd *cobra.Command, results []*search.Result) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, r := range results {
		if err := enc.Encode(ndjsonResult{
			File:      r.File,
			LineStart: r.LineStart,
			LineEnd:   r.LineEnd,
			Score:     r.Score,
			Snippet:   r.Text,
			ChunkType: r.ChunkType,
		}); err != nil {
			return ckerr.Wrap(ckerr.KindIO, err)
		}
	}
	return nil
}

func writeHumanResults(cmd *cobra.Command, results []*search.Result, opts searchOptions) {
	out := output.New(cmd.OutOrStdout())
	if len(results) == 0 {
		out.Warning("no matches")
		return
	}
	for _, r := range results {
		loc := fmt.Sprintf("%s:%d", r.File, r.LineStart)
		if r.LineEnd != r.LineStart {
			loc = fmt.Sprintf("%s:%d-%d", r.File, r.LineStart, r.LineEnd)
		}
		if opts.showScores {
			out.Statusf("●", "%s (%.3f)", loc, r.Score)
		} else {
			out.Status("●", loc)
		}
		if !opts.filesWithMatches && !opts.filesWithoutMatches {
			out.Code(r.Text)
		}
	}
}
