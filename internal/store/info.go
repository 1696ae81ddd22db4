package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// GatherInfo builds an IndexInfo summary for the `ck info` command from a
// live Store plus the directory it's backed by.
func GatherInfo(ctx context.Context, s *Store, projectRoot string) (*IndexInfo, error) {
	h := s.Header()
	files, err := s.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	chunkCount := 0
	for _, f := range files {
		chunkCount += len(f.ChunkIDs)
	}

	secondarySize, secondaryBackend := secondaryIndexSize(s.path("bm25"))

	info := &IndexInfo{
		Location:                s.dir,
		ProjectRoot:             projectRoot,
		ModelID:                 h.ModelID,
		Dimension:               int(h.Dimension),
		Generation:              h.Generation,
		FileCount:               len(files),
		ChunkCount:              chunkCount,
		ChunksSizeBytes:         fileSize(s.path(chunksFileName)),
		VectorsSizeBytes:        fileSize(s.path(vectorsFileName)),
		SecondaryIndexSizeBytes: secondarySize,
		SecondaryIndexBackend:   secondaryBackend,
		EmbedderBackend:         inferBackendFromModel(h.ModelID),
		CreatedAt:               h.CreatedAt,
	}
	return info, nil
}

// secondaryIndexSize reports the on-disk size of whichever BM25
// accelerator backend was built at basePath (see bm25_factory.go's
// basePath+".db"/".bleve" convention), or (0, "") if neither exists.
func secondaryIndexSize(basePath string) (int64, string) {
	if size := fileSize(basePath + ".db"); size > 0 {
		return size, "sqlite"
	}
	if size := getDirSize(basePath + ".bleve"); size > 0 {
		return size, "bleve"
	}
	return 0, ""
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

// FormatBytes renders a byte count the way `ck info` prints index sizes.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	suffixes := []string{"KB", "MB", "GB", "TB", "PB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), suffixes[exp])
}

// FormatTime renders a timestamp for `ck info`, or "unknown" for a zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format("2006-01-02 15:04:05")
}

// containsAny reports whether s contains any of substrings.
func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// inferBackendFromModel guesses which embedder backend produced model_id,
// for display purposes only (the header's model_id is the source of truth
// for compatibility checks, not this guess).
func inferBackendFromModel(model string) string {
	switch model {
	case "static", "static768":
		return "static"
	}
	if strings.HasPrefix(model, "/") {
		return "mlx"
	}
	if containsAny(model, []string{"mlx-community/", "mlx-"}) {
		return "mlx"
	}
	return "ollama"
}

// getDirSize sums the size of every regular file under root. Returns 0 if
// root does not exist.
func getDirSize(root string) int64 {
	var total int64
	_ = filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !fi.IsDir() {
			total += fi.Size()
		}
		return nil
	})
	return total
}
